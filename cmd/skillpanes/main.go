package main

import (
	"fmt"
	"os"

	"github.com/abdul-hamid-achik/skillpanes/internal/logger"
)

// Version is set at build time
var Version = "dev"

func main() {
	// Ensure log file is closed on exit
	defer logger.CloseLogFile()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.CloseLogFile()
		os.Exit(1)
	}
}
