package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("skillpanes version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
