package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/skillpanes/internal/config"
	"github.com/abdul-hamid-achik/skillpanes/internal/llm"
	"github.com/abdul-hamid-achik/skillpanes/internal/usage"
)

var recentFlag int

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token usage from the local log",
	Long: `Print totals, per-model and per-session-type token usage recorded in
usage.db_path, with dollar costs from the pricing table.

Examples:
  skillpanes usage
  skillpanes usage --recent 20`,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().IntVar(&recentFlag, "recent", 10, "Number of recent calls to list (0 to skip)")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithOptions(config.LoadOptions{SkipKeyCheck: true})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if _, err := os.Stat(cfg.Usage.DBPath); err != nil {
		fmt.Printf("No usage recorded yet (%s).\n", cfg.Usage.DBPath)
		return nil
	}

	store, err := usage.OpenStore(cfg.Usage.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	tracker := usage.NewTracker(cfg.Pricing, nil)

	total, err := store.Totals(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Total: %d calls, %s tokens (%s in / %s out)\n\n", total.Calls,
		usage.FormatTokens(total.TotalTokens), usage.FormatTokens(total.PromptTokens), usage.FormatTokens(total.CompletionTokens))

	byModel, err := store.ByModel(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tCALLS\tINPUT\tOUTPUT\tCOST")
	for _, s := range byModel {
		cost := tracker.Cost(s.Key, llm.Usage{InputTokens: s.PromptTokens, OutputTokens: s.CompletionTokens})
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t$%.4f\n", s.Key, s.Calls,
			usage.FormatTokens(s.PromptTokens), usage.FormatTokens(s.CompletionTokens), cost)
	}
	_ = w.Flush()
	fmt.Println()

	byType, err := store.BySessionType(ctx)
	if err != nil {
		return err
	}
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tCALLS\tTOKENS")
	for _, s := range byType {
		fmt.Fprintf(w, "%s\t%d\t%s\n", s.Key, s.Calls, usage.FormatTokens(s.TotalTokens))
	}
	_ = w.Flush()

	if recentFlag <= 0 {
		return nil
	}
	recent, err := store.Recent(ctx, recentFlag)
	if err != nil {
		return err
	}
	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tMODEL\tSESSION\tTOKENS")
	for _, e := range recent {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Model, e.SessionType, e.TotalTokens)
	}
	return w.Flush()
}
