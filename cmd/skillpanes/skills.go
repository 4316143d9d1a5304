package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/skillpanes/internal/config"
	"github.com/abdul-hamid-achik/skillpanes/internal/skills"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List the skills the assistant can open",
	RunE:  runSkills,
}

func init() {
	rootCmd.AddCommand(skillsCmd)
}

func runSkills(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithOptions(config.LoadOptions{SkipKeyCheck: true})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	var dirs []string
	if cfg.SkillsDir != "" {
		dirs = append(dirs, cfg.SkillsDir)
	}
	catalog := skills.NewCatalog(dirs...)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tTOOL\tMODEL\tLIMITS\tTRIGGERS")
	for _, s := range catalog.List() {
		b := s.Budget(cfg)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d tools/%d turns\t%s\n", s.Name, s.Kind, s.ToolName,
			s.ResolveModel(cfg), b.MaxToolCalls, b.MaxIterations, strings.Join(s.Triggers, ", "))
	}
	return w.Flush()
}
