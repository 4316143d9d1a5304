package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abdul-hamid-achik/skillpanes/internal/backend"
	"github.com/abdul-hamid-achik/skillpanes/internal/config"
	"github.com/abdul-hamid-achik/skillpanes/internal/display"
	"github.com/abdul-hamid-achik/skillpanes/internal/logger"
	"github.com/abdul-hamid-achik/skillpanes/internal/orchestrator"
	"github.com/abdul-hamid-achik/skillpanes/internal/permissions"
	"github.com/abdul-hamid-achik/skillpanes/internal/router"
	"github.com/abdul-hamid-achik/skillpanes/internal/skills"
	"github.com/abdul-hamid-achik/skillpanes/internal/tools"
	"github.com/abdul-hamid-achik/skillpanes/internal/tui"
	"github.com/abdul-hamid-achik/skillpanes/internal/ui"
	"github.com/abdul-hamid-achik/skillpanes/internal/usage"
)

var (
	plainFlag    bool
	modeFlag     string
	projectsFlag string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "skillpanes",
	Short: "Multi-window assistant that routes requests to model skills",
	Long: `skillpanes talks to a default assistant until a request needs a skill,
then opens it in a window. Up to panels.max_panels windows run side by side,
each with its own session. Shell commands wait for your approval.

Examples:
  skillpanes                        # Full-screen terminal UI
  skillpanes --plain                # Line mode (also used when stdout is not a terminal)
  skillpanes --mode auto            # Never ask before running commands
  skillpanes usage                  # Token usage from the local log`,
	SilenceUsage: true,
	RunE:         runRoot,
}

func init() {
	rootCmd.Flags().BoolVar(&plainFlag, "plain", false, "Use line mode instead of the full-screen UI")
	rootCmd.Flags().StringVar(&modeFlag, "mode", "", "Approval mode: ask, auto or strict (overrides config)")
	rootCmd.Flags().StringVar(&projectsFlag, "projects-dir", "", "Directory file and shell tools are confined to")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Console log level: debug, info, warn, error")
}

// app is everything a running session needs
type app struct {
	cfg     *config.Config
	catalog *skills.Catalog
	policy  *permissions.Policy
	router  *router.Router
}

func runRoot(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if modeFlag != "" {
		cfg.Approval.Mode = modeFlag
	}
	if projectsFlag != "" {
		cfg.Workspace.ProjectsDir = projectsFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setupLogging(cfg)
	logger.Debug("skillpanes %s session started, config=%s", Version, cfg.ConfigPath())

	var dirs []string
	if cfg.SkillsDir != "" {
		dirs = append(dirs, cfg.SkillsDir)
	}
	catalog := skills.NewCatalog(dirs...)

	registry, _, err := tools.NewWorkspaceRegistry(cfg)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	policy := permissions.NewPolicy(permissions.ParseMode(cfg.Approval.Mode), cfg.Approval.GatedTools, cfg.Approval.ApprovePhrases)

	var store *usage.Store
	if cfg.Usage.Enabled {
		store, err = usage.OpenStore(cfg.Usage.DBPath)
		if err != nil {
			logger.Warn("usage log disabled: %v", err)
			store = nil
		} else {
			defer func() { _ = store.Close() }()
		}
	}

	r := router.New(router.Deps{
		Config:  cfg,
		Catalog: catalog,
		Factory: backend.NewFactory(cfg, registry, backend.DefaultDialer(cfg)),
		Tools:   registry,
		Policy:  policy,
		Usage:   usage.NewTracker(cfg.Pricing, store),
	})
	defer r.Shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, catalog: catalog, policy: policy, router: r}
	if plainFlag || !tui.IsTTYAvailable() {
		return a.runPlain(ctx)
	}
	return a.runTUI(ctx)
}

func setupLogging(cfg *config.Config) {
	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	if level != "" {
		logger.SetLevelFromString(level)
	}
	if path, err := logger.OpenLogFile(cfg.LogDir()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not open session log: %v\n", err)
	} else {
		logger.Debug("session log %s", path)
	}
}

func (a *app) orchestrator(sink display.Sink) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Deps{
		Config:  a.cfg,
		Router:  a.router,
		Catalog: a.catalog,
		Policy:  a.policy,
		Sink:    sink,
	})
}

// runTUI runs the full-screen host. Either side ending stops the other.
func (a *app) runTUI(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	runner := tui.NewTUIRunner(gctx)
	o := a.orchestrator(runner.Sink())

	g.Go(runner.Run)
	g.Go(func() error {
		return ignoreCanceled(o.Run(gctx, runner.Events()))
	})
	return g.Wait()
}

// runPlain reads lines from stdin and prints to stdout. The reader is not
// part of the wait: a blocked read must not hold up shutdown.
func (a *app) runPlain(ctx context.Context) error {
	console := ui.NewConsole()
	events := make(chan display.InputEvent, 16)
	o := a.orchestrator(console)

	fmt.Println("skillpanes - type a request, /help for commands, /quit to exit")
	go func() {
		if err := ui.NewInputHandler(os.Stdin, console).Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("input: %v", err)
		}
	}()
	return ignoreCanceled(o.Run(ctx, events))
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
