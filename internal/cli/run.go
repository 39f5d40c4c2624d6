package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentsight/agentsight/internal/aggregate"
	"github.com/agentsight/agentsight/internal/config"
	"github.com/agentsight/agentsight/internal/history"
	"github.com/agentsight/agentsight/internal/notify"
	"github.com/agentsight/agentsight/internal/registry"
	"github.com/agentsight/agentsight/internal/sched"
	"github.com/agentsight/agentsight/internal/serve"
)

func newRunCmd() *cobra.Command {
	var projectDir string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring daemon",
		Long: `Starts the full pipeline: per-provider monitors on a refresh schedule,
the cross-provider aggregator, phase-transition notifications, the usage
history archive, and the hook/API server. Runs until interrupted.

Examples:
  agentsight run
  agentsight run --project-dir ~/work/myproject   # load its .agentsight.yaml routes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(projectDir)
		},
	}
	cmd.Flags().StringVar(&projectDir, "project-dir", "", "project directory to read .agentsight.yaml notification routes from")
	return cmd
}

func runDaemon(projectDir string) error {
	ctx, cancel := contextWithSignals()
	defer cancel()

	agg := aggregate.New()
	monitors := buildMonitors(cfg, agg)
	if len(monitors) == 0 {
		return fmt.Errorf("no providers enabled")
	}

	reg := registry.New(registry.Options{
		TTL:  cfg.RegistryTTL(),
		Path: cfg.Registry.Path,
	})
	defer reg.Flush()

	// Notifications: config sinks plus optional project routes.
	var routes []notify.Route
	if projectDir != "" {
		loaded, err := config.LoadProjectRoutes(projectDir)
		if err != nil {
			return fmt.Errorf("loading project notification routes: %w", err)
		}
		routes = loaded
	}
	notifier := notify.New(cfg.Notifications, routes)
	agg.AddConsumer(notifier.Consumer())

	// Usage history.
	if cfg.History.Enabled && cfg.History.Path != "" {
		rec, err := history.Open(cfg.History.Path, history.Options{
			SampleInterval: cfg.SampleInterval(),
		})
		if err != nil {
			slog.Warn("usage history disabled", "error", err)
		} else {
			defer rec.Close()
			agg.AddConsumer(rec.Consumer())
		}
	}

	srv := serve.New(serve.Config{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		Aggregator: agg,
		Registry:   reg,
	})
	agg.AddConsumer(srv.Consumer())

	runner := sched.NewRunner(cfg.RefreshInterval(), cfg.Debounce())
	for _, m := range monitors {
		var dirs []string
		if cfg.Monitor.WatchTranscripts {
			dirs = watchDirsFor(m.Provider())
		}
		runner.Add(m, dirs...)
	}
	runner.Start(ctx)
	defer runner.Stop()

	slog.Info("agentsight daemon started",
		"providers", len(monitors),
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	return srv.Start(ctx)
}

// watchDirsFor returns the transcript roots to watch for a provider,
// honoring configured overrides. Missing directories are skipped; the
// runner degrades to polling.
func watchDirsFor(provider string) []string {
	var root string
	switch provider {
	case "claude":
		root = cfg.Providers.Claude.Root
		if root == "" {
			if home, err := os.UserHomeDir(); err == nil {
				root = home + "/.claude/projects"
			}
		}
	case "codex":
		root = cfg.Providers.Codex.Root
		if root == "" {
			if home, err := os.UserHomeDir(); err == nil {
				root = home + "/.codex/sessions"
			}
		}
	}
	if root == "" {
		return nil
	}
	if _, err := os.Stat(root); err != nil {
		return nil
	}
	return []string{root}
}
