// Package cli implements the agentsight command line: one-shot views over
// the live session state, the resume lookup, and the long-running daemon.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentsight/agentsight/internal/aggregate"
	"github.com/agentsight/agentsight/internal/config"
	"github.com/agentsight/agentsight/internal/cost"
	"github.com/agentsight/agentsight/internal/discovery"
	"github.com/agentsight/agentsight/internal/monitor"
)

var (
	cfgFile string
	cfg     *config.Config

	// Global output flags, inherited by all subcommands.
	jsonOutput bool
	noColor    bool
	logLevel   string

	// Build information, set via ldflags.
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "agentsight",
	Short: "Track live AI coding-agent sessions across providers",
	Long: `agentsight watches the transcript logs of AI coding agents (Claude Code,
Codex CLI) and shows what every session is doing right now: busy, waiting
for an answer, waiting for permission, or ready for input.

Quick start:
  agentsight sessions              # one-shot table of live sessions
  agentsight watch                 # live TUI dashboard
  agentsight run                   # daemon: monitors + hook/API server
  agentsight usage --since 24h     # token and cost report`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		setupLogging(cfg.LogLevel)
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/agentsight/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newUsageCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWatchCmd())
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// buildMonitors constructs one monitor per enabled provider and wires each
// into the aggregator.
func buildMonitors(cfg *config.Config, agg *aggregate.Aggregator) []*monitor.Monitor {
	var discoverers []discovery.Discoverer
	if cfg.Providers.Claude.Enabled {
		discoverers = append(discoverers, &discovery.Claude{Root: cfg.Providers.Claude.Root})
	}
	if cfg.Providers.Codex.Enabled {
		discoverers = append(discoverers, &discovery.Codex{Root: cfg.Providers.Codex.Root})
	}

	monitors := make([]*monitor.Monitor, 0, len(discoverers))
	for _, disc := range discoverers {
		m := monitor.New(disc, monitor.Options{
			TailWindow: cfg.Monitor.TailWindowBytes,
			StaleAfter: cfg.StaleAfter(),
			Price:      cost.ForProvider(disc.Name()),
		})
		update := agg.Register(disc.Name())
		m.Subscribe(update)
		monitors = append(monitors, m)
	}
	return monitors
}
