package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/agentsight/agentsight/internal/aggregate"
	"github.com/agentsight/agentsight/internal/monitor"
	"github.com/agentsight/agentsight/internal/sched"
	"github.com/agentsight/agentsight/internal/tui"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of agent sessions",
		Long: `Opens a terminal dashboard that updates as sessions change. Monitors
run on the configured refresh cadence; every merged delivery repaints the
view.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stdoutIsTTY() {
				return fmt.Errorf("watch needs a terminal; use 'agentsight sessions --json' for scripts")
			}

			ctx, cancel := contextWithSignals()
			defer cancel()

			agg := aggregate.New()
			monitors := buildMonitors(cfg, agg)
			if len(monitors) == 0 {
				return fmt.Errorf("no providers enabled")
			}

			refresh := func() {
				for _, m := range monitors {
					m.Refresh(ctx)
				}
			}
			p := tea.NewProgram(tui.New(refresh), tea.WithAltScreen())

			// Every merged delivery repaints the dashboard.
			agg.AddConsumer(func(snaps []monitor.Snapshot) error {
				p.Send(tui.SnapshotsMsg(snaps))
				return nil
			})

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

			_, err := p.Run()
			return err
		},
	}
}
