package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentsight/agentsight/internal/aggregate"
	"github.com/agentsight/agentsight/internal/monitor"
	"github.com/agentsight/agentsight/internal/util"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List live agent sessions across providers",
		Long: `Discovers every provider's sessions, reads their transcript tails, and
prints one row per session ordered by state and freshness.

Examples:
  agentsight sessions
  agentsight sessions --json | jq '.[].activityPhase'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			agg, err := refreshOnce()
			if err != nil {
				return err
			}
			merged := agg.Merged()
			if useJSON() {
				return printJSON(cmd.OutOrStdout(), merged)
			}
			printSessionsTable(merged)
			return nil
		},
	}
}

// refreshOnce runs one synchronous refresh across all enabled providers and
// returns the settled aggregator.
func refreshOnce() (*aggregate.Aggregator, error) {
	agg := aggregate.New()
	monitors := buildMonitors(cfg, agg)
	if len(monitors) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}

	ctx, cancel := contextWithSignals()
	defer cancel()
	for _, m := range monitors {
		m.Refresh(ctx)
	}
	agg.WaitIdle(5 * time.Second)
	return agg, nil
}

func printSessionsTable(merged []monitor.Snapshot) {
	if len(merged) == 0 {
		fmt.Println("No live sessions.")
		return
	}

	// Fixed columns plus whatever width is left for the last message.
	msgWidth := terminalWidth() - 78
	if msgWidth < 16 {
		msgWidth = 16
	}

	now := time.Now()
	t := newTable(os.Stdout, "PROVIDER", "SESSION", "STATE", "PHASE", "DIR", "TOKENS", "ACTIVITY", "LAST MESSAGE")
	for _, snap := range merged {
		t.addRow(
			snap.Provider,
			cell(snap.SessionID, 12),
			string(snap.State),
			phaseCell(snap.Phase),
			cell(filepath.Base(snap.Cwd), 20),
			util.FormatTokens(snap.Tokens.Total()),
			relativeTime(snap.LastActivity, now),
			cell(snap.LastUserMessage, msgWidth),
		)
	}
	t.render()
	fmt.Printf("\n  %d session(s)\n", len(merged))
}
