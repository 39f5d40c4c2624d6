package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentsight/agentsight/internal/cost"
	"github.com/agentsight/agentsight/internal/history"
	"github.com/agentsight/agentsight/internal/util"
)

func newUsageCmd() *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Report token usage and cost per provider",
		Long: `Sums token counters and provider-priced cost across live sessions.
With --since, reads the usage history archive instead of the live view.

Examples:
  agentsight usage
  agentsight usage --since 24h
  agentsight usage --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if since > 0 {
				return usageFromHistory(cmd, since)
			}
			return usageLive(cmd)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "report archived usage for the trailing window (e.g. 24h)")
	return cmd
}

func usageLive(cmd *cobra.Command) error {
	agg, err := refreshOnce()
	if err != nil {
		return err
	}
	report := agg.UsageReport()

	if useJSON() {
		return printJSON(cmd.OutOrStdout(), report)
	}

	t := newTable(os.Stdout, "PROVIDER", "SESSIONS", "INPUT", "OUTPUT", "CACHED", "COST")
	for _, p := range report.Providers {
		t.addRow(
			p.Provider,
			fmt.Sprintf("%d", p.Sessions),
			util.FormatTokens(p.Tokens.Input),
			util.FormatTokens(p.Tokens.Output),
			util.FormatTokens(p.Tokens.CacheRead),
			cost.FormatUSD(p.CostUSD),
		)
	}
	t.addRow(
		"total",
		fmt.Sprintf("%d", func() int {
			n := 0
			for _, p := range report.Providers {
				n += p.Sessions
			}
			return n
		}()),
		util.FormatTokens(report.Tokens.Input),
		util.FormatTokens(report.Tokens.Output),
		util.FormatTokens(report.Tokens.CacheRead),
		cost.FormatUSD(report.TotalCostUSD),
	)
	t.render()
	return nil
}

func usageFromHistory(cmd *cobra.Command, since time.Duration) error {
	if !cfg.History.Enabled || cfg.History.Path == "" {
		return fmt.Errorf("usage history is not enabled; set [history] enabled = true")
	}

	rec, err := history.Open(cfg.History.Path, history.Options{})
	if err != nil {
		return fmt.Errorf("opening usage history: %w", err)
	}
	defer rec.Close()

	totals, err := rec.Totals(time.Now().Add(-since))
	if err != nil {
		return err
	}
	if useJSON() {
		if totals == nil {
			totals = []history.ProviderTotals{}
		}
		return printJSON(cmd.OutOrStdout(), totals)
	}
	if len(totals) == 0 {
		fmt.Printf("No usage samples in the last %s.\n", since)
		return nil
	}

	t := newTable(os.Stdout, "PROVIDER", "SESSIONS", "INPUT", "OUTPUT", "CACHED", "COST", "SAMPLES", "AS OF")
	for _, p := range totals {
		t.addRow(
			p.Provider,
			fmt.Sprintf("%d", p.Sessions),
			util.FormatTokens(p.Tokens.Input),
			util.FormatTokens(p.Tokens.Output),
			util.FormatTokens(p.Tokens.CacheRead),
			cost.FormatUSD(p.CostUSD),
			fmt.Sprintf("%d", p.Samples),
			p.SampledAt.Local().Format("15:04:05"),
		)
	}
	t.render()
	return nil
}
