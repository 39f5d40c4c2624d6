package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentsight/agentsight/internal/registry"
)

func newResumeCmd() *cobra.Command {
	var (
		sessionID string
		threadID  string
		owner     string
		mapping   string
	)

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resolve which session a new interaction should attach to",
		Long: `Looks up the resume target in the session registry. Precedence: an
explicit --session wins, then a --thread binding, then the owner's most
recently used session in the mapping group.

Examples:
  agentsight resume --session 7f3a...
  agentsight resume --thread C0123456
  agentsight resume --owner user-a --mapping myproject`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.New(registry.Options{
				TTL:  cfg.RegistryTTL(),
				Path: cfg.Registry.Path,
			})

			result := reg.ResolveResumeTarget(registry.ResumeQuery{
				ExplicitSessionID: sessionID,
				ThreadChannelID:   threadID,
				OwnerUserID:       owner,
				MappingKey:        mapping,
			})

			if useJSON() {
				return printJSON(cmd.OutOrStdout(), result)
			}
			if !result.OK {
				fmt.Printf("No resume target: %s\n", result.Message)
				return nil
			}
			rec := result.Record
			fmt.Printf("Resume %s (via %s)\n", rec.SessionID, result.Source)
			if rec.Provider != "" {
				fmt.Printf("  provider: %s\n", rec.Provider)
			}
			if rec.Cwd != "" {
				fmt.Printf("  cwd:      %s\n", rec.Cwd)
			}
			if rec.ThreadChannelID != "" {
				fmt.Printf("  thread:   %s\n", rec.ThreadChannelID)
			}
			fmt.Printf("  last use: %s\n", rec.LastUsedAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "explicit session id")
	cmd.Flags().StringVar(&threadID, "thread", "", "conversation thread id")
	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (recency fallback only)")
	cmd.Flags().StringVar(&mapping, "mapping", "", "mapping key (recency fallback only)")
	return cmd
}

// contextWithSignals returns a context canceled by SIGINT/SIGTERM.
func contextWithSignals() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
