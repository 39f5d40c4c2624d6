package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/agentsight/agentsight/internal/aggregate"
	"github.com/agentsight/agentsight/internal/registry"
	"github.com/agentsight/agentsight/internal/serve"
)

func newServeCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hook/API server without monitors",
		Long: `Serves the hook ingestion endpoint and the registry API only. Use this
when another process (or none) does the transcript monitoring and you just
need session lifecycle events recorded and resume lookups answered.

Examples:
  agentsight serve
  agentsight serve --port 8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := contextWithSignals()
			defer cancel()

			reg := registry.New(registry.Options{
				TTL:  cfg.RegistryTTL(),
				Path: cfg.Registry.Path,
			})
			defer reg.Flush()

			if host == "" {
				host = cfg.Server.Host
			}
			if port == 0 {
				port = cfg.Server.Port
			}
			srv := serve.New(serve.Config{
				Host:       host,
				Port:       port,
				Aggregator: aggregate.New(), // empty: session endpoints serve []
				Registry:   reg,
			})

			slog.Info("hook server started", "host", host, "port", port)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "bind address (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "port (default from config)")
	return cmd
}
