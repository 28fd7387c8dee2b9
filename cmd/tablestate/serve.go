package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/config"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/metrics"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/server"
)

func serveCmd(f *globalFlags) *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the declared tables over HTTP",
		Long: `Start the HTTP host for the tables declared in tablestate.json.

Each browser gets one session per table. State snapshots and URL
navigations are streamed on /tables/{table}/watch.

Examples:
  tablestate serve
  tablestate serve --port=9090 --host=0.0.0.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backend, closeBackend, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeBackend()

			logger := f.logger()
			srv := server.New(cfg,
				server.WithLogger(logger),
				server.WithMetrics(metrics.New()),
				server.WithBackend(backend))

			success("Serving %d tables on http://%s", len(cfg.TableNames()), cfg.Address())
			info("backend: %s", cfg.Local.Backend)
			if cfg.Server.Metrics {
				info("metrics: http://%s/metrics", cfg.Address())
			}
			if cfg.Local.Watch && cfg.Local.Backend != config.BackendFile {
				warn("local.watch only applies to the file backend")
			}

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from tablestate.json)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from tablestate.json)")

	return cmd
}
