package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tutu-network/cityledger/internal/daemon"
)

func init() {
	register(newServeCmd)
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the cityledger API server",
		Long:  `Start the HTTP API server (default 127.0.0.1:8645).`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			// Override config from flags
			if host != "" {
				cfg.API.Host = host
			}
			if port > 0 {
				cfg.API.Port = port
			}

			dopts := daemon.Options{Logger: opts.logger}
			if cfg.Telemetry.Prometheus {
				dopts.PromRegistry = prometheus.DefaultRegisterer
			}
			d, err := daemon.New(cfg, dopts)
			if err != nil {
				return err
			}
			defer d.Close()
			return d.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Host to listen on (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides config)")
	return cmd
}
