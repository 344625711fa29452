package cli

import (
	"github.com/spf13/cobra"
)

func (a *app) serveCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Routine Minder API server",
		Long:  `Start the REST API server (default 127.0.0.1:8787) and the scheduled sync job.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Override config from flags
			if host != "" {
				a.cfg.Server.Host = host
			}
			if port > 0 {
				a.cfg.Server.Port = port
			}

			d, err := a.open(cmd)
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
