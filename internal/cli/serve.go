package cli

import (
	"github.com/spf13/cobra"

	"github.com/tidetrawler/tidetrawler/internal/server"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve registry search and package lookups as a JSON API",
		Long: `Run an HTTP server exposing the configured registries:

  GET /healthz
  GET /v1/registries
  GET /v1/search?q=<query>[&registry=crates,npm]
  GET /v1/packages/{registry}/{name}

The server stops gracefully on interrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.setup()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = e.cfg.Server.Addr
			}

			srv := server.New(e.agg, loggerFromContext(cmd.Context()))
			printNextStep("Try", "curl 'http://"+addr+"/v1/search?q=serde'")
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}
