package cli

import (
	"github.com/spf13/cobra"

	"github.com/fuslink/fuslink/internal/server"
	"github.com/fuslink/fuslink/internal/stream"
)

// newServeCmd runs the HTTP proxy that fronts the vendor servers.
func newServeCmd() *cobra.Command {
	var listenFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the firmware proxy HTTP server",
		Long: `Serves the firmware API: version listing, binary details with
decryption keys, and streamed downloads with on-the-fly decryption.
Routes are per device, e.g. /EUX/SM-G960F/list.`,
		Example: `  fuslink serve
  fuslink serve --listen :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp("server")
			if err != nil {
				return err
			}
			if listenFlag != "" {
				a.cfg.ListenAddr = listenFlag
			}

			pipe := stream.NewPipeline(a.fus, logger, a.cfg.ChunkSize)
			srv := server.New(a.cfg, logger, a.catalog, a.fus, pipe, a.tacs)
			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listenFlag, "listen", "", "Listen address (default: FUSLINK_LISTEN_ADDR or :8080)")
	return cmd
}
