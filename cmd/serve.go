package cmd

import (
	"github.com/spf13/cobra"

	"github.com/chaos-io/cutout/config"
	"github.com/chaos-io/cutout/metrics"
	"github.com/chaos-io/cutout/server"
	"github.com/chaos-io/cutout/session"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := newProcessor(cfg)
			if err != nil {
				return err
			}

			reg := metrics.NewRegistry()
			mgr := session.NewManager(proc, cfg.SessionTTL, reg)
			if err := mgr.Start(cfg.SessionSweep); err != nil {
				return err
			}
			defer mgr.Stop()

			srv, err := server.New(mgr, proc, reg,
				server.WithPreviewSide(cfg.PreviewSide),
				server.WithMaxUploadBytes(cfg.MaxUploadMB<<20),
			)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context(), cfg.Address)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.Address, "address", "a", cfg.Address, "HTTP listen address")
	flags.IntVar(&cfg.PreviewSide, "preview-side", cfg.PreviewSide, "Longest side of page previews")
	flags.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "Drop sessions idle for longer than this, 0 to keep forever")
	flags.DurationVar(&cfg.SessionSweep, "session-sweep", cfg.SessionSweep, "Interval of the idle session sweep")
	flags.Int64Var(&cfg.MaxUploadMB, "max-upload-mb", cfg.MaxUploadMB, "Maximum size of one upload request in MiB")
	return cmd
}
