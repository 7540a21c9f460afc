package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaos-io/cutout/config"
	"github.com/chaos-io/cutout/logging"
)

// Execute 读取环境配置后执行命令行，命令行参数覆盖环境变量
func Execute() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd(&cfg).ExecuteContext(ctx)
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cutout",
		Short:         "Batch background removal",
		Long:          "Upload images, remove their backgrounds in generic, hard-edge or hair mode, and download the results one by one or as a zip.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Setup(cmd.ErrOrStderr(), cfg.LogLevel); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&cfg.Backend, "backend", cfg.Backend, "Background removal backend: server, birefnet or none")
	flags.StringVar(&cfg.RemBGURL, "rembg-url", cfg.RemBGURL, "Base URL of the rembg HTTP server")
	flags.StringVar(&cfg.RemBGModel, "rembg-model", cfg.RemBGModel, "Model name passed to the rembg server")
	flags.StringVar(&cfg.ComfyUIURL, "comfyui-url", cfg.ComfyUIURL, "Base URL of the ComfyUI server running BiRefNet")
	flags.DurationVar(&cfg.ComfyUIPollInterval, "comfyui-poll", cfg.ComfyUIPollInterval, "ComfyUI history polling interval")
	flags.DurationVar(&cfg.RemoverTimeout, "remover-timeout", cfg.RemoverTimeout, "Timeout of a single backend request, 0 for none")
	flags.IntVar(&cfg.MaxInputSide, "max-side", cfg.MaxInputSide, "Downscale inputs whose longer side exceeds this, 0 to keep full size")
	flags.BoolVar(&cfg.AutoOrient, "auto-orient", cfg.AutoOrient, "Apply EXIF orientation to JPEG inputs")

	serveCmd := newServeCmd(cfg)
	rootCmd.RunE = serveCmd.RunE
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newProcessCmd(cfg))
	return rootCmd
}
