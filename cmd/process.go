package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chaos-io/cutout/config"
	"github.com/chaos-io/cutout/matting"
	"github.com/chaos-io/cutout/metrics"
	"github.com/chaos-io/cutout/session"
	"github.com/chaos-io/cutout/util"
	nhttp "github.com/chaos-io/cutout/util/http"
)

var errNothingProcessed = errors.New("no image was processed")

type processOptions struct {
	output    string
	mode      string
	threshold int
	shrink    int
}

func newProcessCmd(cfg *config.Config) *cobra.Command {
	opts := processOptions{
		output:    session.ArchiveName,
		mode:      string(matting.ModeGeneric),
		threshold: matting.DefaultThreshold,
		shrink:    matting.DefaultShrink,
	}

	cmd := &cobra.Command{
		Use:   "process [flags] <path-or-url>...",
		Short: "Remove backgrounds from files or URLs and write a zip archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := newProcessor(cfg)
			if err != nil {
				return err
			}
			return runProcess(cmd.Context(), proc, nhttp.NewHTTPClient(), opts, args, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", opts.output, "Path of the zip archive")
	flags.StringVarP(&opts.mode, "mode", "m", opts.mode, "Mode: generic, hard-edge or hair")
	flags.IntVarP(&opts.threshold, "threshold", "t", opts.threshold, "Alpha threshold for hard-edge mode (100-250)")
	flags.IntVarP(&opts.shrink, "shrink", "s", opts.shrink, "Edge shrink radius for hard-edge mode (0-5)")
	return cmd
}

// runProcess 一次性走完上传、渲染、打包；单张失败只记录，不影响其它图片
func runProcess(ctx context.Context, proc session.Processor, cli nhttp.IClient, opts processOptions, sources []string, out io.Writer) error {
	defer util.Trace("process batch")()

	mode, err := matting.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	sess := session.New(proc, session.WithRegistry(metrics.NewRegistry()))
	if err := sess.Configure(matting.Settings{Mode: mode, Threshold: opts.threshold, Shrink: opts.shrink}); err != nil {
		return err
	}

	uploads := make([]session.Upload, 0, len(sources))
	for _, src := range sources {
		name, data, err := util.ReadSource(ctx, cli, src)
		if err != nil {
			log.Warn().Err(err).Str("source", src).Msg("skip source")
			continue
		}
		uploads = append(uploads, session.Upload{Name: name, Data: data})
	}
	if _, err := sess.Upload(ctx, uploads...); err != nil {
		log.Warn().Err(err).Msg("some files were rejected")
	}

	pass := sess.Render(ctx)
	for _, p := range pass.Panels {
		if p.Err != nil {
			_, _ = fmt.Fprintf(out, "FAIL %s (%s): %s\n", p.ID, p.ErrKind, p.ErrMessage)
			continue
		}
		_, _ = fmt.Fprintf(out, "ok   %s -> %s\n", p.ID, p.OutputName)
	}
	if len(pass.Manifest) == 0 {
		return errNothingProcessed
	}

	if err := writeArchive(opts.output, pass.Manifest); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "wrote %d of %d images to %s\n", len(pass.Manifest), len(pass.Panels), opts.output)
	return nil
}

func writeArchive(path string, m session.Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	if err := session.WriteArchive(f, m); err != nil {
		_ = f.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	return f.Close()
}
