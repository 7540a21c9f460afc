package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/chaos-io/cutout/config"
	"github.com/chaos-io/cutout/matting"
	"github.com/chaos-io/cutout/matting/rembg"
	nhttp "github.com/chaos-io/cutout/util/http"
)

func newRemover(cfg *config.Config) (rembg.Remover, error) {
	cli := nhttp.NewHTTPClient(nhttp.WithTimeout(cfg.RemoverTimeout))
	switch cfg.BackendName() {
	case rembg.BackendServer:
		return rembg.NewServerRemBG(cfg.RemBGURL, cfg.RemBGModel, cli), nil
	case rembg.BackendBiRefNet:
		return rembg.NewBiRefNetRemBG(cfg.ComfyUIURL, cli, cfg.ComfyUIPollInterval), nil
	case rembg.BackendNone:
		return rembg.NewDefaultRemBG(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func newProcessor(cfg *config.Config) (*matting.Processor, error) {
	remover, err := newRemover(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("backend", cfg.BackendName()).
		Int("max_side", cfg.MaxInputSide).
		Bool("auto_orient", cfg.AutoOrient).
		Msg("processor ready")
	return matting.NewProcessor(remover,
		matting.WithMaxSide(cfg.MaxInputSide),
		matting.WithAutoOrient(cfg.AutoOrient),
	), nil
}
