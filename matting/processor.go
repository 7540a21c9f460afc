package matting

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog/log"

	"github.com/chaos-io/cutout/matting/rembg"
)

// hairOptions 发丝模式使用模型内置的 alpha matting，参数固定不开放
var hairOptions = rembg.Options{
	AlphaMatting:        true,
	ForegroundThreshold: 240,
	BackgroundThreshold: 10,
	ErodeSize:           10,
}

type Processor struct {
	remover    rembg.Remover
	maxSide    int
	autoOrient bool
}

type Option func(p *Processor)

// WithMaxSide 送入模型前把最长边限制在 n 以内，0 表示不缩放
func WithMaxSide(n int) Option {
	return func(p *Processor) {
		p.maxSide = n
	}
}

// WithAutoOrient 解码 JPEG 时按 EXIF 方向转正
func WithAutoOrient(on bool) Option {
	return func(p *Processor) {
		p.autoOrient = on
	}
}

func NewProcessor(remover rembg.Remover, opts ...Option) *Processor {
	p := &Processor{remover: remover}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process 解码原始字节，按 settings 抠图并编码为 PNG
func (p *Processor) Process(ctx context.Context, raw []byte, settings Settings) ([]byte, error) {
	img, err := p.Decode(raw)
	if err != nil {
		return nil, err
	}

	out, err := p.Cutout(ctx, img, settings)
	if err != nil {
		return nil, err
	}

	data, err := EncodePNG(out)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return data, nil
}

// Cutout 按模式分发：
//
//	generic   模型默认参数，结果原样返回
//	hard-edge 模型默认参数 + Refine(threshold, shrink)
//	hair      模型 alpha matting (240/10/10)
func (p *Processor) Cutout(ctx context.Context, img image.Image, settings Settings) (*image.NRGBA, error) {
	img = resizeWithinMax(img, p.maxSide)

	log.Ctx(ctx).Debug().
		Str("mode", string(settings.Mode)).
		Int("threshold", settings.Threshold).
		Int("shrink", settings.Shrink).
		Msg("cutout")

	switch settings.Mode {
	case ModeGeneric:
		return p.remove(ctx, img, rembg.Options{})
	case ModeHardEdge:
		out, err := p.remove(ctx, img, rembg.Options{})
		if err != nil {
			return nil, err
		}
		return Refine(out, settings.Threshold, settings.Shrink)
	case ModeHair:
		return p.remove(ctx, img, hairOptions)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidParams, settings.Mode)
	}
}

func (p *Processor) remove(ctx context.Context, img image.Image, opts rembg.Options) (*image.NRGBA, error) {
	out, err := p.remover.Remove(ctx, img, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemove, err)
	}
	return toNRGBA(out), nil
}
