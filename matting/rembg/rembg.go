package rembg

import (
	"context"
	"errors"
	"image"
)

const (
	BackendServer   = "server"
	BackendBiRefNet = "birefnet"
	BackendNone     = "none"
)

var ErrAlphaMattingUnsupported = errors.New("alpha matting is not supported by this backend")

// Options 透传给抠图模型的参数，零值表示模型默认行为
type Options struct {
	AlphaMatting        bool
	ForegroundThreshold int
	BackgroundThreshold int
	ErodeSize           int
}

type Remover interface {
	Remove(ctx context.Context, img image.Image, opts Options) (image.Image, error)
}

// DefaultRemBG 原样返回输入，用于离线调试
type DefaultRemBG struct{}

func NewDefaultRemBG() *DefaultRemBG {
	return &DefaultRemBG{}
}

func (d *DefaultRemBG) Remove(ctx context.Context, img image.Image, opts Options) (image.Image, error) {
	return img, nil
}
