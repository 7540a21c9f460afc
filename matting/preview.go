package matting

import (
	"fmt"

	"github.com/disintegration/imaging"
)

// Preview 缩略图，只用于页面展示，不进入缓存
func (p *Processor) Preview(raw []byte, side int) ([]byte, error) {
	img, err := p.Decode(raw)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if side > 0 && (b.Dx() > side || b.Dy() > side) {
		img = imaging.Fit(img, side, side, imaging.Lanczos)
	}

	data, err := EncodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return data, nil
}
