package matting

import (
	"bytes"
	"image"
	"image/png"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// resizeWithinMax 缩放（最长边 <= maxSize）
func resizeWithinMax(img image.Image, maxSize int) image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	longest := max(w, h)

	if maxSize <= 0 || longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))

	return resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
}

// EncodePNG 输出统一为无损 PNG
func EncodePNG(img image.Image) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
