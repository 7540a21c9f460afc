package matting

import (
	"fmt"
	"image"
)

// Refine 硬边处理：alpha 二值化后按 shrink 做最小值滤波（腐蚀），只替换 alpha 通道
//
//	alpha > threshold → 255，否则 0
//	shrink > 0 时窗口为 (2*shrink+1)²，图像边界按边缘像素延伸
//
// 输入图像不会被修改。
func Refine(img *image.NRGBA, threshold, shrink int) (*image.NRGBA, error) {
	if threshold < 0 || threshold > 255 {
		return nil, fmt.Errorf("%w: threshold %d outside [0,255]", ErrInvalidParams, threshold)
	}
	if shrink < 0 {
		return nil, fmt.Errorf("%w: shrink %d < 0", ErrInvalidParams, shrink)
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	alpha := binarize(img, threshold)
	if shrink > 0 {
		alpha = erode(alpha, w, h, shrink)
	}

	out := image.NewNRGBA(img.Bounds())
	for y := 0; y < h; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w*4]
		copy(dst, src)
		for x := 0; x < w; x++ {
			dst[x*4+3] = alpha[y*w+x]
		}
	}
	return out, nil
}

func binarize(img *image.NRGBA, threshold int) []uint8 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	alpha := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			if int(img.Pix[row+x*4+3]) > threshold {
				alpha[y*w+x] = 255
			}
		}
	}
	return alpha
}

// erode 方形窗口的最小值滤波，拆成水平和垂直两次一维滤波
func erode(src []uint8, w, h, r int) []uint8 {
	tmp := make([]uint8, len(src))
	for y := 0; y < h; y++ {
		row := src[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			m := uint8(255)
			for k := max(0, x-r); k <= min(w-1, x+r); k++ {
				m = min(m, row[k])
			}
			tmp[y*w+x] = m
		}
	}

	dst := make([]uint8, len(src))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			m := uint8(255)
			for k := max(0, y-r); k <= min(h-1, y+r); k++ {
				m = min(m, tmp[k*w+x])
			}
			dst[y*w+x] = m
		}
	}
	return dst
}
