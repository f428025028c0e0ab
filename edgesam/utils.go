package edgesam

import (
	"image"

	"github.com/edgevision/go-segment"
)

// tensorDataCHW 将 RGBA 图片展开为 CHW 布局的 [0,1] 张量数据
func tensorDataCHW(img *image.RGBA, size int) []float32 {
	data := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := img.At(x, y).RGBA()

			idx := y*size + x
			data[idx] = float32(r) / 65535.0         // R
			data[plane+idx] = float32(g) / 65535.0   // G
			data[2*plane+idx] = float32(b) / 65535.0 // B
		}
	}
	return data
}

// resizeMask 双线性插值将软掩码缩放到目标尺寸
func resizeMask(src *segment.Mask, dstW, dstH int) *segment.Mask {
	if src.Width == dstW && src.Height == dstH {
		return src
	}

	dst := &segment.Mask{
		Data:   make([]float32, dstW*dstH),
		Width:  dstW,
		Height: dstH,
	}
	xRatio := float32(src.Width) / float32(dstW)
	yRatio := float32(src.Height) / float32(dstH)

	for y := 0; y < dstH; y++ {
		srcY := (float32(y)+0.5)*yRatio - 0.5
		y0, fy := splitCoord(srcY, src.Height)
		y1 := min(y0+1, src.Height-1)

		for x := 0; x < dstW; x++ {
			srcX := (float32(x)+0.5)*xRatio - 0.5
			x0, fx := splitCoord(srcX, src.Width)
			x1 := min(x0+1, src.Width-1)

			top := lerp(src.Data[y0*src.Width+x0], src.Data[y0*src.Width+x1], fx)
			bottom := lerp(src.Data[y1*src.Width+x0], src.Data[y1*src.Width+x1], fx)
			dst.Data[y*dstW+x] = lerp(top, bottom, fy)
		}
	}
	return dst
}

// splitCoord 拆分浮点坐标为整数索引和小数权重, 越界时夹取
func splitCoord(v float32, limit int) (int, float32) {
	if v <= 0 {
		return 0, 0
	}
	i := int(v)
	if i >= limit-1 {
		return limit - 1, 0
	}
	return i, v - float32(i)
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
