package segment

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/up-zero/gotool/imageutil"
)

// 叠加层混合参数
const (
	blendImageWeight   = 0.7
	blendOverlayWeight = 0.3
)

// maskColor 前景高亮颜色 (绿色)
var maskColor = color.RGBA{G: 255, A: 255}

// Mask 软分割掩码, 每个像素一个置信度
type Mask struct {
	Data   []float32 // 行优先, 长度 Width*Height
	Width  int
	Height int
}

// At 返回 (x, y) 处的置信度
func (m *Mask) At(x, y int) float32 {
	return m.Data[y*m.Width+x]
}

// Binary 按阈值 (严格大于) 二值化, 返回 0/255 掩码
func (m *Mask) Binary(threshold float32) []uint8 {
	out := make([]uint8, len(m.Data))
	for i, v := range m.Data {
		if v > threshold {
			out[i] = 255
		}
	}
	return out
}

// SaveResult 将掩码以高亮叠加层渲染到原图并保存
//
// # Params:
//
//	img: 原图
//	mask: 与原图同尺寸的软掩码
//	outputPath: 输出路径, 格式由扩展名决定, 已存在时覆盖
//	threshold: 二值化阈值
func SaveResult(img image.Image, mask *Mask, outputPath string, threshold float32) error {
	bounds := img.Bounds()
	if mask.Width != bounds.Dx() || mask.Height != bounds.Dy() {
		return fmt.Errorf("掩码尺寸 (%dx%d) 与图片尺寸 (%dx%d) 不一致",
			mask.Width, mask.Height, bounds.Dx(), bounds.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, mask.Width, mask.Height))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)

	binary := mask.Binary(threshold)
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			if binary[y*mask.Width+x] == 0 {
				continue
			}
			i := dst.PixOffset(x, y)
			dst.Pix[i] = blend(dst.Pix[i], maskColor.R)
			dst.Pix[i+1] = blend(dst.Pix[i+1], maskColor.G)
			dst.Pix[i+2] = blend(dst.Pix[i+2], maskColor.B)
		}
	}

	if err := imageutil.Save(outputPath, dst, 100); err != nil {
		return fmt.Errorf("保存结果图片失败: %w", err)
	}
	return nil
}

// blend 按固定权重混合原图与叠加层的单个通道
func blend(src, overlay uint8) uint8 {
	return uint8(blendImageWeight*float32(src) + blendOverlayWeight*float32(overlay) + 0.5)
}
