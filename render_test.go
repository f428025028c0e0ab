package segment

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i] = uint8(x * 20)
			img.Pix[i+1] = uint8(y * 20)
			img.Pix[i+2] = 100
			img.Pix[i+3] = 255
		}
	}
	return img
}

func testMask(w, h int) *Mask {
	m := &Mask{Data: make([]float32, w*h), Width: w, Height: h}
	for i := range m.Data {
		m.Data[i] = float32(i) / float32(len(m.Data))
	}
	return m
}

func TestMaskBinaryThresholdMonotonic(t *testing.T) {
	m := testMask(16, 16)

	low := m.Binary(0.3)
	high := m.Binary(0.6)

	// 阈值更高时, 前景像素是低阈值前景的子集
	for i := range high {
		if high[i] == 255 {
			assert.EqualValues(t, 255, low[i], "像素 %d", i)
		}
	}
	assert.Less(t, countSet(high), countSet(low))
}

func TestMaskBinaryStrictGreater(t *testing.T) {
	m := &Mask{Data: []float32{0.5, 0.5001, 0.4999}, Width: 3, Height: 1}
	b := m.Binary(0.5)
	assert.Equal(t, []uint8{0, 255, 0}, b)
}

func TestSaveResultDimensions(t *testing.T) {
	img := testImage(8, 8)
	m := testMask(8, 8)
	out := filepath.Join(t.TempDir(), "out.png")

	require.NoError(t, SaveResult(img, m, out, 0.5))

	decoded := decodePNG(t, out)
	assert.Equal(t, 8, decoded.Bounds().Dx())
	assert.Equal(t, 8, decoded.Bounds().Dy())
}

func TestSaveResultIdempotent(t *testing.T) {
	img := testImage(8, 8)
	m := testMask(8, 8)
	dir := t.TempDir()
	out1 := filepath.Join(dir, "a.png")
	out2 := filepath.Join(dir, "b.png")

	require.NoError(t, SaveResult(img, m, out1, 0.5))
	require.NoError(t, SaveResult(img, m, out2, 0.5))

	b1, err := os.ReadFile(out1)
	require.NoError(t, err)
	b2, err := os.ReadFile(out2)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(b1, b2))
}

func TestSaveResultBlend(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	for i := 0; i < 2; i++ {
		off := img.PixOffset(i, 0)
		img.Pix[off] = 100
		img.Pix[off+1] = 100
		img.Pix[off+2] = 100
		img.Pix[off+3] = 255
	}
	// 左像素前景, 右像素背景
	m := &Mask{Data: []float32{1, 0}, Width: 2, Height: 1}
	out := filepath.Join(t.TempDir(), "out.png")

	require.NoError(t, SaveResult(img, m, out, 0.5))

	decoded := decodePNG(t, out)
	r, g, b, _ := decoded.At(0, 0).RGBA()
	assert.EqualValues(t, blend(100, 0), r>>8)
	assert.EqualValues(t, blend(100, 255), g>>8)
	assert.EqualValues(t, blend(100, 0), b>>8)

	// 背景像素保持不变
	r, g, b, _ = decoded.At(1, 0).RGBA()
	assert.EqualValues(t, 100, r>>8)
	assert.EqualValues(t, 100, g>>8)
	assert.EqualValues(t, 100, b>>8)

	// 前景像素向高亮色靠拢
	assert.Greater(t, blend(100, 255), uint8(100))
	assert.Less(t, blend(100, 0), uint8(100))
}

func TestSaveResultSizeMismatch(t *testing.T) {
	img := testImage(8, 8)
	m := testMask(4, 4)
	out := filepath.Join(t.TempDir(), "out.png")

	err := SaveResult(img, m, out, 0.5)
	assert.Error(t, err)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSaveResultOverwrite(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, os.WriteFile(out, []byte("not an image"), 0o644))

	require.NoError(t, SaveResult(testImage(8, 8), testMask(8, 8), out, 0.5))

	decoded := decodePNG(t, out)
	assert.Equal(t, 8, decoded.Bounds().Dx())
}

func countSet(b []uint8) int {
	n := 0
	for _, v := range b {
		if v == 255 {
			n++
		}
	}
	return n
}

func decodePNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}
