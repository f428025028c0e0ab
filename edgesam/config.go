package edgesam

import (
	"github.com/edgevision/go-segment"
	"go.uber.org/zap"
)

type Label float32

const (
	LabelBackground Label = 0 // 背景/排除
	LabelForeground Label = 1 // 前景/点击
)

const (
	// defaultInputSize 模型输入的边长
	defaultInputSize = 1024
)

// Point 提示点, 坐标位于模型输入空间
type Point struct {
	X, Y  float32
	Label Label
}

// Config 配置项
type Config struct {
	// 必填参数
	OnnxRuntimeLibPath string // onnxruntime.dll (或 .so, .dylib) 的路径
	EncoderModelPath   string // 图片特征提取模型
	DecoderModelPath   string // Mask解码模型

	// 可选参数
	InputSize  int         // (可选) 模型输入边长, 默认 1024
	UseCuda    bool        // (可选) 是否启用 CUDA, 失败时回退 CPU
	NumThreads int         // (可选) ONNX 线程数, 默认由CPU核心数决定
	Logger     *zap.Logger // (可选) 日志
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		OnnxRuntimeLibPath: segment.DefaultLibraryPath(),
		EncoderModelPath:   "models/edge_sam_3x_encoder.onnx",
		DecoderModelPath:   "models/edge_sam_3x_decoder.onnx",
		InputSize:          defaultInputSize,
	}
}

// defaultPoints 默认提示点: 模型输入空间的中心, 前景
func defaultPoints(inputSize int) []Point {
	center := float32(inputSize) / 2
	return []Point{{X: center, Y: center, Label: LabelForeground}}
}
