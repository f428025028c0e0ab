package edgesam

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/up-zero/gotool/convertutil"
	"github.com/up-zero/gotool/imageutil"
	xdraw "golang.org/x/image/draw"

	"github.com/edgevision/go-segment"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	// ErrModelNotFound 模型文件不存在
	ErrModelNotFound = errors.New("模型文件不存在")
	// ErrImageNotFound 图片文件不存在
	ErrImageNotFound = errors.New("图片文件不存在")
	// ErrImageDecode 图片文件存在但无法解码
	ErrImageDecode = errors.New("图片解码失败")
)

// Engine 持有 Encoder/Decoder 两个 ONNX Session
type Engine struct {
	encoderSession *ort.DynamicAdvancedSession
	decoderSession *ort.DynamicAdvancedSession

	// 引擎上报的输入输出名, 按声明顺序
	encoderInputs, encoderOutputs []string
	decoderInputs, decoderOutputs []string

	config Config
}

// InputTensor 预处理后的输入张量, 1x3xSxS, CHW, 取值 [0,1]
type InputTensor struct {
	Data []float32
	Size int
}

// FeatureTensor Encoder 输出的特征张量, 内容不做解释, 仅透传给 Decoder
type FeatureTensor struct {
	value ort.Value
}

// Destroy 释放特征张量
func (t *FeatureTensor) Destroy() {
	if t.value != nil {
		t.value.Destroy()
		t.value = nil
	}
}

// NewEngine 初始化 EdgeSAM 引擎
//
// 模型文件检查先于任何 ONNX 初始化, Encoder 先于 Decoder
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.InputSize <= 0 {
		cfg.InputSize = defaultInputSize
	}

	if _, err := os.Stat(cfg.EncoderModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.EncoderModelPath)
	}
	if _, err := os.Stat(cfg.DecoderModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.DecoderModelPath)
	}

	onnxConfig := new(segment.OnnxConfig)
	if err := convertutil.CopyProperties(cfg, onnxConfig); err != nil {
		return nil, fmt.Errorf("复制参数失败: %w", err)
	}
	onnxConfig.Logger = cfg.Logger
	// 初始化 ONNX
	if err := onnxConfig.New(); err != nil {
		return nil, err
	}

	e := &Engine{config: cfg}

	// encoder session, 绑定首个输入/输出
	encInputs, encOutputs, err := ort.GetInputOutputInfo(cfg.EncoderModelPath)
	if err != nil {
		return nil, fmt.Errorf("读取 Encoder 模型信息失败: %w", err)
	}
	if len(encInputs) < 1 || len(encOutputs) < 1 {
		return nil, fmt.Errorf("encoder 模型输入输出数量异常: %d/%d", len(encInputs), len(encOutputs))
	}
	e.encoderInputs = []string{encInputs[0].Name}
	e.encoderOutputs = []string{encOutputs[0].Name}
	e.encoderSession, err = ort.NewDynamicAdvancedSession(cfg.EncoderModelPath,
		e.encoderInputs, e.encoderOutputs, onnxConfig.SessionOptions)
	if err != nil {
		return nil, fmt.Errorf("创建 Encoder ONNX 会话失败: %w", err)
	}

	// decoder session, 按上报顺序绑定三个输入: 特征, 提示点坐标, 提示点标签
	decInputs, decOutputs, err := ort.GetInputOutputInfo(cfg.DecoderModelPath)
	if err != nil {
		e.encoderSession.Destroy()
		return nil, fmt.Errorf("读取 Decoder 模型信息失败: %w", err)
	}
	if len(decInputs) != 3 || len(decOutputs) < 1 {
		e.encoderSession.Destroy()
		return nil, fmt.Errorf("decoder 模型输入输出数量异常: %d/%d", len(decInputs), len(decOutputs))
	}
	e.decoderInputs = []string{decInputs[0].Name, decInputs[1].Name, decInputs[2].Name}
	e.decoderOutputs = []string{decOutputs[0].Name}
	e.decoderSession, err = ort.NewDynamicAdvancedSession(cfg.DecoderModelPath,
		e.decoderInputs, e.decoderOutputs, onnxConfig.SessionOptions)
	if err != nil {
		e.encoderSession.Destroy()
		return nil, fmt.Errorf("创建 Decoder ONNX 会话失败: %w", err)
	}

	return e, nil
}

// Destroy 释放相关资源
func (e *Engine) Destroy() error {
	if e.encoderSession != nil {
		if err := e.encoderSession.Destroy(); err != nil {
			return fmt.Errorf("销毁 Encoder ONNX 会话失败: %w", err)
		}
		e.encoderSession = nil
	}
	if e.decoderSession != nil {
		if err := e.decoderSession.Destroy(); err != nil {
			return fmt.Errorf("销毁 Decoder ONNX 会话失败: %w", err)
		}
		e.decoderSession = nil
	}
	return nil
}

// Preprocess 预处理: 双线性拉伸到 InputSize, 归一化到 [0,1], CHW 布局
//
// 不修改入参图片, 返回张量和原图尺寸 (宽, 高)
func (e *Engine) Preprocess(img image.Image) (*InputTensor, image.Point) {
	bounds := img.Bounds()
	origSize := image.Pt(bounds.Dx(), bounds.Dy())

	size := e.config.InputSize
	// 解码后的像素即为 RGB 顺序, 无需通道交换
	resized := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, xdraw.Src, nil)

	return &InputTensor{
		Data: tensorDataCHW(resized, size),
		Size: size,
	}, origSize
}

// Encode 图片特征提取, 返回 Encoder 的首个输出
func (e *Engine) Encode(input *InputTensor) (*FeatureTensor, error) {
	shape := ort.NewShape(1, 3, int64(input.Size), int64(input.Size))
	tensor, err := ort.NewTensor(shape, input.Data)
	if err != nil {
		return nil, fmt.Errorf("创建图片 Input Tensor 失败: %w", err)
	}
	defer tensor.Destroy()

	outputs := make([]ort.Value, 1)
	if err := e.encoderSession.Run([]ort.Value{tensor}, outputs); err != nil {
		return nil, fmt.Errorf("encoder 推理失败: %w", err)
	}
	return &FeatureTensor{value: outputs[0]}, nil
}

// Decode Mask解码, 返回模型分辨率的软掩码
//
// points 为空时使用默认提示点 (模型输入空间的中心, 前景)
func (e *Engine) Decode(features *FeatureTensor, points []Point) (*segment.Mask, error) {
	if features == nil || features.value == nil {
		return nil, fmt.Errorf("图片特征已销毁")
	}
	if len(points) == 0 {
		points = defaultPoints(e.config.InputSize)
	}

	coords := make([]float32, 0, len(points)*2)
	labels := make([]float32, 0, len(points))
	for _, pt := range points {
		coords = append(coords, pt.X, pt.Y)
		labels = append(labels, float32(pt.Label))
	}
	numPoints := int64(len(points))

	tCoords, err := ort.NewTensor(ort.NewShape(1, numPoints, 2), coords)
	if err != nil {
		return nil, fmt.Errorf("创建 Decoder Points Tensor 失败: %w", err)
	}
	defer tCoords.Destroy()

	tLabels, err := ort.NewTensor(ort.NewShape(1, numPoints), labels)
	if err != nil {
		return nil, fmt.Errorf("创建 Decoder Labels Tensor 失败: %w", err)
	}
	defer tLabels.Destroy()

	inputs := []ort.Value{features.value, tCoords, tLabels}
	outputs := make([]ort.Value, 1)
	if err := e.decoderSession.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("decoder 推理失败: %w", err)
	}
	defer outputs[0].Destroy()

	return maskFromOutput(outputs[0])
}

// maskFromOutput 取首个 batch/channel 切片作为软掩码
func maskFromOutput(value ort.Value) (*segment.Mask, error) {
	tensor, ok := value.(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("decoder 输出不是 float32 张量")
	}
	shape := tensor.GetShape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("decoder 输出形状异常: %v", shape)
	}
	h := int(shape[len(shape)-2])
	w := int(shape[len(shape)-1])
	data := tensor.GetData()
	if len(data) < h*w {
		return nil, fmt.Errorf("decoder 输出数据长度异常: %d < %d", len(data), h*w)
	}

	mask := &segment.Mask{
		Data:   make([]float32, h*w),
		Width:  w,
		Height: h,
	}
	copy(mask.Data, data[:h*w])
	return mask, nil
}

// Segment 单图分割: 预处理 -> Encode -> Decode -> 掩码还原到原图尺寸
//
// 返回未经修改的原图和与原图等尺寸的软掩码, 失败时不暴露中间结果
func (e *Engine) Segment(imagePath string, points []Point) (image.Image, *segment.Mask, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrImageNotFound, imagePath)
	}
	img, err := imageutil.Open(imagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrImageDecode, imagePath, err)
	}

	input, origSize := e.Preprocess(img)

	features, err := e.Encode(input)
	if err != nil {
		return nil, nil, err
	}
	defer features.Destroy()

	mask, err := e.Decode(features, points)
	if err != nil {
		return nil, nil, err
	}

	return img, resizeMask(mask, origSize.X, origSize.Y), nil
}
