package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgevision/go-segment"
	"github.com/edgevision/go-segment/edgesam"
)

type options struct {
	encoder   string
	decoder   string
	input     string
	output    string
	pointX    float32
	pointY    float32
	threshold float32
	gpu       bool
	verbose   bool
}

func newRootCmd(opts *options) *cobra.Command {
	defaults := edgesam.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "edgesam",
		Short:         "EdgeSAM 图像分割命令行工具",
		Version:       segment.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.encoder, "encoder", "e", envOr("EDGESAM_ENCODER", defaults.EncoderModelPath), "Encoder 模型路径")
	flags.StringVarP(&opts.decoder, "decoder", "d", envOr("EDGESAM_DECODER", defaults.DecoderModelPath), "Decoder 模型路径")
	flags.StringVarP(&opts.input, "input", "i", "", "输入图片路径")
	flags.StringVarP(&opts.output, "output", "o", "", "输出图片路径, 默认 <输入名>_segmented<扩展名>")
	flags.Float32Var(&opts.pointX, "point-x", 0, "提示点 X 坐标 (模型输入空间), 需与 --point-y 同时指定")
	flags.Float32Var(&opts.pointY, "point-y", 0, "提示点 Y 坐标 (模型输入空间), 需与 --point-x 同时指定")
	flags.Float32Var(&opts.threshold, "threshold", 0.5, "掩码二值化阈值")
	flags.BoolVar(&opts.gpu, "gpu", false, "启用 GPU 加速, 失败时回退 CPU")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "输出处理进度")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	logger := newLogger(opts.verbose)
	defer logger.Sync()

	if opts.output == "" {
		opts.output = defaultOutputPath(opts.input)
	}

	logger.Info("edgesam",
		zap.String("version", segment.Version),
		zap.String("encoder", opts.encoder),
		zap.String("decoder", opts.decoder),
		zap.String("input", opts.input),
		zap.String("output", opts.output))

	cfg := edgesam.DefaultConfig()
	cfg.OnnxRuntimeLibPath = envOr("EDGESAM_ORT_LIB", cfg.OnnxRuntimeLibPath)
	cfg.EncoderModelPath = opts.encoder
	cfg.DecoderModelPath = opts.decoder
	cfg.UseCuda = opts.gpu
	cfg.Logger = logger

	engine, err := edgesam.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Destroy()

	var points []edgesam.Point
	if cmd.Flags().Changed("point-x") && cmd.Flags().Changed("point-y") {
		points = []edgesam.Point{{X: opts.pointX, Y: opts.pointY, Label: edgesam.LabelForeground}}
		logger.Info("使用提示点", zap.Float32("x", opts.pointX), zap.Float32("y", opts.pointY))
	}

	logger.Info("开始分割")
	img, mask, err := engine.Segment(opts.input, points)
	if err != nil {
		return err
	}

	logger.Info("保存结果", zap.Float32("threshold", opts.threshold))
	if err := segment.SaveResult(img, mask, opts.output, opts.threshold); err != nil {
		return err
	}

	logger.Info("完成", zap.String("output", opts.output))
	return nil
}

// newLogger verbose 时输出到标准输出, 否则静默
func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stdout"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// defaultOutputPath 输出路径默认为 <输入名>_segmented<扩展名>
func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	stem := strings.TrimSuffix(input, ext)
	return stem + "_segmented" + ext
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// exitCode 文件缺失为 1, 其余失败为 2
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, edgesam.ErrModelNotFound), errors.Is(err, edgesam.ErrImageNotFound):
		return 1
	default:
		return 2
	}
}

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	opts := new(options)
	if err := newRootCmd(opts).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if opts.verbose {
			os.Stderr.Write(debug.Stack())
		}
		os.Exit(exitCode(err))
	}
}
