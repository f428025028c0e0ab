package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgevision/go-segment"
	"github.com/edgevision/go-segment/edgesam"
)

func TestDefaultOutputPath(t *testing.T) {
	assert.Equal(t, "photo_segmented.png", defaultOutputPath("photo.png"))
	assert.Equal(t, "dir/img_segmented.jpg", defaultOutputPath("dir/img.jpg"))
	assert.Equal(t, "noext_segmented", defaultOutputPath("noext"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(fmt.Errorf("%w: a.onnx", edgesam.ErrModelNotFound)))
	assert.Equal(t, 1, exitCode(fmt.Errorf("%w: a.png", edgesam.ErrImageNotFound)))
	assert.Equal(t, 2, exitCode(fmt.Errorf("%w: a.png: bad", edgesam.ErrImageDecode)))
	assert.Equal(t, 2, exitCode(errors.New("boom")))
}

func TestEnvOr(t *testing.T) {
	t.Setenv("EDGESAM_TEST_KEY", "from-env")
	assert.Equal(t, "from-env", envOr("EDGESAM_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", envOr("EDGESAM_TEST_KEY_MISSING", "fallback"))
}

func TestVersionFlag(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(new(options))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), segment.Version)
}

func TestFlagDefaults(t *testing.T) {
	opts := new(options)
	cmd := newRootCmd(opts)
	require.NoError(t, cmd.ParseFlags(nil))

	defaults := edgesam.DefaultConfig()
	assert.Equal(t, defaults.EncoderModelPath, opts.encoder)
	assert.Equal(t, defaults.DecoderModelPath, opts.decoder)
	assert.EqualValues(t, 0.5, opts.threshold)
	assert.False(t, opts.gpu)
	assert.False(t, opts.verbose)
}

func TestFlagDefaultsFromEnv(t *testing.T) {
	t.Setenv("EDGESAM_ENCODER", "custom_encoder.onnx")
	t.Setenv("EDGESAM_DECODER", "custom_decoder.onnx")

	opts := new(options)
	cmd := newRootCmd(opts)
	require.NoError(t, cmd.ParseFlags(nil))

	assert.Equal(t, "custom_encoder.onnx", opts.encoder)
	assert.Equal(t, "custom_decoder.onnx", opts.decoder)
}
