package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "WORD_DURATION", "REST_PADDING", "CONFIDENCE_THRESHOLD", "SAMPLE_INTERVAL", "CAPTURE_SOURCE"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "client", cfg.CaptureSource)
	assert.Equal(t, 500*time.Millisecond, cfg.WordDuration)
	assert.Equal(t, 500*time.Millisecond, cfg.RestPadding)
	assert.Equal(t, DefaultConfidenceThreshold, cfg.ConfidenceThreshold)
	assert.Equal(t, 100*time.Millisecond, cfg.SampleInterval)
	assert.Equal(t, DefaultFrameInterval, cfg.FrameInterval)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("WORD_DURATION", "750ms")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.85")
	t.Setenv("CAPTURE_SOURCE", "camera")
	t.Setenv("CAMERA_DEVICE", "2")

	cfg := LoadConfig()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 750*time.Millisecond, cfg.WordDuration)
	assert.Equal(t, 0.85, cfg.ConfidenceThreshold)
	assert.Equal(t, "camera", cfg.CaptureSource)
	assert.Equal(t, 2, cfg.CameraDevice)

	assert.Equal(t, 750*time.Millisecond, cfg.SynthesizerConfig().WordDuration)
	assert.Equal(t, 0.85, cfg.GestureQueueConfig().ConfidenceThreshold)
}

func TestConfig_ZeroValuesKeepDefaults(t *testing.T) {
	cfg := &Config{}

	assert.Equal(t, DefaultSynthesizerConfig().WordDuration, cfg.SynthesizerConfig().WordDuration)
	assert.Equal(t, DefaultSynthesizerConfig().RestPadding, cfg.SynthesizerConfig().RestPadding)
	assert.Equal(t, DefaultConfidenceThreshold, cfg.GestureQueueConfig().ConfidenceThreshold)
}
