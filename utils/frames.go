package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
)

// FrameSource supplies the most recent video frame. It may return nil or a
// zero-sized frame at any time when the capture device is unavailable.
type FrameSource interface {
	NextFrame() *models.VideoFrame
}

// LatestFrameBuffer keeps the last frame pushed by the capture side. The
// capture device itself is owned elsewhere; this buffer only holds frames.
type LatestFrameBuffer struct {
	mu    sync.RWMutex
	frame *models.VideoFrame
	now   func() time.Time
}

func NewLatestFrameBuffer() *LatestFrameBuffer {
	return &LatestFrameBuffer{now: time.Now}
}

func (b *LatestFrameBuffer) Push(data []byte, width, height int, format string) {
	frame := &models.VideoFrame{
		Data:      data,
		Width:     width,
		Height:    height,
		Format:    format,
		Timestamp: b.now(),
	}
	b.mu.Lock()
	b.frame = frame
	b.mu.Unlock()
}

// PushBase64 decodes a base64 image. When width or height are not given they
// are read from the image header.
func (b *LatestFrameBuffer) PushBase64(encoded string, width, height int) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	format := "jpeg"
	if width <= 0 || height <= 0 {
		w, h, f, err := ImageDimensions(data)
		if err != nil {
			return err
		}
		width, height, format = w, h, f
	}
	b.Push(data, width, height, format)
	return nil
}

// Clear drops the current frame, as when the camera goes away.
func (b *LatestFrameBuffer) Clear() {
	b.mu.Lock()
	b.frame = nil
	b.mu.Unlock()
}

func (b *LatestFrameBuffer) NextFrame() *models.VideoFrame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frame
}

// ImageDimensions reads the pixel size and format from an encoded image header.
func ImageDimensions(data []byte) (int, int, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to read image header: %w", err)
	}
	return cfg.Width, cfg.Height, format, nil
}
