package utils

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"go.uber.org/zap"
)

type CameraCapture struct {
	DeviceID int
	Width    int
	Height   int

	// capture replaces the ffmpeg call in tests.
	capture func(ctx context.Context) ([]byte, error)
}

func NewCameraCapture(deviceID int) *CameraCapture {
	return &CameraCapture{
		DeviceID: deviceID,
		Width:    640,
		Height:   480,
	}
}

func (c *CameraCapture) videoSize() string {
	return fmt.Sprintf("%dx%d", c.Width, c.Height)
}

// ffmpegArgs builds the single-frame JPEG capture command for goos.
func (c *CameraCapture) ffmpegArgs(goos string) ([]string, error) {
	var input []string
	switch goos {
	case "darwin":
		input = []string{"-f", "avfoundation", "-video_size", c.videoSize(), "-framerate", "30", "-i", fmt.Sprintf("%d", c.DeviceID)}
	case "linux":
		input = []string{"-f", "v4l2", "-video_size", c.videoSize(), "-i", fmt.Sprintf("/dev/video%d", c.DeviceID)}
	case "windows":
		input = []string{"-f", "dshow", "-video_size", c.videoSize(), "-i", "video=\"USB Camera\""}
	default:
		return nil, fmt.Errorf("unsupported operating system: %s", goos)
	}
	return append(input, "-vframes", "1", "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2", "-"), nil
}

// CaptureImage grabs one JPEG frame from the camera.
func (c *CameraCapture) CaptureImage(ctx context.Context) ([]byte, error) {
	if c.capture != nil {
		return c.capture(ctx)
	}
	args, err := c.ffmpegArgs(runtime.GOOS)
	if err != nil {
		return nil, err
	}

	output, err := exec.CommandContext(ctx, "ffmpeg", args...).Output()
	if err != nil {
		return nil, fmt.Errorf("failed to capture image: %w", err)
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("no image data captured")
	}
	return output, nil
}

// Run captures frames into buf every interval until ctx is done. A failed
// capture clears buf so the sampling loop sees the source as not ready.
func (c *CameraCapture) Run(ctx context.Context, interval time.Duration, buf *LatestFrameBuffer, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Camera capture started", zap.Int("device", c.DeviceID), zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("Camera capture stopped")
			return
		case <-ticker.C:
			data, err := c.CaptureImage(ctx)
			if err != nil {
				logger.Warn("Camera capture failed", zap.Error(err))
				buf.Clear()
				continue
			}
			width, height, format, err := ImageDimensions(data)
			if err != nil {
				logger.Warn("Captured frame is unreadable", zap.Error(err))
				buf.Clear()
				continue
			}
			buf.Push(data, width, height, format)
			logger.Debug("Captured frame", zap.Int("size", len(data)), zap.Int("width", width), zap.Int("height", height))
		}
	}
}
