package utils

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCameraCapture_FfmpegArgs(t *testing.T) {
	output := []string{"-vframes", "1", "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2", "-"}
	c := NewCameraCapture(2)

	tests := []struct {
		goos  string
		input []string
	}{
		{"darwin", []string{"-f", "avfoundation", "-video_size", "640x480", "-framerate", "30", "-i", "2"}},
		{"linux", []string{"-f", "v4l2", "-video_size", "640x480", "-i", "/dev/video2"}},
		{"windows", []string{"-f", "dshow", "-video_size", "640x480", "-i", "video=\"USB Camera\""}},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			args, err := c.ffmpegArgs(tt.goos)
			require.NoError(t, err)
			assert.Equal(t, append(append([]string{}, tt.input...), output...), args)
		})
	}

	_, err := c.ffmpegArgs("plan9")
	assert.ErrorContains(t, err, "plan9")
}

func TestCameraCapture_RunClearsOnFailure(t *testing.T) {
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 40, 30))))

	type result struct {
		data []byte
		err  error
	}
	results := make(chan result)
	c := NewCameraCapture(0)
	c.capture = func(ctx context.Context) ([]byte, error) {
		select {
		case r := <-results:
			return r.data, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	buf := NewLatestFrameBuffer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond, buf, nil)
		close(done)
	}()

	results <- result{data: img.Bytes()}
	require.Eventually(t, func() bool { return buf.NextFrame() != nil }, time.Second, time.Millisecond)
	frame := buf.NextFrame()
	assert.Equal(t, 40, frame.Width)
	assert.Equal(t, 30, frame.Height)
	assert.Equal(t, "png", frame.Format)

	results <- result{err: errors.New("device busy")}
	require.Eventually(t, func() bool { return buf.NextFrame() == nil }, time.Second, time.Millisecond)

	buf.Push([]byte{1}, 10, 10, "jpeg")
	results <- result{data: []byte("not an image")}
	require.Eventually(t, func() bool { return buf.NextFrame() == nil }, time.Second, time.Millisecond)
	assert.False(t, buf.NextFrame().Ready())

	cancel()
	<-done
}
