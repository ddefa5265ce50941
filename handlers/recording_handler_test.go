package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
	"github.com/Perceptus-Labs/perceptus-sign-sdk/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClassifier returns its samples in order, one per usable frame.
type scriptedClassifier struct {
	mu        sync.Mutex
	initErr   error
	samples   []*models.GestureSample
	failAfter int
	calls     int
}

func (c *scriptedClassifier) Init(context.Context) error {
	return c.initErr
}

func (c *scriptedClassifier) Classify(frame *models.VideoFrame) (*models.GestureSample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failAfter > 0 && c.calls > c.failAfter {
		return nil, models.ErrClassifierUninitialized
	}
	if !frame.Ready() || len(c.samples) == 0 {
		return nil, nil
	}
	s := c.samples[0]
	c.samples = c.samples[1:]
	return s, nil
}

func readyFrames() *utils.LatestFrameBuffer {
	buf := utils.NewLatestFrameBuffer()
	buf.Push([]byte{0xff}, 640, 480, "jpeg")
	return buf
}

func startTestRecording(t *testing.T, classifier utils.GestureClassifier, source utils.FrameSource, clock *utils.ManualClock) (*RecordingSession, *[]string) {
	t.Helper()
	var mu sync.Mutex
	tokens := []string{}
	rs, err := StartRecording(context.Background(), RecordingDeps{
		Classifier:  classifier,
		Source:      source,
		Clock:       clock,
		Interval:    100 * time.Millisecond,
		QueueConfig: utils.DefaultGestureQueueConfig(),
		OnToken: func(label string) {
			mu.Lock()
			tokens = append(tokens, label)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	return rs, &tokens
}

func TestRecordingSession_Transcript(t *testing.T) {
	clock := utils.NewManualClock(time.Unix(0, 0))
	classifier := &scriptedClassifier{samples: []*models.GestureSample{
		{Label: "hello", Confidence: 0.9},
		{Label: "hello", Confidence: 0.9},
		{Label: "thank_you", Confidence: 0.8},
		{Label: "hello", Confidence: 0.75},
		{Label: "hello", Confidence: 0.5},
	}}

	rs, tokens := startTestRecording(t, classifier, readyFrames(), clock)
	for i := 0; i < 5; i++ {
		require.Equal(t, 1, clock.Advance(100*time.Millisecond))
	}

	assert.Equal(t, []string{"hello", "thank_you", "hello"}, rs.Tokens())
	assert.Equal(t, []string{"hello", "thank_you", "hello"}, *tokens)
	assert.Equal(t, "Hello Thank you Hello", rs.Stop())
	assert.False(t, rs.Active())
	assert.Equal(t, "", rs.Stop(), "second stop returns nothing")
	assert.Equal(t, 0, clock.Advance(100*time.Millisecond))
}

func TestRecordingSession_SourceDisappears(t *testing.T) {
	clock := utils.NewManualClock(time.Unix(0, 0))
	frames := readyFrames()
	classifier := &scriptedClassifier{samples: []*models.GestureSample{
		{Label: "yes", Confidence: 0.9},
		{Label: "no", Confidence: 0.9},
	}}

	rs, _ := startTestRecording(t, classifier, frames, clock)
	clock.Advance(100 * time.Millisecond)

	frames.Clear()
	for i := 0; i < 3; i++ {
		require.Equal(t, 1, clock.Advance(100*time.Millisecond), "loop keeps running without frames")
	}
	assert.True(t, rs.Active())
	assert.NoError(t, rs.Err())

	frames.Push([]byte{0xff}, 640, 480, "jpeg")
	clock.Advance(100 * time.Millisecond)

	assert.Equal(t, "Yes No", rs.Stop())
}

func TestRecordingSession_ClassifyErrorEndsLoop(t *testing.T) {
	clock := utils.NewManualClock(time.Unix(0, 0))
	classifier := &scriptedClassifier{
		failAfter: 1,
		samples:   []*models.GestureSample{{Label: "please", Confidence: 0.9}},
	}

	errCh := make(chan error, 1)
	rs, err := StartRecording(context.Background(), RecordingDeps{
		Classifier:  classifier,
		Source:      readyFrames(),
		Clock:       clock,
		QueueConfig: utils.DefaultGestureQueueConfig(),
		OnError:     func(err error) { errCh <- err },
	})
	require.NoError(t, err)

	clock.Advance(100 * time.Millisecond)
	clock.Advance(100 * time.Millisecond)

	assert.ErrorIs(t, <-errCh, models.ErrClassifierUninitialized)
	assert.ErrorIs(t, rs.Err(), models.ErrClassifierUninitialized)
	require.Eventually(t, func() bool { return !rs.Active() }, time.Second, time.Millisecond)
	assert.Equal(t, 0, clock.Advance(100*time.Millisecond))
	assert.Equal(t, "Please", rs.Stop(), "tokens queued before the error are kept")
}

func TestStartRecording_InitFailure(t *testing.T) {
	initErr := &models.InitializationError{Err: errors.New("no model")}
	clock := utils.NewManualClock(time.Unix(0, 0))

	rs, err := StartRecording(context.Background(), RecordingDeps{
		Classifier: &scriptedClassifier{initErr: initErr},
		Source:     readyFrames(),
		Clock:      clock,
	})

	assert.Nil(t, rs)
	var got *models.InitializationError
	require.ErrorAs(t, err, &got)
	assert.Same(t, initErr, got)
	assert.Equal(t, 0, clock.Tickers())
}

func TestRecordingSession_SyntheticClassifier(t *testing.T) {
	clock := utils.NewManualClock(time.Unix(0, 0))
	classifier := utils.NewSyntheticClassifier(utils.DefaultSyntheticClassifierConfig(), clock, utils.NewSeededSource(11), nil)

	rs, _ := startTestRecording(t, classifier, readyFrames(), clock)
	for i := 0; i < 20; i++ {
		clock.Advance(100 * time.Millisecond)
	}
	tokens := rs.Tokens()
	rs.Stop()

	require.NotEmpty(t, tokens)
	for i := 1; i < len(tokens); i++ {
		assert.NotEqual(t, tokens[i-1], tokens[i], "adjacent tokens must differ")
	}
	for _, token := range tokens {
		assert.Contains(t, utils.DefaultGestureLabels, token)
	}
}
