package handlers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordingDeps is what a recording session samples from.
type RecordingDeps struct {
	Classifier  utils.GestureClassifier
	Source      utils.FrameSource
	Clock       utils.Clock
	Interval    time.Duration
	QueueConfig utils.GestureQueueConfig
	Logger      *zap.Logger

	// OnToken is called with each gesture label admitted into the queue.
	OnToken func(label string)
	// OnError is called once if the sampling loop ends on an error.
	OnError func(err error)
}

// RecordingSession owns the gesture queue of one recording, from start to
// stop. The sampling loop is the only writer of the queue while it runs.
type RecordingSession struct {
	ID     string
	deps   RecordingDeps
	queue  *utils.GestureQueueManager
	task   *utils.Task
	logger *zap.Logger

	framesSampled atomic.Int64
	samplesSeen   atomic.Int64

	stopOnce sync.Once
	errMu    sync.Mutex
	err      error
}

// StartRecording initializes the classifier (a no-op once it has succeeded)
// and starts sampling frames. An initialization error is returned as is.
func StartRecording(ctx context.Context, deps RecordingDeps) (*RecordingSession, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = utils.NewFrameClock()
	}

	if err := deps.Classifier.Init(ctx); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	logger := deps.Logger.With(zap.String("recording_id", id))
	rs := &RecordingSession{
		ID:     id,
		deps:   deps,
		queue:  utils.NewGestureQueueManager(deps.QueueConfig, logger),
		logger: logger,
	}
	rs.queue.Start()
	rs.task = utils.StartTask(ctx, deps.Clock, deps.Interval, rs.tick)

	logger.Info("Recording started", zap.Duration("interval", deps.Interval))
	return rs, nil
}

func (rs *RecordingSession) tick(time.Time) bool {
	rs.framesSampled.Add(1)

	sample, err := rs.deps.Classifier.Classify(rs.deps.Source.NextFrame())
	if err != nil {
		rs.errMu.Lock()
		rs.err = err
		rs.errMu.Unlock()
		rs.logger.Error("Gesture classification failed, stopping recording loop", zap.Error(err))
		if rs.deps.OnError != nil {
			rs.deps.OnError(err)
		}
		return false
	}
	if sample == nil {
		return true
	}

	rs.samplesSeen.Add(1)
	if rs.queue.Submit(sample) && rs.deps.OnToken != nil {
		rs.deps.OnToken(sample.Label)
	}
	return true
}

// Stop ends sampling, waits for the loop to exit and drains the queue into
// display text. Only the first call returns text; later calls return "".
func (rs *RecordingSession) Stop() string {
	transcript := ""
	rs.stopOnce.Do(func() {
		rs.task.Stop()
		<-rs.task.Done()
		transcript = rs.queue.Stop()
		rs.logger.Info("Recording stopped",
			zap.Int64("frames_sampled", rs.framesSampled.Load()),
			zap.Int64("samples", rs.samplesSeen.Load()),
			zap.String("transcript", transcript))
	})
	return transcript
}

// Active reports whether the sampling loop is still running.
func (rs *RecordingSession) Active() bool {
	return rs.task.Active()
}

// Err returns the error that ended the sampling loop, if any.
func (rs *RecordingSession) Err() error {
	rs.errMu.Lock()
	defer rs.errMu.Unlock()
	return rs.err
}

// Tokens returns the gesture tokens queued so far.
func (rs *RecordingSession) Tokens() []string {
	return rs.queue.Tokens()
}
