package utils

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// GestureClassifier turns one video frame into a labeled sample. A nil
// sample with a nil error means the frame was not usable and the caller
// should skip this tick.
type GestureClassifier interface {
	Init(ctx context.Context) error
	Classify(frame *models.VideoFrame) (*models.GestureSample, error)
}

var DefaultGestureLabels = []string{"hello", "thank_you", "yes", "no", "please", "help", "i_love_you"}

// ModelLoader performs the classifier's one-time setup.
type ModelLoader func(ctx context.Context) error

type SyntheticClassifierConfig struct {
	Labels          []string
	ConfidenceRange Range
	Loader          ModelLoader
}

func DefaultSyntheticClassifierConfig() SyntheticClassifierConfig {
	return SyntheticClassifierConfig{
		Labels:          DefaultGestureLabels,
		ConfidenceRange: Range{Min: 0.6, Max: 1.0},
	}
}

// SyntheticClassifier stands in for real hand tracking. Landmarks trace a
// hand outline that drifts smoothly with time; label and confidence come
// from the injected random source and are not derived from the landmarks.
type SyntheticClassifier struct {
	config SyntheticClassifierConfig
	clock  Clock
	logger *zap.Logger

	rngMu sync.Mutex
	rng   RandomSource

	group   singleflight.Group
	ready   atomic.Bool
	started time.Time
}

func NewSyntheticClassifier(config SyntheticClassifierConfig, clock Clock, rng RandomSource, logger *zap.Logger) *SyntheticClassifier {
	if len(config.Labels) == 0 {
		config.Labels = DefaultGestureLabels
	}
	if clock == nil {
		clock = NewFrameClock()
	}
	if rng == nil {
		rng = NewSeededSource(time.Now().UnixNano())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyntheticClassifier{
		config: config,
		clock:  clock,
		rng:    rng,
		logger: logger,
	}
}

// Init runs the loader once. Concurrent callers share one attempt; only
// success is remembered, so a failed Init can be retried.
func (c *SyntheticClassifier) Init(ctx context.Context) error {
	if c.ready.Load() {
		return nil
	}
	_, err, shared := c.group.Do("init", func() (interface{}, error) {
		if c.ready.Load() {
			return nil, nil
		}
		if c.config.Loader != nil {
			if err := c.config.Loader(ctx); err != nil {
				return nil, &models.InitializationError{Err: err}
			}
		}
		c.started = c.clock.Now()
		c.ready.Store(true)
		return nil, nil
	})
	if err != nil {
		c.logger.Error("Gesture classifier initialization failed", zap.Error(err), zap.Bool("shared", shared))
		return err
	}
	c.logger.Debug("Gesture classifier ready", zap.Bool("shared", shared))
	return nil
}

func (c *SyntheticClassifier) Ready() bool {
	return c.ready.Load()
}

func (c *SyntheticClassifier) Classify(frame *models.VideoFrame) (*models.GestureSample, error) {
	if !c.ready.Load() {
		return nil, models.ErrClassifierUninitialized
	}
	if !frame.Ready() {
		return nil, nil
	}

	elapsed := c.clock.Now().Sub(c.started).Seconds()
	landmarks := SyntheticLandmarks(elapsed, float64(frame.Width), float64(frame.Height))

	c.rngMu.Lock()
	label := c.config.Labels[c.rng.Intn(len(c.config.Labels))]
	confidence := c.config.ConfidenceRange.sample(c.rng)
	c.rngMu.Unlock()

	return &models.GestureSample{
		Landmarks:  landmarks,
		Confidence: confidence,
		Label:      label,
	}, nil
}

// SyntheticLandmarks returns a wrist point followed by four joints for each
// of five fingers, in pixel coordinates of a width x height frame.
func SyntheticLandmarks(t, width, height float64) []models.Point {
	points := make([]models.Point, 0, models.LandmarkCount)

	cx := width/2 + width*0.1*math.Sin(t)
	cy := height/2 + height*0.1*math.Cos(t*0.8)
	scale := math.Min(width, height) * 0.2

	wrist := models.Point{X: cx, Y: cy + scale}
	points = append(points, wrist)

	for finger := 0; finger < 5; finger++ {
		angle := -math.Pi/2 + float64(finger-2)*0.35 + 0.1*math.Sin(t*2+float64(finger))
		for joint := 1; joint <= 4; joint++ {
			r := scale * (0.35 + 0.22*float64(joint))
			points = append(points, models.Point{
				X: wrist.X + r*math.Cos(angle),
				Y: wrist.Y + r*math.Sin(angle),
			})
		}
	}
	return points
}
