package models

import (
	"errors"
	"fmt"
	"time"
)

// LandmarkCount is the fixed number of hand landmarks per sample.
const LandmarkCount = 21

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// VideoFrame is one frame from the capture source. Width or Height of zero
// means the source is not ready (or has gone away).
type VideoFrame struct {
	Data      []byte
	Width     int
	Height    int
	Format    string
	Timestamp time.Time
}

func (f *VideoFrame) Ready() bool {
	return f != nil && f.Width > 0 && f.Height > 0
}

type GestureSample struct {
	Landmarks  []Point `json:"landmarks"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

// ErrClassifierUninitialized is returned when Classify runs before a successful Init.
var ErrClassifierUninitialized = errors.New("gesture classifier is not initialized")

// InitializationError wraps a failed one-time classifier setup. Failures are
// not memoized, so a later Init may retry.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("gesture classifier initialization failed: %v", e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}
