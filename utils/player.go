package utils

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Perceptus-Labs/perceptus-sign-sdk/models"
	"go.uber.org/zap"
)

// RenderFunc draws one interpolated pose onto a canvas of the given size.
type RenderFunc func(pose models.Pose, canvasWidth, canvasHeight int)

const (
	DefaultCanvasWidth  = 400
	DefaultCanvasHeight = 400
)

// Playback is one running animation.
type Playback struct {
	task      *Task
	animation *models.Animation
	origin    time.Time
	completed atomic.Bool
}

// Stop cancels the playback. Safe to call at any time, any number of times.
func (pb *Playback) Stop() {
	pb.task.Stop()
}

// Done is closed once the playback has finished or been stopped.
func (pb *Playback) Done() <-chan struct{} {
	return pb.task.Done()
}

// Completed reports whether the playback ran to the end rather than being stopped.
func (pb *Playback) Completed() bool {
	return pb.completed.Load()
}

func (pb *Playback) Animation() *models.Animation {
	return pb.animation
}

// AnimationPlayer plays at most one animation at a time. A new Play
// supersedes the active playback.
type AnimationPlayer struct {
	clock    Clock
	interval time.Duration
	render   RenderFunc
	logger   *zap.Logger

	playMu  sync.Mutex
	mu      sync.Mutex
	current *Playback
	width   int
	height  int
}

func NewAnimationPlayer(clock Clock, interval time.Duration, render RenderFunc, logger *zap.Logger) *AnimationPlayer {
	if clock == nil {
		clock = NewFrameClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnimationPlayer{
		clock:    clock,
		interval: interval,
		render:   render,
		logger:   logger,
		width:    DefaultCanvasWidth,
		height:   DefaultCanvasHeight,
	}
}

func (p *AnimationPlayer) SetCanvasSize(width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if width > 0 {
		p.width = width
	}
	if height > 0 {
		p.height = height
	}
}

// Play stops any active playback, waits for its loop to exit and then starts
// the new one, so the render callback never sees a superseded animation once
// Play has returned. Play must not be called from inside the render callback.
func (p *AnimationPlayer) Play(ctx context.Context, animation *models.Animation) *Playback {
	p.playMu.Lock()
	defer p.playMu.Unlock()

	p.mu.Lock()
	prev := p.current
	p.current = nil
	p.mu.Unlock()

	if prev != nil {
		prev.Stop()
		<-prev.Done()
		p.logger.Debug("Superseded active animation", zap.String("animation", prev.animation.Name))
	}

	pb := &Playback{
		animation: animation.Clone(),
		origin:    p.clock.Now(),
	}
	pb.task = StartTask(ctx, p.clock, p.interval, func(now time.Time) bool {
		return p.tick(pb, now)
	})

	p.mu.Lock()
	p.current = pb
	p.mu.Unlock()

	p.logger.Debug("Animation started",
		zap.String("animation", pb.animation.Name),
		zap.Int("keyframes", len(pb.animation.Keyframes)),
		zap.Int64("duration_ms", pb.animation.DurationMs))

	return pb
}

func (p *AnimationPlayer) tick(pb *Playback, now time.Time) bool {
	elapsed := float64(now.Sub(pb.origin)) / float64(time.Millisecond)
	if elapsed >= float64(pb.animation.DurationMs) {
		pb.completed.Store(true)
		p.logger.Debug("Animation finished", zap.String("animation", pb.animation.Name))
		return false
	}

	pose := Interpolate(pb.animation, elapsed)

	p.mu.Lock()
	width, height := p.width, p.height
	p.mu.Unlock()

	if p.render != nil {
		p.render(pose, width, height)
	}
	return true
}

// Stop halts the active playback, if any. It does not wait for the loop to exit.
func (p *AnimationPlayer) Stop() {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	if current != nil {
		current.Stop()
	}
}

// Active reports whether a playback is currently running.
func (p *AnimationPlayer) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && p.current.task.Active()
}

// Interpolate returns the pose at elapsedMs. Numeric fields are blended
// linearly between the bracketing keyframes; the expression switches from
// the earlier to the later keyframe at the halfway point.
func Interpolate(animation *models.Animation, elapsedMs float64) models.Pose {
	keyframes := animation.Keyframes
	switch len(keyframes) {
	case 0:
		return models.RestPose
	case 1:
		return keyframes[0].Pose
	}

	prev, next := keyframes[0], keyframes[len(keyframes)-1]
	for i := 0; i < len(keyframes)-1; i++ {
		if float64(keyframes[i].TimestampMs) <= elapsedMs && elapsedMs <= float64(keyframes[i+1].TimestampMs) {
			prev, next = keyframes[i], keyframes[i+1]
			break
		}
	}

	var progress float64
	if span := float64(next.TimestampMs - prev.TimestampMs); span != 0 {
		progress = (elapsedMs - float64(prev.TimestampMs)) / span
	}
	progress = clamp(progress, 0, 1)

	expression := prev.Expression
	if progress >= 0.5 {
		expression = next.Expression
	}

	return models.Pose{
		LeftArm:    lerpComponent(prev.LeftArm, next.LeftArm, progress),
		RightArm:   lerpComponent(prev.RightArm, next.RightArm, progress),
		Head:       models.HeadPose{Rotation: lerp(prev.Head.Rotation, next.Head.Rotation, progress)},
		Expression: expression,
	}
}

func lerpComponent(a, b models.PoseComponent, t float64) models.PoseComponent {
	return models.PoseComponent{
		X:        lerp(a.X, b.X, t),
		Y:        lerp(a.Y, b.Y, t),
		Rotation: lerp(a.Rotation, b.Rotation, t),
	}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
