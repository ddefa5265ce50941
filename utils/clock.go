package utils

import (
	"context"
	"sync"
	"time"
)

// DefaultFrameInterval approximates one display refresh at 60Hz.
const DefaultFrameInterval = 16 * time.Millisecond

// Frame is one scheduling tick delivered by a Clock.
type Frame struct {
	At   time.Time
	done func()
}

// Done acknowledges that the tick body has finished running.
func (f Frame) Done() {
	if f.done != nil {
		f.done()
	}
}

// FrameTicker delivers frames until stopped.
type FrameTicker interface {
	C() <-chan Frame
	Stop()
}

// Clock is the frame-paced time source both the playback and sampling loops run on.
type Clock interface {
	Now() time.Time
	Frames(interval time.Duration) FrameTicker
}

// FrameClock is the wall-clock implementation backed by time.Ticker.
type FrameClock struct{}

func NewFrameClock() *FrameClock {
	return &FrameClock{}
}

func (c *FrameClock) Now() time.Time {
	return time.Now()
}

func (c *FrameClock) Frames(interval time.Duration) FrameTicker {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	t := &wallTicker{
		ticker: time.NewTicker(interval),
		ch:     make(chan Frame),
		stop:   make(chan struct{}),
	}
	go t.run()
	return t
}

type wallTicker struct {
	ticker *time.Ticker
	ch     chan Frame
	stop   chan struct{}
	once   sync.Once
}

func (t *wallTicker) run() {
	for {
		select {
		case <-t.stop:
			return
		case now := <-t.ticker.C:
			select {
			case t.ch <- Frame{At: now}:
			case <-t.stop:
				return
			}
		}
	}
}

func (t *wallTicker) C() <-chan Frame {
	return t.ch
}

func (t *wallTicker) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.stop)
	})
}

// ManualClock only moves when Advance is called. Each Advance delivers one
// frame to every live ticker and returns after every tick body has run.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*manualTicker]struct{}
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{
		now:     start,
		tickers: make(map[*manualTicker]struct{}),
	}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Frames(time.Duration) FrameTicker {
	t := &manualTicker{
		clock:   c,
		ch:      make(chan Frame),
		stopped: make(chan struct{}),
	}
	c.mu.Lock()
	c.tickers[t] = struct{}{}
	c.mu.Unlock()
	return t
}

// Advance moves the clock forward by d and delivers one frame per ticker.
// It returns the number of tickers whose tick body ran.
func (c *ManualClock) Advance(d time.Duration) int {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := make([]*manualTicker, 0, len(c.tickers))
	for t := range c.tickers {
		tickers = append(tickers, t)
	}
	c.mu.Unlock()

	delivered := 0
	for _, t := range tickers {
		ack := make(chan struct{})
		select {
		case t.ch <- Frame{At: now, done: func() { close(ack) }}:
			<-ack
			delivered++
		case <-t.stopped:
		}
	}
	return delivered
}

// Tickers returns the number of live tickers.
func (c *ManualClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

type manualTicker struct {
	clock   *ManualClock
	ch      chan Frame
	stopped chan struct{}
	once    sync.Once
}

func (t *manualTicker) C() <-chan Frame {
	return t.ch
}

func (t *manualTicker) Stop() {
	t.once.Do(func() {
		t.clock.mu.Lock()
		delete(t.clock.tickers, t)
		t.clock.mu.Unlock()
		close(t.stopped)
	})
}

// Task is a cancellable frame loop. The tick function returns false to end
// the loop; a stopped task never runs another tick, including one already
// delivered when Stop was called.
type Task struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// StartTask subscribes to the clock before returning, so the first frame
// after StartTask is never missed.
func StartTask(parent context.Context, clock Clock, interval time.Duration, tick func(now time.Time) bool) *Task {
	ctx, cancel := context.WithCancel(parent)
	task := &Task{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	ticker := clock.Frames(interval)
	go task.run(ticker, tick)
	return task
}

func (t *Task) run(ticker FrameTicker, tick func(now time.Time) bool) {
	defer close(t.done)
	defer t.cancel()
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case frame := <-ticker.C():
			if t.ctx.Err() != nil {
				frame.Done()
				return
			}
			more := tick(frame.At)
			frame.Done()
			if !more {
				return
			}
		}
	}
}

// Stop cancels the task. It is safe to call any number of times, including
// from inside the tick function.
func (t *Task) Stop() {
	t.cancel()
}

// Active reports whether the task may still run ticks.
func (t *Task) Active() bool {
	return t.ctx.Err() == nil
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the loop has exited or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
