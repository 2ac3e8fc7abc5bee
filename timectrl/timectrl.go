package timectrl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Mode describes how the TimeController paces frames.
type Mode int

const (
	// RealTime runs one frame per Tick of wall-clock time.
	RealTime Mode = iota
	// Accelerated runs frames back to back while still stepping by Tick.
	Accelerated
)

func (m Mode) String() string {
	if m == RealTime {
		return "realtime"
	}
	return "accelerated"
}

// ParseMode accepts "realtime" or "accelerated" in any case. The empty
// string is Accelerated.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "accelerated":
		return Accelerated, nil
	case "realtime", "real-time":
		return RealTime, nil
	}
	return Accelerated, fmt.Errorf("unknown time mode %q", s)
}

// FrameFunc runs the simulation work for one frame at simTime.
type FrameFunc func(ctx context.Context, simTime time.Time) error

// TimeController owns simulation time. Each frame advances the clock by
// Tick, runs the frame function, then notifies listeners.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	frames      uint64

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Elapsed returns simulation time since StartTime.
func (tc *TimeController) Elapsed() time.Duration {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime.Sub(tc.StartTime)
}

// Frames returns the number of frames run so far.
func (tc *TimeController) Frames() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.frames
}

// SetTime jumps the simulation clock without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// AddListener registers a callback invoked after every completed frame.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	if fn == nil {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// advance moves the clock one Tick and returns the new time.
func (tc *TimeController) advance() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	tc.frames++
	return tc.currentTime
}

func (tc *TimeController) notify(simTime time.Time) {
	tc.mu.RLock()
	listeners := append([]func(time.Time){}, tc.listeners...)
	tc.mu.RUnlock()
	for _, fn := range listeners {
		fn(simTime)
	}
}

// Run executes duration/Tick frames, or a single frame when duration is
// shorter than Tick. It stops early when ctx is done or frame fails;
// listeners are not notified for a failed frame.
func (tc *TimeController) Run(ctx context.Context, duration time.Duration, frame FrameFunc) error {
	if tc.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", tc.Tick)
	}
	n := int64(duration / tc.Tick)
	if n < 1 {
		n = 1
	}

	var tick <-chan time.Time
	if tc.Mode == RealTime {
		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()
		tick = ticker.C
	}

	for i := int64(0); i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}

		simTime := tc.advance()
		if frame != nil {
			if err := frame(ctx, simTime); err != nil {
				return err
			}
		}
		tc.notify(simTime)
	}
	return nil
}
