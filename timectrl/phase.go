package timectrl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Phase is one ordered slice of a simulation frame. Every component sees
// every phase and decides for itself whether to act.
type Phase int

const (
	// PhaseDynamics moves players and steers antennas.
	PhaseDynamics Phase = iota
	// PhaseTransmit propagates emissions to players of interest.
	PhaseTransmit
	// PhaseReceive scores received emissions and queues reports.
	PhaseReceive
	// PhaseTrack turns reports into tracks.
	PhaseTrack

	// NumPhases is the number of phases in one frame.
	NumPhases = 4
)

func (p Phase) String() string {
	switch p {
	case PhaseDynamics:
		return "dynamics"
	case PhaseTransmit:
		return "transmit"
	case PhaseReceive:
		return "receive"
	case PhaseTrack:
		return "track"
	default:
		return fmt.Sprintf("phase-%d", int(p))
	}
}

// Component is anything updated by the phase scheduler.
type Component interface {
	Name() string
	UpdatePhase(ctx context.Context, phase Phase, dt float64)
}

// Hook runs sequentially at the start of a phase, before components fan out.
type Hook func(ctx context.Context, dt float64) error

// PhaseObserver receives per-phase wall-clock durations.
type PhaseObserver interface {
	ObservePhase(phase string, d time.Duration)
}

// PhaseScheduler runs the frame's phases in order. Within a phase the
// registered components run concurrently on a bounded worker pool; the
// next phase starts only after every component of the previous one has
// returned.
type PhaseScheduler struct {
	mu         sync.RWMutex
	components []Component
	hooks      [NumPhases][]Hook

	workers  int
	tracer   trace.Tracer
	observer PhaseObserver
	frame    uint64
}

// SchedulerOption customises a PhaseScheduler.
type SchedulerOption func(*PhaseScheduler)

// WithWorkers bounds how many components run at once within a phase.
// Values below 1 mean one worker.
func WithWorkers(n int) SchedulerOption {
	return func(s *PhaseScheduler) {
		if n < 1 {
			n = 1
		}
		s.workers = n
	}
}

// WithPhaseObserver records phase durations, e.g. into Prometheus.
func WithPhaseObserver(o PhaseObserver) SchedulerOption {
	return func(s *PhaseScheduler) { s.observer = o }
}

// WithTracer overrides the tracer; the default comes from the global
// OpenTelemetry provider.
func WithTracer(t trace.Tracer) SchedulerOption {
	return func(s *PhaseScheduler) { s.tracer = t }
}

// NewPhaseScheduler constructs an empty scheduler.
func NewPhaseScheduler(opts ...SchedulerOption) *PhaseScheduler {
	s := &PhaseScheduler{workers: 4}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/signalsfoundry/rfsensor-sim/timectrl")
	}
	return s
}

// Register adds a component. Components run in registration order when
// there is a single worker.
func (s *PhaseScheduler) Register(c Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, c)
}

// AddHook attaches a sequential hook to a phase.
func (s *PhaseScheduler) AddHook(p Phase, h Hook) {
	if p < 0 || int(p) >= NumPhases {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[p] = append(s.hooks[p], h)
}

// Components returns a snapshot of the registered components.
func (s *PhaseScheduler) Components() []Component {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Component(nil), s.components...)
}

// Frame returns the number of completed frames.
func (s *PhaseScheduler) Frame() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// Step runs one full frame of dt seconds. Only hook errors and context
// cancellation are returned; components never fail a frame.
func (s *PhaseScheduler) Step(ctx context.Context, dt float64) error {
	s.mu.RLock()
	components := append([]Component(nil), s.components...)
	hooks := s.hooks
	frame := s.frame
	s.mu.RUnlock()

	ctx, span := s.tracer.Start(ctx, "frame", trace.WithAttributes(
		attribute.Int64("frame", int64(frame)),
		attribute.Float64("dt", dt),
	))
	defer span.End()

	for p := Phase(0); int(p) < NumPhases; p++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.runPhase(ctx, p, dt, hooks[p], components); err != nil {
			span.RecordError(err)
			return err
		}
	}

	s.mu.Lock()
	s.frame++
	s.mu.Unlock()
	return nil
}

func (s *PhaseScheduler) runPhase(ctx context.Context, p Phase, dt float64, hooks []Hook, components []Component) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "phase."+p.String(), trace.WithAttributes(
		attribute.Int("components", len(components)),
	))
	defer span.End()

	for _, h := range hooks {
		if err := h(ctx, dt); err != nil {
			return fmt.Errorf("%s hook: %w", p, err)
		}
	}

	var eg errgroup.Group
	eg.SetLimit(s.workers)
	for _, c := range components {
		eg.Go(func() error {
			c.UpdatePhase(ctx, p, dt)
			return nil
		})
	}
	_ = eg.Wait()

	if s.observer != nil {
		s.observer.ObservePhase(p.String(), time.Since(start))
	}
	return nil
}
