package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles the Prometheus metrics of a running simulation. It
// satisfies the recorder interfaces of the rf and track packages and the
// phase scheduler's observer, so one collector can be handed to every
// component.
type SimCollector struct {
	gatherer prometheus.Gatherer

	QueueDrops       *prometheus.CounterVec
	Detections       *prometheus.CounterVec
	JammedTotal      *prometheus.CounterVec
	DiscardedTotal   *prometheus.CounterVec

	TracksActive  *prometheus.GaugeVec
	TracksCreated *prometheus.CounterVec
	TracksDropped *prometheus.CounterVec

	PhaseDurations *prometheus.HistogramVec
	Players        prometheus.Gauge
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	drops, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rf_queue_drops_total",
		Help: "Items dropped because a bounded queue or pool was full, labeled by sensor and queue.",
	}, []string{"sensor", "queue"}), "rf_queue_drops_total")
	if err != nil {
		return nil, err
	}
	detections, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rf_detections_total",
		Help: "Returns or intercepts that crossed the detection threshold.",
	}, []string{"sensor"}), "rf_detections_total")
	if err != nil {
		return nil, err
	}
	jammed, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rf_jammed_detections_total",
		Help: "Returns above threshold against noise but masked by jamming.",
	}, []string{"sensor"}), "rf_jammed_detections_total")
	if err != nil {
		return nil, err
	}
	discarded, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rf_reports_discarded_total",
		Help: "Reports dropped because no track manager was attached.",
	}, []string{"sensor"}), "rf_reports_discarded_total")
	if err != nil {
		return nil, err
	}

	active, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "track_active",
		Help: "Current number of tracks held by a track manager.",
	}, []string{"manager"}), "track_active")
	if err != nil {
		return nil, err
	}
	created, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "track_created_total",
		Help: "Tracks started by a track manager.",
	}, []string{"manager"}), "track_created_total")
	if err != nil {
		return nil, err
	}
	dropped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "track_dropped_total",
		Help: "Tracks removed for age or because the target was killed.",
	}, []string{"manager"}), "track_dropped_total")
	if err != nil {
		return nil, err
	}

	phases, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sim_phase_duration_seconds",
		Help:    "Wall-clock duration of one frame phase.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}, []string{"phase"}), "sim_phase_duration_seconds")
	if err != nil {
		return nil, err
	}
	players, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_players",
		Help: "Current number of active players in the world.",
	}), "sim_players")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:         gatherer,
		QueueDrops:       drops,
		Detections:       detections,
		JammedTotal:      jammed,
		DiscardedTotal:   discarded,
		TracksActive:     active,
		TracksCreated:    created,
		TracksDropped:    dropped,
		PhaseDurations:   phases,
		Players:          players,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// QueueDrop counts one item lost to a full queue.
func (c *SimCollector) QueueDrop(sensor, queue string) {
	if c == nil || c.QueueDrops == nil {
		return
	}
	c.QueueDrops.WithLabelValues(sensor, queue).Inc()
}

// Detection counts one threshold crossing.
func (c *SimCollector) Detection(sensor string) {
	if c == nil || c.Detections == nil {
		return
	}
	c.Detections.WithLabelValues(sensor).Inc()
}

// JammedDetections adds n masked returns for the frame.
func (c *SimCollector) JammedDetections(sensor string, n int) {
	if c == nil || c.JammedTotal == nil || n <= 0 {
		return
	}
	c.JammedTotal.WithLabelValues(sensor).Add(float64(n))
}

// ReportsDiscarded adds n reports dropped for lack of a track manager.
func (c *SimCollector) ReportsDiscarded(sensor string, n int) {
	if c == nil || c.DiscardedTotal == nil || n <= 0 {
		return
	}
	c.DiscardedTotal.WithLabelValues(sensor).Add(float64(n))
}

func (c *SimCollector) TrackCreated(manager string) {
	if c == nil || c.TracksCreated == nil {
		return
	}
	c.TracksCreated.WithLabelValues(manager).Inc()
}

func (c *SimCollector) TrackDropped(manager string) {
	if c == nil || c.TracksDropped == nil {
		return
	}
	c.TracksDropped.WithLabelValues(manager).Inc()
}

func (c *SimCollector) ActiveTracks(manager string, n int) {
	if c == nil || c.TracksActive == nil {
		return
	}
	c.TracksActive.WithLabelValues(manager).Set(float64(n))
}

// ObservePhase records how long one frame phase took.
func (c *SimCollector) ObservePhase(phase string, d time.Duration) {
	if c == nil || c.PhaseDurations == nil {
		return
	}
	c.PhaseDurations.WithLabelValues(phase).Observe(d.Seconds())
}

// SetPlayers updates the active player gauge.
func (c *SimCollector) SetPlayers(n int) {
	if c == nil || c.Players == nil {
		return
	}
	c.Players.Set(float64(n))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
