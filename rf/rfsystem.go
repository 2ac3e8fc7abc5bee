package rf

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/rfsensor-sim/internal/logging"
	"github.com/signalsfoundry/rfsensor-sim/internal/queue"
	"github.com/signalsfoundry/rfsensor-sim/model"
)

// Boltzmann constant in J/K.
const Boltzmann = 1.380649e-23

// Defaults applied by NewRfSystem.
const (
	DefaultSystemTemperature = 290.0 // K
	DefaultNoiseFigure       = 1.0
	DefaultBandwidth         = 1e6 // Hz
)

// packet is one emission waiting in a receive buffer with the one-way
// signal power computed when it arrived.
type packet struct {
	em     *Emission
	signal float64
}

// RfSystem holds the link-budget parameters shared by every RF sensor and
// the raw receive buffer. Radar, Jammer and Rwr embed it.
type RfSystem struct {
	name    string
	owner   *model.Player
	logger  logging.Logger
	metrics MetricsRecorder

	paramMu           sync.RWMutex
	frequency         float64
	bandwidth         float64
	bandwidthNoise    float64 // 0 means use bandwidth
	powerPeak         float64
	noiseFigure       float64
	systemTemp        float64
	lossXmit          float64
	lossRecv          float64
	lossSignalProcess float64
	rfNoise           float64

	xmitEnabled       atomic.Bool
	recvEnabled       atomic.Bool
	emissionsDisabled atomic.Bool

	antMu   sync.RWMutex
	antenna *Antenna

	// packets is guarded by its own lock; jamSignal by jamMu.
	packets   *queue.Ring[packet]
	jamMu     sync.Mutex
	jamSignal float64

	noAntennaOnce sync.Once
}

// SystemOption configures an RfSystem.
type SystemOption func(*RfSystem)

func WithSystemLogger(l logging.Logger) SystemOption {
	return func(s *RfSystem) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSystemMetrics(m MetricsRecorder) SystemOption {
	return func(s *RfSystem) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithReceiveBuffer overrides the receive buffer capacity, capped at
// MaxEmissions.
func WithReceiveBuffer(n int) SystemOption {
	return func(s *RfSystem) { s.packets = queue.NewRing[packet](min(n, MaxEmissions)) }
}

// NewRfSystem returns a system with both transmitter and receiver enabled
// and the receiver noise computed from the defaults.
func NewRfSystem(name string, owner *model.Player, opts ...SystemOption) *RfSystem {
	s := &RfSystem{
		name:              name,
		owner:             owner,
		logger:            logging.Noop(),
		metrics:           nopMetrics{},
		frequency:         1e9,
		bandwidth:         DefaultBandwidth,
		noiseFigure:       DefaultNoiseFigure,
		systemTemp:        DefaultSystemTemperature,
		lossXmit:          1,
		lossRecv:          1,
		lossSignalProcess: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.packets == nil {
		s.packets = queue.NewRing[packet](MaxEmissions)
	}
	s.logger = s.logger.With(logging.String("sensor", name))
	s.xmitEnabled.Store(true)
	s.recvEnabled.Store(true)
	s.computeNoiseLocked()
	return s
}

func (s *RfSystem) Name() string { return s.name }
func (s *RfSystem) Owner() *model.Player { return s.owner }
func (s *RfSystem) Logger() logging.Logger { return s.logger }

// Antenna returns the antenna this system transmits through, or nil.
func (s *RfSystem) Antenna() *Antenna {
	s.antMu.RLock()
	defer s.antMu.RUnlock()
	return s.antenna
}

func (s *RfSystem) setAntenna(a *Antenna) {
	s.antMu.Lock()
	s.antenna = a
	s.antMu.Unlock()
}

// warnNoAntenna logs the missing antenna once per system.
func (s *RfSystem) warnNoAntenna() {
	s.noAntennaOnce.Do(func() {
		s.logger.Warn(context.Background(), "no antenna attached; emissions disabled")
	})
}

// --- parameters ---

func (s *RfSystem) Frequency() float64 {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.frequency
}

// SetFrequency sets the centre frequency in Hz (> 0).
func (s *RfSystem) SetFrequency(hz float64) bool {
	if !(hz > 0) || math.IsInf(hz, 0) {
		return false
	}
	s.paramMu.Lock()
	s.frequency = hz
	s.paramMu.Unlock()
	return true
}

func (s *RfSystem) Bandwidth() float64 {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.bandwidth
}

// SetBandwidth sets the receiver bandwidth in Hz (≥ 1).
func (s *RfSystem) SetBandwidth(hz float64) bool {
	if !(hz >= 1) || math.IsInf(hz, 0) {
		return false
	}
	s.paramMu.Lock()
	s.bandwidth = hz
	s.computeNoiseLocked()
	s.paramMu.Unlock()
	return true
}

// NoiseBandwidth returns the bandwidth used for thermal noise.
func (s *RfSystem) NoiseBandwidth() float64 {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.noiseBandwidthLocked()
}

// SetNoiseBandwidth sets the noise bandwidth in Hz (≥ 1).
func (s *RfSystem) SetNoiseBandwidth(hz float64) bool {
	if !(hz >= 1) || math.IsInf(hz, 0) {
		return false
	}
	s.paramMu.Lock()
	s.bandwidthNoise = hz
	s.computeNoiseLocked()
	s.paramMu.Unlock()
	return true
}

func (s *RfSystem) PeakPower() float64 {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.powerPeak
}

// SetPeakPower sets the peak transmit power in W (> 0).
func (s *RfSystem) SetPeakPower(w float64) bool {
	if !(w > 0) || math.IsInf(w, 0) {
		return false
	}
	s.paramMu.Lock()
	s.powerPeak = w
	s.paramMu.Unlock()
	return true
}

func (s *RfSystem) NoiseFigure() float64 {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.noiseFigure
}

// SetNoiseFigure sets the linear noise figure (> 0).
func (s *RfSystem) SetNoiseFigure(nf float64) bool {
	if !(nf > 0) || math.IsInf(nf, 0) {
		return false
	}
	s.paramMu.Lock()
	s.noiseFigure = nf
	s.computeNoiseLocked()
	s.paramMu.Unlock()
	return true
}

func (s *RfSystem) SystemTemperature() float64 {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.systemTemp
}

// SetSystemTemperature sets the receiver temperature in K (> 0).
func (s *RfSystem) SetSystemTemperature(k float64) bool {
	if !(k > 0) || math.IsInf(k, 0) {
		return false
	}
	s.paramMu.Lock()
	s.systemTemp = k
	s.computeNoiseLocked()
	s.paramMu.Unlock()
	return true
}

func (s *RfSystem) TransmitLoss() float64 {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.lossXmit
}

// SetTransmitLoss sets the transmit chain loss (≥ 1).
func (s *RfSystem) SetTransmitLoss(l float64) bool {
	return s.setLoss(&s.lossXmit, l)
}

func (s *RfSystem) ReceiveLoss() float64 {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.lossRecv
}

// SetReceiveLoss sets the receive chain loss (≥ 1).
func (s *RfSystem) SetReceiveLoss(l float64) bool {
	return s.setLoss(&s.lossRecv, l)
}

func (s *RfSystem) SignalProcessLoss() float64 {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.lossSignalProcess
}

// SetSignalProcessLoss sets the signal processing loss (≥ 1).
func (s *RfSystem) SetSignalProcessLoss(l float64) bool {
	return s.setLoss(&s.lossSignalProcess, l)
}

func (s *RfSystem) setLoss(dst *float64, l float64) bool {
	if !(l >= 1) || math.IsInf(l, 0) {
		return false
	}
	s.paramMu.Lock()
	*dst = l
	s.paramMu.Unlock()
	return true
}

// RfNoise returns the receiver thermal noise power in W.
func (s *RfSystem) RfNoise() float64 {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.rfNoise
}

func (s *RfSystem) noiseBandwidthLocked() float64 {
	if s.bandwidthNoise > 0 {
		return s.bandwidthNoise
	}
	return s.bandwidth
}

// computeNoiseLocked recomputes NF·k·T·B. Callers hold paramMu.
func (s *RfSystem) computeNoiseLocked() {
	s.rfNoise = s.noiseFigure * Boltzmann * s.systemTemp * s.noiseBandwidthLocked()
}

// TransmitPower returns the radiated power after transmit losses.
func (s *RfSystem) TransmitPower() float64 {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.powerPeak / s.lossXmit
}

// --- enable flags ---

func (s *RfSystem) SetTransmitterEnabled(on bool) { s.xmitEnabled.Store(on) }
func (s *RfSystem) SetReceiverEnabled(on bool) { s.recvEnabled.Store(on) }

// SetEmissionsDisabled suppresses all emission generation regardless of
// the transmitter flag.
func (s *RfSystem) SetEmissionsDisabled(off bool) { s.emissionsDisabled.Store(off) }
func (s *RfSystem) AreEmissionsDisabled() bool { return s.emissionsDisabled.Load() }

// IsTransmitting reports whether the system will emit this frame.
func (s *RfSystem) IsTransmitting() bool {
	return s.xmitEnabled.Load() && !s.emissionsDisabled.Load() && s.owner.IsActive()
}

// IsReceiving reports whether received emissions are processed.
func (s *RfSystem) IsReceiving() bool {
	return s.recvEnabled.Load() && s.owner.IsActive()
}

// --- receive path ---

// AffectsRfSystem reports whether the emission's band overlaps the
// receiver's band.
func (s *RfSystem) AffectsRfSystem(em *Emission) bool {
	if em == nil || em.Frequency() <= 0 {
		return false
	}
	s.paramMu.RLock()
	lo, hi := s.frequency-s.bandwidth/2, s.frequency+s.bandwidth/2
	s.paramMu.RUnlock()
	emLo := em.Frequency() - em.Bandwidth()/2
	emHi := em.Frequency() + em.Bandwidth()/2
	return emLo <= hi && emHi >= lo
}

// ReceivedSignal returns the one-way signal power of em through an
// antenna with the given gain.
func (s *RfSystem) ReceivedSignal(em *Emission, gain float64) float64 {
	losses := s.SignalProcessLoss() * em.AtmosphericLoss() * em.TransmitLoss()
	if losses < 1 {
		losses = 1
	}
	return em.Power() * em.RangeLoss() * gain / losses
}

// jamFraction is the share of a noise jammer's power that falls inside
// this receiver's band.
func (s *RfSystem) jamFraction(em *Emission) float64 {
	if em.Bandwidth() <= 0 {
		return 1
	}
	return math.Min(1, s.Bandwidth()/em.Bandwidth())
}

// RfReceivedEmission accepts an in-band emission. Noise jamming adds to
// the jam accumulator; anything else is buffered for the owning sensor.
// A full buffer drops the emission and counts it.
func (s *RfSystem) RfReceivedEmission(em *Emission, _ *Antenna, gain float64) {
	if em == nil || !s.IsReceiving() || !s.AffectsRfSystem(em) {
		return
	}
	signal := s.ReceivedSignal(em, gain)
	if em.ECM() == ECMNoise {
		s.addJam(signal * s.jamFraction(em))
		return
	}
	s.enqueue(em, signal)
}

func (s *RfSystem) enqueue(em *Emission, signal float64) {
	if !s.packets.Put(packet{em: em, signal: signal}) {
		s.metrics.QueueDrop(s.name, QueueReceiveBuffer)
	}
}

func (s *RfSystem) addJam(v float64) {
	if !(v > 0) {
		return
	}
	s.jamMu.Lock()
	s.jamSignal += v
	s.jamMu.Unlock()
}

// JamSignal returns the jamming power accumulated this frame.
func (s *RfSystem) JamSignal() float64 {
	s.jamMu.Lock()
	defer s.jamMu.Unlock()
	return s.jamSignal
}

// takeJam returns the accumulated jamming power and resets it.
func (s *RfSystem) takeJam() float64 {
	s.jamMu.Lock()
	defer s.jamMu.Unlock()
	j := s.jamSignal
	s.jamSignal = 0
	return j
}

// takePackets empties the receive buffer.
func (s *RfSystem) takePackets() []packet {
	var out []packet
	s.packets.Drain(func(p packet) { out = append(out, p) })
	return out
}

// PendingEmissions returns how many emissions wait in the receive buffer.
func (s *RfSystem) PendingEmissions() int { return s.packets.Len() }

// ReceiveCapacity returns how many emissions one frame can buffer.
func (s *RfSystem) ReceiveCapacity() int { return s.packets.Cap() }
