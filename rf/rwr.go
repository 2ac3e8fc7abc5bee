package rf

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/rfsensor-sim/core"
	"github.com/signalsfoundry/rfsensor-sim/model"
	"github.com/signalsfoundry/rfsensor-sim/timectrl"
)

// Rwr is a radar-warning receiver. It listens for other players'
// emissions, measures their direction and strength, and reports intercepts
// above threshold to an emitter track manager. It never transmits.
type Rwr struct {
	*RfSystem

	cfgMu     sync.RWMutex
	threshold float64 // dB
	tm        ReportSink

	intercepts atomic.Int64
}

// NewRwr creates a warning receiver on owner listening through ant.
func NewRwr(name string, owner *model.Player, ant *Antenna, opts ...SystemOption) *Rwr {
	w := &Rwr{RfSystem: NewRfSystem(name, owner, opts...)}
	w.SetTransmitterEnabled(false)
	if ant != nil {
		w.setAntenna(ant)
		ant.AttachSystem(w)
	}
	return w
}

func (w *Rwr) Threshold() float64 {
	w.cfgMu.RLock()
	defer w.cfgMu.RUnlock()
	return w.threshold
}

// SetThreshold sets the intercept threshold in dB above noise.
func (w *Rwr) SetThreshold(db float64) bool {
	if math.IsNaN(db) || math.IsInf(db, 0) {
		return false
	}
	w.cfgMu.Lock()
	w.threshold = db
	w.cfgMu.Unlock()
	return true
}

func (w *Rwr) SetTrackManager(tm ReportSink) {
	w.cfgMu.Lock()
	w.tm = tm
	w.cfgMu.Unlock()
}

func (w *Rwr) TrackManager() ReportSink {
	w.cfgMu.RLock()
	defer w.cfgMu.RUnlock()
	return w.tm
}

// RfReceivedEmission buffers in-band emissions from other players,
// jamming included.
func (w *Rwr) RfReceivedEmission(em *Emission, _ *Antenna, gain float64) {
	if em == nil || !w.IsReceiving() || !w.AffectsRfSystem(em) {
		return
	}
	if em.Transmitter() == nil || em.EmitterID() == "" {
		return
	}
	if w.owner != nil && em.EmitterID() == w.owner.ID {
		return
	}
	w.enqueue(em, w.ReceivedSignal(em, gain))
}

// Receive scores the buffered intercepts and forwards those above
// threshold. The forwarded copy carries the direction to the emitter as
// seen from this receiver and no range.
func (w *Rwr) Receive(dt float64) int {
	packets := w.takePackets()
	w.takeJam()
	if !w.IsReceiving() || len(packets) == 0 {
		w.intercepts.Store(0)
		return 0
	}
	tm := w.TrackManager()
	noise := w.RfNoise() * w.ReceiveLoss()
	thr := w.Threshold()

	n := 0
	for _, p := range packets {
		if !(p.signal > 0) || noise <= 0 {
			continue
		}
		sn := linearToDB(p.signal / noise)
		if sn < thr {
			continue
		}
		n++
		w.metrics.Detection(w.name)
		if tm == nil {
			continue
		}
		cp := *p.em
		if w.owner != nil {
			bearing, el, _ := core.AzElRange(core.VecOf(w.owner.Position), core.VecOf(cp.Origin()))
			cp.SetAngles(core.NormalizeAngle(bearing-w.owner.Heading), bearing, el)
		}
		cp.SetRange(0)
		cp.SetRangeRate(0)
		tm.NewReport(&cp, sn)
	}
	if n > 0 && tm == nil {
		w.metrics.ReportsDiscarded(w.name, n)
	}
	w.intercepts.Store(int64(n))
	return n
}

// Intercepts returns the number of intercepts in the last Receive.
func (w *Rwr) Intercepts() int { return int(w.intercepts.Load()) }

func (w *Rwr) UpdatePhase(_ context.Context, phase timectrl.Phase, dt float64) {
	if phase == timectrl.PhaseReceive {
		w.Receive(dt)
	}
}
