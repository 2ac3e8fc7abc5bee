package rf

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/rfsensor-sim/core"
	"github.com/signalsfoundry/rfsensor-sim/internal/queue"
	"github.com/signalsfoundry/rfsensor-sim/model"
	"github.com/signalsfoundry/rfsensor-sim/timectrl"
)

// Sweep display and report queue dimensions.
const (
	NumSweeps    = 121
	PtrsPerSweep = 128
	MaxReports   = 100

	// SweepFieldOfView is the azimuth span mapped onto the sweep rows.
	SweepFieldOfView = 60 * math.Pi / 180
	// SweepDecay is subtracted from every intensity bucket per update.
	SweepDecay = 0.02
	// SweepFullScaleDB is the S/I that paints a bucket at intensity 1.
	SweepFullScaleDB = 30.0

	sweepMinIntensity = 0.1
	maxRangeMargin    = 1.25
)

// Detection is a scored return held until the next end of scan.
type Detection struct {
	Emission Emission
	SI       float64 // dB
	SN       float64 // dB
}

// Sweeps is the angle by range display grid.
type Sweeps struct {
	Intensity [NumSweeps][PtrsPerSweep]float64
	Closing   [NumSweeps][PtrsPerSweep]float64 // m/s, positive closing
}

// Radar is a monostatic RF sensor: it transmits once per frame through its
// antenna, scores the returns against noise and jamming, paints the sweep
// display and hands the best detection per target to a track manager at
// the end of every scan bar.
type Radar struct {
	*RfSystem

	cfgMu      sync.RWMutex
	threshold  float64 // dB
	igain      float64
	maxRange   float64
	pulseWidth float64
	prf        float64
	policy     DetectionPolicy
	tm         ReportSink

	template *Emission

	reports *queue.Ring[Detection]

	reportMu sync.Mutex
	accum    []Detection

	endOfScan atomic.Bool
	jammed    atomic.Int64

	sweepMu sync.RWMutex
	sweeps  Sweeps

	noTrackerOnce sync.Once
}

// NewRadar creates a radar named name on owner and attaches it to ant.
// A nil antenna is allowed; the radar then never transmits.
func NewRadar(name string, owner *model.Player, ant *Antenna, opts ...SystemOption) *Radar {
	r := &Radar{
		RfSystem: NewRfSystem(name, owner, opts...),
		igain:    1,
		template: NewEmission(),
		reports:  queue.NewRing[Detection](MaxReports),
		accum:    make([]Detection, 0, MaxReports),
	}
	if ant != nil {
		r.setAntenna(ant)
		ant.AttachSystem(r)
		ant.AddScanListener(r)
	}
	return r
}

// --- configuration ---

func (r *Radar) Threshold() float64 {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.threshold
}

// SetThreshold sets the detection threshold in dB.
func (r *Radar) SetThreshold(db float64) bool {
	if math.IsNaN(db) || math.IsInf(db, 0) {
		return false
	}
	r.cfgMu.Lock()
	r.threshold = db
	r.cfgMu.Unlock()
	return true
}

func (r *Radar) IntegrationGain() float64 {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.igain
}

// SetIntegrationGain sets the linear pulse integration gain (≥ 1).
func (r *Radar) SetIntegrationGain(g float64) bool {
	if !(g >= 1) || math.IsInf(g, 0) {
		return false
	}
	r.cfgMu.Lock()
	r.igain = g
	r.cfgMu.Unlock()
	return true
}

func (r *Radar) MaxRange() float64 {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.maxRange
}

// SetMaxRange sets the rated maximum range in metres (> 0).
func (r *Radar) SetMaxRange(m float64) bool {
	if !(m > 0) || math.IsInf(m, 0) {
		return false
	}
	r.cfgMu.Lock()
	r.maxRange = m
	r.cfgMu.Unlock()
	return true
}

// SetPulseWidth sets the pulse width in seconds (> 0).
func (r *Radar) SetPulseWidth(s float64) bool {
	if !(s > 0) || math.IsInf(s, 0) {
		return false
	}
	r.cfgMu.Lock()
	r.pulseWidth = s
	r.cfgMu.Unlock()
	return true
}

// SetPRF sets the pulse repetition frequency in Hz (> 0).
func (r *Radar) SetPRF(hz float64) bool {
	if !(hz > 0) || math.IsInf(hz, 0) {
		return false
	}
	r.cfgMu.Lock()
	r.prf = hz
	r.cfgMu.Unlock()
	return true
}

func (r *Radar) Policy() DetectionPolicy {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.policy
}

// SetPolicy selects the detection policy. A single-target-track policy
// puts the antenna into track mode on the designated player.
func (r *Radar) SetPolicy(p DetectionPolicy) bool {
	if !p.valid() {
		return false
	}
	r.cfgMu.Lock()
	r.policy = p
	r.cfgMu.Unlock()

	if ant := r.Antenna(); ant != nil && p.Kind == PolicySTT {
		ant.SetTrackTarget(p.TargetID)
		ant.SetScanMode(ScanTrack)
	}
	return true
}

// SetTrackManager attaches the sink for end-of-scan reports. nil detaches.
func (r *Radar) SetTrackManager(tm ReportSink) {
	r.cfgMu.Lock()
	r.tm = tm
	r.cfgMu.Unlock()
}

func (r *Radar) TrackManager() ReportSink {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.tm
}

// MaxDetectionRange returns the range at which a target of the given RCS
// reaches the detection threshold against receiver noise alone.
func (r *Radar) MaxDetectionRange(rcs float64) float64 {
	ant := r.Antenna()
	if ant == nil || rcs <= 0 {
		return 0
	}
	g := ant.BoresightGain()
	lambda := SpeedOfLight / r.Frequency()
	noise := r.RfNoise() * r.ReceiveLoss()
	if noise <= 0 {
		return 0
	}
	// P·G·Ae·σ·igain / ((4π)² r⁴ · Lsp) = noise·10^(thr/10)
	num := r.TransmitPower() * g * EffectiveArea(g, lambda) * rcs * r.IntegrationGain()
	den := 16 * math.Pi * math.Pi * r.SignalProcessLoss() * noise * dbToLinear(r.Threshold())
	if den <= 0 {
		return 0
	}
	return math.Pow(num/den, 0.25)
}

// --- receive path ---

// RfReceivedEmission accepts this radar's own returns and noise jamming.
// Emissions from other transmitters are not echoes and are ignored.
func (r *Radar) RfReceivedEmission(em *Emission, ant *Antenna, gain float64) {
	if em == nil {
		return
	}
	if em.ECM() != ECMNoise && em.Transmitter() != Transmitter(r) {
		return
	}
	r.RfSystem.RfReceivedEmission(em, ant, gain)
}

// OnStartScanEvent implements ScanListener.
func (r *Radar) OnStartScanEvent(*Antenna, int) {}

// OnEndScanEvent marks the accumulated detections for flushing on the
// next Process.
func (r *Radar) OnEndScanEvent(*Antenna, int) { r.endOfScan.Store(true) }

// --- frame ---

// Transmit builds this frame's emission and propagates it through the
// antenna.
func (r *Radar) Transmit(dt float64) int {
	if !r.IsTransmitting() {
		return 0
	}
	ant := r.Antenna()
	if ant == nil {
		r.warnNoAntenna()
		return 0
	}

	r.cfgMu.RLock()
	prf, pw, maxRange := r.prf, r.pulseWidth, r.maxRange
	r.cfgMu.RUnlock()

	em := r.template
	em.Clear()
	em.SetFrequency(r.Frequency())
	em.SetBandwidth(r.Bandwidth())
	em.SetPulseWidth(pw)
	em.SetPRF(prf)
	em.SetPulses(int(math.Round(prf * dt)))
	em.SetPower(r.PeakPower())
	em.SetTransmitLoss(r.TransmitLoss())
	em.SetMaxRange(maxRange)
	em.SetReturnRequested(true)
	em.SetTransmitter(r)
	em.SetECM(ECMOff)
	return ant.RfTransmit(em)
}

// Receive scores the buffered returns. The buffer and the jam accumulator
// are emptied on every call, even when the receiver is off.
func (r *Radar) Receive(dt float64) {
	packets := r.takePackets()
	jam := r.takeJam()

	if ant := r.Antenna(); ant != nil {
		az, _ := ant.Beam()
		r.clearSweepRow(SweepIndex(core.NormalizeAngle(az)))
	}
	if !r.IsReceiving() {
		r.jammed.Store(0)
		return
	}

	lossRecv := r.ReceiveLoss()
	noise := r.RfNoise() * lossRecv
	interference := (r.RfNoise() + jam) * lossRecv

	r.cfgMu.RLock()
	thr, igain, maxRange, policy := r.threshold, r.igain, r.maxRange, r.policy
	r.cfgMu.RUnlock()

	var jammed int
	for _, p := range packets {
		em := p.em
		if em.ECM() == ECMNoise {
			continue
		}
		if !policy.Accepts(em) {
			continue
		}
		signal := p.signal * em.RCS() * em.RangeLoss() * igain
		if !(signal > 0) || interference <= 0 || noise <= 0 {
			continue
		}
		si := linearToDB(signal / interference)
		sn := linearToDB(signal / noise)

		inRange := maxRange <= 0 || em.Range() <= maxRangeMargin*maxRange
		switch {
		case si >= thr && inRange:
			if !r.reports.Put(Detection{Emission: *em, SI: si, SN: sn}) {
				r.metrics.QueueDrop(r.name, QueueReports)
				continue
			}
			r.metrics.Detection(r.name)
			r.paint(em, si, maxRange)
		case si < thr && thr <= sn:
			jammed++
		}
	}
	r.jammed.Store(int64(jammed))
	if jammed > 0 {
		r.metrics.JammedDetections(r.name, jammed)
	}
}

// Process moves queued detections into the scan accumulator, keeping the
// strongest per target, and flushes the accumulator to the track manager
// when a scan bar has ended. Without a track manager the queue is
// discarded.
func (r *Radar) Process(dt float64) {
	tm := r.TrackManager()
	var pending []Detection
	r.reports.Drain(func(d Detection) { pending = append(pending, d) })

	if tm == nil {
		if len(pending) > 0 {
			r.metrics.ReportsDiscarded(r.name, len(pending))
			r.noTrackerOnce.Do(func() {
				r.logger.Warn(context.Background(), "no track manager attached; discarding reports")
			})
		}
		r.reportMu.Lock()
		r.accum = r.accum[:0]
		r.reportMu.Unlock()
		r.endOfScan.Store(false)
		return
	}

	var flush []Detection
	r.reportMu.Lock()
	for _, d := range pending {
		r.accumulateLocked(d)
	}
	if r.endOfScan.Swap(false) && len(r.accum) > 0 {
		flush = append(flush, r.accum...)
		r.accum = r.accum[:0]
	}
	r.reportMu.Unlock()

	for i := range flush {
		tm.NewReport(&flush[i].Emission, flush[i].SI)
	}
}

// accumulateLocked keeps at most one detection per target, the one with
// the higher S/I. Callers hold reportMu.
func (r *Radar) accumulateLocked(d Detection) {
	id := d.Emission.TargetID()
	for i := range r.accum {
		if r.accum[i].Emission.TargetID() == id {
			if d.SI > r.accum[i].SI {
				r.accum[i] = d
			}
			return
		}
	}
	if len(r.accum) >= MaxReports {
		r.metrics.QueueDrop(r.name, QueueAccumulator)
		return
	}
	r.accum = append(r.accum, d)
}

// Accumulated returns a copy of the current scan's detections.
func (r *Radar) Accumulated() []Detection {
	r.reportMu.Lock()
	defer r.reportMu.Unlock()
	return append([]Detection(nil), r.accum...)
}

// PendingReports returns how many detections wait for Process.
func (r *Radar) PendingReports() int { return r.reports.Len() }

// JammedCount returns the number of returns jammed in the last Receive.
func (r *Radar) JammedCount() int { return int(r.jammed.Load()) }

// ClearQueues drops buffered emissions, queued and accumulated reports,
// and the jam accumulator.
func (r *Radar) ClearQueues() {
	r.takePackets()
	r.takeJam()
	r.reports.Drain(nil)
	r.reportMu.Lock()
	r.accum = r.accum[:0]
	r.reportMu.Unlock()
	r.endOfScan.Store(false)
}

// --- sweep display ---

// SweepIndex maps an azimuth (radians, relative to the platform) onto a
// sweep row. The ±30° field covers rows 0..NumSweeps-1; anything outside
// is clamped to the edge rows.
func SweepIndex(az float64) int {
	i := int(math.Round((az + SweepFieldOfView/2) * float64(NumSweeps-1) / SweepFieldOfView))
	return clampIndex(i, NumSweeps-1)
}

// RangeIndex maps a range onto a sweep column for the given rated maximum
// range. Negative ranges and a non-positive maximum map to column 0.
func RangeIndex(rng, maxRange float64) int {
	if rng <= 0 || maxRange <= 0 {
		return 0
	}
	i := int(math.Round(rng / maxRange * PtrsPerSweep))
	return clampIndex(i, PtrsPerSweep-1)
}

func clampIndex(i, hi int) int {
	if i < 0 {
		return 0
	}
	if i > hi {
		return hi
	}
	return i
}

// AgeSweeps decays every intensity bucket by SweepDecay, flooring at 0.
func (r *Radar) AgeSweeps() {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()
	for i := range r.sweeps.Intensity {
		row := &r.sweeps.Intensity[i]
		for j := range row {
			if row[j] > SweepDecay {
				row[j] -= SweepDecay
			} else {
				row[j] = 0
			}
		}
	}
}

func (r *Radar) clearSweepRow(i int) {
	r.sweepMu.Lock()
	r.sweeps.Intensity[i] = [PtrsPerSweep]float64{}
	r.sweeps.Closing[i] = [PtrsPerSweep]float64{}
	r.sweepMu.Unlock()
}

func (r *Radar) paint(em *Emission, si, maxRange float64) {
	v := si / SweepFullScaleDB
	if v < sweepMinIntensity {
		v = sweepMinIntensity
	}
	if v > 1 {
		v = 1
	}
	i, j := SweepIndex(core.NormalizeAngle(em.Azimuth())), RangeIndex(em.Range(), maxRange)
	r.sweepMu.Lock()
	if v > r.sweeps.Intensity[i][j] {
		r.sweeps.Intensity[i][j] = v
	}
	r.sweeps.Closing[i][j] = -em.RangeRate()
	r.sweepMu.Unlock()
}

// Sweeps returns a copy of the display grid.
func (r *Radar) Sweeps() Sweeps {
	r.sweepMu.RLock()
	defer r.sweepMu.RUnlock()
	return r.sweeps
}

// UpdatePhase transmits in the transmit phase and ages, receives and
// processes in the receive phase.
func (r *Radar) UpdatePhase(_ context.Context, phase timectrl.Phase, dt float64) {
	switch phase {
	case timectrl.PhaseTransmit:
		r.Transmit(dt)
	case timectrl.PhaseReceive:
		r.AgeSweeps()
		r.Receive(dt)
		r.Process(dt)
	}
}
