package rf

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/signalsfoundry/rfsensor-sim/core"
	"github.com/signalsfoundry/rfsensor-sim/internal/logging"
	"github.com/signalsfoundry/rfsensor-sim/internal/queue"
	"github.com/signalsfoundry/rfsensor-sim/model"
	"github.com/signalsfoundry/rfsensor-sim/timectrl"
)

// MaxEmissions bounds an antenna's emission pools and a system's receive
// buffer.
const MaxEmissions = 1000

// PlayerSource supplies the world's players. kb.PlayerStore satisfies it.
type PlayerSource interface {
	ActivePlayers() []*model.Player
	GetPlayer(id string) *model.Player
}

// ReceiverLookup returns the antennas mounted on a player.
type ReceiverLookup func(playerID string) []*Antenna

// Antenna points a beam, decides which players are worth propagating
// emissions to, and owns the emission pools used for that.
type Antenna struct {
	name    string
	owner   *model.Player
	logger  logging.Logger
	metrics MetricsRecorder

	gain           float64
	pattern        GainPattern
	patternDegrees bool
	polarization   Polarization
	categories     model.Category
	maxRange       float64
	maxPlayers     int
	atmosDBPerKm   float64
	poolSize       int

	players   PlayerSource
	receivers ReceiverLookup

	sysMu  sync.RWMutex
	system Receiver

	free  *queue.Stack[*Emission]
	inUse *queue.Ring[*Emission]

	poiMu sync.RWMutex
	poi   []*model.Player

	scanMu    sync.Mutex
	scan      scanState
	listeners []ScanListener

	noSystemOnce sync.Once
}

// AntennaOption configures an Antenna.
type AntennaOption func(*Antenna)

// WithGain sets the boresight gain (linear, > 0).
func WithGain(g float64) AntennaOption {
	return func(a *Antenna) {
		if g > 0 {
			a.gain = g
		}
	}
}

// WithGainPattern installs a pattern. degrees selects whether the pattern
// tables are indexed in degrees or radians.
func WithGainPattern(p GainPattern, degrees bool) AntennaOption {
	return func(a *Antenna) {
		a.pattern = p
		a.patternDegrees = degrees
	}
}

func WithPolarization(p Polarization) AntennaOption {
	return func(a *Antenna) { a.polarization = p }
}

// WithCategories limits the players of interest to the given categories.
func WithCategories(c model.Category) AntennaOption {
	return func(a *Antenna) { a.categories = c }
}

// WithMaxRange drops players farther than m metres. Zero means unlimited.
func WithMaxRange(m float64) AntennaOption {
	return func(a *Antenna) { a.maxRange = math.Max(0, m) }
}

// WithMaxPlayers keeps only the n closest players. Zero means unlimited.
func WithMaxPlayers(n int) AntennaOption {
	return func(a *Antenna) {
		if n >= 0 {
			a.maxPlayers = n
		}
	}
}

// WithAtmosphericLoss applies a one-way attenuation in dB per kilometre.
func WithAtmosphericLoss(dbPerKm float64) AntennaOption {
	return func(a *Antenna) { a.atmosDBPerKm = math.Max(0, dbPerKm) }
}

// WithPoolSize shrinks this antenna's pools below MaxEmissions. Larger
// values are capped.
func WithPoolSize(n int) AntennaOption {
	return func(a *Antenna) {
		if n >= 0 {
			a.poolSize = min(n, MaxEmissions)
		}
	}
}

func WithPlayerSource(src PlayerSource) AntennaOption {
	return func(a *Antenna) { a.players = src }
}

func WithReceiverLookup(fn ReceiverLookup) AntennaOption {
	return func(a *Antenna) { a.receivers = fn }
}

// WithScan selects the scan mode and, for raster scans, the bar count.
func WithScan(mode ScanMode, bars int) AntennaOption {
	return func(a *Antenna) {
		a.scan.mode = mode
		if validBars(bars) {
			a.scan.bars = bars
		}
	}
}

// WithScanRate sets the beam slew rate in rad/s.
func WithScanRate(rate float64) AntennaOption {
	return func(a *Antenna) {
		if rate > 0 {
			a.scan.rate = rate
		}
	}
}

// WithScanWidth sets the raster half width in radians.
func WithScanWidth(w float64) AntennaOption {
	return func(a *Antenna) {
		if w > 0 {
			a.scan.width = w
		}
	}
}

func WithAntennaLogger(l logging.Logger) AntennaOption {
	return func(a *Antenna) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithAntennaMetrics(m MetricsRecorder) AntennaOption {
	return func(a *Antenna) {
		if m != nil {
			a.metrics = m
		}
	}
}

// NewAntenna creates an antenna mounted on owner. The free pool is filled
// up front; transmitting never allocates.
func NewAntenna(name string, owner *model.Player, opts ...AntennaOption) *Antenna {
	a := &Antenna{
		name:       name,
		owner:      owner,
		logger:     logging.Noop(),
		metrics:    nopMetrics{},
		gain:       1,
		categories: model.CategoryAll,
		poolSize:   MaxEmissions,
		scan:       newScanState(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.scan.elevation = a.scan.barElevation(a.scan.bar)
	a.logger = a.logger.With(logging.String("antenna", name))
	a.free = queue.NewStack[*Emission](a.poolSize)
	a.inUse = queue.NewRing[*Emission](a.poolSize)
	for i := 0; i < a.poolSize; i++ {
		a.free.Push(NewEmission())
	}
	return a
}

func (a *Antenna) Name() string { return a.name }
func (a *Antenna) Owner() *model.Player { return a.owner }
func (a *Antenna) Polarization() Polarization { return a.polarization }
func (a *Antenna) BoresightGain() float64 { return a.gain }
func (a *Antenna) FreeCount() int { return a.free.Len() }
func (a *Antenna) InUseCount() int { return a.inUse.Len() }

// AttachSystem sets the system that receives emissions arriving through
// this antenna.
func (a *Antenna) AttachSystem(r Receiver) {
	a.sysMu.Lock()
	a.system = r
	a.sysMu.Unlock()
}

// System returns the attached receiver, or nil.
func (a *Antenna) System() Receiver {
	a.sysMu.RLock()
	defer a.sysMu.RUnlock()
	return a.system
}

// SetReceiverLookup replaces the lookup used to find the antennas of an
// illuminated player.
func (a *Antenna) SetReceiverLookup(fn ReceiverLookup) {
	a.sysMu.Lock()
	a.receivers = fn
	a.sysMu.Unlock()
}

func (a *Antenna) receiverLookup() ReceiverLookup {
	a.sysMu.RLock()
	defer a.sysMu.RUnlock()
	return a.receivers
}

// Gain returns the linear gain toward a direction offset from boresight
// by offAz and offEl radians.
func (a *Antenna) Gain(offAz, offEl float64) float64 {
	if a.pattern == nil {
		return a.gain
	}
	if a.patternDegrees {
		offAz *= 180 / math.Pi
		offEl *= 180 / math.Pi
	}
	return a.gain * a.pattern.Gain(offAz, offEl)
}

// PolarizationGain returns the match factor against an incoming
// polarization.
func (a *Antenna) PolarizationGain(p Polarization) float64 {
	return PolarizationGain(p, a.polarization)
}

// --- scanning ---

// AddScanListener registers l for bar start and end events.
func (a *Antenna) AddScanListener(l ScanListener) {
	if l == nil {
		return
	}
	a.scanMu.Lock()
	a.listeners = append(a.listeners, l)
	a.scanMu.Unlock()
}

// ScanMode returns the current scan mode.
func (a *Antenna) ScanMode() ScanMode {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()
	return a.scan.mode
}

// SetScanMode changes the scan mode and restarts at bar 1.
func (a *Antenna) SetScanMode(mode ScanMode) bool {
	if mode < ScanManual || mode > ScanTrack {
		return false
	}
	a.scanMu.Lock()
	a.scan.mode = mode
	a.scan.bar = 1
	a.scan.elevation = a.scan.barElevation(1)
	a.scanMu.Unlock()
	return true
}

// SetBars sets the raster bar count; only 1, 2 and 4 are accepted.
func (a *Antenna) SetBars(n int) bool {
	if !validBars(n) {
		return false
	}
	a.scanMu.Lock()
	a.scan.bars = n
	a.scan.bar = 1
	a.scan.elevation = a.scan.barElevation(1)
	a.scanMu.Unlock()
	return true
}

// Bars returns the raster bar count and the current bar.
func (a *Antenna) Bars() (bars, current int) {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()
	return a.scan.bars, a.scan.bar
}

// SetTrackTarget designates the player the beam follows in track mode.
func (a *Antenna) SetTrackTarget(playerID string) {
	a.scanMu.Lock()
	a.scan.trackID = playerID
	a.scanMu.Unlock()
}

// Beam returns the beam azimuth (relative to the owner's heading) and
// elevation in radians.
func (a *Antenna) Beam() (az, el float64) {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()
	return a.scan.azimuth, a.scan.elevation
}

// SetBeam points the beam. Scanning modes move it again on the next
// update.
func (a *Antenna) SetBeam(az, el float64) {
	a.scanMu.Lock()
	a.scan.azimuth = az
	a.scan.elevation = el
	a.scan.elCenter = el
	a.scanMu.Unlock()
}

// UpdateScan advances the beam by dt seconds and notifies listeners of
// any bar transitions. Listeners run without the scan lock held.
func (a *Antenna) UpdateScan(dt float64) {
	a.scanMu.Lock()
	events := a.scan.advance(dt, a.directionTo)
	listeners := append([]ScanListener(nil), a.listeners...)
	a.scanMu.Unlock()

	for _, ev := range events {
		for _, l := range listeners {
			if ev.start {
				l.OnStartScanEvent(a, ev.bar)
			} else {
				l.OnEndScanEvent(a, ev.bar)
			}
		}
	}
}

// directionTo resolves the owner-relative direction of a player for
// track mode.
func (a *Antenna) directionTo(id string) (az, el float64, ok bool) {
	if a.players == nil || a.owner == nil || id == "" {
		return 0, 0, false
	}
	tgt := a.players.GetPlayer(id)
	if !tgt.IsActive() {
		return 0, 0, false
	}
	bearing, el, rng := core.AzElRange(core.VecOf(a.owner.Position), core.VecOf(tgt.Position))
	if rng == 0 {
		return 0, 0, false
	}
	return core.NormalizeAngle(bearing - a.owner.Heading), el, true
}

// --- players of interest ---

// UpdatePlayersOfInterest rebuilds the transmit audience from players:
// other live players of a configured category, in range and above the
// earth's horizon, closest first.
func (a *Antenna) UpdatePlayersOfInterest(players []*model.Player) {
	if a.owner == nil {
		return
	}
	own := core.VecOf(a.owner.Position)
	type candidate struct {
		p   *model.Player
		rng float64
	}
	cands := make([]candidate, 0, len(players))
	for _, p := range players {
		if p == nil || p.ID == a.owner.ID || !p.IsActive() {
			continue
		}
		if a.categories != model.CategoryAll && !p.Category.Has(a.categories) {
			continue
		}
		pos := core.VecOf(p.Position)
		rng := own.DistanceTo(pos)
		if a.maxRange > 0 && rng > a.maxRange {
			continue
		}
		if !core.HasLineOfSight(own, pos) {
			continue
		}
		cands = append(cands, candidate{p: p, rng: rng})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].rng < cands[j].rng })
	if a.maxPlayers > 0 && len(cands) > a.maxPlayers {
		cands = cands[:a.maxPlayers]
	}

	poi := make([]*model.Player, len(cands))
	for i, c := range cands {
		poi[i] = c.p
	}
	a.poiMu.Lock()
	a.poi = poi
	a.poiMu.Unlock()
}

// PlayersOfInterest returns a copy of the current transmit audience.
func (a *Antenna) PlayersOfInterest() []*model.Player {
	a.poiMu.RLock()
	defer a.poiMu.RUnlock()
	return append([]*model.Player(nil), a.poi...)
}

// --- emission pools ---

// recycle returns every in-flight emission to the free stack. The in-use
// lock is released before the free stack is touched.
func (a *Antenna) recycle() {
	a.inUse.Drain(func(em *Emission) {
		em.Clear()
		em.state = SlotFree
		a.free.Push(em)
	})
}

// RfTransmit propagates a copy of tmpl to every player of interest and
// returns how many copies were sent. Emissions handed out by the previous
// call are recycled first, so pointers stay valid until the next
// RfTransmit on this antenna.
func (a *Antenna) RfTransmit(tmpl *Emission) int {
	a.recycle()
	if tmpl == nil || !a.owner.IsActive() {
		return 0
	}

	own := core.VecOf(a.owner.Position)
	ownVel := core.VecOf(a.owner.Velocity)
	beamAz, beamEl := a.Beam()
	lookup := a.receiverLookup()

	sent := 0
	for _, tgt := range a.PlayersOfInterest() {
		if !tgt.IsActive() {
			continue
		}
		em, ok := a.free.Pop()
		if !ok {
			a.metrics.QueueDrop(a.metricsName(tmpl), QueueEmissionPool)
			continue
		}
		*em = *tmpl
		em.state = SlotInFlight
		em.antenna = a
		em.target = tgt
		em.origin = a.owner.Position

		pos := core.VecOf(tgt.Position)
		bearing, el, rng := core.AzElRange(own, pos)
		relAz := core.NormalizeAngle(bearing - a.owner.Heading)
		em.SetRange(rng)
		em.SetRangeRate(core.RangeRate(own, ownVel, pos, core.VecOf(tgt.Velocity)))
		em.SetAngles(relAz, bearing, el)
		em.SetGain(a.Gain(core.NormalizeAngle(relAz-beamAz), el-beamEl))
		em.SetPolarization(a.polarization)
		atmos := a.atmosphericLoss(rng)
		em.SetAtmosphericLoss(atmos)

		if !a.inUse.Put(em) {
			em.Clear()
			em.state = SlotFree
			a.free.Push(em)
			a.metrics.QueueDrop(a.metricsName(tmpl), QueueEmissionPool)
			continue
		}
		sent++

		if lookup != nil {
			for _, rx := range lookup(tgt.ID) {
				if rx != nil && rx != a {
					rx.ReceiveEmission(em)
				}
			}
		}

		if em.ReturnRequested() && em.Transmitter() != nil {
			a.returnEcho(em, tgt.Signature.RCS, atmos*atmos)
		}
	}
	return sent
}

// returnEcho sends the transmitter its own pooled copy of em so receivers
// at the target keep the one-way values.
func (a *Antenna) returnEcho(em *Emission, rcs, roundTripLoss float64) {
	echo, ok := a.free.Pop()
	if !ok {
		a.metrics.QueueDrop(a.metricsName(em), QueueEmissionPool)
		return
	}
	*echo = *em
	if !a.inUse.Put(echo) {
		echo.Clear()
		echo.state = SlotFree
		a.free.Push(echo)
		a.metrics.QueueDrop(a.metricsName(em), QueueEmissionPool)
		return
	}
	echo.SetRCS(rcs)
	echo.SetAtmosphericLoss(roundTripLoss)
	txGain := echo.Gain()
	echo.Transmitter().RfReceivedEmission(echo, a, txGain*EffectiveArea(txGain, echo.Wavelength()))
}

// ReceiveEmission is called on an antenna of an illuminated player. It
// applies the receive gain toward the emitter and the polarization match,
// then forwards the emission to the attached system.
func (a *Antenna) ReceiveEmission(em *Emission) {
	if em == nil {
		return
	}
	sys := a.System()
	if sys == nil {
		a.noSystemOnce.Do(func() {
			a.logger.Warn(context.Background(), "antenna has no attached system; dropping emissions")
		})
		return
	}
	rxGain := a.gain
	if a.owner != nil {
		bearing, el, _ := core.AzElRange(core.VecOf(a.owner.Position), core.VecOf(em.Origin()))
		beamAz, beamEl := a.Beam()
		relAz := core.NormalizeAngle(bearing - a.owner.Heading)
		rxGain = a.Gain(core.NormalizeAngle(relAz-beamAz), el-beamEl)
	}
	rxGain *= a.PolarizationGain(em.Polarization())
	sys.RfReceivedEmission(em, a, em.Gain()*EffectiveArea(rxGain, em.Wavelength()))
}

func (a *Antenna) atmosphericLoss(rng float64) float64 {
	if a.atmosDBPerKm <= 0 || rng <= 0 {
		return 1
	}
	return dbToLinear(a.atmosDBPerKm * rng / 1000)
}

func (a *Antenna) metricsName(tmpl *Emission) string {
	if t := tmpl.Transmitter(); t != nil {
		return t.Name()
	}
	return a.name
}

// UpdatePhase moves the beam and refreshes the players of interest during
// the dynamics phase.
func (a *Antenna) UpdatePhase(_ context.Context, phase timectrl.Phase, dt float64) {
	if phase != timectrl.PhaseDynamics {
		return
	}
	a.UpdateScan(dt)
	if a.players != nil {
		a.UpdatePlayersOfInterest(a.players.ActivePlayers())
	}
}
