// Package sim assembles a runnable world from a scenario: players in the
// knowledge base, their motion models, antennas, RF systems and track
// managers, all driven frame by frame through the phase scheduler.
package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/rfsensor-sim/core"
	"github.com/signalsfoundry/rfsensor-sim/internal/config"
	"github.com/signalsfoundry/rfsensor-sim/internal/logging"
	"github.com/signalsfoundry/rfsensor-sim/kb"
	"github.com/signalsfoundry/rfsensor-sim/model"
	"github.com/signalsfoundry/rfsensor-sim/rf"
	"github.com/signalsfoundry/rfsensor-sim/timectrl"
	"github.com/signalsfoundry/rfsensor-sim/track"
	"go.opentelemetry.io/otel/trace"
)

// Metrics is everything the world reports to. observability.SimCollector
// implements it.
type Metrics interface {
	rf.MetricsRecorder
	track.MetricsRecorder
	timectrl.PhaseObserver
	SetPlayers(n int)
}

// World owns every simulated object of one run.
type World struct {
	logger  logging.Logger
	metrics Metrics
	tracer  trace.Tracer
	workers int

	store      *kb.PlayerStore
	propagator *core.Propagator
	clock      *timectrl.TimeController
	scheduler  *timectrl.PhaseScheduler
	tick       time.Duration
	duration   time.Duration

	// immutable after NewWorld
	antennas map[string]map[string]*rf.Antenna
	radars   []*rf.Radar
	jammers  []*rf.Jammer
	rwrs     []*rf.Rwr
	managers []*track.Manager
	tle      map[string][2]string

	missing sync.Map // "player/antenna" lookups already reported

	unsubKill func()
}

// Option customises a World.
type Option func(*World)

func WithLogger(l logging.Logger) Option {
	return func(w *World) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithMetrics reports queue drops, detections, tracks and phase timings.
func WithMetrics(m Metrics) Option {
	return func(w *World) { w.metrics = m }
}

// WithTracer opens one span per frame phase.
func WithTracer(t trace.Tracer) Option {
	return func(w *World) { w.tracer = t }
}

// WithWorkers overrides the scenario's per-phase worker count.
func WithWorkers(n int) Option {
	return func(w *World) {
		if n > 0 {
			w.workers = n
		}
	}
}

// NewWorld validates cfg and builds the world it describes.
func NewWorld(cfg config.Config, opts ...Option) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &World{
		logger:   logging.Noop(),
		workers:  cfg.Simulation.Workers,
		store:    kb.NewPlayerStore(),
		tick:     cfg.Simulation.Tick,
		duration: cfg.Simulation.Duration,
		antennas: make(map[string]map[string]*rf.Antenna),
		tle:      make(map[string][2]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if w.tick <= 0 {
		w.tick = config.DefaultTick
	}

	start := cfg.Simulation.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}
	mode, err := timectrl.ParseMode(cfg.Simulation.Mode)
	if err != nil {
		return nil, err
	}
	w.clock = timectrl.NewTimeController(start, w.tick, mode)
	w.propagator = core.NewPropagator(
		core.WithTLEFetcher(func(p *model.Player) (string, string) {
			lines := w.tle[p.ID]
			return lines[0], lines[1]
		}),
		core.WithPositionUpdater(w.store),
	)

	schedOpts := []timectrl.SchedulerOption{timectrl.WithWorkers(w.workers)}
	if w.metrics != nil {
		schedOpts = append(schedOpts, timectrl.WithPhaseObserver(w.metrics))
	}
	if w.tracer != nil {
		schedOpts = append(schedOpts, timectrl.WithTracer(w.tracer))
	}
	w.scheduler = timectrl.NewPhaseScheduler(schedOpts...)

	if err := w.buildPlayers(cfg.Players); err != nil {
		return nil, err
	}
	w.buildAntennas(cfg.Antennas)
	managers := w.buildTrackManagers(cfg.TrackManagers)
	w.buildRadars(cfg.Radars, managers)
	w.buildJammers(cfg.Jammers)
	w.buildRwrs(cfg.Rwrs, managers)

	// antennas steer before their systems transmit; the phase order
	// already guarantees that, registration order only matters with one
	// worker
	for _, id := range w.playerIDs() {
		for _, name := range sortedKeys(w.antennas[id]) {
			w.scheduler.Register(w.antennas[id][name])
		}
	}
	for _, r := range w.radars {
		w.scheduler.Register(r)
	}
	for _, j := range w.jammers {
		w.scheduler.Register(j)
	}
	for _, rw := range w.rwrs {
		w.scheduler.Register(rw)
	}
	for _, m := range w.managers {
		w.scheduler.Register(m)
	}
	w.scheduler.AddHook(timectrl.PhaseDynamics, w.propagate)
	w.unsubKill = w.store.Subscribe(w.onStoreEvent)

	w.logger.Info(context.Background(), "world built",
		logging.Int("players", w.store.Count()),
		logging.Int("radars", len(w.radars)),
		logging.Int("jammers", len(w.jammers)),
		logging.Int("rwrs", len(w.rwrs)),
		logging.Int("track_managers", len(w.managers)),
	)
	return w, nil
}

func (w *World) buildPlayers(players []config.PlayerConfig) error {
	for _, pc := range players {
		cat, _ := model.ParseCategory(pc.Category)
		pos := core.GeodeticToECEF(pc.Lat, pc.Lon, pc.Alt.Float())
		vel := core.ENUToECEF(pos, core.Vec3{
			X: pc.Velocity.East.Float(),
			Y: pc.Velocity.North.Float(),
			Z: pc.Velocity.Up.Float(),
		})
		p := &model.Player{
			ID:        pc.ID,
			Name:      pc.Name,
			Category:  cat,
			Position:  pos.Vector(),
			Velocity:  vel.Vector(),
			Heading:   core.NormalizeAngle(pc.Heading.Float()),
			Signature: model.Signature{RCS: pc.RCS.Float()},
		}
		switch {
		case pc.TLE[0] != "" && pc.TLE[1] != "":
			p.MotionSource = model.MotionSourceTLE
			w.tle[pc.ID] = pc.TLE
		case !pc.Velocity.IsZero():
			p.MotionSource = model.MotionSourceVelocity
		}
		if err := w.store.AddPlayer(p); err != nil {
			return fmt.Errorf("add player: %w", err)
		}
		if err := w.propagator.AddPlayer(p); err != nil {
			return fmt.Errorf("add player: %w", err)
		}
	}
	return nil
}

func (w *World) buildAntennas(antennas []config.AntennaConfig) {
	for _, ac := range antennas {
		owner := w.store.GetPlayer(ac.Player)
		opts := []rf.AntennaOption{
			rf.WithPlayerSource(w.store),
			rf.WithReceiverLookup(w.Receivers),
			rf.WithAntennaLogger(w.logger.With(logging.String("player", ac.Player))),
			rf.WithMaxRange(ac.MaxRange.Float()),
			rf.WithMaxPlayers(ac.MaxPlayers),
			rf.WithAtmosphericLoss(ac.AtmosphericLoss),
		}
		if ac.Gain.IsSet() {
			opts = append(opts, rf.WithGain(ac.Gain.Float()))
		}
		if w.metrics != nil {
			opts = append(opts, rf.WithAntennaMetrics(w.metrics))
		}
		if ac.Pattern != nil {
			opts = append(opts, rf.WithGainPattern(ac.Pattern.GainPattern(), ac.Pattern.Degrees))
		}
		if ac.Polarization != "" {
			pol, _ := rf.ParsePolarization(ac.Polarization)
			opts = append(opts, rf.WithPolarization(pol))
		}
		if ac.Categories != "" {
			cat, _ := model.ParseCategory(ac.Categories)
			opts = append(opts, rf.WithCategories(cat))
		}
		if ac.PoolSize > 0 {
			opts = append(opts, rf.WithPoolSize(ac.PoolSize))
		}
		if ac.Scan.Mode != "" {
			mode, _ := rf.ParseScanMode(ac.Scan.Mode)
			opts = append(opts, rf.WithScan(mode, ac.Scan.Bars))
		}
		if ac.Scan.Rate.IsSet() {
			opts = append(opts, rf.WithScanRate(ac.Scan.Rate.Float()))
		}
		if ac.Scan.Width.IsSet() {
			opts = append(opts, rf.WithScanWidth(ac.Scan.Width.Float()))
		}

		ant := rf.NewAntenna(ac.Name, owner, opts...)
		if ac.Scan.Target != "" {
			ant.SetTrackTarget(ac.Scan.Target)
		}
		if w.antennas[ac.Player] == nil {
			w.antennas[ac.Player] = make(map[string]*rf.Antenna)
		}
		w.antennas[ac.Player][ac.Name] = ant
	}
}

func (w *World) buildTrackManagers(managers []config.TrackManagerConfig) map[string]*track.Manager {
	ctx := context.Background()
	out := make(map[string]*track.Manager, len(managers))
	for _, tc := range managers {
		kind, _ := track.ParseKind(tc.Kind)
		opts := []track.Option{
			track.WithOwner(tc.Player),
			track.WithLogger(w.logger),
		}
		if w.metrics != nil {
			opts = append(opts, track.WithMetrics(w.metrics))
		}
		if tc.Categories != "" {
			cat, _ := model.ParseCategory(tc.Categories)
			opts = append(opts, track.WithCategories(cat))
		}
		if tc.IntakeSize > 0 {
			opts = append(opts, track.WithIntakeSize(tc.IntakeSize))
		}
		m := track.NewManager(tc.Name, kind, opts...)
		log := w.logger.With(logging.String("track_manager", tc.Name))

		if tc.MaxTracks != nil && !m.SetMaxTracks(*tc.MaxTracks) {
			log.Warn(ctx, "maxTracks rejected; keeping default", logging.Int("value", *tc.MaxTracks))
		}
		if tc.MaxTrackAge != nil && !m.SetMaxTrackAge(tc.MaxTrackAge.Float()) {
			log.Warn(ctx, "maxTrackAge rejected; keeping default", logging.Float64("value", tc.MaxTrackAge.Float()))
		}
		if tc.FirstTrackID != nil && !m.SetFirstTrackID(*tc.FirstTrackID) {
			log.Warn(ctx, "firstTrackId rejected; keeping default", logging.Int("value", *tc.FirstTrackID))
		}
		if tc.Alpha != nil || tc.Beta != nil || tc.Gamma != nil {
			a, b, g := m.Gains()
			if tc.Alpha != nil {
				a = *tc.Alpha
			}
			if tc.Beta != nil {
				b = *tc.Beta
			}
			if tc.Gamma != nil {
				g = *tc.Gamma
			}
			if !m.SetGains(a, b, g) {
				log.Warn(ctx, "filter gains rejected; keeping defaults",
					logging.Float64("alpha", a), logging.Float64("beta", b), logging.Float64("gamma", g))
			}
		}
		m.SetLogTrackUpdates(tc.LogTrackUpdates)

		out[tc.Name] = m
		w.managers = append(w.managers, m)
	}
	return out
}

// applyRf pushes the shared RF parameters into s, logging every rejected
// value.
func (w *World) applyRf(s *rf.RfSystem, rc config.RfConfig) {
	ctx := context.Background()
	set := func(field string, q *config.Quantity, fn func(float64) bool) {
		if q != nil && !fn(q.Float()) {
			s.Logger().Warn(ctx, field+" rejected; keeping previous value", logging.Float64("value", q.Float()))
		}
	}
	set("frequency", rc.Frequency, s.SetFrequency)
	set("bandwidth", rc.Bandwidth, s.SetBandwidth)
	set("bandwidthNoise", rc.BandwidthNoise, s.SetNoiseBandwidth)
	set("powerPeak", rc.PowerPeak, s.SetPeakPower)
	set("noiseFigure", rc.NoiseFigure, s.SetNoiseFigure)
	set("systemTemperature", rc.SystemTemperature, s.SetSystemTemperature)
	set("lossXmit", rc.LossXmit, s.SetTransmitLoss)
	set("lossRecv", rc.LossRecv, s.SetReceiveLoss)
	set("lossSignalProcess", rc.LossSignalProcess, s.SetSignalProcessLoss)
	s.SetEmissionsDisabled(rc.DisableEmissions)
}

func (w *World) systemOptions(rc config.RfConfig) []rf.SystemOption {
	opts := []rf.SystemOption{rf.WithSystemLogger(w.logger.With(logging.String("player", rc.Player)))}
	if w.metrics != nil {
		opts = append(opts, rf.WithSystemMetrics(w.metrics))
	}
	if rc.ReceiveBuffer > 0 {
		opts = append(opts, rf.WithReceiveBuffer(rc.ReceiveBuffer))
	}
	return opts
}

func (w *World) buildRadars(radars []config.RadarConfig, managers map[string]*track.Manager) {
	ctx := context.Background()
	for _, rc := range radars {
		ant := w.Antenna(rc.Player, rc.Antenna)
		if ant == nil {
			continue
		}
		r := rf.NewRadar(rc.Name, w.store.GetPlayer(rc.Player), ant, w.systemOptions(rc.RfConfig)...)
		w.applyRf(r.RfSystem, rc.RfConfig)
		log := r.Logger()

		if !r.SetThreshold(rc.Threshold.Float()) {
			log.Warn(ctx, "threshold rejected", logging.Float64("value", rc.Threshold.Float()))
		}
		if rc.IGain != nil && !r.SetIntegrationGain(rc.IGain.Float()) {
			log.Warn(ctx, "igain rejected", logging.Float64("value", rc.IGain.Float()))
		}
		if rc.MaxRange != nil && !r.SetMaxRange(rc.MaxRange.Float()) {
			log.Warn(ctx, "maxRange rejected", logging.Float64("value", rc.MaxRange.Float()))
		}
		if rc.PulseWidth != nil && !r.SetPulseWidth(rc.PulseWidth.Float()) {
			log.Warn(ctx, "pulseWidth rejected", logging.Float64("value", rc.PulseWidth.Float()))
		}
		if rc.PRF != nil && !r.SetPRF(rc.PRF.Float()) {
			log.Warn(ctx, "prf rejected", logging.Float64("value", rc.PRF.Float()))
		}
		if rc.Policy.Kind != "" {
			kind, _ := rf.ParsePolicyKind(rc.Policy.Kind)
			p := rf.DetectionPolicy{Kind: kind, TargetID: rc.Policy.Target, MinRangeRate: rc.Policy.MinRangeRate.Float()}
			if !r.SetPolicy(p) {
				log.Warn(ctx, "detection policy rejected", logging.String("kind", kind.String()))
			}
		}
		if tm := managers[rc.TrackManager]; tm != nil {
			r.SetTrackManager(tm)
		}
		w.radars = append(w.radars, r)
	}
}

func (w *World) buildJammers(jammers []config.JammerConfig) {
	for _, jc := range jammers {
		ant := w.Antenna(jc.Player, jc.Antenna)
		if ant == nil {
			continue
		}
		j := rf.NewJammer(jc.Name, w.store.GetPlayer(jc.Player), ant, w.systemOptions(jc.RfConfig)...)
		w.applyRf(j.RfSystem, jc.RfConfig)
		w.jammers = append(w.jammers, j)
	}
}

func (w *World) buildRwrs(rwrs []config.RwrConfig, managers map[string]*track.Manager) {
	for _, rc := range rwrs {
		ant := w.Antenna(rc.Player, rc.Antenna)
		if ant == nil {
			continue
		}
		rw := rf.NewRwr(rc.Name, w.store.GetPlayer(rc.Player), ant, w.systemOptions(rc.RfConfig)...)
		w.applyRf(rw.RfSystem, rc.RfConfig)
		if !rw.SetThreshold(rc.Threshold.Float()) {
			rw.Logger().Warn(context.Background(), "threshold rejected", logging.Float64("value", rc.Threshold.Float()))
		}
		if tm := managers[rc.TrackManager]; tm != nil {
			rw.SetTrackManager(tm)
		}
		w.rwrs = append(w.rwrs, rw)
	}
}

// Antenna returns the named antenna on a player. A missing antenna is
// logged once per name and yields nil.
func (w *World) Antenna(playerID, name string) *rf.Antenna {
	if ant := w.antennas[playerID][name]; ant != nil {
		return ant
	}
	key := playerID + "/" + name
	if _, seen := w.missing.LoadOrStore(key, struct{}{}); !seen {
		w.logger.Warn(context.Background(), "antenna not found",
			logging.String("player", playerID), logging.String("antenna", name))
	}
	return nil
}

// Receivers returns every antenna mounted on a player. Antennas use it to
// hand emissions to the illuminated player's receivers.
func (w *World) Receivers(playerID string) []*rf.Antenna {
	byName := w.antennas[playerID]
	if len(byName) == 0 {
		return nil
	}
	out := make([]*rf.Antenna, 0, len(byName))
	for _, name := range sortedKeys(byName) {
		out = append(out, byName[name])
	}
	return out
}

func (w *World) propagate(_ context.Context, _ float64) error {
	if err := w.propagator.UpdatePositions(w.clock.Now()); err != nil {
		return fmt.Errorf("propagate: %w", err)
	}
	if w.metrics != nil {
		w.metrics.SetPlayers(len(w.store.ActivePlayers()))
	}
	return nil
}

func (w *World) onStoreEvent(ev kb.Event) {
	if ev.Type != kb.EventPlayerKilled {
		return
	}
	id := ev.Player.ID
	_ = w.propagator.RemovePlayer(id)
	for _, m := range w.managers {
		m.OnPlayerKilled(id)
	}
	w.logger.Info(context.Background(), "player killed", logging.String("player", id))
}

// KillPlayer removes a player from play and notifies every track manager.
func (w *World) KillPlayer(id string) error {
	return w.store.KillPlayer(id)
}

// OnFrame registers a callback run after every completed frame.
func (w *World) OnFrame(fn func(simTime time.Time)) {
	w.clock.AddListener(fn)
}

// Step runs a single frame.
func (w *World) Step(ctx context.Context) error {
	return w.clock.Run(ctx, w.tick, w.frame)
}

func (w *World) frame(ctx context.Context, _ time.Time) error {
	return w.scheduler.Step(ctx, w.tick.Seconds())
}

// Run steps the world for duration of simulation time, or the scenario
// duration when zero. Real-time worlds pace frames on the wall clock.
func (w *World) Run(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		duration = w.duration
	}
	log := w.logger
	if logging.RunIDFromContext(ctx) == "" {
		ctx, log = logging.WithRunLogger(ctx, w.logger)
	}
	log.Info(ctx, "simulation starting",
		logging.String("duration", duration.String()),
		logging.String("tick", w.tick.String()),
		logging.String("mode", w.clock.Mode.String()),
		logging.Int("frames", int(duration/w.tick)),
	)

	if err := w.clock.Run(ctx, duration, w.frame); err != nil {
		if ctx.Err() == nil {
			log.Error(ctx, "frame failed", logging.Err(err))
		}
		return err
	}
	log.Info(ctx, "simulation finished",
		logging.String("elapsed", w.clock.Elapsed().String()),
		logging.Int("tracks", w.TrackCount()),
	)
	return nil
}

// Close detaches the world from the store.
func (w *World) Close() {
	if w.unsubKill != nil {
		w.unsubKill()
	}
}

func (w *World) Store() *kb.PlayerStore                { return w.store }
func (w *World) Clock() *timectrl.TimeController       { return w.clock }
func (w *World) Scheduler() *timectrl.PhaseScheduler   { return w.scheduler }
func (w *World) Radars() []*rf.Radar                   { return append([]*rf.Radar(nil), w.radars...) }
func (w *World) Jammers() []*rf.Jammer                 { return append([]*rf.Jammer(nil), w.jammers...) }
func (w *World) Rwrs() []*rf.Rwr                       { return append([]*rf.Rwr(nil), w.rwrs...) }
func (w *World) TrackManagers() []*track.Manager       { return append([]*track.Manager(nil), w.managers...) }

// TrackManager returns the named manager or nil.
func (w *World) TrackManager(name string) *track.Manager {
	for _, m := range w.managers {
		if m.Name() == name {
			return m
		}
	}
	return nil
}

// Radar returns the named radar or nil.
func (w *World) Radar(name string) *rf.Radar {
	for _, r := range w.radars {
		if r.Name() == name {
			return r
		}
	}
	return nil
}

// TrackCount sums the live tracks of every manager.
func (w *World) TrackCount() int {
	n := 0
	for _, m := range w.managers {
		n += m.TrackCount()
	}
	return n
}

func (w *World) playerIDs() []string {
	ids := make([]string, 0, len(w.antennas))
	for id := range w.antennas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
