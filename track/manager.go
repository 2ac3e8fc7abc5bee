package track

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/signalsfoundry/rfsensor-sim/core"
	"github.com/signalsfoundry/rfsensor-sim/internal/logging"
	"github.com/signalsfoundry/rfsensor-sim/internal/queue"
	"github.com/signalsfoundry/rfsensor-sim/model"
	"github.com/signalsfoundry/rfsensor-sim/rf"
	"github.com/signalsfoundry/rfsensor-sim/timectrl"
)

// Limits and defaults.
const (
	MaxTrackCap        = 100
	DefaultIntakeSize  = rf.MaxReports
	DefaultMaxTrackAge = 10.0 // s
	DefaultAlpha       = 0.6
	DefaultBeta        = 0.3
	DefaultGamma       = 0.05
	defaultFrameDT     = 1.0 / 50
)

// Queue names used in QueueDrop.
const (
	QueueIntake   = "track_intake"
	QueueFiltered = "track_filtered"
	QueueTracks   = "tracks"
)

// MetricsRecorder receives track manager counters.
type MetricsRecorder interface {
	QueueDrop(sensor, queue string)
	TrackCreated(manager string)
	TrackDropped(manager string)
	ActiveTracks(manager string, n int)
}

type nopMetrics struct{}

func (nopMetrics) QueueDrop(string, string) {}
func (nopMetrics) TrackCreated(string)      {}
func (nopMetrics) TrackDropped(string)      {}
func (nopMetrics) ActiveTracks(string, int) {}

// Manager associates reports with tracks and smooths them. NewReport may
// be called concurrently by any number of sensors; Process runs once per
// frame in the track phase.
type Manager struct {
	name       string
	kind       Kind
	categories model.Category
	ownerID    string
	logger     logging.Logger
	metrics    MetricsRecorder

	paramMu         sync.RWMutex
	maxTracks       int
	maxTrackAge     float64
	alpha           float64
	beta            float64
	gamma           float64
	logTrackUpdates bool

	intake *queue.Ring[Report]

	trackMu      sync.Mutex
	tracks       []*Track
	firstTrackID int
	nextTrackID  int
	clock        float64
}

// Option configures a Manager.
type Option func(*Manager)

// WithOwner names the player carrying the manager. Killing that player
// clears every track.
func WithOwner(playerID string) Option {
	return func(m *Manager) { m.ownerID = playerID }
}

// WithCategories overrides the kind's default target filter.
func WithCategories(c model.Category) Option {
	return func(m *Manager) { m.categories = c }
}

func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithMetrics(r MetricsRecorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// WithIntakeSize overrides the intake queue capacity, capped at
// DefaultIntakeSize.
func WithIntakeSize(n int) Option {
	return func(m *Manager) { m.intake = queue.NewRing[Report](min(n, DefaultIntakeSize)) }
}

// NewManager returns a manager of the given kind with default limits and
// gains. Use the setters to change them.
func NewManager(name string, kind Kind, opts ...Option) *Manager {
	m := &Manager{
		name:         name,
		kind:         kind,
		categories:   kind.Categories(),
		logger:       logging.Noop(),
		metrics:      nopMetrics{},
		maxTracks:    MaxTrackCap,
		maxTrackAge:  DefaultMaxTrackAge,
		alpha:        DefaultAlpha,
		beta:         DefaultBeta,
		gamma:        DefaultGamma,
		firstTrackID: 1,
		nextTrackID:  1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.intake == nil {
		m.intake = queue.NewRing[Report](DefaultIntakeSize)
	}
	m.logger = m.logger.With(logging.String("track_manager", name), logging.String("kind", kind.String()))
	return m
}

func (m *Manager) Name() string { return m.name }
func (m *Manager) Kind() Kind { return m.kind }

// --- parameters ---

// SetMaxTracks limits the track list; 1..MaxTrackCap.
func (m *Manager) SetMaxTracks(n int) bool {
	if n < 1 || n > MaxTrackCap {
		return false
	}
	m.paramMu.Lock()
	m.maxTracks = n
	m.paramMu.Unlock()
	return true
}

func (m *Manager) MaxTracks() int {
	m.paramMu.RLock()
	defer m.paramMu.RUnlock()
	return m.maxTracks
}

// SetMaxTrackAge sets how long a track may coast without reports (> 0 s).
func (m *Manager) SetMaxTrackAge(s float64) bool {
	if !(s > 0) || math.IsInf(s, 0) {
		return false
	}
	m.paramMu.Lock()
	m.maxTrackAge = s
	m.paramMu.Unlock()
	return true
}

func (m *Manager) MaxTrackAge() float64 {
	m.paramMu.RLock()
	defer m.paramMu.RUnlock()
	return m.maxTrackAge
}

// SetGains sets the α, β and γ smoothing gains. α must lie in (0, 1];
// β and γ in [0, 1].
func (m *Manager) SetGains(alpha, beta, gamma float64) bool {
	if !(alpha > 0 && alpha <= 1) || !(beta >= 0 && beta <= 1) || !(gamma >= 0 && gamma <= 1) {
		return false
	}
	m.paramMu.Lock()
	m.alpha, m.beta, m.gamma = alpha, beta, gamma
	m.paramMu.Unlock()
	return true
}

func (m *Manager) Gains() (alpha, beta, gamma float64) {
	m.paramMu.RLock()
	defer m.paramMu.RUnlock()
	return m.alpha, m.beta, m.gamma
}

func (m *Manager) SetLogTrackUpdates(on bool) {
	m.paramMu.Lock()
	m.logTrackUpdates = on
	m.paramMu.Unlock()
}

// SetFirstTrackID sets the starting track ID (≥ 0). Once a track has been
// numbered the next ID never moves backwards.
func (m *Manager) SetFirstTrackID(id int) bool {
	if id < 0 {
		return false
	}
	m.trackMu.Lock()
	issued := m.nextTrackID != m.firstTrackID
	m.firstTrackID = id
	if !issued || id > m.nextTrackID {
		m.nextTrackID = id
	}
	m.trackMu.Unlock()
	return true
}

// FirstTrackID returns the configured starting track ID.
func (m *Manager) FirstTrackID() int {
	m.trackMu.Lock()
	defer m.trackMu.Unlock()
	return m.firstTrackID
}

// NextTrackID returns the ID the next new track will get.
func (m *Manager) NextTrackID() int {
	m.trackMu.Lock()
	defer m.trackMu.Unlock()
	return m.nextTrackID
}

// --- intake ---

// IsType reports whether em is a report this manager tracks.
func (m *Manager) IsType(em *rf.Emission) bool {
	if em == nil {
		return false
	}
	if m.kind == KindRWR {
		return em.EmitterID() != ""
	}
	tgt := em.Target()
	return tgt != nil && tgt.Category.Has(m.categories)
}

// NewReport copies em into the intake queue. It returns false when the
// report is filtered out or the queue is full.
func (m *Manager) NewReport(em *rf.Emission, sn float64) bool {
	if !m.IsType(em) {
		m.metrics.QueueDrop(m.name, QueueFiltered)
		return false
	}
	m.trackMu.Lock()
	now := m.clock
	m.trackMu.Unlock()
	if !m.intake.Put(Report{Emission: *em, SN: sn, Time: now}) {
		m.metrics.QueueDrop(m.name, QueueIntake)
		return false
	}
	return true
}

// GetReport pops the oldest queued report.
func (m *Manager) GetReport() (Report, bool) {
	return m.intake.Get()
}

// PendingReports returns the intake queue length.
func (m *Manager) PendingReports() int { return m.intake.Len() }

// IntakeCapacity returns the size of the report queue.
func (m *Manager) IntakeCapacity() int { return m.intake.Cap() }

// --- tracks ---

// AddTrack appends t if the list is below maxTracks.
func (m *Manager) AddTrack(t *Track) bool {
	if t == nil {
		return false
	}
	limit := m.MaxTracks()
	m.trackMu.Lock()
	defer m.trackMu.Unlock()
	if len(m.tracks) >= limit {
		return false
	}
	if t.UUID == "" {
		t.UUID = uuid.NewString()
	}
	m.tracks = append(m.tracks, t)
	return true
}

// MakeMatrixA returns the constant-acceleration transition matrix for a
// step of dt seconds. A zero step uses one 50 Hz frame.
func MakeMatrixA(dt float64) *mat.Dense {
	if dt == 0 {
		dt = defaultFrameDT
	}
	return mat.NewDense(3, 3, []float64{
		1, dt, dt * dt / 2,
		0, 1, dt,
		0, 0, 1,
	})
}

// MakeMatrixA returns the package-level MakeMatrixA(dt).
func (m *Manager) MakeMatrixA(dt float64) *mat.Dense { return MakeMatrixA(dt) }

type trackLog struct {
	created bool
	t       Track
}

// Process ages every track by dt, applies the queued reports and drops
// tracks that have coasted longer than maxTrackAge.
func (m *Manager) Process(dt float64) {
	if dt < 0 || math.IsNaN(dt) {
		dt = 0
	}
	m.paramMu.RLock()
	maxTracks, maxAge := m.maxTracks, m.maxTrackAge
	alpha, beta, gamma := m.alpha, m.beta, m.gamma
	logUpdates := m.logTrackUpdates
	m.paramMu.RUnlock()

	var reports []Report
	for {
		r, ok := m.GetReport()
		if !ok {
			break
		}
		reports = append(reports, r)
	}

	var (
		logs    []trackLog
		created int
		dropped int
		full    int
	)
	m.trackMu.Lock()
	m.clock += dt
	for _, t := range m.tracks {
		t.Age += dt
		t.SinceUpdate += dt
	}
	for i := range reports {
		rep := &reports[i]
		key := m.keyOf(&rep.Emission)
		t := m.findLocked(key)
		if t == nil {
			if len(m.tracks) >= maxTracks {
				full++
				continue
			}
			t = m.newTrackLocked(key, rep)
			created++
			if logUpdates {
				logs = append(logs, trackLog{created: true, t: *t})
			}
			continue
		}
		m.updateLocked(t, rep, alpha, beta, gamma)
		if logUpdates {
			logs = append(logs, trackLog{t: *t})
		}
	}
	kept := m.tracks[:0]
	for _, t := range m.tracks {
		if t.SinceUpdate > maxAge {
			dropped++
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(m.tracks); i++ {
		m.tracks[i] = nil
	}
	m.tracks = kept
	active := len(m.tracks)
	m.trackMu.Unlock()

	for i := 0; i < created; i++ {
		m.metrics.TrackCreated(m.name)
	}
	for i := 0; i < dropped; i++ {
		m.metrics.TrackDropped(m.name)
	}
	for i := 0; i < full; i++ {
		m.metrics.QueueDrop(m.name, QueueTracks)
	}
	m.metrics.ActiveTracks(m.name, active)

	ctx := context.Background()
	for _, l := range logs {
		msg := "track updated"
		if l.created {
			msg = "track created"
		}
		m.logger.Info(ctx, msg,
			logging.Int("track_id", l.t.ID),
			logging.String("target", l.t.TargetID),
			logging.Float64("range_m", l.t.Range),
			logging.Float64("bearing_deg", l.t.Bearing*180/math.Pi),
			logging.Float64("sn_db", l.t.SN),
			logging.Int("updates", l.t.Updates),
		)
	}
}

// keyOf returns the identity reports are associated by.
func (m *Manager) keyOf(em *rf.Emission) string {
	if m.kind == KindRWR {
		return em.EmitterID()
	}
	return em.TargetID()
}

func (m *Manager) findLocked(key string) *Track {
	for _, t := range m.tracks {
		if t.TargetID == key {
			return t
		}
	}
	return nil
}

// measuredPosition converts the report's range and angles into an ECEF
// position relative to where the emission was sent from.
func measuredPosition(em *rf.Emission) core.Vec3 {
	origin := core.VecOf(em.Origin())
	r, az, el := em.Range(), em.Bearing(), em.Elevation()
	enu := core.Vec3{
		X: r * math.Cos(el) * math.Sin(az),
		Y: r * math.Cos(el) * math.Cos(az),
		Z: r * math.Sin(el),
	}
	return origin.Add(core.ENUToECEF(origin, enu))
}

// losVelocity spreads the measured range rate along the line of sight.
func losVelocity(em *rf.Emission, pos core.Vec3) core.Vec3 {
	los := pos.Sub(core.VecOf(em.Origin()))
	n := los.Norm()
	if n == 0 {
		return core.Vec3{}
	}
	return los.Scale(em.RangeRate() / n)
}

func (m *Manager) newTrackLocked(key string, rep *Report) *Track {
	em := &rep.Emission
	t := &Track{
		ID:       m.nextTrackID,
		UUID:     uuid.NewString(),
		TargetID: key,
		Updates:  1,
	}
	m.nextTrackID++
	setMeasurement(t, rep)
	if !t.AngleOnly() {
		pos := measuredPosition(em)
		t.Position = pos.Vector()
		t.Velocity = losVelocity(em, pos).Vector()
	}
	m.tracks = append(m.tracks, t)
	return t
}

func setMeasurement(t *Track, rep *Report) {
	em := &rep.Emission
	t.Range = em.Range()
	t.Azimuth = em.Azimuth()
	t.Bearing = em.Bearing()
	t.Elevation = em.Elevation()
	t.RangeRate = em.RangeRate()
	t.SN = rep.SN
}

// updateLocked applies one α-β-γ step: predict with Matrix A over the
// time since the last update, then correct by the position residual.
// Angle-only reports smooth the direction instead.
func (m *Manager) updateLocked(t *Track, rep *Report, alpha, beta, gamma float64) {
	dt := t.SinceUpdate
	if dt <= 0 {
		dt = defaultFrameDT
	}
	t.Updates++
	t.SinceUpdate = 0
	em := &rep.Emission

	if em.Range() <= 0 {
		bearing := core.NormalizeAngle(t.Bearing + alpha*core.NormalizeAngle(em.Bearing()-t.Bearing))
		az := core.NormalizeAngle(t.Azimuth + alpha*core.NormalizeAngle(em.Azimuth()-t.Azimuth))
		el := t.Elevation + alpha*(em.Elevation()-t.Elevation)
		setMeasurement(t, rep)
		t.Bearing, t.Azimuth, t.Elevation = bearing, az, el
		return
	}
	if t.AngleOnly() {
		// first ranged report on an angle-only track
		pos := measuredPosition(em)
		setMeasurement(t, rep)
		t.Position = pos.Vector()
		t.Velocity = losVelocity(em, pos).Vector()
		t.Acceleration = model.Vector{}
		return
	}

	// rows are position, velocity, acceleration; columns x, y, z
	state := mat.NewDense(3, 3, []float64{
		t.Position.X, t.Position.Y, t.Position.Z,
		t.Velocity.X, t.Velocity.Y, t.Velocity.Z,
		t.Acceleration.X, t.Acceleration.Y, t.Acceleration.Z,
	})
	var pred mat.Dense
	pred.Mul(MakeMatrixA(dt), state)

	meas := measuredPosition(em)
	z := [3]float64{meas.X, meas.Y, meas.Z}
	var out [3][3]float64
	for axis := 0; axis < 3; axis++ {
		p, v, a := pred.At(0, axis), pred.At(1, axis), pred.At(2, axis)
		r := z[axis] - p
		out[0][axis] = p + alpha*r
		out[1][axis] = v + beta*r/dt
		out[2][axis] = a + 2*gamma*r/(dt*dt)
	}
	t.Position = vec(out[0])
	t.Velocity = vec(out[1])
	t.Acceleration = vec(out[2])
	setMeasurement(t, rep)
}

func vec(v [3]float64) model.Vector {
	return model.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// ClearTracksAndQueues drops every queued report and every track. Safe to
// call repeatedly.
func (m *Manager) ClearTracksAndQueues() {
	m.intake.Drain(nil)
	m.trackMu.Lock()
	for i := range m.tracks {
		m.tracks[i] = nil
	}
	m.tracks = m.tracks[:0]
	m.trackMu.Unlock()
	m.metrics.ActiveTracks(m.name, 0)
}

// OnPlayerKilled clears everything when the manager's own player dies and
// otherwise drops the dead player's tracks.
func (m *Manager) OnPlayerKilled(playerID string) {
	if playerID == "" {
		return
	}
	if playerID == m.ownerID {
		m.ClearTracksAndQueues()
		return
	}
	dropped := 0
	m.trackMu.Lock()
	kept := m.tracks[:0]
	for _, t := range m.tracks {
		if t.TargetID == playerID {
			dropped++
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(m.tracks); i++ {
		m.tracks[i] = nil
	}
	m.tracks = kept
	active := len(m.tracks)
	m.trackMu.Unlock()

	for i := 0; i < dropped; i++ {
		m.metrics.TrackDropped(m.name)
	}
	if dropped > 0 {
		m.metrics.ActiveTracks(m.name, active)
	}
}

// GetTrackList fills buf with copies of up to limit tracks and returns how
// many were written.
func (m *Manager) GetTrackList(buf []*Track, limit int) int {
	m.trackMu.Lock()
	defer m.trackMu.Unlock()
	n := len(m.tracks)
	if limit < n {
		n = limit
	}
	if len(buf) < n {
		n = len(buf)
	}
	if n < 0 {
		n = 0
	}
	for i := 0; i < n; i++ {
		cp := *m.tracks[i]
		buf[i] = &cp
	}
	return n
}

// Tracks returns a snapshot of every track.
func (m *Manager) Tracks() []Track {
	m.trackMu.Lock()
	defer m.trackMu.Unlock()
	out := make([]Track, len(m.tracks))
	for i, t := range m.tracks {
		out[i] = *t
	}
	return out
}

// TrackCount returns the number of live tracks.
func (m *Manager) TrackCount() int {
	m.trackMu.Lock()
	defer m.trackMu.Unlock()
	return len(m.tracks)
}

// UpdatePhase runs Process during the track phase.
func (m *Manager) UpdatePhase(_ context.Context, phase timectrl.Phase, dt float64) {
	if phase == timectrl.PhaseTrack {
		m.Process(dt)
	}
}
