package track

import (
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/rfsensor-sim/core"
	"github.com/signalsfoundry/rfsensor-sim/model"
	"github.com/signalsfoundry/rfsensor-sim/rf"
)

var site = core.GeodeticToECEF(0, 0, 10)

type fakeTransmitter struct{ owner *model.Player }

func (f *fakeTransmitter) Name() string { return "radar" }

func (f *fakeTransmitter) Owner() *model.Player { return f.owner }

func (f *fakeTransmitter) RfReceivedEmission(*rf.Emission, *rf.Antenna, float64) {}

// measurement builds a report emission seen from site.
func measurement(target *model.Player, rng, bearing, el, rangeRate float64) *rf.Emission {
	em := rf.NewEmission()
	em.SetTarget(target)
	em.SetOrigin(site.Vector())
	em.SetRange(rng)
	em.SetAngles(bearing, bearing, el)
	em.SetRangeRate(rangeRate)
	em.SetTransmitter(&fakeTransmitter{owner: &model.Player{ID: "site"}})
	return em
}

type recordingMetrics struct {
	mu      sync.Mutex
	drops   map[string]int
	created int
	dropped int
	active  int
}

func (r *recordingMetrics) QueueDrop(_, queue string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drops == nil {
		r.drops = make(map[string]int)
	}
	r.drops[queue]++
}
func (r *recordingMetrics) TrackCreated(string) { r.mu.Lock(); r.created++; r.mu.Unlock() }
func (r *recordingMetrics) TrackDropped(string) { r.mu.Lock(); r.dropped++; r.mu.Unlock() }
func (r *recordingMetrics) ActiveTracks(_ string, n int) {
	r.mu.Lock()
	r.active = n
	r.mu.Unlock()
}

func TestMakeMatrixA(t *testing.T) {
	a := MakeMatrixA(2)
	want := [][]float64{{1, 2, 2}, {0, 1, 2}, {0, 0, 1}}
	for i := range want {
		for j := range want[i] {
			assert.Equal(t, want[i][j], a.At(i, j), "A[%d][%d]", i, j)
		}
	}

	def := MakeMatrixA(0)
	assert.InDelta(t, 1.0/50, def.At(0, 1), 1e-15)
	assert.InDelta(t, 0.5/2500, def.At(0, 2), 1e-15)
}

func TestNewReportFiltersByKind(t *testing.T) {
	jet := &model.Player{ID: "jet", Category: model.CategoryAir}
	truck := &model.Player{ID: "truck", Category: model.CategoryGround}
	metrics := &recordingMetrics{}

	air := NewManager("air", KindAir, WithMetrics(metrics))
	assert.True(t, air.NewReport(measurement(jet, 5000, 0, 0.1, 0), 15))
	assert.False(t, air.NewReport(measurement(truck, 5000, 0, 0, 0), 15))
	assert.False(t, air.NewReport(nil, 15))
	assert.Equal(t, 1, air.PendingReports())
	assert.Equal(t, 2, metrics.drops[QueueFiltered])

	gmti := NewManager("gmti", KindGMTI)
	assert.True(t, gmti.NewReport(measurement(truck, 5000, 0, 0, 0), 15))
	assert.False(t, gmti.NewReport(measurement(jet, 5000, 0, 0, 0), 15))

	rwr := NewManager("rwr", KindRWR)
	assert.True(t, rwr.NewReport(measurement(nil, 0, 1, 0, 0), 30))
}

func TestNewReportCopiesEmission(t *testing.T) {
	jet := &model.Player{ID: "jet", Category: model.CategoryAir}
	m := NewManager("air", KindAir)
	em := measurement(jet, 5000, 0, 0.1, 0)
	require.True(t, m.NewReport(em, 15))

	em.Clear()
	rep, ok := m.GetReport()
	require.True(t, ok)
	assert.Equal(t, "jet", rep.Emission.TargetID())
	assert.Equal(t, 5000.0, rep.Emission.Range())
	assert.Equal(t, 15.0, rep.SN)

	_, ok = m.GetReport()
	assert.False(t, ok)
}

func TestIntakeQueueBounded(t *testing.T) {
	jet := &model.Player{ID: "jet", Category: model.CategoryAir}
	metrics := &recordingMetrics{}
	m := NewManager("air", KindAir, WithIntakeSize(2), WithMetrics(metrics))
	for i := 0; i < 3; i++ {
		m.NewReport(measurement(jet, 5000, 0, 0.1, 0), 15)
	}
	assert.Equal(t, 2, m.PendingReports())
	assert.Equal(t, 1, metrics.drops[QueueIntake])
}

func TestIntakeSizeCapped(t *testing.T) {
	m := NewManager("air", KindAir, WithIntakeSize(10*DefaultIntakeSize))
	assert.Equal(t, DefaultIntakeSize, m.IntakeCapacity())
	assert.Equal(t, 4, NewManager("air", KindAir, WithIntakeSize(4)).IntakeCapacity())
}

func TestProcessCreatesAndUpdatesTracks(t *testing.T) {
	jet := &model.Player{ID: "jet", Category: model.CategoryAir}
	metrics := &recordingMetrics{}
	m := NewManager("air", KindAir, WithMetrics(metrics))
	require.True(t, m.SetFirstTrackID(500))

	m.NewReport(measurement(jet, 5000, 0, 0.1, -100), 15)
	m.Process(0.02)

	tracks := m.Tracks()
	require.Len(t, tracks, 1)
	tr := tracks[0]
	assert.Equal(t, 500, tr.ID)
	assert.Equal(t, "jet", tr.TargetID)
	assert.NotEmpty(t, tr.UUID)
	assert.Equal(t, 1, tr.Updates)
	assert.Equal(t, 501, m.NextTrackID())
	assert.Equal(t, 1, metrics.created)
	assert.Equal(t, 1, metrics.active)

	// the measured position sits 5 km from the site
	pos := core.VecOf(tr.Position)
	assert.InDelta(t, 5000, pos.DistanceTo(site), 1e-6)
	// closing range rate seeds a velocity toward the site
	assert.InDelta(t, 100, core.VecOf(tr.Velocity).Norm(), 1e-6)

	m.NewReport(measurement(jet, 4998, 0, 0.1, -100), 16)
	m.Process(0.02)
	tracks = m.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, 500, tracks[0].ID)
	assert.Equal(t, 2, tracks[0].Updates)
	assert.Equal(t, 4998.0, tracks[0].Range)
	assert.Equal(t, 16.0, tracks[0].SN)
	assert.Zero(t, tracks[0].SinceUpdate)
	// age counts from the frame that created the track
	assert.InDelta(t, 0.02, tracks[0].Age, 1e-12)
}

func TestSetFirstTrackIDNeverReusesIDs(t *testing.T) {
	a := &model.Player{ID: "a", Category: model.CategoryAir}
	b := &model.Player{ID: "b", Category: model.CategoryAir}
	m := NewManager("air", KindAir)
	require.True(t, m.SetFirstTrackID(7))
	assert.Equal(t, 7, m.NextTrackID())

	m.NewReport(measurement(a, 5000, 0, 0.1, 0), 15)
	m.Process(0.02)

	require.True(t, m.SetFirstTrackID(1))
	assert.Equal(t, 1, m.FirstTrackID())
	assert.Equal(t, 8, m.NextTrackID())

	m.NewReport(measurement(b, 6000, 0.5, 0.1, 0), 15)
	m.Process(0.02)
	ids := map[int]string{}
	for _, tr := range m.Tracks() {
		_, dup := ids[tr.ID]
		require.False(t, dup, "duplicate track id %d", tr.ID)
		ids[tr.ID] = tr.TargetID
	}
	assert.Equal(t, map[int]string{7: "a", 8: "b"}, ids)

	require.True(t, m.SetFirstTrackID(100))
	assert.Equal(t, 100, m.NextTrackID())
}

func TestAlphaBetaGammaFollowsConstantVelocity(t *testing.T) {
	jet := &model.Player{ID: "jet", Category: model.CategoryAir}
	m := NewManager("air", KindAir)
	require.True(t, m.SetGains(0.5, 0.4, 0.1))

	const dt = 0.1
	speed := -150.0 // closing
	rng := 20000.0
	for i := 0; i < 200; i++ {
		m.NewReport(measurement(jet, rng, 0.3, 0.05, speed), 20)
		m.Process(dt)
		rng += speed * dt
	}
	tr := m.Tracks()[0]
	truth := measuredPosition(measurement(jet, rng-speed*dt, 0.3, 0.05, speed))
	assert.InDelta(t, 0, core.VecOf(tr.Position).DistanceTo(truth), 1.0, "smoothed position should converge")
	assert.InDelta(t, math.Abs(speed), core.VecOf(tr.Velocity).Norm(), 1.0, "smoothed speed should converge")
}

func TestStaleTracksAreDropped(t *testing.T) {
	jet := &model.Player{ID: "jet", Category: model.CategoryAir}
	metrics := &recordingMetrics{}
	m := NewManager("air", KindAir, WithMetrics(metrics))
	require.True(t, m.SetMaxTrackAge(1))

	m.NewReport(measurement(jet, 5000, 0, 0.1, 0), 15)
	m.Process(0.5)
	m.Process(0.5)
	m.Process(0.5)
	assert.Equal(t, 1, m.TrackCount(), "age equal to the limit is kept")
	m.Process(0.5)
	assert.Equal(t, 0, m.TrackCount())
	assert.Equal(t, 1, metrics.dropped)
}

func TestMaxTracks(t *testing.T) {
	metrics := &recordingMetrics{}
	m := NewManager("air", KindAir, WithMetrics(metrics))
	assert.False(t, m.SetMaxTracks(0))
	assert.False(t, m.SetMaxTracks(MaxTrackCap+1))
	require.True(t, m.SetMaxTracks(2))

	for _, id := range []string{"a", "b", "c"} {
		m.NewReport(measurement(&model.Player{ID: id, Category: model.CategoryAir}, 5000, 0, 0.1, 0), 15)
	}
	m.Process(0.02)
	assert.Equal(t, 2, m.TrackCount())
	assert.Equal(t, 1, metrics.drops[QueueTracks])

	assert.False(t, m.AddTrack(&Track{ID: 99}))
	m.ClearTracksAndQueues()
	assert.True(t, m.AddTrack(&Track{ID: 99}))
	assert.NotEmpty(t, m.Tracks()[0].UUID)
}

func TestClearTracksAndQueuesIdempotent(t *testing.T) {
	jet := &model.Player{ID: "jet", Category: model.CategoryAir}
	m := NewManager("air", KindAir)
	m.NewReport(measurement(jet, 5000, 0, 0.1, 0), 15)
	m.Process(0.02)
	m.NewReport(measurement(jet, 5000, 0, 0.1, 0), 15)

	for i := 0; i < 2; i++ {
		m.ClearTracksAndQueues()
		assert.Equal(t, 0, m.TrackCount(), "pass %d", i)
		assert.Equal(t, 0, m.PendingReports(), "pass %d", i)
	}
}

func TestOnPlayerKilled(t *testing.T) {
	m := NewManager("air", KindAir, WithOwner("site"))
	for _, id := range []string{"a", "b"} {
		m.NewReport(measurement(&model.Player{ID: id, Category: model.CategoryAir}, 5000, 0, 0.1, 0), 15)
	}
	m.Process(0.02)
	require.Equal(t, 2, m.TrackCount())

	m.OnPlayerKilled("a")
	ids := make([]string, 0)
	for _, tr := range m.Tracks() {
		ids = append(ids, tr.TargetID)
	}
	assert.Empty(t, cmp.Diff([]string{"b"}, ids))

	m.NewReport(measurement(&model.Player{ID: "c", Category: model.CategoryAir}, 5000, 0, 0.1, 0), 15)
	m.OnPlayerKilled("site")
	assert.Equal(t, 0, m.TrackCount())
	assert.Equal(t, 0, m.PendingReports())
}

func TestGetTrackList(t *testing.T) {
	m := NewManager("air", KindAir)
	for _, id := range []string{"a", "b", "c"} {
		m.NewReport(measurement(&model.Player{ID: id, Category: model.CategoryAir}, 5000, 0, 0.1, 0), 15)
	}
	m.Process(0.02)

	buf := make([]*Track, 5)
	assert.Equal(t, 2, m.GetTrackList(buf, 2))
	assert.Equal(t, 3, m.GetTrackList(buf, 10))
	assert.Equal(t, 1, m.GetTrackList(buf[:1], 10))
	assert.Equal(t, 0, m.GetTrackList(buf, -1))

	// handles are copies
	m.GetTrackList(buf, 10)
	buf[0].TargetID = "mutated"
	assert.NotEqual(t, "mutated", m.Tracks()[0].TargetID)
}

func TestRwrTracksAreAngleOnly(t *testing.T) {
	m := NewManager("rwr", KindRWR)
	require.True(t, m.SetGains(0.5, 0, 0))

	m.NewReport(measurement(nil, 0, 0.2, 0, 0), 30)
	m.Process(0.02)
	m.NewReport(measurement(nil, 0, 0.4, 0, 0), 30)
	m.Process(0.02)

	tracks := m.Tracks()
	require.Len(t, tracks, 1)
	tr := tracks[0]
	assert.Equal(t, "site", tr.TargetID)
	assert.True(t, tr.AngleOnly())
	assert.InDelta(t, 0.3, tr.Bearing, 1e-12)
	assert.Equal(t, model.Vector{}, tr.Position)
}

func TestSetterValidation(t *testing.T) {
	m := NewManager("air", KindAir)
	assert.False(t, m.SetGains(0, 0.1, 0.1))
	assert.False(t, m.SetGains(0.5, -1, 0.1))
	assert.False(t, m.SetMaxTrackAge(0))
	assert.False(t, m.SetFirstTrackID(-1))
	a, b, g := m.Gains()
	assert.Equal(t, []float64{DefaultAlpha, DefaultBeta, DefaultGamma}, []float64{a, b, g})
	assert.Equal(t, DefaultMaxTrackAge, m.MaxTrackAge())

	k, err := ParseKind("GMTI")
	require.NoError(t, err)
	assert.Equal(t, KindGMTI, k)
	_, err = ParseKind("sonar")
	assert.Error(t, err)
}
