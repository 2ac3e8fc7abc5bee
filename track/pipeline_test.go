package track_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/rfsensor-sim/core"
	"github.com/signalsfoundry/rfsensor-sim/model"
	"github.com/signalsfoundry/rfsensor-sim/rf"
	"github.com/signalsfoundry/rfsensor-sim/timectrl"
	"github.com/signalsfoundry/rfsensor-sim/track"
)

// A ground radar paints a jet 5 km due north with a 15 dB return and
// hands it to an air track manager at the end of the scan bar.
func TestRadarToTrackManager(t *testing.T) {
	const (
		rng      = 5000.0
		maxRange = 10000.0
		wantSI   = 15.0
		gain     = 1000.0
		freq     = 10e9
		rcs      = 5.0
	)
	sitePos := core.GeodeticToECEF(0, 0, 10)
	jetPos := sitePos.Add(core.ENUToECEF(sitePos, core.Vec3{Y: rng}))

	site := &model.Player{ID: "site", Category: model.CategoryGround, Position: sitePos.Vector()}
	jet := &model.Player{
		ID:        "jet",
		Category:  model.CategoryAir,
		Position:  jetPos.Vector(),
		Signature: model.Signature{RCS: rcs},
	}

	ant := rf.NewAntenna("dish", site, rf.WithGain(gain), rf.WithPoolSize(4))
	radar := rf.NewRadar("radar", site, ant)
	require.True(t, radar.SetFrequency(freq))
	require.True(t, radar.SetMaxRange(maxRange))
	require.True(t, radar.SetThreshold(10))

	// peak power giving exactly wantSI against thermal noise
	loss := 1 / (4 * math.Pi * rng * rng)
	echoGain := gain * rf.EffectiveArea(gain, rf.SpeedOfLight/freq)
	power := radar.RfNoise() * math.Pow(10, wantSI/10) / (loss * loss * echoGain * rcs)
	require.True(t, radar.SetPeakPower(power))

	tm := track.NewManager("air", track.KindAir, track.WithOwner(site.ID))
	radar.SetTrackManager(tm)
	ant.UpdatePlayersOfInterest([]*model.Player{jet})

	ctx := context.Background()
	const dt = 0.02
	ant.UpdatePhase(ctx, timectrl.PhaseDynamics, dt)
	radar.UpdatePhase(ctx, timectrl.PhaseTransmit, dt)
	radar.UpdatePhase(ctx, timectrl.PhaseReceive, dt)

	require.Equal(t, 1, tm.PendingReports(), "one report at end of scan")
	tm.UpdatePhase(ctx, timectrl.PhaseTrack, dt)

	tracks := tm.Tracks()
	require.Len(t, tracks, 1)
	tr := tracks[0]
	assert.Equal(t, "jet", tr.TargetID)
	assert.InDelta(t, rng, tr.Range, 1e-6)
	assert.InDelta(t, wantSI, tr.SN, 1e-6)
	assert.InDelta(t, 0, core.VecOf(tr.Position).DistanceTo(jetPos), 1e-3)

	sw := radar.Sweeps()
	assert.Equal(t, 60, rf.SweepIndex(tr.Azimuth))
	assert.Equal(t, 64, rf.RangeIndex(tr.Range, maxRange))
	assert.InDelta(t, wantSI/rf.SweepFullScaleDB, sw.Intensity[60][64], 1e-6)

	// the pool slot is recycled on the next transmit, the track keeps its copy
	ant.UpdatePlayersOfInterest(nil)
	radar.Transmit(dt)
	assert.Equal(t, 0, ant.InUseCount())
	assert.InDelta(t, rng, tm.Tracks()[0].Range, 1e-6)
}
