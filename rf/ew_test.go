package rf

import (
	"context"
	"math"
	"testing"

	"github.com/signalsfoundry/rfsensor-sim/model"
	"github.com/signalsfoundry/rfsensor-sim/timectrl"
)

// twoPlayerWorld wires antennas on two players so that each one's
// transmissions reach the other's antennas.
type twoPlayerWorld map[string][]*Antenna

func (w twoPlayerWorld) lookup(id string) []*Antenna { return w[id] }

func TestJammerRaisesRadarJamSignal(t *testing.T) {
	site := playerAt("site", model.CategoryGround, 0, 0, 10)
	jet := playerAt("jet", model.CategoryAir, 0.05, 0, 1000)
	world := twoPlayerWorld{}

	radarAnt := NewAntenna("dish", site, WithGain(100), WithPoolSize(4), WithReceiverLookup(world.lookup))
	radar := NewRadar("radar", site, radarAnt)
	radar.SetFrequency(9e9)
	radar.SetBandwidth(2e6)

	podAnt := NewAntenna("pod", jet, WithGain(10), WithPoolSize(4), WithReceiverLookup(world.lookup))
	jammer := NewJammer("jammer", jet, podAnt)
	jammer.SetFrequency(9e9)
	jammer.SetBandwidth(8e6)
	jammer.SetPeakPower(100)

	world["site"] = []*Antenna{radarAnt}
	world["jet"] = []*Antenna{podAnt}
	podAnt.UpdatePlayersOfInterest([]*model.Player{site})

	jammer.UpdatePhase(context.Background(), timectrl.PhaseTransmit, 0.02)
	jam := radar.JamSignal()
	if !(jam > 0) {
		t.Fatalf("radar should accumulate jamming, got %g", jam)
	}
	if radar.PendingEmissions() != 0 {
		t.Fatalf("noise jamming must not enter the receive buffer")
	}

	if jammer.Transmit(0.02) != 1 {
		t.Fatalf("jammer should reach its one player of interest")
	}
	if got := radar.JamSignal(); math.Abs(got-2*jam) > 1e-9*jam {
		t.Fatalf("second burst should double the jam: %g vs %g", got, 2*jam)
	}

	radar.Receive(0.02)
	if radar.JamSignal() != 0 {
		t.Fatalf("Receive should reset the jam accumulator")
	}

	jammer.SetEmissionsDisabled(true)
	if jammer.Transmit(0.02) != 0 {
		t.Fatalf("disabled jammer must not transmit")
	}
}

func TestRwrInterceptsRadar(t *testing.T) {
	site := playerAt("site", model.CategoryGround, 0, 0, 10)
	jet := playerAt("jet", model.CategoryAir, 0.05, 0, 1000)
	world := twoPlayerWorld{}

	radarAnt := NewAntenna("dish", site, WithGain(1000), WithPoolSize(4), WithReceiverLookup(world.lookup))
	radar := NewRadar("radar", site, radarAnt)
	radar.SetFrequency(9e9)
	radar.SetBandwidth(1e6)
	radar.SetPeakPower(1e5)

	rwrAnt := NewAntenna("rwr-ant", jet, WithGain(1), WithPoolSize(0))
	metrics := newCountingMetrics()
	rwr := NewRwr("rwr", jet, rwrAnt, WithSystemMetrics(metrics))
	rwr.SetFrequency(9e9)
	rwr.SetBandwidth(2e9)
	rwr.SetThreshold(10)
	s := &sink{}
	rwr.SetTrackManager(s)

	world["site"] = []*Antenna{radarAnt}
	world["jet"] = []*Antenna{rwrAnt}
	radarAnt.UpdatePlayersOfInterest([]*model.Player{jet})

	radar.Transmit(0.02)
	if rwr.PendingEmissions() != 1 {
		t.Fatalf("rwr should buffer the radar emission, got %d", rwr.PendingEmissions())
	}
	if n := rwr.Receive(0.02); n != 1 || s.count() != 1 {
		t.Fatalf("intercepts = %d, reports = %d", n, s.count())
	}
	rep := s.reports[0]
	if rep.EmitterID() != "site" {
		t.Fatalf("intercept emitter = %q, want site", rep.EmitterID())
	}
	// the site lies due south of the jet
	if math.Abs(math.Abs(rep.Bearing())-math.Pi) > 1e-3 || rep.Range() != 0 {
		t.Fatalf("intercept bearing %g range %g", rep.Bearing(), rep.Range())
	}
	if metrics.detections != 1 {
		t.Fatalf("detections metric = %d, want 1", metrics.detections)
	}

	// the rwr never hears its own player
	own := NewEmission()
	own.SetFrequency(9e9)
	own.SetTransmitter(NewRfSystem("self", jet))
	rwr.RfReceivedEmission(own, rwrAnt, 1)
	if rwr.PendingEmissions() != 0 {
		t.Fatalf("own-ship emissions must be ignored")
	}

	rwr.SetThreshold(400)
	radar.Transmit(0.02)
	if n := rwr.Receive(0.02); n != 0 {
		t.Fatalf("weak intercepts below threshold should be ignored, got %d", n)
	}
}
