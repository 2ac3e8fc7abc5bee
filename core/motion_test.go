package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/rfsensor-sim/model"
)

type capturingUpdater struct {
	players   map[string]*model.Player
	positions map[string]model.Vector
	calls     map[string]int
}

func (c *capturingUpdater) UpdatePlayerState(id string, pos, vel model.Vector) error {
	if c.positions == nil {
		c.positions = make(map[string]model.Vector)
	}
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.positions[id] = pos
	c.calls[id]++
	if p, ok := c.players[id]; ok {
		p.Position = pos
		p.Velocity = vel
	}
	return nil
}

func (c *capturingUpdater) snapshot(id string) (model.Vector, int) {
	return c.positions[id], c.calls[id]
}

const (
	issTLE1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issTLE2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

func TestStaticMotionModel_NoChange(t *testing.T) {
	m := &StaticMotionModel{}
	p := &model.Player{Position: model.Vector{X: 1, Y: 2, Z: 3}}

	t1 := time.Now().UTC()
	m.UpdatePosition(t1, p)
	m.UpdatePosition(t1.Add(time.Hour), p)
	if p.Position != (model.Vector{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("static motion should not change position, got %#v", p.Position)
	}
}

func TestConstantVelocityModel_Integrates(t *testing.T) {
	m := &ConstantVelocityModel{}
	p := &model.Player{Velocity: model.Vector{X: 100, Y: -10}}

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.UpdatePosition(t0, p)
	if p.Position != (model.Vector{}) {
		t.Fatalf("first update should only latch time, got %+v", p.Position)
	}
	m.UpdatePosition(t0.Add(2*time.Second), p)
	if p.Position != (model.Vector{X: 200, Y: -20}) {
		t.Fatalf("position after 2s = %+v, want {200 -20 0}", p.Position)
	}
}

// We don't assert exact orbital values (those belong to go-satellite);
// we just ensure that positions differ at distinct times and a velocity
// appears after the second update.
func TestOrbitalSGP4MotionModel_ChangesOverTime(t *testing.T) {
	m := NewOrbitalModelFromTLE(issTLE1, issTLE2)
	p := &model.Player{}

	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	m.UpdatePosition(t1, p)
	first := p.Position

	m.UpdatePosition(t1.Add(10*time.Second), p)
	if first == p.Position {
		t.Fatalf("expected orbital position to change over time, got %+v at both times", first)
	}
	speed := VecOf(p.Velocity).Norm()
	if speed < 6000 || speed > 9000 {
		t.Fatalf("LEO ground-relative speed = %v m/s, want roughly 7 km/s", speed)
	}
}

func TestPropagator_AddUpdateAndRemove(t *testing.T) {
	sat := &model.Player{ID: "sat1", MotionSource: model.MotionSourceTLE}
	ground := &model.Player{
		ID:       "ground1",
		Position: model.Vector{X: 1, Y: 2, Z: 3},
	}

	updater := &capturingUpdater{players: map[string]*model.Player{sat.ID: sat, ground.ID: ground}}
	pr := NewPropagator(WithTLEFetcher(func(p *model.Player) (string, string) {
		if p.ID == sat.ID {
			return issTLE1, issTLE2
		}
		return "", ""
	}), WithPositionUpdater(updater))

	if err := pr.AddPlayer(sat); err != nil {
		t.Fatalf("AddPlayer sat: %v", err)
	}
	if err := pr.AddPlayer(ground); err != nil {
		t.Fatalf("AddPlayer ground: %v", err)
	}
	if err := pr.AddPlayer(sat); err == nil {
		t.Fatalf("expected duplicate AddPlayer error")
	}

	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	if err := pr.UpdatePositions(t1); err != nil {
		t.Fatalf("UpdatePositions first tick: %v", err)
	}
	firstSat, _ := updater.snapshot(sat.ID)
	firstGround, groundCalls := updater.snapshot(ground.ID)

	if err := pr.UpdatePositions(t1.Add(5 * time.Minute)); err != nil {
		t.Fatalf("UpdatePositions second tick: %v", err)
	}
	secondSat, _ := updater.snapshot(sat.ID)
	secondGround, groundCalls2 := updater.snapshot(ground.ID)
	if firstSat == secondSat {
		t.Fatalf("expected satellite position to change, got %+v", secondSat)
	}
	if firstGround != secondGround {
		t.Fatalf("static player position should stay constant, got %+v", secondGround)
	}

	if err := pr.RemovePlayer(ground.ID); err != nil {
		t.Fatalf("RemovePlayer: %v", err)
	}
	if err := pr.UpdatePositions(t1.Add(6 * time.Minute)); err != nil {
		t.Fatalf("UpdatePositions after removal: %v", err)
	}
	if _, groundCalls3 := updater.snapshot(ground.ID); groundCalls3 != groundCalls2 || groundCalls2 <= groundCalls {
		t.Fatalf("unexpected ground update calls %d -> %d -> %d", groundCalls, groundCalls2, groundCalls3)
	}
}

func TestPropagator_SkipsKilledPlayers(t *testing.T) {
	p := &model.Player{ID: "dead", Killed: true}
	updater := &capturingUpdater{}
	pr := NewPropagator(WithPositionUpdater(updater))
	if err := pr.AddPlayer(p); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	if err := pr.UpdatePositions(time.Now()); err != nil {
		t.Fatalf("UpdatePositions: %v", err)
	}
	if _, calls := updater.snapshot("dead"); calls != 0 {
		t.Fatalf("killed player propagated %d times", calls)
	}
}
