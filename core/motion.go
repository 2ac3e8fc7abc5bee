package core

import (
	"fmt"
	"sort"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/rfsensor-sim/model"
)

// MotionModel updates a player's kinematic state for a given simulation time.
type MotionModel interface {
	UpdatePosition(simTime time.Time, p *model.Player)
}

// StaticMotionModel leaves the player's position unchanged.
type StaticMotionModel struct{}

// UpdatePosition for static motion does nothing.
func (m *StaticMotionModel) UpdatePosition(simTime time.Time, p *model.Player) {
	// no-op
}

// ConstantVelocityModel moves a player along its ECEF velocity vector.
type ConstantVelocityModel struct {
	last time.Time
}

// UpdatePosition integrates the player's velocity since the previous call.
// The first call only latches the time.
func (m *ConstantVelocityModel) UpdatePosition(simTime time.Time, p *model.Player) {
	if m.last.IsZero() {
		m.last = simTime
		return
	}
	dt := simTime.Sub(m.last).Seconds()
	m.last = simTime
	if dt <= 0 {
		return
	}
	pos := VecOf(p.Position).Add(VecOf(p.Velocity).Scale(dt))
	p.Position = pos.Vector()
}

// OrbitalSGP4MotionModel uses a TLE and SGP4 to update player position.
type OrbitalSGP4MotionModel struct {
	sat  satellite.Satellite
	last time.Time
}

// NewOrbitalModelFromTLE constructs an orbital model from TLE lines.
func NewOrbitalModelFromTLE(line1, line2 string) *OrbitalSGP4MotionModel {
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return &OrbitalSGP4MotionModel{sat: sat}
}

// UpdatePosition propagates the satellite to the given simulation time and
// updates the player's position. go-satellite works in kilometres; players
// are stored in metres. Velocity is the ECEF finite difference between
// consecutive updates so that range rates include Earth rotation.
func (m *OrbitalSGP4MotionModel) UpdatePosition(simTime time.Time, p *model.Player) {
	year, month, day := simTime.Date()
	hour, min, sec := simTime.Clock()

	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	const kmToM = 1000.0
	next := Vec3{X: posECEF.X * kmToM, Y: posECEF.Y * kmToM, Z: posECEF.Z * kmToM}
	if !m.last.IsZero() {
		if dt := simTime.Sub(m.last).Seconds(); dt > 0 {
			p.Velocity = next.Sub(VecOf(p.Position)).Scale(1 / dt).Vector()
		}
	}
	m.last = simTime
	p.Position = next.Vector()
}

// NewMotionModelFor chooses an appropriate MotionModel for the player.
// TLE-sourced players with both lines use SGP4; velocity-sourced players
// integrate their velocity; everything else is static.
func NewMotionModelFor(p *model.Player, tle1, tle2 string) MotionModel {
	switch {
	case p.MotionSource == model.MotionSourceTLE && tle1 != "" && tle2 != "":
		return NewOrbitalModelFromTLE(tle1, tle2)
	case p.MotionSource == model.MotionSourceVelocity:
		return &ConstantVelocityModel{}
	default:
		return &StaticMotionModel{}
	}
}

// PositionUpdater receives propagated player states. kb.PlayerStore
// implements it.
type PositionUpdater interface {
	UpdatePlayerState(id string, pos, vel model.Vector) error
}

// TLEFetcher returns the TLE lines for a player, or empty strings.
type TLEFetcher func(p *model.Player) (string, string)

// Propagator owns one MotionModel per registered player and pushes the
// propagated state to a PositionUpdater every dynamics phase.
type Propagator struct {
	mu      sync.Mutex
	players map[string]*propagated
	tle     TLEFetcher
	updater PositionUpdater
}

type propagated struct {
	player *model.Player
	model  MotionModel
}

// PropagatorOption customises a Propagator.
type PropagatorOption func(*Propagator)

// WithTLEFetcher sets the TLE source used when players are added.
func WithTLEFetcher(f TLEFetcher) PropagatorOption {
	return func(p *Propagator) { p.tle = f }
}

// WithPositionUpdater sets where propagated states are written.
func WithPositionUpdater(u PositionUpdater) PropagatorOption {
	return func(p *Propagator) { p.updater = u }
}

// NewPropagator constructs an empty propagator.
func NewPropagator(opts ...PropagatorOption) *Propagator {
	p := &Propagator{players: make(map[string]*propagated)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddPlayer registers a player. Duplicate IDs are rejected.
func (pr *Propagator) AddPlayer(p *model.Player) error {
	if p == nil {
		return fmt.Errorf("AddPlayer: nil player")
	}
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if _, ok := pr.players[p.ID]; ok {
		return fmt.Errorf("player %q already propagated", p.ID)
	}
	var tle1, tle2 string
	if pr.tle != nil {
		tle1, tle2 = pr.tle(p)
	}
	pr.players[p.ID] = &propagated{player: p, model: NewMotionModelFor(p, tle1, tle2)}
	return nil
}

// RemovePlayer stops propagating a player.
func (pr *Propagator) RemovePlayer(id string) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if _, ok := pr.players[id]; !ok {
		return fmt.Errorf("player %q not propagated", id)
	}
	delete(pr.players, id)
	return nil
}

// Reset drops every registered player.
func (pr *Propagator) Reset() {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.players = make(map[string]*propagated)
}

// UpdatePositions advances every live player to simTime. Each model works
// on a copy of the player; the result is published through the updater so
// that the store stays the single writer.
func (pr *Propagator) UpdatePositions(simTime time.Time) error {
	pr.mu.Lock()
	ids := make([]string, 0, len(pr.players))
	for id := range pr.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	entries := make([]*propagated, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, pr.players[id])
	}
	pr.mu.Unlock()

	for _, e := range entries {
		if !e.player.IsActive() {
			continue
		}
		next := *e.player
		e.model.UpdatePosition(simTime, &next)
		if pr.updater == nil {
			continue
		}
		if err := pr.updater.UpdatePlayerState(next.ID, next.Position, next.Velocity); err != nil {
			return fmt.Errorf("update player %q: %w", next.ID, err)
		}
	}
	return nil
}
