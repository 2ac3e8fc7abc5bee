package model

import "strings"

// Category is a bitmask describing what kind of player an entity is.
// Antennas and track managers filter on it.
type Category uint32

const (
	CategoryAir Category = 1 << iota
	CategoryGround
	CategorySea
	CategorySpace
	CategoryWeapon
	CategoryLifeForm

	CategoryNone Category = 0
	CategoryAll  Category = CategoryAir | CategoryGround | CategorySea | CategorySpace | CategoryWeapon | CategoryLifeForm
)

var categoryNames = []struct {
	c    Category
	name string
}{
	{CategoryAir, "air"},
	{CategoryGround, "ground"},
	{CategorySea, "sea"},
	{CategorySpace, "space"},
	{CategoryWeapon, "weapon"},
	{CategoryLifeForm, "lifeform"},
}

// Has reports whether any bit of other is set in c.
func (c Category) Has(other Category) bool { return c&other != 0 }

func (c Category) String() string {
	if c == CategoryNone {
		return "none"
	}
	var parts []string
	for _, cn := range categoryNames {
		if c&cn.c != 0 {
			parts = append(parts, cn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseCategory converts a "|" or "," separated list ("air|weapon") into a
// Category mask. Unknown names are reported via ok=false.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "none" {
		return CategoryNone, true
	}
	if s == "all" {
		return CategoryAll, true
	}
	var out Category
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		found := false
		for _, cn := range categoryNames {
			if strings.TrimSpace(part) == cn.name {
				out |= cn.c
				found = true
				break
			}
		}
		if !found {
			return CategoryNone, false
		}
	}
	return out, true
}

// MotionSource indicates how a player's motion is determined.
type MotionSource int

const (
	MotionSourceStatic   MotionSource = iota
	MotionSourceVelocity              // constant ECEF velocity
	MotionSourceTLE                   // SGP4 propagation
)

// Vector is an ECEF position (metres) or velocity (m/s).
type Vector struct {
	X float64
	Y float64
	Z float64
}

// Signature describes how a player reflects RF energy.
// Scope: a single aspect-independent radar cross-section.
type Signature struct {
	RCS float64 // m²
}

// Player is one simulated entity: an aircraft, SAM site, vehicle, missile
// or satellite. Sensors are attached to players by the world model.
type Player struct {
	ID       string
	Name     string
	Category Category

	Position Vector  // ECEF metres
	Velocity Vector  // ECEF m/s
	Heading  float64 // radians clockwise from local north

	MotionSource MotionSource
	Signature    Signature

	// Killed players stay in the store for lookups but are skipped by
	// sensors.
	Killed bool
}

// IsActive reports whether the player participates in the simulation.
func (p *Player) IsActive() bool {
	return p != nil && !p.Killed
}
