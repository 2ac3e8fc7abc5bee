// Package track turns sensor reports into smoothed tracks. A Manager
// accepts reports from radars (air or ground-moving targets) or from
// warning receivers (emitters), associates them with existing tracks by
// identity and updates the kinematic state with an α-β-γ filter driven by
// a constant-acceleration transition matrix.
package track

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/rfsensor-sim/model"
	"github.com/signalsfoundry/rfsensor-sim/rf"
)

// Kind selects which reports a manager accepts and how it keys tracks.
type Kind int

const (
	// KindAir tracks air vehicles and weapons by target identity.
	KindAir Kind = iota
	// KindGMTI tracks ground and sea movers by target identity.
	KindGMTI
	// KindRWR tracks emitters by transmitter identity, angles only.
	KindRWR
)

func (k Kind) String() string {
	switch k {
	case KindAir:
		return "air"
	case KindGMTI:
		return "gmti"
	case KindRWR:
		return "rwr"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts the names printed by String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "air":
		return KindAir, nil
	case "gmti", "ground":
		return KindGMTI, nil
	case "rwr", "esm":
		return KindRWR, nil
	}
	return KindAir, fmt.Errorf("unknown track manager kind %q", s)
}

// Categories returns the default target filter for the kind.
func (k Kind) Categories() model.Category {
	switch k {
	case KindAir:
		return model.CategoryAir | model.CategoryWeapon
	case KindGMTI:
		return model.CategoryGround | model.CategorySea
	default:
		return model.CategoryAll
	}
}

// Report is one detection as handed to a manager. It holds a copy of the
// emission, so it stays valid after the emitting antenna recycles its
// pool.
type Report struct {
	Emission rf.Emission
	SN       float64 // dB
	Time     float64 // manager clock when received, s
}

// Track is a smoothed target estimate. Kinematic state is ECEF.
type Track struct {
	ID       int
	UUID     string
	TargetID string

	Position     model.Vector
	Velocity     model.Vector
	Acceleration model.Vector

	// Last measurement.
	Range     float64 // m, zero for angle-only tracks
	Azimuth   float64 // rad, relative to the sensor platform
	Bearing   float64 // rad, true
	Elevation float64 // rad
	RangeRate float64 // m/s, positive opening
	SN        float64 // dB

	Age         float64 // s since the creation frame
	SinceUpdate float64 // s since the last report
	Updates     int
}

// AngleOnly reports whether the track carries no range information.
func (t *Track) AngleOnly() bool { return t.Range <= 0 }
