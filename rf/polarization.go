package rf

import (
	"fmt"
	"strings"
)

// Polarization of a transmitted or received wave.
type Polarization int

const (
	PolarizationNone Polarization = iota
	PolarizationVertical
	PolarizationHorizontal
	PolarizationSlant
	PolarizationRHC
	PolarizationLHC

	numPolarizations
)

var polarizationNames = [numPolarizations]string{
	"none", "vertical", "horizontal", "slant", "rhc", "lhc",
}

func (p Polarization) String() string {
	if p < 0 || p >= numPolarizations {
		return fmt.Sprintf("polarization(%d)", int(p))
	}
	return polarizationNames[p]
}

// ParsePolarization accepts the names printed by String.
func ParsePolarization(s string) (Polarization, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PolarizationNone, nil
	}
	for i, name := range polarizationNames {
		if s == name {
			return Polarization(i), nil
		}
	}
	return PolarizationNone, fmt.Errorf("unknown polarization %q", s)
}

// Rows and columns follow the constant order above. The table is
// symmetric.
var polarizationGain = [numPolarizations][numPolarizations]float64{
	//          none  vert horz slant rhc  lhc
	/* none  */ {1.0, 1.0, 1.0, 1.0, 1.0, 1.0},
	/* vert  */ {1.0, 1.0, 0.0, 0.5, 0.5, 0.5},
	/* horz  */ {1.0, 0.0, 1.0, 0.5, 0.5, 0.5},
	/* slant */ {1.0, 0.5, 0.5, 1.0, 0.5, 0.5},
	/* rhc   */ {1.0, 0.5, 0.5, 0.5, 1.0, 0.0},
	/* lhc   */ {1.0, 0.5, 0.5, 0.5, 0.0, 1.0},
}

// PolarizationGain returns the match factor between a transmit and a
// receive polarization. Out-of-range values are treated as none.
func PolarizationGain(tx, rx Polarization) float64 {
	if tx < 0 || tx >= numPolarizations || rx < 0 || rx >= numPolarizations {
		return 1
	}
	return polarizationGain[tx][rx]
}
