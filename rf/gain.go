package rf

import (
	"math"
	"sort"
)

// GainPattern returns a linear gain factor for a direction expressed as
// offsets from boresight. Angles are in whatever unit the pattern was
// built with; see Antenna's pattern-in-degrees flag.
type GainPattern interface {
	Gain(offAz, offEl float64) float64
}

// Table1D is a pattern over off-boresight angle only. Gains are in dB and
// linearly interpolated; angles outside the table use the edge values.
type Table1D struct {
	Angles []float64
	GainDB []float64
}

// Gain implements GainPattern using the total off-boresight angle.
func (t Table1D) Gain(offAz, offEl float64) float64 {
	off := math.Hypot(offAz, offEl)
	return dbToLinear(interp(t.Angles, t.GainDB, off))
}

// Table2D is a pattern sampled on an azimuth by elevation grid; GainDB is
// indexed [el][az]. Bilinear interpolation, edges clamped.
type Table2D struct {
	Azimuths   []float64
	Elevations []float64
	GainDB     [][]float64
}

func (t Table2D) Gain(offAz, offEl float64) float64 {
	if len(t.Elevations) == 0 || len(t.GainDB) != len(t.Elevations) {
		return 1
	}
	i, frac := locate(t.Elevations, offEl)
	lo := interp(t.Azimuths, t.GainDB[i], offAz)
	if frac == 0 || i+1 >= len(t.GainDB) {
		return dbToLinear(lo)
	}
	hi := interp(t.Azimuths, t.GainDB[i+1], offAz)
	return dbToLinear(lo + (hi-lo)*frac)
}

// EffectiveArea returns the antenna capture area g·λ²/4π in m².
func EffectiveArea(gain, wavelength float64) float64 {
	if gain <= 0 || wavelength <= 0 {
		return 0
	}
	return gain * wavelength * wavelength / (4 * math.Pi)
}

// interp linearly interpolates y over x (ascending), clamping at the ends.
func interp(x, y []float64, v float64) float64 {
	n := len(x)
	if n == 0 || len(y) < n {
		return 0
	}
	i, frac := locate(x, v)
	if frac == 0 || i+1 >= n {
		return y[i]
	}
	return y[i] + (y[i+1]-y[i])*frac
}

// locate returns the lower bracketing index of v in x and the fractional
// position toward the next sample.
func locate(x []float64, v float64) (int, float64) {
	n := len(x)
	if n == 0 || v <= x[0] {
		return 0, 0
	}
	if v >= x[n-1] {
		return n - 1, 0
	}
	j := sort.SearchFloat64s(x, v)
	if x[j] == v {
		return j, 0
	}
	i := j - 1
	span := x[j] - x[i]
	if span <= 0 {
		return i, 0
	}
	return i, (v - x[i]) / span
}

func dbToLinear(db float64) float64 { return math.Pow(10, db/10) }

func linearToDB(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(v)
}
