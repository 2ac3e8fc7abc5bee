package core

import (
	"math"

	"github.com/signalsfoundry/rfsensor-sim/model"
)

// EarthRadiusM is the mean Earth radius used for all simple geometry
// calculations (metres). The world is a sphere; that is adequate for
// sensor horizons and keeps geodetic conversions closed-form.
const EarthRadiusM = 6371000.0

// losMarginM lets sites sitting exactly on the surface see over the horizon
// tangent instead of being masked by rounding.
const losMarginM = 1.0

// Vec3 is an ECEF-style vector in metres (or m/s for velocities).
type Vec3 struct {
	X, Y, Z float64
}

// VecOf converts a model vector.
func VecOf(v model.Vector) Vec3 { return Vec3{X: v.X, Y: v.Y, Z: v.Z} }

// Vector converts back to the model representation.
func (v Vec3) Vector() model.Vector { return model.Vector{X: v.X, Y: v.Y, Z: v.Z} }

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// HasLineOfSight checks whether the straight segment between p1 and p2
// clears the Earth sphere. All positions are ECEF in metres.
func HasLineOfSight(p1, p2 Vec3) bool {
	limit := (EarthRadiusM - losMarginM) * (EarthRadiusM - losMarginM)
	v := p2.Sub(p1)
	a := v.Dot(v)
	if a == 0 {
		return p1.Dot(p1) > limit
	}

	// Closest point on the segment to the Earth's centre.
	t := -p1.Dot(v) / a
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	closest := p1.Add(v.Scale(t))
	return closest.Dot(closest) > limit
}

// GeodeticToECEF converts latitude/longitude (degrees) and altitude above
// the sphere (metres) into ECEF metres.
func GeodeticToECEF(latDeg, lonDeg, altM float64) Vec3 {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	r := EarthRadiusM + altM
	return Vec3{
		X: r * math.Cos(lat) * math.Cos(lon),
		Y: r * math.Cos(lat) * math.Sin(lon),
		Z: r * math.Sin(lat),
	}
}

// ECEFToGeodetic is the inverse of GeodeticToECEF.
func ECEFToGeodetic(p Vec3) (latDeg, lonDeg, altM float64) {
	r := p.Norm()
	if r == 0 {
		return 0, 0, -EarthRadiusM
	}
	latDeg = math.Asin(p.Z/r) * 180 / math.Pi
	lonDeg = math.Atan2(p.Y, p.X) * 180 / math.Pi
	return latDeg, lonDeg, r - EarthRadiusM
}

// ENUBasis returns the local east, north and up unit vectors at observer.
func ENUBasis(observer Vec3) (east, north, up Vec3) {
	lat, lon, _ := ECEFToGeodetic(observer)
	phi := lat * math.Pi / 180
	lam := lon * math.Pi / 180
	east = Vec3{X: -math.Sin(lam), Y: math.Cos(lam)}
	north = Vec3{
		X: -math.Sin(phi) * math.Cos(lam),
		Y: -math.Sin(phi) * math.Sin(lam),
		Z: math.Cos(phi),
	}
	up = Vec3{
		X: math.Cos(phi) * math.Cos(lam),
		Y: math.Cos(phi) * math.Sin(lam),
		Z: math.Sin(phi),
	}
	return east, north, up
}

// ToENU expresses target relative to observer in the observer's local
// east/north/up frame.
func ToENU(observer, target Vec3) Vec3 {
	e, n, u := ENUBasis(observer)
	d := target.Sub(observer)
	return Vec3{X: d.Dot(e), Y: d.Dot(n), Z: d.Dot(u)}
}

// ENUToECEF rotates a local east/north/up vector at observer into ECEF.
// Used for velocities, so no translation is applied.
func ENUToECEF(observer, enu Vec3) Vec3 {
	e, n, u := ENUBasis(observer)
	return e.Scale(enu.X).Add(n.Scale(enu.Y)).Add(u.Scale(enu.Z))
}

// AzElRange returns the bearing of target from observer (radians,
// clockwise from true north in [-π, π]), elevation above the local horizon
// (radians) and slant range (metres).
func AzElRange(observer, target Vec3) (az, el, rng float64) {
	enu := ToENU(observer, target)
	rng = enu.Norm()
	if rng == 0 {
		return 0, 0, 0
	}
	az = math.Atan2(enu.X, enu.Y)
	el = math.Asin(clamp(enu.Z/rng, -1, 1))
	return az, el, rng
}

// RangeRate returns d|target-observer|/dt. Positive values mean the
// target is opening.
func RangeRate(obsPos, obsVel, tgtPos, tgtVel Vec3) float64 {
	los := tgtPos.Sub(obsPos)
	r := los.Norm()
	if r == 0 {
		return 0
	}
	return los.Dot(tgtVel.Sub(obsVel)) / r
}

// ElevationDegrees returns the elevation angle of the target as seen from
// the observer, in degrees. 0° = geometric horizon, 90° = overhead.
func ElevationDegrees(observer, target Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 90
	}
	r := observer.Norm()
	if r == 0 {
		return 90
	}
	zenith := observer.Scale(1 / r)
	cosGamma := clamp(v.Dot(zenith)/vNorm, -1, 1)
	return 90.0 - math.Acos(cosGamma)*180.0/math.Pi
}

// NormalizeAngle wraps a radian angle into [-π, π].
func NormalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
