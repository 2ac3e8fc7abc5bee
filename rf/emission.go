package rf

import (
	"math"

	"github.com/signalsfoundry/rfsensor-sim/model"
)

// SpeedOfLight in m/s.
const SpeedOfLight = 299792458.0

// ECM tags what kind of electronic countermeasure an emission carries.
type ECM int

const (
	ECMOff ECM = iota
	ECMNoise
	ECMDeception
)

func (e ECM) String() string {
	switch e {
	case ECMOff:
		return "off"
	case ECMNoise:
		return "noise"
	case ECMDeception:
		return "deception"
	default:
		return "unknown"
	}
}

// SlotState tracks where a pooled emission currently lives.
type SlotState int

const (
	SlotFree SlotState = iota
	SlotInFlight
)

// Transmitter is the system an emission came from. Echoes are handed back
// to it through RfReceivedEmission.
type Transmitter interface {
	Receiver
	Name() string
	Owner() *model.Player
}

// Receiver accepts emissions arriving through one of its antennas.
type Receiver interface {
	RfReceivedEmission(em *Emission, ant *Antenna, gain float64)
}

// Emission is one transmitted pulse train and the losses it accumulated on
// the way to a target.
type Emission struct {
	frequency  float64 // Hz
	wavelength float64 // m
	bandwidth  float64 // Hz
	pulseWidth float64 // s
	prf        float64 // Hz
	pulses     int

	power        float64 // W
	gain         float64 // transmit antenna gain toward the target
	rangeLoss    float64 // one way
	atmosLoss    float64
	transmitLoss float64
	rcs          float64 // m²

	polarization Polarization
	ecm          ECM

	transmitter Transmitter
	antenna     *Antenna
	target      *model.Player
	origin      model.Vector // transmitter position when sent

	rng       float64 // m
	rangeRate float64 // m/s, positive opening
	azimuth   float64 // rad, relative to the transmitter's heading
	bearing   float64 // rad, true
	elevation float64 // rad
	maxRange  float64 // m

	returnRequested bool
	state           SlotState
}

// NewEmission returns a cleared emission.
func NewEmission() *Emission {
	em := &Emission{}
	em.Clear()
	return em
}

// Clear resets every field to its neutral value so the emission can go
// back into a pool.
func (e *Emission) Clear() {
	*e = Emission{
		gain:         1,
		rangeLoss:    1,
		atmosLoss:    1,
		transmitLoss: 1,
		pulses:       1,
		state:        e.state,
	}
}

func (e *Emission) Frequency() float64 { return e.frequency }
func (e *Emission) Wavelength() float64 { return e.wavelength }

// SetFrequency sets the carrier frequency and derives the wavelength.
// Non-positive values clear both.
func (e *Emission) SetFrequency(hz float64) {
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		e.frequency, e.wavelength = 0, 0
		return
	}
	e.frequency = hz
	e.wavelength = SpeedOfLight / hz
}

// SetWavelength sets the wavelength and derives the frequency.
func (e *Emission) SetWavelength(m float64) {
	if m <= 0 || math.IsNaN(m) || math.IsInf(m, 0) {
		e.frequency, e.wavelength = 0, 0
		return
	}
	e.wavelength = m
	e.frequency = SpeedOfLight / m
}

func (e *Emission) Bandwidth() float64 { return e.bandwidth }
func (e *Emission) SetBandwidth(hz float64) { e.bandwidth = math.Max(0, hz) }
func (e *Emission) PulseWidth() float64 { return e.pulseWidth }
func (e *Emission) SetPulseWidth(s float64) { e.pulseWidth = math.Max(0, s) }
func (e *Emission) PRF() float64 { return e.prf }
func (e *Emission) SetPRF(hz float64) { e.prf = math.Max(0, hz) }
func (e *Emission) Pulses() int { return e.pulses }
func (e *Emission) Power() float64 { return e.power }
func (e *Emission) SetPower(w float64) { e.power = math.Max(0, w) }
func (e *Emission) Gain() float64 { return e.gain }
func (e *Emission) SetGain(g float64) { e.gain = math.Max(0, g) }
func (e *Emission) RangeLoss() float64 { return e.rangeLoss }
func (e *Emission) AtmosphericLoss() float64 { return e.atmosLoss }
func (e *Emission) TransmitLoss() float64 { return e.transmitLoss }
func (e *Emission) RCS() float64 { return e.rcs }
func (e *Emission) SetRCS(m2 float64) { e.rcs = math.Max(0, m2) }
func (e *Emission) Polarization() Polarization { return e.polarization }
func (e *Emission) ECM() ECM { return e.ecm }
func (e *Emission) SetECM(t ECM) { e.ecm = t }
func (e *Emission) Transmitter() Transmitter { return e.transmitter }
func (e *Emission) Antenna() *Antenna { return e.antenna }
func (e *Emission) Target() *model.Player { return e.target }
func (e *Emission) Origin() model.Vector { return e.origin }
func (e *Emission) Range() float64 { return e.rng }
func (e *Emission) RangeRate() float64 { return e.rangeRate }
func (e *Emission) Azimuth() float64 { return e.azimuth }
func (e *Emission) Bearing() float64 { return e.bearing }
func (e *Emission) Elevation() float64 { return e.elevation }
func (e *Emission) MaxRange() float64 { return e.maxRange }
func (e *Emission) ReturnRequested() bool { return e.returnRequested }
func (e *Emission) State() SlotState { return e.state }

// SetPulses sets the pulse count for this frame; at least one pulse is
// always sent.
func (e *Emission) SetPulses(n int) {
	if n < 1 {
		n = 1
	}
	e.pulses = n
}

// SetAtmosphericLoss sets the attenuation factor (≥ 1).
func (e *Emission) SetAtmosphericLoss(l float64) { e.atmosLoss = math.Max(1, l) }

// SetTransmitLoss sets the transmit chain loss factor (≥ 1).
func (e *Emission) SetTransmitLoss(l float64) { e.transmitLoss = math.Max(1, l) }

func (e *Emission) SetPolarization(p Polarization) { e.polarization = p }
func (e *Emission) SetTransmitter(t Transmitter) { e.transmitter = t }
func (e *Emission) SetTarget(p *model.Player) { e.target = p }
func (e *Emission) SetOrigin(v model.Vector) { e.origin = v }
func (e *Emission) SetRangeRate(v float64) { e.rangeRate = v }
func (e *Emission) SetMaxRange(m float64) { e.maxRange = math.Max(0, m) }
func (e *Emission) SetReturnRequested(b bool) { e.returnRequested = b }

// SetAngles stores the target direction: azimuth relative to the
// transmitter's heading, true bearing and elevation, all in radians.
func (e *Emission) SetAngles(azimuth, bearing, elevation float64) {
	e.azimuth, e.bearing, e.elevation = azimuth, bearing, elevation
}

// SetRange stores the slant range and recomputes the one-way spreading
// loss 1/(4πr²). The factor never exceeds 1, so very short or
// non-positive ranges mean "no loss" rather than gain or Inf.
func (e *Emission) SetRange(r float64) {
	e.rng = r
	if r <= 0 {
		e.rangeLoss = 1
		return
	}
	e.rangeLoss = math.Min(1, 1/(4*math.Pi*r*r))
}

// DopplerShift returns the two-way Doppler shift in Hz.
func (e *Emission) DopplerShift() float64 {
	if e.wavelength <= 0 {
		return 0
	}
	return -2 * e.rangeRate / e.wavelength
}

// TargetID returns the illuminated player's ID, or "" when unknown.
func (e *Emission) TargetID() string {
	if e.target == nil {
		return ""
	}
	return e.target.ID
}

// EmitterID returns the transmitting player's ID, or "" when unknown.
func (e *Emission) EmitterID() string {
	if e.transmitter == nil {
		return ""
	}
	if owner := e.transmitter.Owner(); owner != nil {
		return owner.ID
	}
	return ""
}
