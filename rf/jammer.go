package rf

import (
	"context"
	"math"

	"github.com/signalsfoundry/rfsensor-sim/model"
	"github.com/signalsfoundry/rfsensor-sim/timectrl"
)

// Jammer radiates barrage noise through its antenna every frame. Its
// emissions are tagged ECMNoise and never request a return, so receivers
// fold them into their jam accumulator rather than scoring them.
type Jammer struct {
	*RfSystem
	template *Emission
}

// NewJammer creates a noise jammer on owner transmitting through ant.
func NewJammer(name string, owner *model.Player, ant *Antenna, opts ...SystemOption) *Jammer {
	j := &Jammer{
		RfSystem: NewRfSystem(name, owner, opts...),
		template: NewEmission(),
	}
	j.SetReceiverEnabled(false)
	if ant != nil {
		j.setAntenna(ant)
		ant.AttachSystem(j)
	}
	return j
}

// RfReceivedEmission ignores everything; a jammer has no receiver.
func (j *Jammer) RfReceivedEmission(*Emission, *Antenna, float64) {}

// Transmit sends this frame's noise emission and returns how many players
// it reached.
func (j *Jammer) Transmit(dt float64) int {
	if !j.IsTransmitting() {
		return 0
	}
	ant := j.Antenna()
	if ant == nil {
		j.warnNoAntenna()
		return 0
	}
	em := j.template
	em.Clear()
	em.SetFrequency(j.Frequency())
	em.SetBandwidth(j.Bandwidth())
	em.SetPulseWidth(math.Max(dt, 0))
	em.SetPower(j.PeakPower())
	em.SetTransmitLoss(j.TransmitLoss())
	em.SetTransmitter(j)
	em.SetECM(ECMNoise)
	return ant.RfTransmit(em)
}

func (j *Jammer) UpdatePhase(_ context.Context, phase timectrl.Phase, dt float64) {
	if phase == timectrl.PhaseTransmit {
		j.Transmit(dt)
	}
}
