package rf

import "testing"

func TestPolarizationGainSymmetric(t *testing.T) {
	for a := PolarizationNone; a < numPolarizations; a++ {
		for b := PolarizationNone; b < numPolarizations; b++ {
			if PolarizationGain(a, b) != PolarizationGain(b, a) {
				t.Fatalf("gain(%v,%v) != gain(%v,%v)", a, b, b, a)
			}
		}
	}
}

func TestPolarizationGainValues(t *testing.T) {
	tests := []struct {
		tx, rx Polarization
		want   float64
	}{
		{PolarizationNone, PolarizationLHC, 1},
		{PolarizationVertical, PolarizationVertical, 1},
		{PolarizationVertical, PolarizationHorizontal, 0},
		{PolarizationRHC, PolarizationLHC, 0},
		{PolarizationSlant, PolarizationVertical, 0.5},
		{PolarizationHorizontal, PolarizationRHC, 0.5},
		{Polarization(42), PolarizationVertical, 1},
	}
	for _, tt := range tests {
		if got := PolarizationGain(tt.tx, tt.rx); got != tt.want {
			t.Errorf("gain(%v,%v) = %g, want %g", tt.tx, tt.rx, got, tt.want)
		}
	}
}

func TestParsePolarization(t *testing.T) {
	p, err := ParsePolarization(" RHC ")
	if err != nil || p != PolarizationRHC {
		t.Fatalf("ParsePolarization(RHC) = %v, %v", p, err)
	}
	if _, err := ParsePolarization("diagonal"); err == nil {
		t.Fatalf("expected error for unknown polarization")
	}
}
