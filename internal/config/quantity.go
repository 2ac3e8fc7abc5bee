package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrBadQuantity is returned for values that are not a number optionally
// followed by a known unit.
var ErrBadQuantity = errors.New("bad quantity")

// Quantity is a scalar stored in SI base units (Hz, W, K, s, m, rad, and
// plain ratios). YAML accepts a bare number in base units or a string
// such as "10 GHz", "250 kW", "30 dB" or "45 deg".
type Quantity float64

// Float returns the value in base units.
func (q Quantity) Float() float64 { return float64(q) }

// IsSet reports whether a non-zero value was configured.
func (q Quantity) IsSet() bool { return q != 0 }

// UnmarshalYAML converts a scalar node through ParseQuantity.
func (q *Quantity) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: %w: expected a scalar", node.Line, ErrBadQuantity)
	}
	v, err := ParseQuantity(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*q = Quantity(v)
	return nil
}

// Decibels is a level kept in dB, such as a detection threshold. YAML
// accepts a bare number or a string with a "dB" suffix.
type Decibels float64

// Float returns the value in dB.
func (d Decibels) Float() float64 { return float64(d) }

// UnmarshalYAML accepts "13" or "13 dB".
func (d *Decibels) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: %w: expected a scalar", node.Line, ErrBadQuantity)
	}
	v, unit, err := splitQuantity(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	if unit != "" && !strings.EqualFold(unit, "dB") {
		return fmt.Errorf("line %d: %w: %q is not a dB level", node.Line, ErrBadQuantity, node.Value)
	}
	*d = Decibels(v)
	return nil
}

var units = map[string]float64{
	"Hz": 1, "kHz": 1e3, "MHz": 1e6, "GHz": 1e9,
	"W": 1, "kW": 1e3, "MW": 1e6, "mW": 1e-3,
	"K": 1,
	"s": 1, "ms": 1e-3, "us": 1e-6, "µs": 1e-6, "ns": 1e-9,
	"m": 1, "km": 1e3, "nmi": 1852, "ft": 0.3048,
	"m2": 1, "m/s": 1, "kt": 1852.0 / 3600,
	"rad": 1, "deg": math.Pi / 180,
	"rad/s": 1, "deg/s": math.Pi / 180,
}

// logUnits convert a dB value to a linear ratio of the base unit.
var logUnits = map[string]bool{"dB": true, "dBi": true, "dBW": true, "dBsm": true}

// foldedUnits maps lower-case spellings that are not ambiguous.
var foldedUnits = func() map[string]string {
	seen := make(map[string]int)
	for u := range units {
		seen[strings.ToLower(u)]++
	}
	out := make(map[string]string)
	for u := range units {
		if l := strings.ToLower(u); seen[l] == 1 {
			out[l] = u
		}
	}
	for u := range logUnits {
		out[strings.ToLower(u)] = u
	}
	return out
}()

// ParseQuantity converts "<number> [unit]" into base units.
func ParseQuantity(s string) (float64, error) {
	v, unit, err := splitQuantity(s)
	if err != nil {
		return 0, err
	}
	if unit == "" {
		return v, nil
	}
	if _, ok := units[unit]; !ok && !logUnits[unit] {
		canon, ok := foldedUnits[strings.ToLower(unit)]
		if !ok {
			return 0, fmt.Errorf("%w: unknown unit %q in %q", ErrBadQuantity, unit, s)
		}
		unit = canon
	}
	if logUnits[unit] {
		return math.Pow(10, v/10), nil
	}
	return v * units[unit], nil
}

// splitQuantity takes the longest numeric prefix of s as the value and the
// trimmed remainder as the unit.
func splitQuantity(s string) (float64, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, "", fmt.Errorf("%w: empty value", ErrBadQuantity)
	}
	for i := len(s); i > 0; i-- {
		v, err := strconv.ParseFloat(strings.TrimSpace(s[:i]), 64)
		if err != nil {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			break
		}
		return v, strings.TrimSpace(s[i:]), nil
	}
	return 0, "", fmt.Errorf("%w: %q", ErrBadQuantity, s)
}
