package rf

import (
	"fmt"
	"math"
	"strings"

	"github.com/signalsfoundry/rfsensor-sim/model"
)

// PolicyKind selects how a radar chooses which returns to report.
type PolicyKind int

const (
	// PolicySearch reports every target (track while scan).
	PolicySearch PolicyKind = iota
	// PolicySTT reports only the designated target; the antenna follows it.
	PolicySTT
	// PolicyGMTI reports moving ground and sea targets.
	PolicyGMTI
)

func (k PolicyKind) String() string {
	switch k {
	case PolicySearch:
		return "search"
	case PolicySTT:
		return "stt"
	case PolicyGMTI:
		return "gmti"
	default:
		return fmt.Sprintf("policy(%d)", int(k))
	}
}

// ParsePolicyKind accepts the names printed by String; "tws" is an alias
// for search.
func ParsePolicyKind(s string) (PolicyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "search", "tws":
		return PolicySearch, nil
	case "stt":
		return PolicySTT, nil
	case "gmti":
		return PolicyGMTI, nil
	}
	return PolicySearch, fmt.Errorf("unknown detection policy %q", s)
}

// DetectionPolicy is the per-radar variant selected at configuration time.
// Only the fields relevant to Kind are used.
type DetectionPolicy struct {
	Kind         PolicyKind
	TargetID     string  // PolicySTT
	MinRangeRate float64 // PolicyGMTI, m/s
}

func (p DetectionPolicy) valid() bool {
	switch p.Kind {
	case PolicySearch:
		return true
	case PolicySTT:
		return p.TargetID != ""
	case PolicyGMTI:
		return p.MinRangeRate >= 0
	}
	return false
}

// Accepts reports whether a return from em may become a detection.
func (p DetectionPolicy) Accepts(em *Emission) bool {
	switch p.Kind {
	case PolicySTT:
		return em.TargetID() == p.TargetID
	case PolicyGMTI:
		tgt := em.Target()
		if tgt == nil || !tgt.Category.Has(model.CategoryGround|model.CategorySea) {
			return false
		}
		return math.Abs(em.RangeRate()) >= p.MinRangeRate
	default:
		return true
	}
}
