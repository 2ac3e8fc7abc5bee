package rf

import (
	"sync"

	"github.com/signalsfoundry/rfsensor-sim/core"
	"github.com/signalsfoundry/rfsensor-sim/model"
)

func playerAt(id string, cat model.Category, lat, lon, alt float64) *model.Player {
	return &model.Player{
		ID:        id,
		Category:  cat,
		Position:  core.GeodeticToECEF(lat, lon, alt).Vector(),
		Signature: model.Signature{RCS: 10},
	}
}

type countingMetrics struct {
	mu         sync.Mutex
	drops      map[string]int
	detections int
	jammed     int
	discarded  int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{drops: make(map[string]int)}
}

func (m *countingMetrics) QueueDrop(_, queue string) {
	m.mu.Lock()
	m.drops[queue]++
	m.mu.Unlock()
}

func (m *countingMetrics) Detection(string) {
	m.mu.Lock()
	m.detections++
	m.mu.Unlock()
}

func (m *countingMetrics) JammedDetections(_ string, n int) {
	m.mu.Lock()
	m.jammed += n
	m.mu.Unlock()
}

func (m *countingMetrics) ReportsDiscarded(_ string, n int) {
	m.mu.Lock()
	m.discarded += n
	m.mu.Unlock()
}

func (m *countingMetrics) dropCount(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops[queue]
}

type mapPlayers map[string]*model.Player

func (m mapPlayers) ActivePlayers() []*model.Player {
	out := make([]*model.Player, 0, len(m))
	for _, p := range m {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	return out
}

func (m mapPlayers) GetPlayer(id string) *model.Player { return m[id] }

// sink records reports handed to a track manager.
type sink struct {
	mu      sync.Mutex
	reports []Emission
	sn      []float64
}

func (s *sink) NewReport(em *Emission, sn float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, *em)
	s.sn = append(s.sn, sn)
	return true
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}
