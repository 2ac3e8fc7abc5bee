package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/rfsensor-sim/model"
)

var (
	// ErrPlayerExists indicates a player with the same ID is already stored.
	ErrPlayerExists = errors.New("player already exists")
	// ErrPlayerNotFound indicates a requested player was not found.
	ErrPlayerNotFound = errors.New("player not found")
)

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	EventPlayerUpdated EventType = iota
	EventPlayerKilled
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type   EventType
	Player model.Player
}

// PlayerStore is an in-memory, thread-safe store for every simulated
// player. It is the source of each frame's players-of-interest list.
type PlayerStore struct {
	mu sync.RWMutex

	players map[string]*model.Player

	subs   map[int]func(Event)
	nextID int
}

// NewPlayerStore constructs an empty store.
func NewPlayerStore() *PlayerStore {
	return &PlayerStore{
		players: make(map[string]*model.Player),
		subs:    make(map[int]func(Event)),
	}
}

// AddPlayer adds a new player. It returns ErrPlayerExists if the ID is taken.
func (s *PlayerStore) AddPlayer(p *model.Player) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("AddPlayer: player must have an ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[p.ID]; exists {
		return fmt.Errorf("player %q: %w", p.ID, ErrPlayerExists)
	}
	// store pointer so that motion updates are visible to sensors
	s.players[p.ID] = p
	return nil
}

// GetPlayer returns the player with the given ID, or nil if not found.
func (s *PlayerStore) GetPlayer(id string) *model.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.players[id]
}

// ListPlayers returns a snapshot slice of all players ordered by ID.
func (s *PlayerStore) ListPlayers() []*model.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*model.Player, 0, len(s.players))
	for _, p := range s.players {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// ActivePlayers is ListPlayers without killed players. The world model
// calls it once per frame.
func (s *PlayerStore) ActivePlayers() []*model.Player {
	all := s.ListPlayers()
	out := all[:0]
	for _, p := range all {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	return out
}

// Count returns the number of stored players.
func (s *PlayerStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// UpdatePlayerState updates a player's kinematics and notifies subscribers.
func (s *PlayerStore) UpdatePlayerState(id string, pos, vel model.Vector) error {
	s.mu.Lock()
	p, ok := s.players[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("player %q: %w", id, ErrPlayerNotFound)
	}
	p.Position = pos
	p.Velocity = vel
	event := Event{Type: EventPlayerUpdated, Player: *p}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// KillPlayer marks a player killed and notifies subscribers. Killing an
// already-killed player is a no-op.
func (s *PlayerStore) KillPlayer(id string) error {
	s.mu.Lock()
	p, ok := s.players[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("player %q: %w", id, ErrPlayerNotFound)
	}
	if p.Killed {
		s.mu.Unlock()
		return nil
	}
	p.Killed = true
	event := Event{Type: EventPlayerKilled, Player: *p}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// Subscribe registers a callback for store events. It returns an
// unsubscribe function that is safe to call more than once.
func (s *PlayerStore) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *PlayerStore) subscribersLocked() []func(Event) {
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.subs[id])
	}
	return out
}
