package vars

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/basket/armada/internal/inventory"
	"github.com/basket/armada/internal/playbook"
	"github.com/google/uuid"
)

// Manager resolves the variables for one (play, host, task) triple. The
// engine calls it once per queued job and does not interpret the values.
type Manager interface {
	GetVars(play *playbook.Play, host *inventory.Host, task *playbook.Task) map[string]any
}

// MapManager is the default Manager: global vars overlaid with host vars.
type MapManager struct {
	Global map[string]any
}

// GetVars merges global vars under host vars. Host vars win.
func (m *MapManager) GetVars(play *playbook.Play, host *inventory.Host, task *playbook.Task) map[string]any {
	out := make(map[string]any, len(m.Global))
	for k, v := range m.Global {
		out[k] = v
	}
	if host != nil {
		for k, v := range host.Vars() {
			out[k] = v
		}
	}
	return out
}

// Store stages resolved vars for the trip to a worker. The strategy stages a
// var map and passes the returned location key on the job; the worker takes
// it exactly once, after which the key is gone.
type Store struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewStore creates an empty staging store.
func NewStore() *Store {
	return &Store{entries: make(map[string][]byte)}
}

// Stage serializes vars and stores them under a fresh opaque key.
func (s *Store) Stage(vars map[string]any) (string, error) {
	data, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("stage vars: %w", err)
	}
	key := uuid.NewString()
	s.mu.Lock()
	s.entries[key] = data
	s.mu.Unlock()
	return key, nil
}

// Take returns the vars staged under key and deletes them. A second Take of
// the same key is an error: locations are consumed exactly once.
func (s *Store) Take(key string) (map[string]any, error) {
	s.mu.Lock()
	data, ok := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("vars location %q not found (already consumed?)", key)
	}
	var vars map[string]any
	if err := json.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("decode vars at %q: %w", key, err)
	}
	return vars, nil
}

// Len returns the number of staged entries. Used to verify nothing leaks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
