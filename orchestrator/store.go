package orchestrator

import "sync"

// Store holds recovery snapshots in memory, keyed by service id. A new
// snapshot for a service overwrites the previous one.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]RecoveryState
}

// NewStore creates an empty snapshot store.
func NewStore() *Store {
	return &Store{
		snapshots: make(map[string]RecoveryState),
	}
}

// Save stores a snapshot, replacing any existing one for the service.
func (s *Store) Save(state RecoveryState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[state.ServiceID] = state
}

// Load returns the snapshot for the service, if any.
func (s *Store) Load(serviceID string) (RecoveryState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.snapshots[serviceID]
	return state, ok
}

// Delete removes the snapshot for the service.
func (s *Store) Delete(serviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, serviceID)
}

// Len returns the number of stored snapshots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}
