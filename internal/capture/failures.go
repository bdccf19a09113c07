package capture

import (
	"sort"
	"sync"
)

// FailureState tracks failed render attempts for one entity.
type FailureState struct {
	EntityID  string `json:"entity_id"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

// FailureCounter counts failed attempts per entity, capped at a maximum.
// State lives in memory only. It is safe for concurrent use.
type FailureCounter struct {
	mu     sync.RWMutex
	max    int
	states map[string]*FailureState
}

// NewFailureCounter creates a counter that saturates at max.
func NewFailureCounter(max int) *FailureCounter {
	return &FailureCounter{
		max:    max,
		states: make(map[string]*FailureState),
	}
}

// Max returns the attempt cap.
func (f *FailureCounter) Max() int { return f.max }

// Attempts returns the failed attempt count for id.
func (f *FailureCounter) Attempts(id string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if s, ok := f.states[id]; ok {
		return s.Attempts
	}
	return 0
}

// Exhausted reports whether id has reached the attempt cap.
func (f *FailureCounter) Exhausted(id string) bool {
	return f.Attempts(id) >= f.max
}

// RecordFailure increments the count for id, never past the cap, and returns
// the new count.
func (f *FailureCounter) RecordFailure(id string, errMsg string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.states[id]
	if !ok {
		s = &FailureState{EntityID: id}
		f.states[id] = s
	}
	if s.Attempts < f.max {
		s.Attempts++
	}
	s.LastError = errMsg
	return s.Attempts
}

// Reset clears the count for id.
func (f *FailureCounter) Reset(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, id)
}

// ExhaustedIDs returns the sorted ids that reached the cap.
func (f *FailureCounter) ExhaustedIDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var ids []string
	for id, s := range f.states {
		if s.Attempts >= f.max {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of every tracked state, sorted by entity id.
func (f *FailureCounter) Snapshot() []FailureState {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]FailureState, 0, len(f.states))
	for _, s := range f.states {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}
