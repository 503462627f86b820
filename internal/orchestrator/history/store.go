// Package history keeps recent macro run events and per-run summaries.
package history

import (
	"sync"
	"time"

	"github.com/CanhCl92/AutoAccess/internal/engine"
)

// Run summarizes one macro run.
type Run struct {
	RunID    string    `json:"runId"`
	MacroID  string    `json:"macroId"`
	Outcome  string    `json:"outcome"`
	Started  time.Time `json:"started"`
	Ended    time.Time `json:"ended,omitzero"`
	Steps    int       `json:"steps"`
	Matches  int       `json:"matches"`
	Misses   int       `json:"misses"`
	Gestures int       `json:"gestures"`
}

// Store holds the last maxEntries events and maxRuns run summaries.
type Store struct {
	mu       sync.RWMutex
	entries  []engine.Event
	runs     []Run
	maxSize  int
	maxRuns  int
	eventsCh chan engine.Event
}

// NewStore creates a history store.
func NewStore(maxEntries, maxRuns, eventBuffer int) *Store {
	return &Store{
		entries:  make([]engine.Event, 0, maxEntries),
		maxSize:  maxEntries,
		maxRuns:  maxRuns,
		eventsCh: make(chan engine.Event, eventBuffer),
	}
}

// Add records an event and folds it into its run summary.
func (s *Store) Add(ev engine.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, ev)
	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}

	if ev.Type == engine.EventRunStarted {
		s.runs = append(s.runs, Run{RunID: ev.RunID, MacroID: ev.MacroID, Outcome: string(engine.OutcomeRunning), Started: ev.Time})
		if len(s.runs) > s.maxRuns {
			s.runs = s.runs[len(s.runs)-s.maxRuns:]
		}
		return
	}
	r := s.run(ev.RunID)
	if r == nil {
		return
	}
	switch ev.Type {
	case engine.EventStep:
		r.Steps++
	case engine.EventMatch:
		r.Matches++
	case engine.EventMiss:
		r.Misses++
	case engine.EventGesture:
		r.Gestures++
	case engine.EventRunFinished:
		r.Outcome, r.Ended = string(engine.OutcomeCompleted), ev.Time
	case engine.EventRunCancelled:
		r.Outcome, r.Ended = string(engine.OutcomeCancelled), ev.Time
	case engine.EventRunFailed:
		r.Outcome, r.Ended = string(engine.OutcomeFailed), ev.Time
	}
}

func (s *Store) run(id string) *Run {
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].RunID == id {
			return &s.runs[i]
		}
	}
	return nil
}

// Recent returns events from the last d, oldest first.
func (s *Store) Recent(d time.Duration) []engine.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-d)
	var out []engine.Event
	for _, e := range s.entries {
		if !e.Time.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Runs returns a copy of the run summaries, oldest first.
func (s *Store) Runs() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Run, len(s.runs))
	copy(out, s.runs)
	return out
}

// Events returns the event stream.
func (s *Store) Events() <-chan engine.Event {
	return s.eventsCh
}

// Emit publishes an event without blocking; it is dropped when nobody keeps up.
func (s *Store) Emit(ev engine.Event) {
	select {
	case s.eventsCh <- ev:
	default:
	}
}

// Entries returns a copy of all stored events.
func (s *Store) Entries() []engine.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.Event, len(s.entries))
	copy(out, s.entries)
	return out
}
