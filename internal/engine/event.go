package engine

import (
	"time"

	"github.com/CanhCl92/AutoAccess/internal/macro"
)

// EventType classifies engine events.
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventRunFinished  EventType = "run_finished"
	EventRunCancelled EventType = "run_cancelled"
	EventRunFailed    EventType = "run_failed"
	EventStep         EventType = "step"
	EventMatch        EventType = "match"
	EventMiss         EventType = "miss"
	EventGesture      EventType = "gesture"
)

// Event reports progress of a run. Coordinates are in capture space for
// match events and dispatch space for gesture events.
type Event struct {
	Type     EventType  `json:"type"`
	RunID    string     `json:"runId"`
	MacroID  string     `json:"macroId"`
	Step     int        `json:"step"`
	Kind     macro.Kind `json:"kind,omitempty"`
	Template string     `json:"template,omitempty"`
	X        float64    `json:"x,omitempty"`
	Y        float64    `json:"y,omitempty"`
	X2       float64    `json:"x2,omitempty"`
	Y2       float64    `json:"y2,omitempty"`
	Score    int        `json:"score,omitempty"`
	Message  string     `json:"message,omitempty"`
	Time     time.Time  `json:"time"`
}

func withType(base Event, t EventType) Event {
	base.Type = t
	return base
}
