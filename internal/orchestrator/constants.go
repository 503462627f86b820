// Package orchestrator wires capture, geometry, storage and the macro engine
// into one context object.
package orchestrator

import "time"

// Orchestrator configuration constants
const (
	// Run history
	HistoryMaxEntries  = 500
	HistoryMaxRuns     = 50
	HistoryEventBuffer = 256

	// Window reported by RecentEvents when callers pass zero
	DefaultEventWindow = 5 * time.Minute
)
