// Package server provides the HTTP control surface and the WebSocket event stream.
package server

import "time"

// Server configuration constants
const (
	// Request body limits
	MaxBodyBytes  = 1 << 20
	MaxImageBytes = 8 << 20

	// Per-connection WebSocket rate limiting
	RateLimitMessages = 10          // Max messages per connection per window
	RateLimitWindow   = time.Second // Sliding window duration

	// Broadcast write deadline per connection
	BroadcastTimeout = 2 * time.Second

	// Upper bound for POST /run?wait=1
	MaxRunWait = 5 * time.Minute
)
