// Package grpcclient checks a running AutoAccess instance over gRPC health.
package grpcclient

import "time"

const (
	// A serve process on the same host answers pings quickly; a dead one
	// should be noticed within a few seconds.
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// WaitServing polls at this interval; each Check is bounded by HealthCheckTimeout.
	DefaultHealthCheckInterval = 500 * time.Millisecond
	HealthCheckTimeout         = 2 * time.Second
)
