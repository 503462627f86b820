package resilience

import "time"

const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 10 * time.Second
	DefaultHalfOpenSuccesses = 2

	// Gesture dispatch trips sooner: a dead bridge should stop a macro from queueing taps.
	GestureThreshold         = 3
	GestureResetTimeout      = 5 * time.Second
	GestureHalfOpenSuccesses = 1
)

// Config holds circuit breaker settings.
type Config struct {
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

// DefaultConfig is used for screencap and display queries.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// GestureConfig is used for input injection.
func GestureConfig() Config {
	return Config{
		Threshold:         GestureThreshold,
		ResetTimeout:      GestureResetTimeout,
		HalfOpenSuccesses: GestureHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
