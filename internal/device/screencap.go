package device

import "context"

// Screencap captures PNG screenshots with `adb exec-out screencap -p`.
type Screencap struct {
	adb *ADB
}

// NewScreencap creates a capture backend on top of a.
func NewScreencap(a *ADB) *Screencap {
	return &Screencap{adb: a}
}

func (s *Screencap) Capture(ctx context.Context) ([]byte, error) {
	return s.adb.Command(ctx, "exec-out", "screencap", "-p")
}

func (s *Screencap) Close() error { return nil }
