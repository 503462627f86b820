package device

import (
	"log/slog"
	"time"
)

// LogSink is a gesture sink that only logs, used when no device is attached.
type LogSink struct{}

func (LogSink) Tap(x, y float64, d time.Duration) bool {
	slog.Info("dry-run tap", "x", x, "y", y, "duration", d)
	return true
}

func (LogSink) Swipe(x1, y1, x2, y2 float64, d time.Duration) bool {
	slog.Info("dry-run swipe", "from", []float64{x1, y1}, "to", []float64{x2, y2}, "duration", d)
	return true
}

func (LogSink) Back()   { slog.Info("dry-run back") }
func (LogSink) Home()   { slog.Info("dry-run home") }
func (LogSink) Recent() { slog.Info("dry-run recent") }
