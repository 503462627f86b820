package device

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"
)

// Android key codes.
const (
	KeyHome       = 3
	KeyBack       = 4
	KeyAppSwitch  = 187
	longPressFrom = 500 * time.Millisecond
)

type gesture struct {
	kind string
	args []string
}

// Tap schedules a tap. Taps of longPressFrom or longer become a
// zero-length swipe so the duration is honored.
func (a *ADB) Tap(x, y float64, d time.Duration) bool {
	if !validPoint(x, y) || d < 0 {
		slog.Warn("tap rejected", "x", x, "y", y, "duration", d)
		return false
	}
	xs, ys := coord(x), coord(y)
	if d >= longPressFrom {
		return a.enqueue("tap", "input", "swipe", xs, ys, xs, ys, strconv.FormatInt(d.Milliseconds(), 10))
	}
	return a.enqueue("tap", "input", "tap", xs, ys)
}

// Swipe schedules a swipe.
func (a *ADB) Swipe(x1, y1, x2, y2 float64, d time.Duration) bool {
	if !validPoint(x1, y1) || !validPoint(x2, y2) || d < 0 {
		slog.Warn("swipe rejected", "from", []float64{x1, y1}, "to", []float64{x2, y2}, "duration", d)
		return false
	}
	return a.enqueue("swipe", "input", "swipe", coord(x1), coord(y1), coord(x2), coord(y2),
		strconv.FormatInt(d.Milliseconds(), 10))
}

// Back presses the back key.
func (a *ADB) Back() { a.key("back", KeyBack) }

// Home presses the home key.
func (a *ADB) Home() { a.key("home", KeyHome) }

// Recent opens the recent apps switcher.
func (a *ADB) Recent() { a.key("recent", KeyAppSwitch) }

func (a *ADB) key(name string, code int) {
	a.enqueue(name, "input", "keyevent", strconv.Itoa(code))
}

// enqueue hands a gesture to the dispatch worker without blocking. It
// reports false when the input breaker is open or the queue is full.
func (a *ADB) enqueue(kind string, args ...string) bool {
	if !a.input.Ready() {
		slog.Debug("gesture dropped, input breaker open", "kind", kind)
		return false
	}
	a.startOnce.Do(func() {
		a.wg.Add(1)
		go a.dispatchLoop()
	})
	select {
	case <-a.done:
		return false
	case a.queue <- gesture{kind: kind, args: append([]string{"shell"}, args...)}:
		return true
	default:
		slog.Warn("gesture dropped, queue full", "kind", kind)
		return false
	}
}

func (a *ADB) dispatchLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.done:
			return
		case g := <-a.queue:
			a.send(g)
		}
	}
}

func (a *ADB) send(g gesture) {
	args := g.args
	if a.cfg.Serial != "" {
		args = append([]string{"-s", a.cfg.Serial}, args...)
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CommandTimeout)
	defer cancel()

	start := time.Now()
	err := a.input.Execute(func() error {
		_, err := a.run(ctx, a.cfg.Path, args...)
		return err
	})
	if err != nil {
		slog.Warn("gesture failed", "kind", g.kind, "args", g.args[1:], "error", err)
		return
	}
	slog.Debug("gesture sent", "kind", g.kind, "args", g.args[1:], "took", time.Since(start))
}

// Close stops the dispatch worker. Queued gestures are discarded.
func (a *ADB) Close() error {
	a.closeOnce.Do(func() { close(a.done) })
	a.wg.Wait()
	return nil
}

func validPoint(x, y float64) bool {
	return !math.IsNaN(x) && !math.IsNaN(y) && !math.IsInf(x, 0) && !math.IsInf(y, 0) && x >= 0 && y >= 0
}

func coord(v float64) string {
	return strconv.Itoa(int(math.Round(v)))
}
