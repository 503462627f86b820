package orchestrator

import (
	"bytes"
	"context"
	"image/png"
	"strings"
	"time"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/macro"
	"github.com/CanhCl92/AutoAccess/internal/mapping"
)

// Coordinate spaces accepted by Command.
const (
	SpaceCapture  = "cap"
	SpaceDispatch = "disp"
)

// Command is a single gesture issued outside a macro.
type Command struct {
	Op       string        `json:"op"`
	Space    string        `json:"space"`
	X        float64       `json:"x"`
	Y        float64       `json:"y"`
	X2       float64       `json:"x2"`
	Y2       float64       `json:"y2"`
	Duration time.Duration `json:"-"`
}

// CommandResult reports what was dispatched.
type CommandResult struct {
	Op        string         `json:"op"`
	Scheduled bool           `json:"scheduled"`
	From      *mapping.Point `json:"from,omitempty"`
	To        *mapping.Point `json:"to,omitempty"`
}

// Dispatch issues c through the gesture sink. Points given in capture space
// are mapped to dispatch space first.
func (m *Manager) Dispatch(ctx context.Context, c Command) (CommandResult, error) {
	op := strings.ToLower(c.Op)
	res := CommandResult{Op: op}

	switch op {
	case "back":
		m.sink.Back()
		res.Scheduled = true
		return res, nil
	case "home":
		m.sink.Home()
		res.Scheduled = true
		return res, nil
	case "recent", "recents":
		m.sink.Recent()
		res.Op, res.Scheduled = "recent", true
		return res, nil
	case "tap", "swipe":
	default:
		return res, apperrors.Newf(apperrors.InvalidInput, "unknown op '%s'", c.Op)
	}

	from, err := m.toDispatchSpace(ctx, c.Space, mapping.Point{X: c.X, Y: c.Y})
	if err != nil {
		return res, err
	}
	res.From = &from

	if op == "tap" {
		d := c.Duration
		if d <= 0 {
			d = macro.DefaultTapDuration
		}
		res.Scheduled = m.sink.Tap(from.X, from.Y, d)
		return res, nil
	}

	to, err := m.toDispatchSpace(ctx, c.Space, mapping.Point{X: c.X2, Y: c.Y2})
	if err != nil {
		return res, err
	}
	res.To = &to
	d := c.Duration
	if d <= 0 {
		d = macro.DefaultSwipeDuration
	}
	res.Scheduled = m.sink.Swipe(from.X, from.Y, to.X, to.Y, d)
	return res, nil
}

func (m *Manager) toDispatchSpace(ctx context.Context, space string, p mapping.Point) (mapping.Point, error) {
	switch strings.ToLower(space) {
	case "", SpaceDispatch:
		return p, nil
	case SpaceCapture:
		return m.CaptureToDispatch(ctx, p)
	default:
		return mapping.Point{}, apperrors.Newf(apperrors.InvalidInput, "unknown space '%s'", space)
	}
}

// Snapshot encodes the latest frame as PNG.
func (m *Manager) Snapshot() ([]byte, error) {
	f := m.frames.LatestFrame()
	if !f.Valid() {
		return nil, apperrors.New(apperrors.Unavailable, "no frame captured yet")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image()); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "encode snapshot")
	}
	return buf.Bytes(), nil
}
