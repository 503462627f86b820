package mapping

import (
	"context"
	"log/slog"
	"math"
	"time"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/imaging"
)

const (
	DefaultSearchRadius = 60
	DefaultSettle       = 400 * time.Millisecond
)

// MarkerScorer rates a pixel as a calibration marker. ok=false excludes it.
type MarkerScorer func(r, g, b uint8) (score int, ok bool)

// Magenta accepts saturated magenta pixels, preferring the purest.
func Magenta(r, g, b uint8) (int, bool) {
	if r > 200 && b > 200 && g < 80 {
		return int(r) + int(b) - int(g), true
	}
	return 0, false
}

// FrameGrabber provides the most recent capture.
type FrameGrabber interface {
	LatestFrame() *imaging.Frame
}

// MarkerDisplay shows calibration markers at dispatch-space points. It is optional:
// without one, markers are expected to be drawn on the device by other means.
type MarkerDisplay interface {
	ShowMarkers(ctx context.Context, points []Point) error
	HideMarkers(ctx context.Context) error
}

// Calibration is the result of a three-point calibration.
type Calibration struct {
	Affine   Affine   `json:"affine"`
	RMSE     float64  `json:"rmse"`
	Dispatch [3]Point `json:"dispatch"`
	Capture  [3]Point `json:"capture"`
}

// Calibrator fits an Affine from markers observed in the capture.
type Calibrator struct {
	Frames  FrameGrabber
	Display MarkerDisplay
	Scorer  MarkerScorer
	Radius  int
	Settle  time.Duration
}

// CalibrationPoints returns the three dispatch points used for calibration.
// They are spread over the gesture area so they are never collinear.
func CalibrationPoints(s Spaces) [3]Point {
	g := s.Gesture()
	at := func(fx, fy float64) Point {
		return Point{X: float64(s.Insets.Left) + float64(g.Width)*fx, Y: float64(s.Insets.Top) + float64(g.Height)*fy}
	}
	return [3]Point{at(0.2, 0.2), at(0.8, 0.25), at(0.3, 0.75)}
}

// Run3pt locates the three markers near their deterministic predictions and
// fits the affine mapping dispatch onto capture.
func (c *Calibrator) Run3pt(ctx context.Context, s Spaces) (Calibration, error) {
	if _, err := s.Params(); err != nil {
		return Calibration{}, err
	}
	scorer := c.Scorer
	if scorer == nil {
		scorer = Magenta
	}
	radius := c.Radius
	if radius <= 0 {
		radius = DefaultSearchRadius
	}

	dispatch := CalibrationPoints(s)
	if c.Display != nil {
		if err := c.Display.ShowMarkers(ctx, dispatch[:]); err != nil {
			return Calibration{}, apperrors.Wrap(err, apperrors.CalibrationFailure, "show markers")
		}
		defer func() {
			if err := c.Display.HideMarkers(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("hide calibration markers", "error", err)
			}
		}()
		settle := c.Settle
		if settle <= 0 {
			settle = DefaultSettle
		}
		t := time.NewTimer(settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return Calibration{}, apperrors.Wrap(ctx.Err(), apperrors.Cancelled, "calibration cancelled")
		case <-t.C:
		}
	}

	var frame *imaging.Frame
	if c.Frames != nil {
		frame = c.Frames.LatestFrame()
	}
	if !frame.Valid() {
		return Calibration{}, apperrors.New(apperrors.CalibrationFailure, "no capture")
	}

	var capture [3]Point
	for i, p := range dispatch {
		predicted, _ := s.ToCapture(p)
		found, ok := FindMarker(frame, predicted, radius, scorer)
		if !ok {
			return Calibration{}, apperrors.Newf(apperrors.CalibrationFailure, "crosshair #%d not found", i+1)
		}
		capture[i] = found
	}

	m, err := FitAffine(dispatch, capture)
	if err != nil {
		return Calibration{}, err
	}
	cal := Calibration{Affine: m, RMSE: RMSE(m, dispatch[:], capture[:]), Dispatch: dispatch, Capture: capture}
	slog.Info("calibration fitted", "affine", m, "rmse", cal.RMSE)
	return cal, nil
}

// FindMarker returns the best-scoring pixel within radius of around.
// Ties keep the first pixel in row-major order.
func FindMarker(f *imaging.Frame, around Point, radius int, score MarkerScorer) (Point, bool) {
	if !f.Valid() {
		return Point{}, false
	}
	cx, cy := int(math.Round(around.X)), int(math.Round(around.Y))
	x0, x1 := max(0, cx-radius), min(f.Width-1, cx+radius)
	y0, y1 := max(0, cy-radius), min(f.Height-1, cy+radius)

	best, bx, by := -1, 0, 0
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			r, g, b, _ := f.RGBA(x, y)
			if s, ok := score(r, g, b); ok && s > best {
				best, bx, by = s, x, y
			}
		}
	}
	if best < 0 {
		return Point{}, false
	}
	return Point{X: float64(bx), Y: float64(by)}, true
}
