package mapping

import (
	"context"
	"image"
	"math"
	"testing"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/imaging"
)

type staticFrames struct{ f *imaging.Frame }

func (s staticFrames) LatestFrame() *imaging.Frame { return s.f }

type recordingDisplay struct {
	shown  []Point
	hidden bool
}

func (d *recordingDisplay) ShowMarkers(_ context.Context, pts []Point) error {
	d.shown = append([]Point(nil), pts...)
	return nil
}

func (d *recordingDisplay) HideMarkers(context.Context) error {
	d.hidden = true
	return nil
}

func blankFrame(w, h int) *imaging.Frame {
	f := &imaging.Frame{Pix: make([]uint8, w*h*4), Width: w, Height: h}
	for i := 3; i < len(f.Pix); i += 4 {
		f.Pix[i] = 0xff
	}
	return f
}

func paint(f *imaging.Frame, p Point, r, g, b uint8) {
	i := (int(math.Round(p.Y))*f.Width + int(math.Round(p.X))) * 4
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
}

// halfScale is a 1000x2000 device shown at half size.
func halfScale() Spaces {
	return Spaces{
		Capture: Size{500, 1000},
		Content: image.Rect(0, 0, 500, 1000),
		Phys:    Size{1000, 2000},
	}
}

func TestCalibrationRecoversKnownAffine(t *testing.T) {
	s := halfScale()
	truth := Affine{A: 0.5, B: 0.01, C: 0.02, D: 0.5, Tx: 3, Ty: -4}

	frame := blankFrame(500, 1000)
	for _, p := range CalibrationPoints(s) {
		paint(frame, truth.Apply(p), 255, 0, 255)
	}
	display := &recordingDisplay{}
	c := &Calibrator{Frames: staticFrames{frame}, Display: display, Settle: 1}

	cal, err := c.Run3pt(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	got := cal.Affine
	if !near(got.A, truth.A) || !near(got.B, truth.B) || !near(got.C, truth.C) ||
		!near(got.D, truth.D) || !near(got.Tx, truth.Tx) || !near(got.Ty, truth.Ty) {
		t.Errorf("Affine = %+v, want %+v", got, truth)
	}
	if cal.RMSE > eps {
		t.Errorf("RMSE = %v, want ~0", cal.RMSE)
	}
	if len(display.shown) != 3 || !display.hidden {
		t.Errorf("display shown=%v hidden=%v", display.shown, display.hidden)
	}
}

func TestCalibrationPointsNotCollinear(t *testing.T) {
	s := Spaces{Phys: Size{1080, 2400}, Insets: Insets{Top: 50, Bottom: 120}}
	pts := CalibrationPoints(s)
	if _, err := FitAffine(pts, pts); err != nil {
		t.Errorf("calibration points are degenerate: %v", err)
	}
	if !near(pts[0].X, 216) || !near(pts[0].Y, 496) {
		t.Errorf("first point = %v", pts[0])
	}
}

func TestCalibrationMissingMarker(t *testing.T) {
	s := halfScale()
	frame := blankFrame(500, 1000)
	pts := CalibrationPoints(s)
	p0, _ := s.ToCapture(pts[0])
	paint(frame, p0, 255, 0, 255)
	// second marker is too green to qualify
	p1, _ := s.ToCapture(pts[1])
	paint(frame, p1, 255, 120, 255)

	_, err := (&Calibrator{Frames: staticFrames{frame}}).Run3pt(context.Background(), s)
	if !apperrors.IsCode(err, apperrors.CalibrationFailure) {
		t.Fatalf("err = %v, want CalibrationFailure", err)
	}
	if ae := err.(*apperrors.AppError); ae.Message != "crosshair #2 not found" {
		t.Errorf("message = %q", ae.Message)
	}
}

func TestCalibrationNoCapture(t *testing.T) {
	_, err := (&Calibrator{Frames: staticFrames{}}).Run3pt(context.Background(), halfScale())
	if !apperrors.IsCode(err, apperrors.CalibrationFailure) {
		t.Errorf("err = %v, want CalibrationFailure", err)
	}
}

func TestFindMarkerPrefersPurest(t *testing.T) {
	f := blankFrame(50, 50)
	paint(f, Point{X: 10, Y: 10}, 210, 70, 210)
	paint(f, Point{X: 12, Y: 11}, 255, 0, 255)
	paint(f, Point{X: 45, Y: 45}, 255, 0, 255) // outside radius

	got, ok := FindMarker(f, Point{X: 11, Y: 11}, 5, Magenta)
	if !ok || got != (Point{X: 12, Y: 11}) {
		t.Errorf("FindMarker() = %v, %v", got, ok)
	}
}
