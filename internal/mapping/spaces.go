// Package mapping converts points between capture space (frame pixels) and
// dispatch space (device gesture coordinates).
//
// The deterministic mapping assumes the content rect of the capture shows the
// device's gesture area (physical size minus insets) scaled independently per
// axis. A calibrated Affine can replace it when that assumption does not hold.
package mapping

import (
	"fmt"
	"image"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
)

// Point is a position in either space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) String() string { return fmt.Sprintf("(%.1f,%.1f)", p.X, p.Y) }

// Size is a width/height pair in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Insets are device-edge regions that cannot receive gestures.
type Insets struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Spaces is a snapshot of the geometry needed to map between spaces. It is
// recomputed for every conversion and never stored across calls.
type Spaces struct {
	Capture Size            `json:"capture"`
	Content image.Rectangle `json:"content"`
	Phys    Size            `json:"phys"`
	Insets  Insets          `json:"insets"`
}

// Gesture returns the gesture area size.
func (s Spaces) Gesture() Size {
	return Size{
		Width:  s.Phys.Width - s.Insets.Left - s.Insets.Right,
		Height: s.Phys.Height - s.Insets.Top - s.Insets.Bottom,
	}
}

// Params is the per-axis scale and offset of the deterministic mapping:
// capture = offset + dispatch*scale.
type Params struct {
	ScaleX  float64 `json:"sx"`
	ScaleY  float64 `json:"sy"`
	OffsetX float64 `json:"ox"`
	OffsetY float64 `json:"oy"`
}

// errGeometry reports geometry that cannot support a conversion.
func errGeometry(format string, args ...any) error {
	return apperrors.Newf(apperrors.GeometryUnavailable, format, args...)
}

// Params derives scale and offset, failing when the gesture area or the content rect is empty.
func (s Spaces) Params() (Params, error) {
	g := s.Gesture()
	if g.Width <= 0 || g.Height <= 0 {
		return Params{}, errGeometry("gesture area %dx%d is empty", g.Width, g.Height)
	}
	if s.Content.Empty() {
		return Params{}, errGeometry("content rect %v is empty", s.Content)
	}
	sx := float64(s.Content.Dx()) / float64(g.Width)
	sy := float64(s.Content.Dy()) / float64(g.Height)
	return Params{
		ScaleX:  sx,
		ScaleY:  sy,
		OffsetX: float64(s.Content.Min.X) - float64(s.Insets.Left)*sx,
		OffsetY: float64(s.Content.Min.Y) - float64(s.Insets.Top)*sy,
	}, nil
}

// ToCapture maps a dispatch point into capture space.
func (s Spaces) ToCapture(p Point) (Point, error) {
	pr, err := s.Params()
	if err != nil {
		return Point{}, err
	}
	return Point{X: pr.OffsetX + p.X*pr.ScaleX, Y: pr.OffsetY + p.Y*pr.ScaleY}, nil
}

// ToDispatch maps a capture point into dispatch space.
func (s Spaces) ToDispatch(p Point) (Point, error) {
	pr, err := s.Params()
	if err != nil {
		return Point{}, err
	}
	return Point{X: (p.X - pr.OffsetX) / pr.ScaleX, Y: (p.Y - pr.OffsetY) / pr.ScaleY}, nil
}

// Transform converts points between the two spaces.
type Transform interface {
	ToCapture(p Point) (Point, error)
	ToDispatch(p Point) (Point, error)
}

var (
	_ Transform = Spaces{}
	_ Transform = Affine{}
)
