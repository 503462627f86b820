// Package debugview keeps the most recent match for inspection and renders
// annotated previews of it on demand.
package debugview

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/nfnt/resize"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/imaging"
	"github.com/CanhCl92/AutoAccess/internal/matcher"
)

const (
	DefaultMaxWidth = 720
	CropSize        = 100

	boxHalf   = 30
	crossHalf = 36
)

var (
	boxColor   = color.NRGBA{R: 0xff, A: 0xff}
	crossColor = color.NRGBA{R: 0xff, G: 0xff, A: 0xff}
)

// Snapshot describes the last successful match.
type Snapshot struct {
	ID    string    `json:"id"`
	X     int       `json:"x"`
	Y     int       `json:"y"`
	Score int       `json:"score"`
	Time  time.Time `json:"ts"`
}

// Recorder holds the last match and the frame it was found in. Recording
// is cheap; rendering happens only when a preview is requested.
type Recorder struct {
	maxWidth int

	mu    sync.RWMutex
	last  *Snapshot
	frame *imaging.Frame
}

// NewRecorder creates a recorder whose overlays are at most maxWidth wide.
func NewRecorder(maxWidth int) *Recorder {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	return &Recorder{maxWidth: maxWidth}
}

// RecordMatch stores res as the last match. Frames are immutable once
// published, so the pointer is kept rather than copied.
func (r *Recorder) RecordMatch(id string, res matcher.Result, f *imaging.Frame) {
	s := &Snapshot{ID: id, X: res.X, Y: res.Y, Score: res.Score, Time: time.Now()}
	r.mu.Lock()
	r.last, r.frame = s, f
	r.mu.Unlock()
}

// Last returns the last match.
func (r *Recorder) Last() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Snapshot{}, false
	}
	return *r.last, true
}

func (r *Recorder) current() (Snapshot, *imaging.Frame, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil || !r.frame.Valid() {
		return Snapshot{}, nil, apperrors.New(apperrors.NotFound, "no match recorded")
	}
	return *r.last, r.frame, nil
}

// Overlay renders the last match frame with a box and crosshair at the
// match point, scaled down to the configured width, as PNG.
func (r *Recorder) Overlay() ([]byte, error) {
	s, f, err := r.current()
	if err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Pix)

	drawBox(img, s.X, s.Y, boxHalf, boxColor)
	drawCross(img, s.X, s.Y, crossHalf, crossColor)

	var out image.Image = img
	if f.Width > r.maxWidth {
		out = resize.Resize(uint(r.maxWidth), 0, img, resize.Bilinear)
	}
	return encode(out)
}

// Crop returns the CropSize square around the last match as PNG, clipped
// to the frame.
func (r *Recorder) Crop() ([]byte, error) {
	s, f, err := r.current()
	if err != nil {
		return nil, err
	}
	rect := image.Rect(s.X-CropSize/2, s.Y-CropSize/2, s.X+CropSize/2, s.Y+CropSize/2).Intersect(f.Bounds())
	if rect.Empty() {
		return nil, apperrors.New(apperrors.NotFound, "match lies outside its frame")
	}
	return encode(f.Image().SubImage(rect))
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "encode preview")
	}
	return buf.Bytes(), nil
}

func drawBox(img *image.NRGBA, cx, cy, half int, c color.NRGBA) {
	x0, y0, x1, y1 := cx-half, cy-half, cx+half, cy+half
	for x := x0; x <= x1; x++ {
		set(img, x, y0, c)
		set(img, x, y1, c)
	}
	for y := y0; y <= y1; y++ {
		set(img, x0, y, c)
		set(img, x1, y, c)
	}
}

func drawCross(img *image.NRGBA, cx, cy, half int, c color.NRGBA) {
	for d := -half; d <= half; d++ {
		set(img, cx+d, cy, c)
		set(img, cx, cy+d, c)
	}
}

func set(img *image.NRGBA, x, y int, c color.NRGBA) {
	if !(image.Point{X: x, Y: y}).In(img.Rect) {
		return
	}
	img.SetNRGBA(x, y, c)
}
