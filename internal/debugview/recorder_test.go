package debugview

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/imaging"
	"github.com/CanhCl92/AutoAccess/internal/matcher"
)

func grayFrame(w, h int) *imaging.Frame {
	f := &imaging.Frame{Pix: make([]uint8, w*h*4), Width: w, Height: h}
	for i := 0; i < len(f.Pix); i += 4 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = 40, 40, 40, 0xff
	}
	return f
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	return img
}

func TestEmptyRecorder(t *testing.T) {
	r := NewRecorder(0)
	if _, ok := r.Last(); ok {
		t.Error("Last() reported a match on a fresh recorder")
	}
	for name, fn := range map[string]func() ([]byte, error){"overlay": r.Overlay, "crop": r.Crop} {
		if _, err := fn(); !apperrors.IsCode(err, apperrors.NotFound) {
			t.Errorf("%s error = %v, want NotFound", name, err)
		}
	}
}

func TestRecordMatch(t *testing.T) {
	r := NewRecorder(0)
	r.RecordMatch("ok", matcher.Result{X: 50, Y: 60, Score: 912}, grayFrame(200, 150))

	s, ok := r.Last()
	if !ok {
		t.Fatal("Last() = false after RecordMatch")
	}
	if s.ID != "ok" || s.X != 50 || s.Y != 60 || s.Score != 912 || s.Time.IsZero() {
		t.Errorf("Last() = %+v", s)
	}
}

func TestOverlayMarksMatch(t *testing.T) {
	r := NewRecorder(0)
	r.RecordMatch("ok", matcher.Result{X: 100, Y: 80, Score: 1000}, grayFrame(200, 160))

	data, err := r.Overlay()
	if err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	img := decode(t, data)
	if img.Bounds().Dx() != 200 {
		t.Errorf("width = %d, want unscaled 200", img.Bounds().Dx())
	}

	tests := []struct {
		name    string
		x, y    int
		r, g, b uint32
	}{
		{"box edge", 100 - boxHalf, 80 + 10, 0xffff, 0, 0},
		{"crosshair arm", 100 + crossHalf, 80, 0xffff, 0xffff, 0},
		{"untouched", 10, 10, 40 * 0x101, 40 * 0x101, 40 * 0x101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b, _ := img.At(tt.x, tt.y).RGBA()
			if r != tt.r || g != tt.g || b != tt.b {
				t.Errorf("pixel = (%d,%d,%d), want (%d,%d,%d)", r, g, b, tt.r, tt.g, tt.b)
			}
		})
	}
}

func TestOverlayDoesNotTouchFrame(t *testing.T) {
	f := grayFrame(100, 100)
	r := NewRecorder(0)
	r.RecordMatch("ok", matcher.Result{X: 50, Y: 50}, f)
	if _, err := r.Overlay(); err != nil {
		t.Fatal(err)
	}
	if red, _, _, _ := f.RGBA(50-boxHalf, 50); red != 40 {
		t.Errorf("frame pixel changed to %d", red)
	}
}

func TestOverlayScalesDown(t *testing.T) {
	r := NewRecorder(360)
	r.RecordMatch("ok", matcher.Result{X: 500, Y: 400}, grayFrame(1080, 800))

	data, err := r.Overlay()
	if err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	b := decode(t, data).Bounds()
	if b.Dx() != 360 || b.Dy() != 267 {
		t.Errorf("scaled size = %dx%d, want 360x267", b.Dx(), b.Dy())
	}
}

func TestCrop(t *testing.T) {
	tests := []struct {
		name  string
		x, y  int
		wantW int
		wantH int
	}{
		{"interior", 150, 150, CropSize, CropSize},
		{"corner", 10, 20, 60, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder(0)
			r.RecordMatch("ok", matcher.Result{X: tt.x, Y: tt.y}, grayFrame(300, 300))
			data, err := r.Crop()
			if err != nil {
				t.Fatalf("Crop: %v", err)
			}
			b := decode(t, data).Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("crop = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}
