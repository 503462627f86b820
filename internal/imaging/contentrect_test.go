package imaging

import (
	"image"
	"testing"
)

func solidFrame(w, h int, r, g, b uint8) *Frame {
	f := &Frame{Pix: make([]uint8, w*h*4), Width: w, Height: h}
	for i := 0; i < len(f.Pix); i += 4 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = r, g, b, 0xff
	}
	return f
}

func set(f *Frame, x, y int, v uint8) {
	i := (y*f.Width + x) * 4
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = v, v, v
}

// letterboxed draws a textured area inside a black border.
func letterboxed(w, h int, inner image.Rectangle) *Frame {
	f := solidFrame(w, h, 0, 0, 0)
	for y := inner.Min.Y; y < inner.Max.Y; y++ {
		for x := inner.Min.X; x < inner.Max.X; x++ {
			set(f, x, y, uint8((x*7+y*13)%256))
		}
	}
	return f
}

func TestDetectContentRect(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
		want  image.Rectangle
	}{
		{"uniform frame", solidFrame(200, 120, 30, 30, 30), image.Rect(0, 0, 200, 120)},
		{"20px border", letterboxed(200, 200, image.Rect(20, 20, 180, 180)), image.Rect(20, 20, 180, 180)},
		{"pillarbox", letterboxed(300, 200, image.Rect(40, 0, 260, 200)), image.Rect(40, 0, 260, 200)},
		{"no border", letterboxed(100, 100, image.Rect(0, 0, 100, 100)), image.Rect(0, 0, 100, 100)},
		// content narrower than 60% of the width keeps the full horizontal extent
		{"narrow content", letterboxed(200, 200, image.Rect(80, 20, 120, 180)), image.Rect(0, 20, 200, 180)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectContentRect(tt.frame); got != tt.want {
				t.Errorf("DetectContentRect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectContentRectInvalid(t *testing.T) {
	if got := DetectContentRect(nil); !got.Empty() {
		t.Errorf("nil frame = %v, want empty", got)
	}
	if got := DetectContentRect(&Frame{Width: 10, Height: 10}); !got.Empty() {
		t.Errorf("short buffer = %v, want empty", got)
	}
}

func TestDetectContentRectBounds(t *testing.T) {
	f := letterboxed(64, 48, image.Rect(5, 3, 60, 45))
	r := DetectContentRect(f)
	if !r.In(f.Bounds()) || r.Empty() {
		t.Errorf("rect %v escapes frame %v", r, f.Bounds())
	}
}
