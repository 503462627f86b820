// Package imaging holds the pixel buffers shared by the matcher, the mapper and the frame source.
package imaging

import (
	"image"
	"image/color"
	"time"
)

// Frame is a captured RGBA buffer. Frames are never mutated after capture;
// a new capture replaces the frame instead, so dimensions must be read per frame.
type Frame struct {
	Pix        []uint8 // non-premultiplied RGBA, 4 bytes per pixel, row-major
	Width      int
	Height     int
	CapturedAt time.Time
}

// Valid reports whether the buffer is large enough for the declared size.
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Pix) >= f.Width*f.Height*4
}

// Bounds returns the full-frame rectangle.
func (f *Frame) Bounds() image.Rectangle {
	if f == nil {
		return image.Rectangle{}
	}
	return image.Rect(0, 0, f.Width, f.Height)
}

// RGBA returns the color at (x, y). Callers keep x, y in range.
func (f *Frame) RGBA(x, y int) (r, g, b, a uint8) {
	i := (y*f.Width + x) * 4
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3]
}

// LumaAt returns the perceptual luminance at (x, y).
func (f *Frame) LumaAt(x, y int) uint8 {
	i := (y*f.Width + x) * 4
	return Luma(f.Pix[i], f.Pix[i+1], f.Pix[i+2])
}

// Luma converts the whole frame into a row-major luminance buffer.
func (f *Frame) Luma() []uint8 {
	n := f.Width * f.Height
	out := make([]uint8, n)
	for i, p := 0, 0; i < n; i, p = i+1, p+4 {
		out[i] = Luma(f.Pix[p], f.Pix[p+1], f.Pix[p+2])
	}
	return out
}

// Image exposes the frame as an *image.NRGBA sharing the same buffer.
func (f *Frame) Image() *image.NRGBA {
	return &image.NRGBA{Pix: f.Pix, Stride: f.Width * 4, Rect: f.Bounds()}
}

// Luma is Y = round((299R + 587G + 114B) / 1000).
func Luma(r, g, b uint8) uint8 {
	return uint8((299*int(r) + 587*int(g) + 114*int(b) + 500) / 1000)
}

// FromImage copies img into a Frame with its origin moved to (0, 0).
func FromImage(img image.Image, capturedAt time.Time) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	f := &Frame{Pix: make([]uint8, w*h*4), Width: w, Height: h, CapturedAt: capturedAt}

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(f.Pix[y*w*4:(y+1)*w*4], src.Pix[off:off+w*4])
		}
	case *image.RGBA:
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := f.Pix[y*w*4 : (y+1)*w*4]
			copy(row, src.Pix[off:off+w*4])
			for p := 0; p < len(row); p += 4 {
				if a := row[p+3]; a != 0xff && a != 0 {
					row[p] = uint8(uint32(row[p]) * 0xff / uint32(a))
					row[p+1] = uint8(uint32(row[p+1]) * 0xff / uint32(a))
					row[p+2] = uint8(uint32(row[p+2]) * 0xff / uint32(a))
				}
			}
		}
	default:
		p := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				f.Pix[p], f.Pix[p+1], f.Pix[p+2], f.Pix[p+3] = c.R, c.G, c.B, c.A
				p += 4
			}
		}
	}
	return f
}
