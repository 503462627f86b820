package matcher

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCacheReusesUnchangedBytes(t *testing.T) {
	c := NewCache(4)
	raw := encodePNG(t, 4, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	a, err := c.Prepared("ok", raw)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := c.Prepared("ok", raw)
	if a != b {
		t.Error("unchanged bytes should return the cached template")
	}
	if a.Width != 4 || a.Height != 3 || a.Included != 12 {
		t.Errorf("template = %dx%d included=%d", a.Width, a.Height, a.Included)
	}
}

func TestCacheInvalidatesOnChange(t *testing.T) {
	c := NewCache(4)
	first, _ := c.Prepared("ok", encodePNG(t, 4, 4, color.NRGBA{A: 255}))
	second, _ := c.Prepared("ok", encodePNG(t, 4, 4, color.NRGBA{R: 255, A: 255}))

	if first == second {
		t.Error("changed bytes must produce a fresh template")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)
	raw := encodePNG(t, 2, 2, color.NRGBA{A: 255})

	a, _ := c.Prepared("a", raw)
	_, _ = c.Prepared("b", raw)
	_, _ = c.Prepared("a", raw) // a becomes most recent
	_, _ = c.Prepared("c", raw) // evicts b

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if again, _ := c.Prepared("a", raw); again != a {
		t.Error("a should have survived eviction")
	}
}

func TestCacheRejectsUndecodableBytes(t *testing.T) {
	c := NewCache(2)
	if _, err := c.Prepared("bad", []byte("not an image")); err == nil {
		t.Error("expected decode error")
	}
	c.Invalidate("bad")
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}
