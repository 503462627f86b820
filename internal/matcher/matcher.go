// Package matcher locates templates inside captured frames using masked
// sum-of-absolute-differences on luminance, scored on a 0..1000 scale.
package matcher

import (
	"image"

	"github.com/CanhCl92/AutoAccess/internal/imaging"
)

const (
	MaxScore       = 1000
	AlphaThreshold = 128 // template pixels at or above this alpha take part in scoring

	// Small templates with a high threshold are compared at full resolution.
	precisionScore = 850
	precisionArea  = 100 * 100
)

// Template is a prepared template: luminance plus an alpha-derived mask.
type Template struct {
	ID       string
	Width    int
	Height   int
	Luma     []uint8
	Mask     []bool
	Included int // mask pixels set
}

// Result is a successful match. X, Y are the template centroid in capture space.
type Result struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Score int `json:"score"`
}

// Prepare converts an RGBA image into a Template.
func Prepare(id string, img *imaging.Frame) *Template {
	t := &Template{ID: id}
	if !img.Valid() {
		return t
	}
	t.Width, t.Height = img.Width, img.Height
	n := img.Width * img.Height
	t.Luma = make([]uint8, n)
	t.Mask = make([]bool, n)
	for i, p := 0, 0; i < n; i, p = i+1, p+4 {
		t.Luma[i] = imaging.Luma(img.Pix[p], img.Pix[p+1], img.Pix[p+2])
		if img.Pix[p+3] >= AlphaThreshold {
			t.Mask[i] = true
			t.Included++
		}
	}
	return t
}

// Stride returns the sampling step used for a template of the given area.
func Stride(area, minScore int) int {
	if minScore >= precisionScore && area <= precisionArea {
		return 1
	}
	switch {
	case area <= 60*60:
		return 1
	case area <= 120*120:
		return 2
	case area <= 200*200:
		return 3
	case area <= 300*300:
		return 4
	default:
		return 6
	}
}

// Match scans frame for tpl within roi (nil or empty means the whole frame)
// and returns the best-scoring placement if it reaches minScore. Candidate
// top-left positions step by the sampling stride from the region origin, so
// larger templates are only found on that grid. Ties keep the first
// placement in row-major order.
func Match(frame *imaging.Frame, tpl *Template, minScore int, roi image.Rectangle) (Result, bool) {
	if !frame.Valid() || tpl == nil || tpl.Width <= 0 || tpl.Height <= 0 {
		return Result{}, false
	}
	sw, sh := frame.Width, frame.Height
	tw, th := tpl.Width, tpl.Height
	if tw > sw || th > sh || len(tpl.Luma) < tw*th || len(tpl.Mask) < tw*th {
		return Result{}, false
	}

	minScore = max(0, min(MaxScore, minScore))
	stride := Stride(tw*th, minScore)
	samples := 0
	for y := 0; y < th; y += stride {
		for x := 0; x < tw; x += stride {
			if tpl.Mask[y*tw+x] {
				samples++
			}
		}
	}
	if samples == 0 {
		return Result{}, false
	}
	maxTotal := 255 * samples

	left, top, right, bottom := 0, 0, sw-tw, sh-th
	if !roi.Empty() {
		left = max(0, roi.Min.X)
		top = max(0, roi.Min.Y)
		right = min(right, roi.Max.X-tw)
		bottom = min(bottom, roi.Max.Y-th)
	}
	if left > right || top > bottom {
		return Result{}, false
	}

	// one immutable frame supplies both the bounds and the buffer
	src := frame.Luma()

	bestScore, bestX, bestY := -1, 0, 0
	for y := top; y <= bottom; y += stride {
	placement:
		for x := left; x <= right; x += stride {
			accum := 0
			for ty := 0; ty < th; ty += stride {
				row := (y+ty)*sw + x
				trow := ty * tw
				for tx := 0; tx < tw; tx += stride {
					if !tpl.Mask[trow+tx] {
						continue
					}
					d := int(src[row+tx]) - int(tpl.Luma[trow+tx])
					if d < 0 {
						d = -d
					}
					accum += d
					// best score still reachable if every remaining sample matches
					if MaxScore-accum*MaxScore/maxTotal < minScore {
						continue placement
					}
				}
			}
			score := max(0, min(MaxScore, MaxScore-accum*MaxScore/maxTotal))
			if score > bestScore {
				bestScore, bestX, bestY = score, x, y
			}
		}
	}

	if bestScore < minScore {
		return Result{}, false
	}
	return Result{X: bestX + tw/2, Y: bestY + th/2, Score: bestScore}, true
}
