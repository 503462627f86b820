package imaging

import "image"

// Content-rect detection constants.
const (
	BorderSamples   = 96   // samples taken along each scanned column/row
	BorderVariance  = 12.0 // luminance variance below which a line is border
	MinContentRatio = 0.6  // trims leaving less than this share of an axis are discarded
)

// DetectContentRect finds the area inside uniform letterbox/pillarbox borders.
// The result has exclusive right/bottom edges. An axis whose trimmed extent
// would fall below MinContentRatio of the frame keeps its full extent.
func DetectContentRect(f *Frame) image.Rectangle {
	if !f.Valid() {
		return image.Rectangle{}
	}
	w, h := f.Width, f.Height

	colIsBorder := func(x int) bool {
		step := max(1, h/BorderSamples)
		var sum, sum2, n int
		for y := 0; y < h; y += step {
			v := int(f.LumaAt(x, y))
			sum += v
			sum2 += v * v
			n++
		}
		return variance(sum, sum2, n) < BorderVariance
	}
	rowIsBorder := func(y int) bool {
		step := max(1, w/BorderSamples)
		var sum, sum2, n int
		for x := 0; x < w; x += step {
			v := int(f.LumaAt(x, y))
			sum += v
			sum2 += v * v
			n++
		}
		return variance(sum, sum2, n) < BorderVariance
	}

	left := 0
	for left < w-1 && colIsBorder(left) {
		left++
	}
	right := w - 1
	for right > left && colIsBorder(right) {
		right--
	}
	top := 0
	for top < h-1 && rowIsBorder(top) {
		top++
	}
	bottom := h - 1
	for bottom > top && rowIsBorder(bottom) {
		bottom--
	}

	if right-left+1 < int(float64(w)*MinContentRatio) {
		left, right = 0, w-1
	}
	if bottom-top+1 < int(float64(h)*MinContentRatio) {
		top, bottom = 0, h-1
	}
	return image.Rect(left, top, right+1, bottom+1)
}

func variance(sum, sum2, n int) float64 {
	mean := float64(sum) / float64(n)
	return float64(sum2)/float64(n) - mean*mean
}
