package mapping

import (
	"math"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
)

// Affine maps dispatch space to capture space:
//
//	x' = A*x + B*y + Tx
//	y' = C*x + D*y + Ty
type Affine struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Tx float64 `json:"tx"`
	Ty float64 `json:"ty"`
}

const singularEpsilon = 1e-9

// Apply maps p forward.
func (m Affine) Apply(p Point) Point {
	return Point{X: m.A*p.X + m.B*p.Y + m.Tx, Y: m.C*p.X + m.D*p.Y + m.Ty}
}

// ToCapture is Apply.
func (m Affine) ToCapture(p Point) (Point, error) { return m.Apply(p), nil }

// ToDispatch applies the inverse transform.
func (m Affine) ToDispatch(p Point) (Point, error) {
	det := m.A*m.D - m.B*m.C
	if math.Abs(det) < singularEpsilon {
		return Point{}, apperrors.New(apperrors.GeometryUnavailable, "affine transform is singular")
	}
	x, y := p.X-m.Tx, p.Y-m.Ty
	return Point{X: (m.D*x - m.B*y) / det, Y: (m.A*y - m.C*x) / det}, nil
}

// FitAffine solves the affine that maps the three src points exactly onto dst.
func FitAffine(src, dst [3]Point) (Affine, error) {
	m := [3][3]float64{
		{src[0].X, src[0].Y, 1},
		{src[1].X, src[1].Y, 1},
		{src[2].X, src[2].Y, 1},
	}
	ax, okx := solve3(m, [3]float64{dst[0].X, dst[1].X, dst[2].X})
	ay, oky := solve3(m, [3]float64{dst[0].Y, dst[1].Y, dst[2].Y})
	if !okx || !oky {
		return Affine{}, apperrors.New(apperrors.CalibrationFailure, "calibration points are collinear")
	}
	return Affine{A: ax[0], B: ax[1], Tx: ax[2], C: ay[0], D: ay[1], Ty: ay[2]}, nil
}

// solve3 solves m·x = v by Cramer's rule.
func solve3(m [3][3]float64, v [3]float64) ([3]float64, bool) {
	det := det3(m)
	if math.Abs(det) < singularEpsilon {
		return [3]float64{}, false
	}
	var out [3]float64
	for col := 0; col < 3; col++ {
		mc := m
		for row := 0; row < 3; row++ {
			mc[row][col] = v[row]
		}
		out[col] = det3(mc) / det
	}
	return out, true
}

func det3(m [3][3]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// RMSE is the root-mean-square distance between m(src[i]) and dst[i].
func RMSE(m Affine, src, dst []Point) float64 {
	n := min(len(src), len(dst))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		p := m.Apply(src[i])
		dx, dy := p.X-dst[i].X, p.Y-dst[i].Y
		sum += dx*dx + dy*dy
	}
	return math.Sqrt(sum / float64(n))
}
