package orchestrator

import (
	"context"
	"image"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/mapping"
	"github.com/CanhCl92/AutoAccess/internal/syncx"
	"github.com/CanhCl92/AutoAccess/internal/trace"
)

// Spaces samples the current geometry. It is recomputed on every call.
func (m *Manager) Spaces(ctx context.Context) (mapping.Spaces, error) {
	w, h := m.frames.FrameSize()
	if w <= 0 || h <= 0 {
		return mapping.Spaces{}, apperrors.New(apperrors.GeometryUnavailable, "no frame captured yet")
	}
	phys, insets, err := m.display.DisplayInfo(ctx)
	if err != nil {
		return mapping.Spaces{}, apperrors.Wrap(err, apperrors.GeometryUnavailable, "display size unavailable")
	}
	return mapping.Spaces{
		Capture: mapping.Size{Width: w, Height: h},
		Content: m.frames.ContentRect(),
		Phys:    phys,
		Insets:  insets,
	}, nil
}

// Sizes is a best-effort geometry report; fields that cannot be sampled stay zero.
type Sizes struct {
	Capture mapping.Size    `json:"capture"`
	Content image.Rectangle `json:"content"`
	Phys    mapping.Size    `json:"phys"`
	Insets  mapping.Insets  `json:"insets"`
	Gesture mapping.Size    `json:"gesture"`
	Ready   bool            `json:"ready"`
	Error   string          `json:"error,omitempty"`
}

// Sizes reports every geometry input without failing.
func (m *Manager) Sizes(ctx context.Context) Sizes {
	w, h := m.frames.FrameSize()
	out := Sizes{
		Capture: mapping.Size{Width: w, Height: h},
		Content: m.frames.ContentRect(),
		Ready:   m.frames.Ready(),
	}
	phys, insets, err := m.display.DisplayInfo(ctx)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Phys, out.Insets = phys, insets
	out.Gesture = mapping.Spaces{Phys: phys, Insets: insets}.Gesture()
	return out
}

// Transform returns the mapping in effect: the calibrated affine when one
// exists and is enabled, otherwise the deterministic mapping for the
// current geometry.
func (m *Manager) Transform(ctx context.Context) (mapping.Transform, error) {
	st := m.affine.Get()
	if st.use && st.cal != nil {
		return st.cal.Affine, nil
	}
	s, err := m.Spaces(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CaptureToDispatch maps a capture point to dispatch space.
func (m *Manager) CaptureToDispatch(ctx context.Context, p mapping.Point) (mapping.Point, error) {
	t, err := m.Transform(ctx)
	if err != nil {
		return mapping.Point{}, err
	}
	return t.ToDispatch(p)
}

// DispatchToCapture maps a dispatch point to capture space.
func (m *Manager) DispatchToCapture(ctx context.Context, p mapping.Point) (mapping.Point, error) {
	t, err := m.Transform(ctx)
	if err != nil {
		return mapping.Point{}, err
	}
	return t.ToCapture(p)
}

// Calibrate runs the three-point calibration and keeps the result. The
// affine is enabled immediately.
func (m *Manager) Calibrate(ctx context.Context) (mapping.Calibration, error) {
	ctx, span := trace.StartSpan(ctx, "calibrate")
	defer span.End()

	s, err := m.Spaces(ctx)
	if err != nil {
		span.Fail(err)
		return mapping.Calibration{}, err
	}
	cal, err := m.calibrator.Run3pt(ctx, s)
	if err != nil {
		span.Fail(err)
		trace.Logger(ctx).Warn("calibration failed", "error", err)
		return mapping.Calibration{}, err
	}
	m.affine.Set(affineState{cal: &cal, use: true})
	span.SetAttr("rmse", cal.RMSE)
	return cal, nil
}

// SetUseAffine toggles use of the calibrated affine and reports whether a
// calibration exists to be used.
func (m *Manager) SetUseAffine(use bool) bool {
	m.affine.Write(func(st *affineState) { st.use = use })
	return syncx.View(m.affine, func(st affineState) bool { return st.cal != nil })
}

// Calibration returns the stored calibration and whether it is in use.
func (m *Manager) Calibration() (cal mapping.Calibration, ok, inUse bool) {
	st := m.affine.Get()
	if st.cal == nil {
		return mapping.Calibration{}, false, false
	}
	return *st.cal, true, st.use
}
