package server

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/CanhCl92/AutoAccess/internal/engine"
	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/mapping"
	"github.com/CanhCl92/AutoAccess/internal/orchestrator"
	"github.com/CanhCl92/AutoAccess/internal/store"
)

// StatusResponse reports engine state; ID is null when idle.
type StatusResponse struct {
	Running bool    `json:"running"`
	ID      *string `json:"id"`
	Step    int     `json:"step"`
	RunID   string  `json:"runId,omitempty"`
	Ready   bool    `json:"ready"`
}

func statusResponse(st engine.Status, ready bool) StatusResponse {
	out := StatusResponse{Running: st.Running, Step: st.Step, RunID: st.RunID, Ready: ready}
	if st.MacroID != "" {
		id := st.MacroID
		out.ID = &id
	}
	return out
}

// Rect is the wire form of a rectangle.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func toRect(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": time.Now().UnixMilli()})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse(s.mgr.Status(), s.mgr.Ready()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	window := orchestrator.DefaultEventWindow
	if v := r.URL.Query().Get("seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, apperrors.New(apperrors.InvalidInput, "seconds must be a positive integer"))
			return
		}
		window = time.Duration(n) * time.Second
	}
	h := s.mgr.History()
	writeJSON(w, http.StatusOK, map[string]any{"runs": h.Runs(), "events": h.Recent(window)})
}

func (s *Server) handleSaveMacro(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, MaxBodyBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := s.mgr.SaveMacro(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": m.ID, "version": m.Version, "steps": len(m.Steps)})
}

type macroSummary struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Server) handleListMacros(w http.ResponseWriter, r *http.Request) {
	recs, err := s.mgr.Macros(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]macroSummary, len(recs))
	for i, rec := range recs {
		out[i] = macroSummary{ID: rec.ID, Version: rec.Version, UpdatedAt: rec.UpdatedAt}
	}
	writeJSON(w, http.StatusOK, map[string]any{"macros": out})
}

func (s *Server) handleGetMacro(w http.ResponseWriter, r *http.Request) {
	rec, err := s.mgr.Macro(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteMacro(w http.ResponseWriter, r *http.Request) {
	ok, err := s.mgr.DeleteMacro(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": ok})
}

// isInlineMacro reports whether a run request carries the macro itself
// rather than the id of a stored one.
func isInlineMacro(body []byte) bool {
	root := gjson.ParseBytes(body)
	return root.Get("steps").Exists() || root.Get("macro").IsObject() || root.Get("data").IsObject()
}

func (s *Server) startRun(ctx context.Context, body []byte) (*engine.Handle, error) {
	if isInlineMacro(body) {
		return s.mgr.RunJSON(ctx, body)
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return nil, apperrors.New(apperrors.InvalidInput, "run needs a macro or the id of a stored macro")
	}
	return s.mgr.RunStored(ctx, id)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, MaxBodyBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h, err := s.startRun(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := map[string]any{"ok": true, "runId": h.RunID()}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, cancel := context.WithTimeout(r.Context(), MaxRunWait)
		defer cancel()
		select {
		case <-h.Done():
		case <-ctx.Done():
		}
	}
	resp["outcome"] = h.Outcome()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "stopped": s.mgr.Stop()})
}

func (s *Server) handleSaveAlias(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, MaxBodyBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	root := gjson.ParseBytes(body)
	name := root.Get("name").String()
	steps := root.Get("steps")
	if !steps.IsArray() {
		writeError(w, r, apperrors.New(apperrors.InvalidInput, "alias.steps must be an array"))
		return
	}
	if err := s.mgr.SaveAlias(r.Context(), name, json.RawMessage(steps.Raw)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": name})
}

func (s *Server) handleListAliases(w http.ResponseWriter, r *http.Request) {
	aliases, err := s.mgr.Aliases(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"aliases": aliases})
}

func (s *Server) handleSaveImage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	body, err := readBody(r, MaxImageBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	info, err := s.mgr.SaveTemplate(id, body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "image": info})
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	list, err := s.mgr.TemplateStore().List()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []store.TemplateInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": list})
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	data, err := s.mgr.TemplateStore().Read(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePNG(w, data)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	ok, err := s.mgr.DeleteTemplate(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": ok})
}

// parseCommand accepts the same loose numeric encodings as macro steps.
func parseCommand(body []byte) (orchestrator.Command, error) {
	if !gjson.ValidBytes(body) {
		return orchestrator.Command{}, apperrors.New(apperrors.InvalidInput, "command is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	c := orchestrator.Command{
		Op:    root.Get("op").String(),
		Space: root.Get("space").String(),
	}
	if c.Op == "" {
		c.Op = root.Get("type").String()
	}
	fields := []struct {
		dst  *float64
		keys []string
	}{
		{&c.X, []string{"x", "x1"}},
		{&c.Y, []string{"y", "y1"}},
		{&c.X2, []string{"x2"}},
		{&c.Y2, []string{"y2"}},
	}
	for _, f := range fields {
		for _, k := range f.keys {
			if v := root.Get(k); v.Exists() {
				n, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
				if err != nil {
					return c, apperrors.Newf(apperrors.InvalidInput, "%s must be a number", k)
				}
				*f.dst = n
				break
			}
		}
	}
	for _, k := range []string{"durationMs", "ms", "dur"} {
		if v := root.Get(k); v.Exists() {
			ms, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
			if err != nil || ms < 0 {
				return c, apperrors.Newf(apperrors.InvalidInput, "%s must be a non-negative number", k)
			}
			c.Duration = time.Duration(ms * float64(time.Millisecond))
			break
		}
	}
	return c, nil
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, MaxBodyBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := parseCommand(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.mgr.Dispatch(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCapture(w http.ResponseWriter, _ *http.Request) {
	frames := s.mgr.Frames()
	width, height := frames.FrameSize()
	resp := map[string]any{
		"ready":   frames.Ready(),
		"w":       width,
		"h":       height,
		"content": toRect(frames.ContentRect()),
	}
	if f := frames.LatestFrame(); f != nil && !f.CapturedAt.IsZero() {
		resp["capturedAt"] = f.CapturedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnap(w http.ResponseWriter, r *http.Request) {
	data, err := s.mgr.Snapshot()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePNG(w, data)
}

type sizesResponse struct {
	Capture mapping.Size   `json:"capture"`
	Content Rect           `json:"content"`
	Phys    mapping.Size   `json:"phys"`
	Insets  mapping.Insets `json:"insets"`
	Gesture mapping.Size   `json:"gesture"`
	Ready   bool           `json:"ready"`
	Error   string         `json:"error,omitempty"`
}

func (s *Server) handleSizes(w http.ResponseWriter, r *http.Request) {
	sz := s.mgr.Sizes(r.Context())
	writeJSON(w, http.StatusOK, sizesResponse{
		Capture: sz.Capture,
		Content: toRect(sz.Content),
		Phys:    sz.Phys,
		Insets:  sz.Insets,
		Gesture: sz.Gesture,
		Ready:   sz.Ready,
		Error:   sz.Error,
	})
}

type calibrationResponse struct {
	Affine mapping.Affine `json:"affine"`
	RMSE   float64        `json:"rmse"`
	InUse  bool           `json:"inUse"`
}

func (s *Server) handleMapParams(w http.ResponseWriter, r *http.Request) {
	sp, err := s.mgr.Spaces(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	params, err := sp.Params()
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := map[string]any{
		"capture": sp.Capture,
		"content": toRect(sp.Content),
		"phys":    sp.Phys,
		"insets":  sp.Insets,
		"gesture": sp.Gesture(),
		"params":  params,
	}
	if cal, ok, inUse := s.mgr.Calibration(); ok {
		resp["calibration"] = calibrationResponse{Affine: cal.Affine, RMSE: cal.RMSE, InUse: inUse}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMapConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	if errX != nil || errY != nil {
		writeError(w, r, apperrors.New(apperrors.InvalidInput, "x and y must be numbers"))
		return
	}
	p := mapping.Point{X: x, Y: y}

	var (
		out mapping.Point
		err error
	)
	from := strings.ToLower(q.Get("from"))
	switch from {
	case "", orchestrator.SpaceCapture:
		from = orchestrator.SpaceCapture
		out, err = s.mgr.CaptureToDispatch(r.Context(), p)
	case orchestrator.SpaceDispatch:
		out, err = s.mgr.DispatchToCapture(r.Context(), p)
	default:
		err = apperrors.Newf(apperrors.InvalidInput, "unknown space '%s'", from)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"from": from, "in": p, "out": out})
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	cal, err := s.mgr.Calibrate(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "calibration": cal})
}

func (s *Server) handleUseAffine(w http.ResponseWriter, r *http.Request) {
	use, err := strconv.ParseBool(r.URL.Query().Get("use"))
	if err != nil {
		writeError(w, r, apperrors.New(apperrors.InvalidInput, "use must be true or false"))
		return
	}
	calibrated := s.mgr.SetUseAffine(use)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "use": use, "calibrated": calibrated})
}

func (s *Server) handleDebugLast(w http.ResponseWriter, r *http.Request) {
	last, ok := s.mgr.Recorder().Last()
	if !ok {
		writeError(w, r, apperrors.New(apperrors.NotFound, "no match recorded"))
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func (s *Server) handleDebugOverlay(w http.ResponseWriter, r *http.Request) {
	data, err := s.mgr.Recorder().Overlay()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePNG(w, data)
}

func (s *Server) handleDebugCrop(w http.ResponseWriter, r *http.Request) {
	data, err := s.mgr.Recorder().Crop()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePNG(w, data)
}
