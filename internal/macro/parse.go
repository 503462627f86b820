package macro

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
)

// Field aliases accepted in step objects.
var (
	typeKeys     = []string{"type", "op"}
	idKeys       = []string{"id", "templateId", "name"}
	scoreKeys    = []string{"minScore", "score", "threshold"}
	timeoutKeys  = []string{"timeoutMs", "timeout", "ms"}
	durationKeys = []string{"durationMs", "dur", "durMs", "ms"}
	dxKeys       = []string{"dx", "offsetX"}
	dyKeys       = []string{"dy", "offsetY"}
)

func invalid(format string, args ...any) *apperrors.AppError {
	return apperrors.Newf(apperrors.InvalidInput, format, args...)
}

// Unwrap returns the macro object from a request body that may nest it
// under "macro" or "data".
func Unwrap(body []byte) []byte {
	root := gjson.ParseBytes(body)
	for _, key := range []string{"macro", "data"} {
		if inner := root.Get(key); inner.IsObject() {
			return []byte(inner.Raw)
		}
	}
	return body
}

// Parse converts macro JSON into a Macro. Unknown step types, missing
// required fields and non-numeric numbers are InvalidInput errors.
func Parse(data []byte) (*Macro, error) {
	if !gjson.ValidBytes(data) {
		return nil, invalid("macro is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, invalid("macro must be a JSON object")
	}

	id := text(root.Get("id"))
	if id == "" {
		return nil, invalid("macro.id is required")
	}

	version := DefaultVersion
	if v := root.Get("version"); v.Exists() && v.Type != gjson.Null {
		f, ok := number(v)
		if !ok {
			return nil, invalid("macro.version must be a number")
		}
		version = int(math.Round(f))
	}

	steps := root.Get("steps")
	if !steps.IsArray() {
		return nil, invalid("macro.steps must be an array")
	}
	m := &Macro{ID: id, Version: version}
	for i, raw := range steps.Array() {
		s, err := parseStep(raw, i)
		if err != nil {
			return nil, err.WithMetadata("macro", id)
		}
		m.Steps = append(m.Steps, s)
	}
	return m, nil
}

// parseStep converts one step object. index is used in error messages.
func parseStep(obj gjson.Result, index int) (Step, *apperrors.AppError) {
	if !obj.IsObject() {
		return nil, invalid("steps[%d] must be an object", index)
	}
	p := fieldParser{obj: obj, index: index}

	rawType := text(p.first(typeKeys...))
	if rawType == "" {
		return nil, invalid("steps[%d].type is required", index)
	}
	id := text(p.first(idKeys...))

	switch strings.ToLower(rawType) {
	case "waitimage", "wait_image", "wait":
		s := WaitImage{ID: id, MinScore: p.score(), Timeout: p.duration(DefaultWaitTimeout, timeoutKeys...)}
		return s, p.requireID(id)
	case "findimage", "find_image", "find", "imagefind":
		s := FindImage{ID: id, MinScore: p.score(), Timeout: p.duration(DefaultFindTimeout, timeoutKeys...)}
		return s, p.requireID(id)
	case "tapimage", "tap_image", "tapimg":
		return p.tapImage(id)
	case "swipeimage", "swipe_image", "swipeimg":
		return p.swipeImage(id)
	case "tap":
		if id != "" {
			return p.tapImage(id)
		}
		s := Tap{
			X:        p.coord("x"),
			Y:        p.coord("y"),
			Duration: p.duration(DefaultTapDuration, durationKeys...),
		}
		return s, p.err
	case "swipe":
		if id != "" {
			return p.swipeImage(id)
		}
		s := Swipe{
			X1:       p.coord("x1", "x"),
			Y1:       p.coord("y1", "y"),
			X2:       p.coord("x2"),
			Y2:       p.coord("y2"),
			Duration: p.duration(DefaultSwipeDuration, durationKeys...),
		}
		return s, p.err
	case "back":
		return Back{}, nil
	case "home":
		return Home{}, nil
	case "recent", "recents", "menu":
		return Recent{}, nil
	default:
		return nil, invalid("unknown step type '%s' at steps[%d]", rawType, index)
	}
}

// fieldParser reads aliased fields from a step and keeps the first error.
type fieldParser struct {
	obj   gjson.Result
	index int
	err   *apperrors.AppError
}

func (p *fieldParser) first(keys ...string) gjson.Result {
	for _, k := range keys {
		if r := p.obj.Get(k); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

func (p *fieldParser) fail(e *apperrors.AppError) {
	if p.err == nil {
		p.err = e
	}
}

func (p *fieldParser) requireID(id string) *apperrors.AppError {
	if id == "" {
		p.fail(invalid("steps[%d].id is required", p.index))
	}
	return p.err
}

func (p *fieldParser) float(name string, keys []string) (float64, bool) {
	r := p.first(keys...)
	if !r.Exists() {
		return 0, false
	}
	f, ok := number(r)
	if !ok {
		p.fail(invalid("steps[%d].%s must be a number, got %s", p.index, name, r.Raw))
		return 0, false
	}
	return f, true
}

// coord reads a required dispatch coordinate, keeping fractional pixels.
func (p *fieldParser) coord(name string, aliases ...string) float64 {
	f, ok := p.float(name, append([]string{name}, aliases...))
	if !ok && p.err == nil {
		p.fail(invalid("steps[%d].%s is required", p.index, name))
	}
	return f
}

func (p *fieldParser) score() int {
	f, ok := p.float("minScore", scoreKeys)
	if !ok {
		return DefaultMinScore
	}
	return max(0, min(MaxMinScore, int(math.Round(f))))
}

func (p *fieldParser) duration(def time.Duration, keys ...string) time.Duration {
	f, ok := p.float(keys[0], keys)
	if !ok {
		return def
	}
	if f < 0 {
		p.fail(invalid("steps[%d].%s must not be negative", p.index, keys[0]))
		return def
	}
	return time.Duration(f) * time.Millisecond
}

func (p *fieldParser) offset(keys []string) int {
	f, _ := p.float(keys[0], keys)
	return int(math.Round(f))
}

func (p *fieldParser) tapImage(id string) (Step, *apperrors.AppError) {
	s := TapImage{ID: id, MinScore: p.score(), DX: p.offset(dxKeys), DY: p.offset(dyKeys)}
	return s, p.requireID(id)
}

func (p *fieldParser) swipeImage(id string) (Step, *apperrors.AppError) {
	s := SwipeImage{
		ID:       id,
		MinScore: p.score(),
		DX:       p.offset(dxKeys),
		DY:       p.offset(dyKeys),
		Duration: p.duration(DefaultSwipeDuration, durationKeys...),
	}
	return s, p.requireID(id)
}

// number accepts JSON numbers and numeric strings.
func number(r gjson.Result) (float64, bool) {
	var f float64
	switch r.Type {
	case gjson.Number:
		f = r.Num
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, false
		}
		f = v
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// text accepts strings and numbers as identifiers.
func text(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return strings.TrimSpace(r.Str)
	case gjson.Number:
		return r.Raw
	}
	return ""
}

// Encode renders m in canonical form: one "type" per step and explicit defaults.
func Encode(m *Macro) ([]byte, error) {
	steps := make([]map[string]any, 0, len(m.Steps))
	for _, s := range m.Steps {
		e := map[string]any{"type": string(s.Kind())}
		switch v := s.(type) {
		case WaitImage:
			e["id"], e["minScore"], e["timeoutMs"] = v.ID, v.MinScore, v.Timeout.Milliseconds()
		case FindImage:
			e["id"], e["minScore"], e["timeoutMs"] = v.ID, v.MinScore, v.Timeout.Milliseconds()
		case TapImage:
			e["id"], e["minScore"], e["dx"], e["dy"] = v.ID, v.MinScore, v.DX, v.DY
		case SwipeImage:
			e["id"], e["minScore"], e["dx"], e["dy"] = v.ID, v.MinScore, v.DX, v.DY
			e["durationMs"] = v.Duration.Milliseconds()
		case Tap:
			e["x"], e["y"], e["durationMs"] = v.X, v.Y, v.Duration.Milliseconds()
		case Swipe:
			e["x1"], e["y1"], e["x2"], e["y2"] = v.X1, v.Y1, v.X2, v.Y2
			e["durationMs"] = v.Duration.Milliseconds()
		}
		steps = append(steps, e)
	}
	return json.Marshal(map[string]any{"id": m.ID, "version": m.Version, "steps": steps})
}
