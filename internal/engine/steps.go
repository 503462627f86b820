package engine

import (
	"context"
	"image"
	"time"

	"github.com/CanhCl92/AutoAccess/internal/macro"
	"github.com/CanhCl92/AutoAccess/internal/mapping"
	"github.com/CanhCl92/AutoAccess/internal/matcher"
	"github.com/CanhCl92/AutoAccess/internal/trace"
)

func (e *Engine) runStep(ctx context.Context, t *task, index int, s macro.Step) {
	ctx, span := trace.StartSpan(ctx, "macro.step")
	defer span.End()
	span.SetAttr("index", index)
	span.SetAttr("step", macro.Describe(s))

	base := Event{RunID: t.runID, MacroID: t.macro.ID, Step: index, Kind: s.Kind()}
	e.emit(withType(base, EventStep))

	switch v := s.(type) {
	case macro.WaitImage:
		e.locate(ctx, base, v.ID, v.MinScore, v.Timeout)
	case macro.FindImage:
		e.locate(ctx, base, v.ID, v.MinScore, v.Timeout)
	case macro.TapImage:
		res, ok := e.locate(ctx, base, v.ID, v.MinScore, e.opts.LocateTimeout)
		if !ok {
			return
		}
		p, ok := e.toDispatch(ctx, base, mapping.Point{X: float64(res.X + v.DX), Y: float64(res.Y + v.DY)})
		if !ok || ctx.Err() != nil {
			return
		}
		e.gesture(ctx, base, e.sink.Tap(p.X, p.Y, e.opts.TapDuration), p, p)
	case macro.SwipeImage:
		res, ok := e.locate(ctx, base, v.ID, v.MinScore, e.opts.LocateTimeout)
		if !ok {
			return
		}
		from, ok := e.toDispatch(ctx, base, mapping.Point{X: float64(res.X), Y: float64(res.Y)})
		if !ok {
			return
		}
		to, ok := e.toDispatch(ctx, base, mapping.Point{X: float64(res.X + v.DX), Y: float64(res.Y + v.DY)})
		if !ok || ctx.Err() != nil {
			return
		}
		e.gesture(ctx, base, e.sink.Swipe(from.X, from.Y, to.X, to.Y, v.Duration), from, to)
	case macro.Tap:
		p := mapping.Point{X: v.X, Y: v.Y}
		e.gesture(ctx, base, e.sink.Tap(p.X, p.Y, v.Duration), p, p)
	case macro.Swipe:
		from := mapping.Point{X: v.X1, Y: v.Y1}
		to := mapping.Point{X: v.X2, Y: v.Y2}
		e.gesture(ctx, base, e.sink.Swipe(from.X, from.Y, to.X, to.Y, v.Duration), from, to)
	case macro.Back:
		e.sink.Back()
		e.emit(withType(base, EventGesture))
	case macro.Home:
		e.sink.Home()
		e.emit(withType(base, EventGesture))
	case macro.Recent:
		e.sink.Recent()
		e.emit(withType(base, EventGesture))
	}
}

// locate polls the frame source for template id until it matches or timeout
// elapses. At least one attempt is made.
func (e *Engine) locate(ctx context.Context, base Event, id string, minScore int, timeout time.Duration) (matcher.Result, bool) {
	log := trace.Logger(ctx)
	tpl, err := e.templates.Template(id)
	if err != nil {
		log.Warn("template unavailable", "template", id, "error", err)
		ev := withType(base, EventMiss)
		ev.Template, ev.Message = id, err.Error()
		e.emit(ev)
		return matcher.Result{}, false
	}

	deadline := time.Now().Add(timeout)
	for {
		if f := e.frames.LatestFrame(); f != nil {
			if res, ok := matcher.Match(f, tpl, minScore, image.Rectangle{}); ok {
				if e.opts.Recorder != nil {
					e.opts.Recorder.RecordMatch(id, res, f)
				}
				log.Debug("template matched", "template", id, "x", res.X, "y", res.Y, "score", res.Score)
				ev := withType(base, EventMatch)
				ev.Template, ev.X, ev.Y, ev.Score = id, float64(res.X), float64(res.Y), res.Score
				e.emit(ev)
				return res, true
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if !sleep(ctx, min(e.opts.PollInterval, remaining)) {
			return matcher.Result{}, false
		}
	}

	log.Info("template not found", "template", id, "min_score", minScore, "timeout", timeout)
	ev := withType(base, EventMiss)
	ev.Template, ev.Message = id, "timed out"
	e.emit(ev)
	return matcher.Result{}, false
}

func (e *Engine) toDispatch(ctx context.Context, base Event, p mapping.Point) (mapping.Point, bool) {
	out, err := e.mapper.CaptureToDispatch(ctx, p)
	if err != nil {
		trace.Logger(ctx).Warn("cannot map match to dispatch space", "capture", p, "error", err)
		ev := withType(base, EventMiss)
		ev.Message = err.Error()
		e.emit(ev)
		return mapping.Point{}, false
	}
	return out, true
}

func (e *Engine) gesture(ctx context.Context, base Event, scheduled bool, from, to mapping.Point) {
	ev := withType(base, EventGesture)
	ev.X, ev.Y = from.X, from.Y
	if from != to {
		ev.X2, ev.Y2 = to.X, to.Y
	}
	if !scheduled {
		trace.Logger(ctx).Warn("gesture not scheduled", "kind", base.Kind, "at", from)
		ev.Message = "not scheduled"
	}
	e.emit(ev)
}
