package engine

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/imaging"
	"github.com/CanhCl92/AutoAccess/internal/macro"
	"github.com/CanhCl92/AutoAccess/internal/mapping"
	"github.com/CanhCl92/AutoAccess/internal/matcher"
)

type gestureCall struct {
	kind         string
	x, y, x2, y2 float64
	d            time.Duration
}

type fakeSink struct {
	mu      sync.Mutex
	calls   []gestureCall
	reject  bool
	panicOn string
}

func (s *fakeSink) record(c gestureCall) bool {
	if s.panicOn == c.kind {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	return !s.reject
}

func (s *fakeSink) Tap(x, y float64, d time.Duration) bool {
	return s.record(gestureCall{kind: "tap", x: x, y: y, d: d})
}

func (s *fakeSink) Swipe(x1, y1, x2, y2 float64, d time.Duration) bool {
	return s.record(gestureCall{kind: "swipe", x: x1, y: y1, x2: x2, y2: y2, d: d})
}

func (s *fakeSink) Back()   { s.record(gestureCall{kind: "back"}) }
func (s *fakeSink) Home()   { s.record(gestureCall{kind: "home"}) }
func (s *fakeSink) Recent() { s.record(gestureCall{kind: "recent"}) }

func (s *fakeSink) snapshot() []gestureCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gestureCall(nil), s.calls...)
}

type fakeFrames struct{ f atomic.Pointer[imaging.Frame] }

func (f *fakeFrames) LatestFrame() *imaging.Frame { return f.f.Load() }

type fakeTemplates map[string]*matcher.Template

func (t fakeTemplates) Template(id string) (*matcher.Template, error) {
	if tpl, ok := t[id]; ok {
		return tpl, nil
	}
	return nil, apperrors.Newf(apperrors.NotFound, "template %q not found", id)
}

// halfMapper maps capture to dispatch by halving both axes.
type halfMapper struct{ err error }

func (m halfMapper) CaptureToDispatch(_ context.Context, p mapping.Point) (mapping.Point, error) {
	if m.err != nil {
		return mapping.Point{}, m.err
	}
	return mapping.Point{X: p.X / 2, Y: p.Y / 2}, nil
}

type recorder struct {
	mu   sync.Mutex
	hits []matcher.Result
}

func (r *recorder) RecordMatch(_ string, res matcher.Result, _ *imaging.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, res)
}

func noise(x, y int) uint8 {
	h := uint32(x)*73856093 ^ uint32(y)*19349663
	h ^= h >> 13
	h *= 0x5bd1e995
	h ^= h >> 15
	return uint8(h)
}

func texturedFrame(w, h int) *imaging.Frame {
	f := &imaging.Frame{Pix: make([]uint8, w*h*4), Width: w, Height: h}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			v := noise(x, y)
			f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = v, v, v, 0xff
		}
	}
	return f
}

func crop(f *imaging.Frame, r image.Rectangle) *imaging.Frame {
	out := &imaging.Frame{Pix: make([]uint8, r.Dx()*r.Dy()*4), Width: r.Dx(), Height: r.Dy()}
	for y := 0; y < r.Dy(); y++ {
		src := ((r.Min.Y+y)*f.Width + r.Min.X) * 4
		copy(out.Pix[y*r.Dx()*4:(y+1)*r.Dx()*4], f.Pix[src:src+r.Dx()*4])
	}
	return out
}

type harness struct {
	engine *Engine
	sink   *fakeSink
	frames *fakeFrames
	rec    *recorder

	mu     sync.Mutex
	events []Event
}

func newHarness(t *testing.T, tpls fakeTemplates, mapper Mapper) *harness {
	t.Helper()
	h := &harness{sink: &fakeSink{}, frames: &fakeFrames{}, rec: &recorder{}}
	if mapper == nil {
		mapper = halfMapper{}
	}
	h.engine = New(h.frames, h.sink, tpls, mapper, Options{
		PollInterval:  5 * time.Millisecond,
		LocateTimeout: 100 * time.Millisecond,
		Recorder:      h.rec,
		OnEvent: func(ev Event) {
			h.mu.Lock()
			h.events = append(h.events, ev)
			h.mu.Unlock()
		},
	})
	return h
}

func (h *harness) eventTypes() []EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]EventType, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.Type
	}
	return out
}

func wait(t *testing.T, hd *Handle) {
	t.Helper()
	select {
	case <-hd.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestRunSingleTap(t *testing.T) {
	h := newHarness(t, fakeTemplates{}, nil)

	hd := h.engine.Run(&macro.Macro{ID: "m1", Steps: []macro.Step{
		macro.Tap{X: 100, Y: 200, Duration: 80 * time.Millisecond},
	}})
	wait(t, hd)

	calls := h.sink.snapshot()
	want := gestureCall{kind: "tap", x: 100, y: 200, d: 80 * time.Millisecond}
	if len(calls) != 1 || calls[0] != want {
		t.Fatalf("calls = %+v, want [%+v]", calls, want)
	}
	if hd.Outcome() != OutcomeCompleted {
		t.Errorf("outcome = %s", hd.Outcome())
	}
	if got := h.engine.Status(); got != (Status{Step: -1}) {
		t.Errorf("status after run = %+v", got)
	}
}

func TestRunFractionalCoordinates(t *testing.T) {
	h := newHarness(t, fakeTemplates{}, nil)

	wait(t, h.engine.Run(&macro.Macro{ID: "m", Steps: []macro.Step{
		macro.Tap{X: 100.5, Y: 200.25, Duration: 80 * time.Millisecond},
		macro.Swipe{X1: 1.5, Y1: 2, X2: 3.75, Y2: 4, Duration: 100 * time.Millisecond},
	}}))

	calls := h.sink.snapshot()
	want := []gestureCall{
		{kind: "tap", x: 100.5, y: 200.25, d: 80 * time.Millisecond},
		{kind: "swipe", x: 1.5, y: 2, x2: 3.75, y2: 4, d: 100 * time.Millisecond},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %+v, want %+v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestRunAllStepKinds(t *testing.T) {
	frame := texturedFrame(120, 90)
	tpls := fakeTemplates{"btn": matcher.Prepare("btn", crop(frame, image.Rect(40, 30, 56, 42)))}
	h := newHarness(t, tpls, nil)
	h.frames.f.Store(frame)

	hd := h.engine.Run(&macro.Macro{ID: "all", Steps: []macro.Step{
		macro.WaitImage{ID: "btn", MinScore: 900, Timeout: 50 * time.Millisecond},
		macro.FindImage{ID: "btn", MinScore: 900, Timeout: 50 * time.Millisecond},
		macro.TapImage{ID: "btn", MinScore: 900, DX: 2, DY: -4},
		macro.SwipeImage{ID: "btn", MinScore: 900, DX: 10, Duration: 300 * time.Millisecond},
		macro.Swipe{X1: 1, Y1: 2, X2: 3, Y2: 4, Duration: 250 * time.Millisecond},
		macro.Back{},
		macro.Home{},
		macro.Recent{},
	}})
	wait(t, hd)

	// centroid is (48,36); the mapper halves coordinates
	want := []gestureCall{
		{kind: "tap", x: 25, y: 16, d: macro.DefaultTapDuration},
		{kind: "swipe", x: 24, y: 18, x2: 29, y2: 18, d: 300 * time.Millisecond},
		{kind: "swipe", x: 1, y: 2, x2: 3, y2: 4, d: 250 * time.Millisecond},
		{kind: "back"},
		{kind: "home"},
		{kind: "recent"},
	}
	got := h.sink.snapshot()
	if len(got) != len(want) {
		t.Fatalf("calls = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	h.rec.mu.Lock()
	hits := len(h.rec.hits)
	h.rec.mu.Unlock()
	if hits != 4 {
		t.Errorf("recorded %d matches, want 4", hits)
	}
}

func TestRunMissingTemplateContinues(t *testing.T) {
	h := newHarness(t, fakeTemplates{}, nil)

	hd := h.engine.Run(&macro.Macro{ID: "m", Steps: []macro.Step{
		macro.TapImage{ID: "ghost", MinScore: 800},
		macro.Back{},
	}})
	wait(t, hd)

	calls := h.sink.snapshot()
	if len(calls) != 1 || calls[0].kind != "back" {
		t.Errorf("calls = %+v, want only back", calls)
	}
	if hd.Outcome() != OutcomeCompleted {
		t.Errorf("outcome = %s", hd.Outcome())
	}
}

func TestRunGeometryUnavailableSkipsGesture(t *testing.T) {
	frame := texturedFrame(80, 60)
	tpls := fakeTemplates{"btn": matcher.Prepare("btn", crop(frame, image.Rect(10, 10, 26, 22)))}
	h := newHarness(t, tpls, halfMapper{err: apperrors.New(apperrors.GeometryUnavailable, "no frame")})
	h.frames.f.Store(frame)

	hd := h.engine.Run(&macro.Macro{ID: "m", Steps: []macro.Step{
		macro.TapImage{ID: "btn", MinScore: 900},
		macro.Home{},
	}})
	wait(t, hd)

	calls := h.sink.snapshot()
	if len(calls) != 1 || calls[0].kind != "home" {
		t.Errorf("calls = %+v, want only home", calls)
	}
}

func TestWaitImageTimesOut(t *testing.T) {
	frame := texturedFrame(80, 60)
	other := texturedFrame(200, 200)
	tpls := fakeTemplates{"btn": matcher.Prepare("btn", crop(other, image.Rect(150, 150, 166, 162)))}
	h := newHarness(t, tpls, nil)
	h.frames.f.Store(frame)

	start := time.Now()
	hd := h.engine.Run(&macro.Macro{ID: "m", Steps: []macro.Step{
		macro.WaitImage{ID: "btn", MinScore: 950, Timeout: 60 * time.Millisecond},
	}})
	wait(t, hd)

	if el := time.Since(start); el < 60*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", el)
	}
	if hd.Outcome() != OutcomeCompleted {
		t.Errorf("outcome = %s", hd.Outcome())
	}
}

func TestStatusWhileRunning(t *testing.T) {
	h := newHarness(t, fakeTemplates{"btn": matcher.Prepare("btn", texturedFrame(4, 4))}, nil)

	hd := h.engine.Run(&macro.Macro{ID: "slow", Steps: []macro.Step{
		macro.Back{},
		macro.WaitImage{ID: "btn", MinScore: 1000, Timeout: 5 * time.Second},
	}})
	waitFor(t, func() bool { return h.engine.Status().Step == 1 })

	st := h.engine.Status()
	if !st.Running || st.MacroID != "slow" || st.RunID != hd.RunID() {
		t.Errorf("status = %+v", st)
	}

	if !h.engine.Stop() {
		t.Error("Stop() = false while running")
	}
	wait(t, hd)
	if hd.Outcome() != OutcomeCancelled {
		t.Errorf("outcome = %s, want cancelled", hd.Outcome())
	}
	if got := h.engine.Status(); got.Running || got.Step != -1 {
		t.Errorf("status after stop = %+v", got)
	}
	if h.engine.Stop() {
		t.Error("Stop() = true while idle")
	}
}

func TestRunReplacesCurrent(t *testing.T) {
	h := newHarness(t, fakeTemplates{"btn": matcher.Prepare("btn", texturedFrame(4, 4))}, nil)

	first := h.engine.Run(&macro.Macro{ID: "a", Steps: []macro.Step{
		macro.WaitImage{ID: "btn", MinScore: 1000, Timeout: 5 * time.Second},
		macro.Tap{X: 1, Y: 1, Duration: time.Millisecond},
	}})
	waitFor(t, func() bool { return h.engine.Status().MacroID == "a" })

	second := h.engine.Run(&macro.Macro{ID: "b", Steps: []macro.Step{
		macro.WaitImage{ID: "btn", MinScore: 1000, Timeout: 30 * time.Millisecond},
		macro.Tap{X: 2, Y: 2, Duration: time.Millisecond},
	}})
	if st := h.engine.Status(); st.MacroID != "b" {
		t.Errorf("status right after replace = %+v, want macro b", st)
	}

	wait(t, first)
	if first.Outcome() != OutcomeCancelled {
		t.Errorf("first outcome = %s, want cancelled", first.Outcome())
	}
	wait(t, second)
	if second.Outcome() != OutcomeCompleted {
		t.Errorf("second outcome = %s", second.Outcome())
	}

	calls := h.sink.snapshot()
	if len(calls) != 1 || calls[0].x != 2 {
		t.Errorf("calls = %+v, want only the second macro's tap", calls)
	}
	if got := h.engine.Status(); got.Running {
		t.Errorf("status = %+v, want idle", got)
	}
}

func TestRunEmptyMacroStopsCurrent(t *testing.T) {
	h := newHarness(t, fakeTemplates{"btn": matcher.Prepare("btn", texturedFrame(4, 4))}, nil)

	first := h.engine.Run(&macro.Macro{ID: "a", Steps: []macro.Step{
		macro.WaitImage{ID: "btn", MinScore: 1000, Timeout: 5 * time.Second},
	}})
	waitFor(t, func() bool { return h.engine.Status().Running })

	empty := h.engine.Run(&macro.Macro{ID: "empty"})
	wait(t, empty)
	wait(t, first)
	if first.Outcome() != OutcomeCancelled {
		t.Errorf("first outcome = %s", first.Outcome())
	}
	if got := h.engine.Status(); got.Running {
		t.Errorf("status = %+v, want idle", got)
	}
}

func TestWorkerPanicIsContained(t *testing.T) {
	h := newHarness(t, fakeTemplates{}, nil)
	h.sink.panicOn = "home"

	hd := h.engine.Run(&macro.Macro{ID: "boom", Steps: []macro.Step{macro.Home{}, macro.Back{}}})
	wait(t, hd)
	if hd.Outcome() != OutcomeFailed {
		t.Errorf("outcome = %s, want failed", hd.Outcome())
	}
	if got := h.engine.Status(); got.Running {
		t.Errorf("status = %+v, want idle", got)
	}

	h.sink.panicOn = ""
	next := h.engine.Run(&macro.Macro{ID: "ok", Steps: []macro.Step{macro.Back{}}})
	wait(t, next)
	if next.Outcome() != OutcomeCompleted {
		t.Errorf("engine unusable after panic: %s", next.Outcome())
	}

	types := h.eventTypes()
	var failed bool
	for _, ty := range types {
		if ty == EventRunFailed {
			failed = true
		}
	}
	if !failed {
		t.Errorf("events %v missing %s", types, EventRunFailed)
	}
}

func TestRejectedGestureDoesNotAbort(t *testing.T) {
	h := newHarness(t, fakeTemplates{}, nil)
	h.sink.reject = true

	hd := h.engine.Run(&macro.Macro{ID: "m", Steps: []macro.Step{
		macro.Tap{X: 1, Y: 1, Duration: time.Millisecond},
		macro.Tap{X: 2, Y: 2, Duration: time.Millisecond},
	}})
	wait(t, hd)
	if n := len(h.sink.snapshot()); n != 2 {
		t.Errorf("attempted %d taps, want 2", n)
	}

	var notScheduled int
	h.mu.Lock()
	for _, ev := range h.events {
		if ev.Type == EventGesture && ev.Message == "not scheduled" {
			notScheduled++
		}
	}
	h.mu.Unlock()
	if notScheduled != 2 {
		t.Errorf("not-scheduled events = %d, want 2", notScheduled)
	}
}
