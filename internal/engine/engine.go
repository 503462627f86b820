// Package engine executes macros one step at a time against a frame source
// and a gesture sink. At most one macro runs at a time; starting another
// cancels the current one without waiting for it.
package engine

import (
	"context"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/imaging"
	"github.com/CanhCl92/AutoAccess/internal/macro"
	"github.com/CanhCl92/AutoAccess/internal/mapping"
	"github.com/CanhCl92/AutoAccess/internal/matcher"
	"github.com/CanhCl92/AutoAccess/internal/trace"
)

// FrameSource provides the newest capture.
type FrameSource interface {
	LatestFrame() *imaging.Frame
}

// GestureSink injects input. Tap and Swipe only schedule the gesture and
// report whether it was accepted; they must not block.
type GestureSink interface {
	Tap(x, y float64, d time.Duration) bool
	Swipe(x1, y1, x2, y2 float64, d time.Duration) bool
	Back()
	Home()
	Recent()
}

// Templates resolves template ids.
type Templates interface {
	Template(id string) (*matcher.Template, error)
}

// Mapper converts capture points to dispatch points using geometry
// sampled at call time.
type Mapper interface {
	CaptureToDispatch(ctx context.Context, p mapping.Point) (mapping.Point, error)
}

// MatchRecorder receives every successful match with the frame it was found in.
type MatchRecorder interface {
	RecordMatch(id string, res matcher.Result, f *imaging.Frame)
}

const (
	DefaultPollInterval  = 80 * time.Millisecond
	DefaultLocateTimeout = 1200 * time.Millisecond
)

// Options tunes an Engine.
type Options struct {
	PollInterval  time.Duration
	LocateTimeout time.Duration // used by tapImage and swipeImage
	TapDuration   time.Duration // press length for tapImage
	Recorder      MatchRecorder
	OnEvent       func(Event) // must not block
}

// Status is a consistent snapshot of the execution state.
type Status struct {
	Running bool   `json:"running"`
	MacroID string `json:"id"`
	Step    int    `json:"step"`
	RunID   string `json:"runId,omitempty"`
}

var idle = &Status{Step: -1}

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

type task struct {
	runID   string
	macro   *macro.Macro
	ctx     context.Context
	cancel  context.CancelFunc
	status  atomic.Pointer[Status]
	outcome atomic.Value // Outcome
	done    chan struct{}
}

// Handle observes one run.
type Handle struct{ t *task }

// RunID identifies the run.
func (h *Handle) RunID() string { return h.t.runID }

// Done is closed when the run has ended.
func (h *Handle) Done() <-chan struct{} { return h.t.done }

// Outcome reports how the run ended, or OutcomeRunning.
func (h *Handle) Outcome() Outcome { return h.t.outcome.Load().(Outcome) }

// Engine runs macros.
type Engine struct {
	frames    FrameSource
	sink      GestureSink
	templates Templates
	mapper    Mapper
	opts      Options

	current atomic.Pointer[task]
	seq     atomic.Uint64
}

// New creates an engine.
func New(frames FrameSource, sink GestureSink, templates Templates, mapper Mapper, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.LocateTimeout <= 0 {
		opts.LocateTimeout = DefaultLocateTimeout
	}
	if opts.TapDuration <= 0 {
		opts.TapDuration = macro.DefaultTapDuration
	}
	return &Engine{frames: frames, sink: sink, templates: templates, mapper: mapper, opts: opts}
}

// Run starts m in the background, cancelling any run in progress. The
// cancelled run is not awaited.
func (e *Engine) Run(m *macro.Macro) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		runID:  strconv.FormatUint(e.seq.Add(1), 10),
		macro:  m,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.outcome.Store(OutcomeRunning)

	if len(m.Steps) == 0 {
		e.Stop()
		t.outcome.Store(OutcomeCompleted)
		cancel()
		close(t.done)
		return &Handle{t}
	}

	t.status.Store(&Status{Running: true, MacroID: m.ID, Step: 0, RunID: t.runID})
	if old := e.current.Swap(t); old != nil {
		old.cancel()
	}
	go e.execute(t)
	return &Handle{t}
}

// Stop cancels the current run and reports whether one was active.
func (e *Engine) Stop() bool {
	t := e.current.Load()
	if t == nil {
		return false
	}
	t.cancel()
	return true
}

// Status returns the current execution state.
func (e *Engine) Status() Status {
	t := e.current.Load()
	if t == nil {
		return *idle
	}
	return *t.status.Load()
}

func (e *Engine) execute(t *task) {
	ctx, span := trace.StartSpan(t.ctx, "macro.run")
	span.SetAttr("macro", t.macro.ID)
	span.SetAttr("run", t.runID)
	log := trace.Logger(ctx).With("macro", t.macro.ID, "run", t.runID)

	outcome := OutcomeCompleted
	defer func() {
		if r := recover(); r != nil {
			err := apperrors.Newf(apperrors.WorkerFault, "macro worker panicked: %v", r)
			log.Error("macro worker fault", "error", err, "stack", string(debug.Stack()))
			span.Fail(err)
			outcome = OutcomeFailed
			e.emit(Event{Type: EventRunFailed, RunID: t.runID, MacroID: t.macro.ID, Step: -1, Message: err.Message})
		}
		t.status.Store(idle)
		t.outcome.Store(outcome)
		e.current.CompareAndSwap(t, nil)
		t.cancel()

		switch outcome {
		case OutcomeCompleted:
			e.emit(Event{Type: EventRunFinished, RunID: t.runID, MacroID: t.macro.ID, Step: -1})
		case OutcomeCancelled:
			e.emit(Event{Type: EventRunCancelled, RunID: t.runID, MacroID: t.macro.ID, Step: -1})
		}
		span.SetAttr("outcome", string(outcome))
		span.End()
		log.Info("macro finished", "outcome", outcome, "duration", span.Duration())
		close(t.done)
	}()

	log.Info("macro started", "steps", len(t.macro.Steps))
	e.emit(Event{Type: EventRunStarted, RunID: t.runID, MacroID: t.macro.ID, Step: -1})

	for i, s := range t.macro.Steps {
		if ctx.Err() != nil {
			outcome = OutcomeCancelled
			return
		}
		t.status.Store(&Status{Running: true, MacroID: t.macro.ID, Step: i, RunID: t.runID})
		e.runStep(ctx, t, i, s)
	}
	if ctx.Err() != nil {
		outcome = OutcomeCancelled
	}
}

func (e *Engine) emit(ev Event) {
	if e.opts.OnEvent == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	e.opts.OnEvent(ev)
}

// sleep waits for d or until ctx is cancelled, reporting false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
