package orchestrator

import (
	"context"
	"encoding/json"
	"image"

	"github.com/CanhCl92/AutoAccess/internal/debugview"
	"github.com/CanhCl92/AutoAccess/internal/engine"
	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/macro"
	"github.com/CanhCl92/AutoAccess/internal/mapping"
	"github.com/CanhCl92/AutoAccess/internal/matcher"
	"github.com/CanhCl92/AutoAccess/internal/orchestrator/history"
	"github.com/CanhCl92/AutoAccess/internal/store"
	"github.com/CanhCl92/AutoAccess/internal/syncx"
	"github.com/CanhCl92/AutoAccess/internal/trace"
)

// FrameSource is the capture side as seen by the manager.
type FrameSource interface {
	engine.FrameSource
	FrameSize() (int, int)
	ContentRect() image.Rectangle
	Ready() bool
}

// Display reports the physical screen size and system-bar insets.
type Display interface {
	DisplayInfo(ctx context.Context) (mapping.Size, mapping.Insets, error)
}

// Deps are the components a Manager coordinates.
type Deps struct {
	Frames    FrameSource
	Display   Display
	Sink      engine.GestureSink
	Templates *store.Templates
	Macros    store.MacroStore
	Cache     *matcher.Cache
	Recorder  *debugview.Recorder
	Markers   mapping.MarkerDisplay // optional; nil when markers are shown by the client
	Engine    engine.Options
}

type affineState struct {
	cal *mapping.Calibration
	use bool
}

// Manager is the context object shared by the control surfaces.
type Manager struct {
	frames    FrameSource
	display   Display
	sink      engine.GestureSink
	templates *store.Templates
	macros    store.MacroStore
	cache     *matcher.Cache
	recorder  *debugview.Recorder

	engine     *engine.Engine
	history    *history.Store
	calibrator *mapping.Calibrator
	affine     *syncx.Guard[affineState]
}

// New creates a manager. Cache and Recorder are created when nil.
func New(d Deps) *Manager {
	if d.Cache == nil {
		d.Cache = matcher.NewCache(matcher.DefaultCacheSize)
	}
	if d.Recorder == nil {
		d.Recorder = debugview.NewRecorder(debugview.DefaultMaxWidth)
	}
	if d.Macros == nil {
		d.Macros = store.NewMemory()
	}

	m := &Manager{
		frames:     d.Frames,
		display:    d.Display,
		sink:       d.Sink,
		templates:  d.Templates,
		macros:     d.Macros,
		cache:      d.Cache,
		recorder:   d.Recorder,
		history:    history.NewStore(HistoryMaxEntries, HistoryMaxRuns, HistoryEventBuffer),
		calibrator: &mapping.Calibrator{Frames: d.Frames, Display: d.Markers},
		affine:     syncx.NewGuard(affineState{}),
	}

	opts := d.Engine
	opts.Recorder = d.Recorder
	next := opts.OnEvent
	opts.OnEvent = func(ev engine.Event) {
		m.history.Add(ev)
		m.history.Emit(ev)
		if next != nil {
			next(ev)
		}
	}
	m.engine = engine.New(d.Frames, d.Sink, templateSource{m}, m, opts)
	return m
}

// Ready reports whether a frame has been captured.
func (m *Manager) Ready() bool { return m.frames.Ready() }

// Template loads and prepares a template, reusing the cached preparation
// while the stored bytes are unchanged.
func (m *Manager) Template(id string) (*matcher.Template, error) {
	raw, err := m.templates.Read(id)
	if err != nil {
		return nil, err
	}
	return m.cache.Prepared(id, raw)
}

type templateSource struct{ m *Manager }

func (t templateSource) Template(id string) (*matcher.Template, error) { return t.m.Template(id) }

// TemplateStore exposes the template files.
func (m *Manager) TemplateStore() *store.Templates { return m.templates }

// SaveTemplate stores a PNG template and drops any cached preparation.
func (m *Manager) SaveTemplate(id string, data []byte) (store.TemplateInfo, error) {
	info, err := m.templates.Save(id, data)
	if err != nil {
		return store.TemplateInfo{}, err
	}
	m.cache.Invalidate(id)
	return info, nil
}

// DeleteTemplate removes a template.
func (m *Manager) DeleteTemplate(id string) (bool, error) {
	m.cache.Invalidate(id)
	return m.templates.Delete(id)
}

// Recorder exposes the last-match debug view.
func (m *Manager) Recorder() *debugview.Recorder { return m.recorder }

// History exposes run history and the event stream.
func (m *Manager) History() *history.Store { return m.history }

// Frames exposes the frame source.
func (m *Manager) Frames() FrameSource { return m.frames }

// RunMacro starts m, replacing any run in progress.
func (m *Manager) RunMacro(ctx context.Context, mac *macro.Macro) *engine.Handle {
	h := m.engine.Run(mac)
	trace.Logger(ctx).Info("macro submitted", "macro", mac.ID, "run", h.RunID(), "steps", len(mac.Steps))
	return h
}

// RunJSON parses and starts a macro given as JSON.
func (m *Manager) RunJSON(ctx context.Context, data []byte) (*engine.Handle, error) {
	mac, err := macro.Parse(macro.Unwrap(data))
	if err != nil {
		return nil, err
	}
	return m.RunMacro(ctx, mac), nil
}

// RunStored starts a previously saved macro.
func (m *Manager) RunStored(ctx context.Context, id string) (*engine.Handle, error) {
	rec, err := m.macros.Macro(ctx, id)
	if err != nil {
		return nil, err
	}
	mac, err := macro.Parse(rec.Raw)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.Internal, "stored macro %s no longer parses", id)
	}
	return m.RunMacro(ctx, mac), nil
}

// Stop cancels the current run.
func (m *Manager) Stop() bool { return m.engine.Stop() }

// Status reports the engine status.
func (m *Manager) Status() engine.Status { return m.engine.Status() }

// SaveMacro validates and stores a macro given as JSON.
func (m *Manager) SaveMacro(ctx context.Context, data []byte) (*macro.Macro, error) {
	body := macro.Unwrap(data)
	mac, err := macro.Parse(body)
	if err != nil {
		return nil, err
	}
	rec := store.MacroRecord{ID: mac.ID, Version: mac.Version, Raw: json.RawMessage(body)}
	if err := m.macros.SaveMacro(ctx, rec); err != nil {
		return nil, err
	}
	trace.Logger(ctx).Info("macro saved", "macro", mac.ID, "steps", len(mac.Steps))
	return mac, nil
}

// Macros lists stored macros.
func (m *Manager) Macros(ctx context.Context) ([]store.MacroRecord, error) {
	return m.macros.Macros(ctx)
}

// Macro returns a stored macro.
func (m *Manager) Macro(ctx context.Context, id string) (store.MacroRecord, error) {
	return m.macros.Macro(ctx, id)
}

// DeleteMacro removes a stored macro.
func (m *Manager) DeleteMacro(ctx context.Context, id string) (bool, error) {
	return m.macros.DeleteMacro(ctx, id)
}

// SaveAlias stores a named list of steps after checking that it parses.
func (m *Manager) SaveAlias(ctx context.Context, name string, steps json.RawMessage) error {
	if name == "" {
		return apperrors.New(apperrors.InvalidInput, "alias name is required")
	}
	probe, err := json.Marshal(map[string]any{"id": name, "steps": steps})
	if err != nil {
		return apperrors.Wrap(err, apperrors.InvalidInput, "alias steps are not valid JSON")
	}
	if _, err := macro.Parse(probe); err != nil {
		return err
	}
	return m.macros.SaveAlias(ctx, name, steps)
}

// Aliases lists stored aliases.
func (m *Manager) Aliases(ctx context.Context) (map[string]json.RawMessage, error) {
	return m.macros.Aliases(ctx)
}
