package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
)

// MacroRecord is a stored macro in its submitted JSON form.
type MacroRecord struct {
	ID        string          `json:"id"`
	Version   int             `json:"version"`
	Raw       json.RawMessage `json:"macro"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// MacroStore persists macros by id and named step aliases.
type MacroStore interface {
	SaveMacro(ctx context.Context, rec MacroRecord) error
	Macro(ctx context.Context, id string) (MacroRecord, error)
	Macros(ctx context.Context) ([]MacroRecord, error)
	DeleteMacro(ctx context.Context, id string) (bool, error)

	SaveAlias(ctx context.Context, name string, steps json.RawMessage) error
	Aliases(ctx context.Context) (map[string]json.RawMessage, error)

	Close(ctx context.Context) error
}

func macroNotFound(id string) error {
	return apperrors.Newf(apperrors.NotFound, "macro %s not found", id)
}

// Memory is an in-process MacroStore.
type Memory struct {
	mu      sync.RWMutex
	macros  map[string]MacroRecord
	aliases map[string]json.RawMessage
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{macros: make(map[string]MacroRecord), aliases: make(map[string]json.RawMessage)}
}

func (m *Memory) SaveMacro(_ context.Context, rec MacroRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.macros[rec.ID] = rec
	return nil
}

func (m *Memory) Macro(_ context.Context, id string) (MacroRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.macros[id]
	if !ok {
		return MacroRecord{}, macroNotFound(id)
	}
	return rec, nil
}

func (m *Memory) Macros(context.Context) ([]MacroRecord, error) {
	m.mu.RLock()
	out := make([]MacroRecord, 0, len(m.macros))
	for _, rec := range m.macros {
		out = append(out, rec)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteMacro(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.macros[id]
	delete(m.macros, id)
	return ok, nil
}

func (m *Memory) SaveAlias(_ context.Context, name string, steps json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliases[name] = append(json.RawMessage(nil), steps...)
	return nil
}

func (m *Memory) Aliases(context.Context) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(m.aliases))
	for k, v := range m.aliases {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Close(context.Context) error { return nil }
