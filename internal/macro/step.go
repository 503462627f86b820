// Package macro defines the macro model and parses it from loosely-typed JSON.
package macro

import (
	"fmt"
	"time"
)

// Kind names a step variant.
type Kind string

const (
	KindWaitImage  Kind = "waitImage"
	KindFindImage  Kind = "findImage"
	KindTapImage   Kind = "tapImage"
	KindSwipeImage Kind = "swipeImage"
	KindTap        Kind = "tap"
	KindSwipe      Kind = "swipe"
	KindBack       Kind = "back"
	KindHome       Kind = "home"
	KindRecent     Kind = "recent"
)

// Defaults applied when a step omits a field.
const (
	DefaultMinScore      = 800
	DefaultWaitTimeout   = 2000 * time.Millisecond
	DefaultFindTimeout   = 1500 * time.Millisecond
	DefaultTapDuration   = 80 * time.Millisecond
	DefaultSwipeDuration = 300 * time.Millisecond
	DefaultVersion       = 1
	MaxMinScore          = 1000
)

// Step is one macro instruction. The set of implementations is closed.
type Step interface {
	Kind() Kind
	step()
}

// WaitImage blocks until the template appears or the timeout elapses.
type WaitImage struct {
	ID       string
	MinScore int
	Timeout  time.Duration
}

// FindImage is WaitImage with a shorter default timeout.
type FindImage struct {
	ID       string
	MinScore int
	Timeout  time.Duration
}

// TapImage taps the template centroid shifted by (DX, DY) capture pixels.
type TapImage struct {
	ID       string
	MinScore int
	DX       int
	DY       int
}

// SwipeImage swipes from the template centroid to centroid+(DX, DY).
type SwipeImage struct {
	ID       string
	MinScore int
	DX       int
	DY       int
	Duration time.Duration
}

// Tap is a dispatch-space tap.
type Tap struct {
	X        float64
	Y        float64
	Duration time.Duration
}

// Swipe is a dispatch-space swipe.
type Swipe struct {
	X1       float64
	Y1       float64
	X2       float64
	Y2       float64
	Duration time.Duration
}

type (
	Back   struct{}
	Home   struct{}
	Recent struct{}
)

func (WaitImage) Kind() Kind  { return KindWaitImage }
func (FindImage) Kind() Kind  { return KindFindImage }
func (TapImage) Kind() Kind   { return KindTapImage }
func (SwipeImage) Kind() Kind { return KindSwipeImage }
func (Tap) Kind() Kind        { return KindTap }
func (Swipe) Kind() Kind      { return KindSwipe }
func (Back) Kind() Kind       { return KindBack }
func (Home) Kind() Kind       { return KindHome }
func (Recent) Kind() Kind     { return KindRecent }

func (WaitImage) step()  {}
func (FindImage) step()  {}
func (TapImage) step()   {}
func (SwipeImage) step() {}
func (Tap) step()        {}
func (Swipe) step()      {}
func (Back) step()       {}
func (Home) step()       {}
func (Recent) step()     {}

// TemplateID returns the template a step depends on, if any.
func TemplateID(s Step) (string, bool) {
	switch v := s.(type) {
	case WaitImage:
		return v.ID, true
	case FindImage:
		return v.ID, true
	case TapImage:
		return v.ID, true
	case SwipeImage:
		return v.ID, true
	}
	return "", false
}

// Describe renders a step for logs.
func Describe(s Step) string {
	switch v := s.(type) {
	case WaitImage:
		return fmt.Sprintf("waitImage(%s, min=%d, %v)", v.ID, v.MinScore, v.Timeout)
	case FindImage:
		return fmt.Sprintf("findImage(%s, min=%d, %v)", v.ID, v.MinScore, v.Timeout)
	case TapImage:
		return fmt.Sprintf("tapImage(%s, min=%d, %+d,%+d)", v.ID, v.MinScore, v.DX, v.DY)
	case SwipeImage:
		return fmt.Sprintf("swipeImage(%s, min=%d, %+d,%+d, %v)", v.ID, v.MinScore, v.DX, v.DY, v.Duration)
	case Tap:
		return fmt.Sprintf("tap(%g,%g, %v)", v.X, v.Y, v.Duration)
	case Swipe:
		return fmt.Sprintf("swipe(%g,%g -> %g,%g, %v)", v.X1, v.Y1, v.X2, v.Y2, v.Duration)
	default:
		return string(s.Kind())
	}
}

// Macro is a parsed, immutable macro.
type Macro struct {
	ID      string
	Version int
	Steps   []Step
}

// Templates returns the distinct template ids the macro references, in order.
func (m *Macro) Templates() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, s := range m.Steps {
		if id, ok := TemplateID(s); ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
