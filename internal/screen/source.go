package screen

import (
	"bytes"
	"context"
	"crypto/md5"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corona10/goimagehash"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/imaging"
	"github.com/CanhCl92/AutoAccess/internal/syncx"
)

// Options tunes a Source.
type Options struct {
	Rate                float64
	ContentRectInterval time.Duration
	SceneDistance       int
}

func (o Options) withDefaults() Options {
	if o.Rate <= 0 {
		o.Rate = DefaultCaptureRate
	}
	if o.ContentRectInterval <= 0 {
		o.ContentRectInterval = DefaultContentRectInterval
	}
	if o.SceneDistance <= 0 {
		o.SceneDistance = DefaultSceneDistance
	}
	return o
}

type geometry struct {
	size       image.Point
	content    image.Rectangle
	detectedAt time.Time
	hash       *goimagehash.ImageHash
}

// Source captures frames from a Backend. Readers get immutable frame
// snapshots; a capture replaces the frame rather than writing into it.
type Source struct {
	backend Backend
	opts    Options
	now     func() time.Time

	latest atomic.Pointer[imaging.Frame]
	geo    *syncx.Guard[geometry]

	captureMu  sync.Mutex
	lastDigest [md5.Size]byte
	captures   atomic.Uint64

	ready     chan struct{}
	readyOnce sync.Once
}

// NewSource creates a frame source.
func NewSource(b Backend, opts Options) *Source {
	return &Source{
		backend: b,
		opts:    opts.withDefaults(),
		now:     time.Now,
		geo:     syncx.NewGuard(geometry{}),
		ready:   make(chan struct{}),
	}
}

// Run captures at the configured rate until ctx is done.
func (s *Source) Run(ctx context.Context) {
	interval := time.Duration(float64(time.Second) / s.opts.Rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		if _, err := s.CaptureOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			// first failure, then every 20th
			if failures == 1 || failures%20 == 0 {
				slog.Warn("screen capture failed", "error", err, "failures", failures)
			}
		} else if failures > 0 {
			slog.Info("screen capture recovered", "after_failures", failures)
			failures = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CaptureOnce grabs one frame. Identical bytes keep the current frame.
func (s *Source) CaptureOnce(ctx context.Context) (*imaging.Frame, error) {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()

	data, err := s.backend.Capture(ctx)
	if err != nil {
		return nil, err
	}
	digest := md5.Sum(data)
	if cur := s.latest.Load(); cur != nil && digest == s.lastDigest {
		return cur, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "decode screenshot")
	}
	f := imaging.FromImage(img, s.now())
	s.lastDigest = digest
	s.latest.Store(f)
	s.captures.Add(1)
	s.updateGeometry(img, f)

	s.readyOnce.Do(func() {
		slog.Info("first frame captured", "width", f.Width, "height", f.Height)
		close(s.ready)
	})
	return f, nil
}

// updateGeometry re-detects the content rect when the frame size changed,
// the scene changed, or the detection interval elapsed.
func (s *Source) updateGeometry(img image.Image, f *imaging.Frame) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		slog.Debug("perception hash failed", "error", err)
	}
	size := image.Pt(f.Width, f.Height)
	now := s.now()

	prev := s.geo.Get()
	reason := ""
	switch {
	case prev.content.Empty():
		reason = "initial"
	case prev.size != size:
		reason = "resize"
	case now.Sub(prev.detectedAt) >= s.opts.ContentRectInterval:
		reason = "interval"
	case hash != nil && prev.hash != nil:
		if d, err := prev.hash.Distance(hash); err == nil && d > s.opts.SceneDistance {
			reason = "scene"
		}
	}
	if reason == "" {
		return
	}

	rect := imaging.DetectContentRect(f)
	s.geo.Set(geometry{size: size, content: rect, detectedAt: now, hash: hash})
	if rect != prev.content {
		slog.Debug("content rect updated", "rect", rect, "reason", reason)
	}
}

// RefreshContentRect forces detection on the latest frame.
func (s *Source) RefreshContentRect() image.Rectangle {
	f := s.latest.Load()
	if !f.Valid() {
		return image.Rectangle{}
	}
	rect := imaging.DetectContentRect(f)
	s.geo.Write(func(g *geometry) {
		g.size = image.Pt(f.Width, f.Height)
		g.content = rect
		g.detectedAt = s.now()
	})
	return rect
}

// LatestFrame returns the newest frame or nil before the first capture.
func (s *Source) LatestFrame() *imaging.Frame {
	return s.latest.Load()
}

// FrameSize returns the newest frame's dimensions, zero before the first capture.
func (s *Source) FrameSize() (int, int) {
	f := s.latest.Load()
	if f == nil {
		return 0, 0
	}
	return f.Width, f.Height
}

// ContentRect returns the detected content rect, or the full frame when
// detection has not run for the current frame size.
func (s *Source) ContentRect() image.Rectangle {
	f := s.latest.Load()
	if f == nil {
		return image.Rectangle{}
	}
	size := image.Pt(f.Width, f.Height)
	return syncx.View(s.geo, func(g geometry) image.Rectangle {
		if g.size != size || g.content.Empty() {
			return f.Bounds()
		}
		return g.content
	})
}

// Ready reports whether at least one frame has been captured.
func (s *Source) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// WaitFrame blocks until the first frame is available.
func (s *Source) WaitFrame(ctx context.Context) (*imaging.Frame, error) {
	select {
	case <-s.ready:
		return s.latest.Load(), nil
	case <-ctx.Done():
		return nil, apperrors.Wrap(ctx.Err(), apperrors.Unavailable, "no frame captured yet")
	}
}

// Captures counts decoded frames.
func (s *Source) Captures() uint64 { return s.captures.Load() }

// Close releases the backend.
func (s *Source) Close() error {
	return s.backend.Close()
}
