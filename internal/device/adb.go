// Package device talks to an Android device through the adb command line:
// screenshots, input injection and display geometry.
package device

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/mapping"
	"github.com/CanhCl92/AutoAccess/internal/resilience"
	"github.com/CanhCl92/AutoAccess/internal/syncx"
)

const (
	DefaultCommandTimeout = 5 * time.Second
	DefaultDisplayTTL     = time.Second
	gestureQueueSize      = 64
)

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Config configures the bridge.
type Config struct {
	Path           string // adb binary
	Serial         string // -s target; empty uses the only attached device
	CommandTimeout time.Duration
	Insets         mapping.Insets
	PhysOverride   mapping.Size // skips `wm size` when set
	DisplayTTL     time.Duration
}

type displayCache struct {
	size    mapping.Size
	fetched time.Time
}

// ADB is a device bridge. Screenshots and queries go through one circuit
// breaker with retries; gestures go through a separate breaker, without
// retries, on a single ordered queue.
type ADB struct {
	cfg     Config
	run     Runner
	query   *resilience.Breaker
	input   *resilience.Breaker
	retry   resilience.RetryConfig
	display *syncx.Guard[displayCache]

	queue     chan gesture
	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates a bridge using the adb binary from cfg.
func New(cfg Config) *ADB {
	if cfg.Path == "" {
		cfg.Path = "adb"
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.DisplayTTL <= 0 {
		cfg.DisplayTTL = DefaultDisplayTTL
	}
	return &ADB{
		cfg:     cfg,
		run:     execRunner,
		query:   resilience.New("adb", resilience.DefaultConfig()),
		input:   resilience.New("adb-input", resilience.GestureConfig()),
		retry:   resilience.DefaultRetryConfig(),
		display: syncx.NewGuard(displayCache{}),
		queue:   make(chan gesture, gestureQueueSize),
		done:    make(chan struct{}),
	}
}

// WithRunner replaces command execution, for tests and dry runs.
func (a *ADB) WithRunner(r Runner) *ADB {
	a.run = r
	return a
}

// Command runs adb with args against the configured device.
func (a *ADB) Command(ctx context.Context, args ...string) ([]byte, error) {
	full := args
	if a.cfg.Serial != "" {
		full = append([]string{"-s", a.cfg.Serial}, args...)
	}
	var out []byte
	err := resilience.Retry(ctx, a.retry, func() error {
		return a.query.Execute(func() error {
			cctx, cancel := context.WithTimeout(ctx, a.cfg.CommandTimeout)
			defer cancel()
			var err error
			out, err = a.run(cctx, a.cfg.Path, full...)
			return err
		})
	})
	if errors.Is(err, resilience.ErrOpen) {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "adb unavailable")
	}
	return out, err
}

// Shell runs `adb shell args...`.
func (a *ADB) Shell(ctx context.Context, args ...string) ([]byte, error) {
	return a.Command(ctx, append([]string{"shell"}, args...)...)
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	cmdline := name + " " + strings.Join(args, " ")
	switch {
	case ctx.Err() != nil:
		return nil, apperrors.Wrapf(err, apperrors.Timeout, "%s timed out", cmdline)
	case errors.Is(err, exec.ErrNotFound):
		return nil, apperrors.Wrapf(err, apperrors.Unavailable, "%s: adb binary not found", name)
	default:
		return nil, apperrors.Wrapf(err, apperrors.Unavailable, "%s failed", cmdline).
			WithMetadata("stderr", strings.TrimSpace(stderr.String()))
	}
}
