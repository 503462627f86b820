// Package config handles service configuration from the environment.
package config

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CanhCl92/AutoAccess/internal/mapping"
)

// Capture backends.
const (
	BackendADB  = "adb"
	BackendFile = "file"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	ADBPath    string
	ADBSerial  string
	ADBTimeout time.Duration
	DryRun     bool // log gestures instead of sending them

	CaptureBackend      string
	CaptureFile         string
	CaptureRate         float64 // Hz
	ContentRectInterval time.Duration
	SceneDistance       int

	Insets     mapping.Insets
	PhysSize   mapping.Size // overrides `wm size` when set
	DisplayTTL time.Duration

	TemplateDir       string
	TemplateCacheSize int
	DatabaseURL       string // empty selects the in-memory macro store

	PollInterval  time.Duration
	LocateTimeout time.Duration
	DebugMaxWidth int

	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8765"),
		GRPCAddr:            getEnv("GRPC_ADDR", ":8766"),
		ADBPath:             getEnv("ADB_PATH", "adb"),
		ADBSerial:           getEnv("ADB_SERIAL", ""),
		ADBTimeout:          getEnvDuration("ADB_TIMEOUT", 5*time.Second),
		DryRun:              getEnvBool("DRY_RUN", false),
		CaptureBackend:      strings.ToLower(getEnv("CAPTURE_BACKEND", BackendADB)),
		CaptureFile:         getEnv("CAPTURE_FILE", ""),
		CaptureRate:         getEnvFloat("CAPTURE_RATE", 4.0),
		ContentRectInterval: getEnvDuration("CONTENT_RECT_INTERVAL", 1500*time.Millisecond),
		SceneDistance:       getEnvInt("SCENE_DISTANCE", 10),
		Insets:              getEnvInsets("INSETS", mapping.Insets{}),
		PhysSize:            getEnvSize("PHYS_SIZE", mapping.Size{}),
		DisplayTTL:          getEnvDuration("DISPLAY_TTL", time.Second),
		TemplateDir:         getEnv("TEMPLATE_DIR", "data/images"),
		TemplateCacheSize:   getEnvInt("TEMPLATE_CACHE_SIZE", 64),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		PollInterval:        getEnvDuration("POLL_INTERVAL", 80*time.Millisecond),
		LocateTimeout:       getEnvDuration("LOCATE_TIMEOUT", 1200*time.Millisecond),
		DebugMaxWidth:       getEnvInt("DEBUG_MAX_WIDTH", 720),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.CaptureBackend {
	case BackendADB:
	case BackendFile:
		if c.CaptureFile == "" {
			return fmt.Errorf("CAPTURE_FILE is required with CAPTURE_BACKEND=file")
		}
	default:
		return fmt.Errorf("unknown CAPTURE_BACKEND %q", c.CaptureBackend)
	}
	if c.CaptureRate <= 0 {
		return fmt.Errorf("CAPTURE_RATE must be positive, got %g", c.CaptureRate)
	}
	if c.DebugMaxWidth <= 0 {
		return fmt.Errorf("DEBUG_MAX_WIDTH must be positive, got %d", c.DebugMaxWidth)
	}
	return nil
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

// getEnvDuration accepts Go durations ("80ms") or bare milliseconds ("80").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

// ParseSize parses "WIDTHxHEIGHT".
func ParseSize(s string) (mapping.Size, error) {
	v, err := parseInts(s, 2)
	if err != nil {
		return mapping.Size{}, err
	}
	return mapping.Size{Width: v[0], Height: v[1]}, nil
}

// ParseInsets parses "left,top,right,bottom".
func ParseInsets(s string) (mapping.Insets, error) {
	v, err := parseInts(s, 4)
	if err != nil {
		return mapping.Insets{}, err
	}
	return mapping.Insets{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}

// ParseRect parses "x,y,w,h".
func ParseRect(s string) (image.Rectangle, error) {
	v, err := parseInts(s, 4)
	if err != nil {
		return image.Rectangle{}, err
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}

func parseInts(s string, n int) ([]int, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == 'x' || r == 'X' })
	if len(parts) != n {
		return nil, fmt.Errorf("want %d numbers, got %q", n, s)
	}
	out := make([]int, n)
	for i, p := range parts {
		x, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || x < 0 {
			return nil, fmt.Errorf("invalid number %q in %q", p, s)
		}
		out[i] = x
	}
	return out, nil
}

func getEnvInsets(key string, def mapping.Insets) mapping.Insets {
	if v := os.Getenv(key); v != "" {
		if in, err := ParseInsets(v); err == nil {
			return in
		}
	}
	return def
}

func getEnvSize(key string, def mapping.Size) mapping.Size {
	if v := os.Getenv(key); v != "" {
		if sz, err := ParseSize(v); err == nil {
			return sz
		}
	}
	return def
}
