package config

import (
	"image"
	"log/slog"
	"testing"
	"time"

	"github.com/CanhCl92/AutoAccess/internal/mapping"
)

var allKeys = []string{
	"HTTP_ADDR", "GRPC_ADDR", "ADB_PATH", "ADB_SERIAL", "ADB_TIMEOUT", "DRY_RUN",
	"CAPTURE_BACKEND", "CAPTURE_FILE", "CAPTURE_RATE", "CONTENT_RECT_INTERVAL",
	"SCENE_DISTANCE", "INSETS", "PHYS_SIZE", "DISPLAY_TTL", "TEMPLATE_DIR",
	"TEMPLATE_CACHE_SIZE", "DATABASE_URL", "POLL_INTERVAL", "LOCATE_TIMEOUT",
	"DEBUG_MAX_WIDTH", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.HTTPAddr != ":8765" || cfg.GRPCAddr != ":8766" {
		t.Errorf("addrs = %q %q", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if cfg.ADBPath != "adb" || cfg.CaptureBackend != BackendADB {
		t.Errorf("adb = %q backend = %q", cfg.ADBPath, cfg.CaptureBackend)
	}
	if cfg.CaptureRate != 4.0 {
		t.Errorf("CaptureRate = %f, want 4", cfg.CaptureRate)
	}
	if cfg.ContentRectInterval != 1500*time.Millisecond {
		t.Errorf("ContentRectInterval = %v", cfg.ContentRectInterval)
	}
	if cfg.PollInterval != 80*time.Millisecond || cfg.LocateTimeout != 1200*time.Millisecond {
		t.Errorf("engine timing = %v %v", cfg.PollInterval, cfg.LocateTimeout)
	}
	if cfg.TemplateDir != "data/images" || cfg.TemplateCacheSize != 64 || cfg.DebugMaxWidth != 720 {
		t.Errorf("storage = %q %d %d", cfg.TemplateDir, cfg.TemplateCacheSize, cfg.DebugMaxWidth)
	}
	if cfg.Insets != (mapping.Insets{}) || cfg.PhysSize != (mapping.Size{}) {
		t.Errorf("geometry = %+v %+v", cfg.Insets, cfg.PhysSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("ADB_SERIAL", "emulator-5554")
	t.Setenv("CAPTURE_BACKEND", "FILE")
	t.Setenv("CAPTURE_FILE", "/tmp/screen.png")
	t.Setenv("CAPTURE_RATE", "2.5")
	t.Setenv("INSETS", "0, 80, 0, 60")
	t.Setenv("PHYS_SIZE", "1080x2220")
	t.Setenv("POLL_INTERVAL", "50")
	t.Setenv("LOCATE_TIMEOUT", "2s")
	t.Setenv("DRY_RUN", "1")

	cfg := Load()

	if cfg.HTTPAddr != ":9000" || cfg.ADBSerial != "emulator-5554" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.CaptureBackend != BackendFile || cfg.CaptureFile != "/tmp/screen.png" || cfg.CaptureRate != 2.5 {
		t.Errorf("capture = %q %q %f", cfg.CaptureBackend, cfg.CaptureFile, cfg.CaptureRate)
	}
	if want := (mapping.Insets{Top: 80, Bottom: 60}); cfg.Insets != want {
		t.Errorf("Insets = %+v, want %+v", cfg.Insets, want)
	}
	if want := (mapping.Size{Width: 1080, Height: 2220}); cfg.PhysSize != want {
		t.Errorf("PhysSize = %+v, want %+v", cfg.PhysSize, want)
	}
	if cfg.PollInterval != 50*time.Millisecond || cfg.LocateTimeout != 2*time.Second {
		t.Errorf("timing = %v %v", cfg.PollInterval, cfg.LocateTimeout)
	}
	if !cfg.DryRun {
		t.Error("DryRun should be true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"file backend without path", func(c *Config) { c.CaptureBackend = BackendFile }},
		{"unknown backend", func(c *Config) { c.CaptureBackend = "scrcpy" }},
		{"zero rate", func(c *Config) { c.CaptureRate = 0 }},
		{"zero debug width", func(c *Config) { c.DebugMaxWidth = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := Load()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT_INVALID", "not-a-number")
	if v := getEnvInt("TEST_INT_INVALID", 100); v != 100 {
		t.Errorf("getEnvInt with invalid = %d, want 100", v)
	}

	tests := []struct {
		value string
		want  time.Duration
	}{
		{"250ms", 250 * time.Millisecond},
		{"1.5s", 1500 * time.Millisecond},
		{"40", 40 * time.Millisecond},
		{"-5s", time.Second},
		{"soon", time.Second},
	}
	for _, tt := range tests {
		t.Setenv("TEST_DURATION", tt.value)
		if got := getEnvDuration("TEST_DURATION", time.Second); got != tt.want {
			t.Errorf("getEnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}

	t.Setenv("TEST_INSETS", "1,2,3")
	if got := getEnvInsets("TEST_INSETS", mapping.Insets{Left: 9}); got.Left != 9 {
		t.Errorf("short insets should fall back to default, got %+v", got)
	}
	t.Setenv("TEST_SIZE", "720X1280")
	if got := getEnvSize("TEST_SIZE", mapping.Size{}); got.Width != 720 || got.Height != 1280 {
		t.Errorf("getEnvSize = %+v", got)
	}
}

func TestParseHelpers(t *testing.T) {
	r, err := ParseRect("10, 20, 30, 40")
	if err != nil {
		t.Fatalf("ParseRect: %v", err)
	}
	if r != image.Rect(10, 20, 40, 60) {
		t.Errorf("ParseRect = %v", r)
	}

	for _, bad := range []string{"", "1,2", "a,b,c,d", "1,-2,3,4"} {
		if _, err := ParseInsets(bad); err == nil {
			t.Errorf("ParseInsets(%q) = nil error", bad)
		}
	}
	if _, err := ParseSize("1080"); err == nil {
		t.Error("ParseSize with one number should fail")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		c := &Config{LogLevel: tt.in}
		if got := c.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
