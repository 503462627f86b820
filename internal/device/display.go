package device

import (
	"context"
	"regexp"
	"strconv"
	"time"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
	"github.com/CanhCl92/AutoAccess/internal/mapping"
)

var wmSizeRe = regexp.MustCompile(`(?m)^\s*(Physical|Override) size:\s*(\d+)x(\d+)`)

// DisplayInfo returns the physical display size and the configured insets.
// `wm size` results are cached for DisplayTTL.
func (a *ADB) DisplayInfo(ctx context.Context) (mapping.Size, mapping.Insets, error) {
	if o := a.cfg.PhysOverride; o.Width > 0 && o.Height > 0 {
		return o, a.cfg.Insets, nil
	}
	if c := a.display.Get(); c.size.Width > 0 && time.Since(c.fetched) < a.cfg.DisplayTTL {
		return c.size, a.cfg.Insets, nil
	}

	out, err := a.Shell(ctx, "wm", "size")
	if err != nil {
		return mapping.Size{}, mapping.Insets{}, err
	}
	size, err := ParseWMSize(string(out))
	if err != nil {
		return mapping.Size{}, mapping.Insets{}, err
	}
	a.display.Set(displayCache{size: size, fetched: time.Now()})
	return size, a.cfg.Insets, nil
}

// ParseWMSize reads `wm size` output. An override size wins over the physical size.
func ParseWMSize(out string) (mapping.Size, error) {
	var phys, override mapping.Size
	for _, m := range wmSizeRe.FindAllStringSubmatch(out, -1) {
		w, _ := strconv.Atoi(m[2])
		h, _ := strconv.Atoi(m[3])
		if m[1] == "Override" {
			override = mapping.Size{Width: w, Height: h}
		} else {
			phys = mapping.Size{Width: w, Height: h}
		}
	}
	if override.Width > 0 && override.Height > 0 {
		return override, nil
	}
	if phys.Width > 0 && phys.Height > 0 {
		return phys, nil
	}
	return mapping.Size{}, apperrors.Newf(apperrors.GeometryUnavailable, "unrecognized wm size output %q", out)
}

// StaticDisplay reports fixed geometry, for runs without a device.
type StaticDisplay struct {
	Size   mapping.Size
	Insets mapping.Insets
}

func (s StaticDisplay) DisplayInfo(context.Context) (mapping.Size, mapping.Insets, error) {
	if s.Size.Width <= 0 || s.Size.Height <= 0 {
		return mapping.Size{}, mapping.Insets{}, apperrors.New(apperrors.GeometryUnavailable, "display size not configured")
	}
	return s.Size, s.Insets, nil
}
