// Package screen keeps the most recent frame of the device display and the
// content rect detected inside it.
package screen

import (
	"context"
	"os"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
)

// Backend produces encoded (PNG/JPEG) screenshots.
type Backend interface {
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

// FileBackend reads the screenshot from a file on every capture, so a
// replaced file shows up as a new frame. Useful for replaying recordings
// and for running without a device.
type FileBackend struct {
	Path string
}

// NewFileBackend creates a FileBackend for path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

func (b *FileBackend) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrapf(err, apperrors.Unavailable, "capture file %s", b.Path)
		}
		return nil, apperrors.Wrapf(err, apperrors.Internal, "read capture file %s", b.Path)
	}
	return data, nil
}

func (b *FileBackend) Close() error { return nil }
