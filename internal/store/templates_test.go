package store

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestTemplatesLifecycle(t *testing.T) {
	ts, err := NewTemplates(filepath.Join(t.TempDir(), "images"))
	if err != nil {
		t.Fatal(err)
	}

	info, err := ts.Save("ok_button", pngBytes(t, 24, 16))
	if err != nil {
		t.Fatal(err)
	}
	if info.Width != 24 || info.Height != 16 {
		t.Errorf("Save() info = %+v", info)
	}
	if !ts.Exists("ok_button") {
		t.Error("Exists() = false after Save")
	}

	if _, err := ts.Save("another", pngBytes(t, 4, 4)); err != nil {
		t.Fatal(err)
	}
	list, err := ts.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "another" || list[1].ID != "ok_button" {
		t.Errorf("List() = %+v", list)
	}

	data, err := ts.Read("ok_button")
	if err != nil || len(data) == 0 {
		t.Errorf("Read() = %d bytes, %v", len(data), err)
	}

	deleted, err := ts.Delete("ok_button")
	if err != nil || !deleted {
		t.Errorf("Delete() = %v, %v", deleted, err)
	}
	if deleted, _ := ts.Delete("ok_button"); deleted {
		t.Error("second Delete() should report false")
	}
	if _, err := ts.Read("ok_button"); !apperrors.IsCode(err, apperrors.NotFound) {
		t.Errorf("Read() after delete err = %v, want NotFound", err)
	}
}

func TestTemplatesRejectBadInput(t *testing.T) {
	ts, _ := NewTemplates(t.TempDir())

	tests := []struct {
		name string
		id   string
		data []byte
	}{
		{"traversal", "../etc", pngBytes(t, 1, 1)},
		{"slash", "a/b", pngBytes(t, 1, 1)},
		{"blank", "", pngBytes(t, 1, 1)},
		{"empty content", "ok", nil},
		{"not an image", "ok", []byte("hello")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ts.Save(tt.id, tt.data); !apperrors.IsCode(err, apperrors.InvalidInput) {
				t.Errorf("Save() err = %v, want InvalidInput", err)
			}
		})
	}
}

func TestTemplatesListSkipsJunk(t *testing.T) {
	dir := t.TempDir()
	ts, _ := NewTemplates(dir)
	_ = os.WriteFile(filepath.Join(dir, "broken.png"), []byte("nope"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	_, _ = ts.Save("good", pngBytes(t, 2, 2))

	list, err := ts.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "good" {
		t.Errorf("List() = %+v", list)
	}
}
