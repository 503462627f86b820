// Package store persists templates, macros and aliases.
package store

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
)

const templateExt = ".png"

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidateID rejects ids that are empty, too long or could escape the store directory.
func ValidateID(id string) error {
	if !validID.MatchString(id) || strings.Contains(id, "..") {
		return apperrors.Newf(apperrors.InvalidInput, "invalid id %q", id)
	}
	return nil
}

// TemplateInfo describes a stored template.
type TemplateInfo struct {
	ID       string    `json:"id"`
	Width    int       `json:"w"`
	Height   int       `json:"h"`
	Bytes    int64     `json:"bytes"`
	Modified time.Time `json:"modified"`
}

// Templates stores template images as files in one directory.
type Templates struct {
	dir string
}

// NewTemplates opens (and creates) the template directory.
func NewTemplates(dir string) (*Templates, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.Internal, "create template dir %s", dir)
	}
	return &Templates{dir: dir}, nil
}

// Dir returns the backing directory.
func (t *Templates) Dir() string { return t.dir }

func (t *Templates) path(id string) string {
	return filepath.Join(t.dir, id+templateExt)
}

// Save stores an encoded image under id, replacing any previous version.
func (t *Templates) Save(id string, data []byte) (TemplateInfo, error) {
	if err := ValidateID(id); err != nil {
		return TemplateInfo{}, err
	}
	if len(data) == 0 {
		return TemplateInfo{}, apperrors.New(apperrors.InvalidInput, "empty content")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return TemplateInfo{}, apperrors.Wrap(err, apperrors.InvalidInput, "content is not a PNG or JPEG image")
	}

	tmp, err := os.CreateTemp(t.dir, ".upload-*")
	if err != nil {
		return TemplateInfo{}, apperrors.Wrap(err, apperrors.Internal, "create temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return TemplateInfo{}, apperrors.Wrap(err, apperrors.Internal, "write template")
	}
	if err := tmp.Close(); err != nil {
		return TemplateInfo{}, apperrors.Wrap(err, apperrors.Internal, "write template")
	}
	if err := os.Rename(tmp.Name(), t.path(id)); err != nil {
		return TemplateInfo{}, apperrors.Wrap(err, apperrors.Internal, "store template")
	}
	return TemplateInfo{ID: id, Width: cfg.Width, Height: cfg.Height, Bytes: int64(len(data)), Modified: time.Now()}, nil
}

// Read returns the encoded image for id.
func (t *Templates) Read(id string) ([]byte, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(t.path(id))
	if os.IsNotExist(err) {
		return nil, apperrors.Newf(apperrors.NotFound, "template %q not found", id)
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.Internal, "read template %q", id)
	}
	return data, nil
}

// Exists reports whether id is stored.
func (t *Templates) Exists(id string) bool {
	if ValidateID(id) != nil {
		return false
	}
	_, err := os.Stat(t.path(id))
	return err == nil
}

// Delete removes id and reports whether it existed.
func (t *Templates) Delete(id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	err := os.Remove(t.path(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Wrapf(err, apperrors.Internal, "delete template %q", id)
	}
	return true, nil
}

// List returns all stored templates sorted by id. Unreadable files are skipped.
func (t *Templates) List() ([]TemplateInfo, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "list templates")
	}
	var out []TemplateInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, templateExt) {
			continue
		}
		id := strings.TrimSuffix(name, templateExt)
		if ValidateID(id) != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		f, err := os.Open(filepath.Join(t.dir, name))
		if err != nil {
			continue
		}
		cfg, _, err := image.DecodeConfig(f)
		f.Close()
		if err != nil {
			continue
		}
		out = append(out, TemplateInfo{ID: id, Width: cfg.Width, Height: cfg.Height, Bytes: info.Size(), Modified: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
