// Package workspace owns the on-disk layout: one shared cache directory and
// a private directory per request that is removed when the request ends.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Layout is the storage root. Request directories live under
// <root>/requests/<id> and shared assets under <root>/cache.
type Layout struct {
	Root string
}

func (l Layout) CacheDir() string    { return filepath.Join(l.Root, "cache") }
func (l Layout) RequestsDir() string { return filepath.Join(l.Root, "requests") }

// Dir is one request-scoped directory.
type Dir struct {
	id   string
	path string
}

// New creates a fresh request directory under the layout root.
func (l Layout) New() (*Dir, error) {
	if strings.TrimSpace(l.Root) == "" {
		return nil, errors.New("workspace root is empty")
	}
	id := uuid.NewString()
	p := filepath.Join(l.RequestsDir(), id)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Dir{id: id, path: p}, nil
}

func (d *Dir) ID() string   { return d.id }
func (d *Dir) Path() string { return d.path }

// TempPath returns a unique path inside the directory. The file is not
// created.
func (d *Dir) TempPath(prefix, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(d.path, prefix+"-"+uuid.NewString()[:8]+ext)
}

// Contains reports whether p lies inside the directory.
func (d *Dir) Contains(p string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	root, err := filepath.Abs(d.path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Close removes the directory and everything in it. It is safe to call
// more than once.
func (d *Dir) Close() error {
	if d == nil || d.path == "" {
		return nil
	}
	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("remove workspace %s: %w", d.id, err)
	}
	return nil
}
