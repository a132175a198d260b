package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Store is the cache-scoped asset store shared by all requests.
type Store interface {
	// Get returns the path of a completed entry.
	Get(key string) (string, bool)
	// PutIfAbsent returns the existing entry for key or fills a new one.
	// fill must write the full content; an empty result is discarded.
	PutIfAbsent(ctx context.Context, key string, fill func(ctx context.Context, w io.Writer) error) (string, error)
}

// DirStore keeps entries as files under a directory. Writers fill a
// uniquely named temp file and rename it into place, so readers only ever
// see complete files. Concurrent fills of one key in this process share a
// single fetch.
type DirStore struct {
	dir   string
	group singleflight.Group
}

func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("asset cache: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) Dir() string { return s.dir }

func (s *DirStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("asset cache: invalid key %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}

func (s *DirStore) Get(key string) (string, bool) {
	p, err := s.path(key)
	if err != nil {
		return "", false
	}
	if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() && st.Size() > 0 {
		return p, true
	}
	return "", false
}

func (s *DirStore) PutIfAbsent(ctx context.Context, key string, fill func(ctx context.Context, w io.Writer) error) (string, error) {
	if p, ok := s.Get(key); ok {
		return p, nil
	}
	target, err := s.path(key)
	if err != nil {
		return "", err
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		if p, ok := s.Get(key); ok {
			return p, nil
		}
		return target, s.fill(ctx, target, fill)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *DirStore) fill(ctx context.Context, target string, fill func(ctx context.Context, w io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("asset cache: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+"."+uuid.NewString()+".part")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("asset cache: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err := fill(ctx, f); err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("asset cache: %w", err)
	}
	if st.Size() == 0 {
		return errors.New("asset cache: empty content")
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("asset cache: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("asset cache: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("asset cache: %w", err)
	}
	return nil
}
