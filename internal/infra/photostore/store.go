// Package photostore keeps product photos on an afero filesystem: the OS
// filesystem under PHOTO_DIR in production, memory in tests.
package photostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/jcmexdev/storefront/internal/core/ports"
)

const dir = "products"

var ErrNotFound = errors.New("photostore: photo not found")

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// Extension returns the file extension for a supported content type.
func Extension(contentType string) (string, bool) {
	ext, ok := extensions[strings.ToLower(contentType)]
	return ext, ok
}

var _ ports.PhotoStore = (*Store)(nil)

type Store struct {
	fs  afero.Fs
	now func() time.Time
}

func New(fsys afero.Fs) *Store {
	return &Store{fs: fsys, now: time.Now}
}

// NewOS roots the store at baseDir on the local disk.
func NewOS(baseDir string) *Store {
	return New(afero.NewBasePathFs(afero.NewOsFs(), baseDir))
}

// Save writes the photo as products/<slug>-<unixnano><ext> and returns that path.
func (s *Store) Save(_ context.Context, slug string, photo ports.Photo) (string, error) {
	ext, ok := Extension(photo.ContentType)
	if !ok {
		return "", fmt.Errorf("photostore: unsupported content type %q", photo.ContentType)
	}
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("photostore: create %s: %w", dir, err)
	}

	name := path.Join(dir, fmt.Sprintf("%s-%d%s", slug, s.now().UnixNano(), ext))
	f, err := s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("photostore: create %s: %w", name, err)
	}
	if _, err := io.Copy(f, photo.Body); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(name)
		return "", fmt.Errorf("photostore: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(name)
		return "", fmt.Errorf("photostore: close %s: %w", name, err)
	}
	return name, nil
}

func (s *Store) Open(_ context.Context, p string) (io.ReadCloser, error) {
	if !strings.HasPrefix(path.Clean(p), dir+"/") {
		return nil, ErrNotFound
	}
	f, err := s.fs.Open(path.Clean(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("photostore: open %s: %w", p, err)
	}
	return f, nil
}

// Remove deletes a stored photo. Removing a missing photo is not an error.
func (s *Store) Remove(_ context.Context, p string) error {
	if p == "" {
		return nil
	}
	err := s.fs.Remove(path.Clean(p))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("photostore: remove %s: %w", p, err)
	}
	return nil
}
