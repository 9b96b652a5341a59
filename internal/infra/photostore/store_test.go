package photostore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/storefront/internal/core/ports"
)

func newMemStore() (*Store, afero.Fs) {
	fsys := afero.NewMemMapFs()
	s := New(fsys)
	s.now = func() time.Time { return time.Unix(0, 42) }
	return s, fsys
}

func TestSave_NamesBySlugAndTime(t *testing.T) {
	s, fsys := newMemStore()

	p, err := s.Save(context.Background(), "runner", ports.Photo{ContentType: "image/png", Body: strings.NewReader("png-bytes")})
	require.NoError(t, err)
	assert.Equal(t, "products/runner-42.png", p)

	data, err := afero.ReadFile(fsys, p)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestSave_RejectsUnknownType(t *testing.T) {
	s, _ := newMemStore()
	_, err := s.Save(context.Background(), "x", ports.Photo{ContentType: "image/webp", Body: bytes.NewReader(nil)})
	assert.Error(t, err)
}

func TestOpenAndRemove(t *testing.T) {
	s, _ := newMemStore()
	ctx := context.Background()

	p, err := s.Save(ctx, "runner", ports.Photo{ContentType: "image/jpeg", Body: strings.NewReader("jpg")})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, ".jpg"))

	rc, err := s.Open(ctx, p)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "jpg", string(data))

	require.NoError(t, s.Remove(ctx, p))
	_, err = s.Open(ctx, p)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Remove(ctx, p))
	assert.NoError(t, s.Remove(ctx, ""))
}

func TestOpen_RefusesPathsOutsideProducts(t *testing.T) {
	s, fsys := newMemStore()
	require.NoError(t, afero.WriteFile(fsys, "secret.txt", []byte("x"), 0o600))

	_, err := s.Open(context.Background(), "products/../secret.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtension(t *testing.T) {
	ext, ok := Extension("IMAGE/GIF")
	assert.True(t, ok)
	assert.Equal(t, ".gif", ext)

	_, ok = Extension("text/plain")
	assert.False(t, ok)
}
