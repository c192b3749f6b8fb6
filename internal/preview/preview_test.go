package preview

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drummonds/travellens-web/internal/backend"
)

// copyGenerator stands in for the thumbnailer: it copies the source.
func copyGenerator(src, dst string, size int) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

func TestCreateAndRelease(t *testing.T) {
	s, err := NewStoreWithGenerator(t.TempDir(), copyGenerator)
	require.NoError(t, err)

	h, err := s.Create(backend.File{Name: "q.png", Data: []byte("pixels")})
	require.NoError(t, err)
	assert.NotEmpty(t, h)
	assert.Equal(t, 1, s.Len())

	p, err := s.Path(h)
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))

	require.NoError(t, s.Release(h))
	assert.Equal(t, 0, s.Len())
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))

	_, err = s.Path(h)
	assert.ErrorIs(t, err, ErrUnknownHandle)

	// releasing twice, or the zero handle, is harmless
	assert.NoError(t, s.Release(h))
	assert.NoError(t, s.Release(""))
}

func TestCreateGeneratorFailure(t *testing.T) {
	boom := errors.New("not an image")
	s, err := NewStoreWithGenerator(t.TempDir(), func(src, dst string, size int) error {
		assert.Equal(t, Size, size)
		return boom
	})
	require.NoError(t, err)

	_, err = s.Create(backend.File{Name: "notes.txt", Data: []byte("hello")})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len())
}

func TestCreateWithThumbnailer(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	src := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			src.SetNRGBA(x, y, color.NRGBA{200, 120, 40, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	h, err := s.Create(backend.File{Name: "Query.PNG", Data: buf.Bytes()})
	require.NoError(t, err)
	p, err := s.Path(h)
	require.NoError(t, err)

	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, Size, cfg.Width)
	assert.Greater(t, cfg.Height, cfg.Width)

	require.NoError(t, s.Release(h))
}

func TestCreateWithThumbnailerRejectsUnknownFormat(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Create(backend.File{Name: "notes.txt", Data: []byte("hello")})
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}
