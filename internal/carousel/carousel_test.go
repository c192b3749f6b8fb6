package carousel

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drummonds/travellens-web/internal/backend"
)

type fakeLister struct {
	items []backend.ImageCollection
	err   error
}

func (f *fakeLister) ListImages(ctx context.Context) ([]backend.ImageCollection, error) {
	return f.items, f.err
}

func TestLoadFlattensAllImages(t *testing.T) {
	c := NewWithRand(&fakeLister{items: []backend.ImageCollection{
		{Label: "a", Images: []string{"a1", "a2"}},
		{Label: "b", Images: []string{"b1"}},
	}}, rand.New(rand.NewSource(1)))
	c.Load(context.Background())

	got := c.Images()
	sort.Strings(got)
	assert.Equal(t, []string{"a1", "a2", "b1"}, got)
}

func TestNextPrevWrap(t *testing.T) {
	c := NewWithRand(&fakeLister{items: []backend.ImageCollection{
		{Label: "a", Images: []string{"x", "y", "z"}},
	}}, rand.New(rand.NewSource(7)))
	c.Load(context.Background())
	order := c.Images()

	url, idx, total, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, order[0], url)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 3, total)

	c.Prev()
	url, idx, _, _ = c.Current()
	assert.Equal(t, order[2], url)
	assert.Equal(t, 2, idx)

	c.Next()
	c.Next()
	url, _, _, _ = c.Current()
	assert.Equal(t, order[1], url)
}

func TestEmptyCarousel(t *testing.T) {
	c := New(&fakeLister{err: errors.New("down")})
	c.Load(context.Background())
	assert.True(t, c.Loaded())
	c.Next()
	c.Prev()
	_, _, _, ok := c.Current()
	assert.False(t, ok)
}
