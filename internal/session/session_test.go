package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drummonds/travellens-web/internal/backend"
	"github.com/drummonds/travellens-web/internal/preview"
)

type nopBackend struct{}

func (nopBackend) Upload(ctx context.Context, label string, files []backend.File, progress backend.ProgressFunc) (*backend.UploadResult, error) {
	return &backend.UploadResult{}, nil
}
func (nopBackend) LabelsSummary(ctx context.Context) ([]backend.LabelSummary, error) { return nil, nil }
func (nopBackend) ListImages(ctx context.Context) ([]backend.ImageCollection, error) {
	return nil, nil
}
func (nopBackend) Predict(ctx context.Context, f backend.File, k int) ([]backend.SearchResult, error) {
	return nil, nil
}

type countingPreviews struct{ live int }

func (c *countingPreviews) Create(f backend.File) (preview.Handle, error) {
	c.live++
	return preview.Handle(f.Name), nil
}

func (c *countingPreviews) Release(h preview.Handle) error {
	if h != "" {
		c.live--
	}
	return nil
}

func newManager(previews *countingPreviews) *Manager {
	return NewManager(Workflows(nopBackend{}, previews), time.Minute)
}

func TestGetCreatesAndReuses(t *testing.T) {
	m := newManager(&countingPreviews{})

	s, created := m.Get("")
	require.True(t, created)
	assert.NotEmpty(t, s.ID)

	again, created := m.Get(s.ID)
	assert.False(t, created)
	assert.Same(t, s, again)

	other, created := m.Get("not-a-session")
	assert.True(t, created)
	assert.NotEqual(t, s.ID, other.ID)
	assert.Equal(t, 2, m.Len())
}

func TestReapClosesIdleSessions(t *testing.T) {
	previews := &countingPreviews{}
	m := newManager(previews)
	now := time.Now()
	m.now = func() time.Time { return now }

	idle, _ := m.Get("")
	idle.Search.SelectFile(backend.File{Name: "q.png"})
	idle.Upload.AddFiles(backend.File{Name: "a.jpg"})
	require.Equal(t, 1, previews.live)

	now = now.Add(45 * time.Second)
	busy, _ := m.Get("")
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, m.Reap())
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 0, previews.live)
	assert.Empty(t, idle.Upload.State().Files)

	_, created := m.Get(busy.ID)
	assert.False(t, created)
}

func TestCloseTearsDownAll(t *testing.T) {
	previews := &countingPreviews{}
	m := newManager(previews)
	for i := 0; i < 3; i++ {
		s, _ := m.Get("")
		s.Search.SelectFile(backend.File{Name: "q.png"})
	}
	require.Equal(t, 3, previews.live)
	m.Close()
	assert.Equal(t, 0, previews.live)
	assert.Equal(t, 0, m.Len())
}

func TestCloseCancelsSessionContext(t *testing.T) {
	m := newManager(&countingPreviews{})
	s, _ := m.Get("")
	require.NoError(t, s.Context().Err())

	m.Close()
	assert.ErrorIs(t, s.Context().Err(), context.Canceled)
}
