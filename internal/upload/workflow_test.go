package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drummonds/travellens-web/internal/backend"
)

type fakeBackend struct {
	mu          sync.Mutex
	uploads     int
	summaries   int
	lastLabel   string
	lastFiles   []backend.File
	result      *backend.UploadResult
	err         error
	labels      []backend.LabelSummary
	progress    [][2]int64
	blockUpload chan struct{}
	started     chan struct{}
}

func (f *fakeBackend) Upload(ctx context.Context, label string, files []backend.File, progress backend.ProgressFunc) (*backend.UploadResult, error) {
	f.mu.Lock()
	f.uploads++
	f.lastLabel = label
	f.lastFiles = files
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.blockUpload != nil {
		<-f.blockUpload
	}
	for _, p := range f.progress {
		progress(p[0], p[1])
	}
	return f.result, f.err
}

func (f *fakeBackend) LabelsSummary(ctx context.Context) ([]backend.LabelSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries++
	return f.labels, nil
}

func files(names ...string) []backend.File {
	out := make([]backend.File, len(names))
	for i, n := range names {
		out[i] = backend.File{Name: n, Data: []byte(n)}
	}
	return out
}

func names(fs []backend.File) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

func manyFiles(n int) []backend.File {
	out := make([]backend.File, n)
	for i := range out {
		out[i] = backend.File{Name: fmt.Sprintf("img-%02d.jpg", i)}
	}
	return out
}

func TestAddFilesDropsDuplicateNames(t *testing.T) {
	w := New(&fakeBackend{})
	assert.Equal(t, 2, w.AddFiles(files("a.jpg", "b.jpg")...))
	assert.Equal(t, 0, w.AddFiles(files("a.jpg")...))
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, names(w.State().Files))

	// duplicates inside one batch are dropped too
	assert.Equal(t, 1, w.AddFiles(files("c.jpg", "c.jpg")...))
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, names(w.State().Files))
}

func TestAddRemoveKeepsAdditionOrder(t *testing.T) {
	w := New(&fakeBackend{})
	w.AddFiles(files("a", "b", "c", "d")...)
	w.RemoveFile(1)
	w.AddFiles(files("e")...)
	w.RemoveFile(0)
	w.RemoveFile(99)
	w.RemoveFile(-1)
	assert.Equal(t, []string{"c", "d", "e"}, names(w.State().Files))

	// a removed name can be added again, at the end
	w.AddFiles(files("b")...)
	assert.Equal(t, []string{"c", "d", "e", "b"}, names(w.State().Files))
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		setup func(w *Workflow)
		want  error
	}{
		{"mode unset", func(w *Workflow) {
			w.AddFiles(files("a")...)
		}, ErrModeUnset},
		{"blank new label", func(w *Workflow) {
			w.SetMode(ModeNew)
			w.SetNewLabel("   ")
			w.AddFiles(files("a")...)
		}, ErrEmptyLabel},
		{"no existing label picked", func(w *Workflow) {
			w.SetMode(ModeExisting)
			w.SetNewLabel("ignored")
			w.AddFiles(files("a")...)
		}, ErrEmptyLabel},
		{"no files", func(w *Workflow) {
			w.SetMode(ModeNew)
			w.SetNewLabel("tower")
		}, ErrNoFiles},
		{"51 files", func(w *Workflow) {
			w.SetMode(ModeExisting)
			w.SelectExistingLabel("tower")
			w.AddFiles(manyFiles(51)...)
		}, ErrTooManyFiles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{}
			w := New(fb)
			tt.setup(w)
			before := names(w.State().Files)

			err := w.Submit(context.Background())
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, fb.uploads)
			st := w.State()
			assert.NotEmpty(t, st.Message)
			assert.False(t, st.Uploading)
			assert.Equal(t, before, names(st.Files))
		})
	}
}

func TestSubmitFiftyFilesSucceeds(t *testing.T) {
	fb := &fakeBackend{result: &backend.UploadResult{UploadedCount: 50}}
	w := New(fb)
	w.SetMode(ModeExisting)
	w.SelectExistingLabel("tower")
	w.AddFiles(manyFiles(50)...)

	require.NoError(t, w.Submit(context.Background()))
	assert.Equal(t, 1, fb.uploads)
	assert.Len(t, fb.lastFiles, 50)
}

func TestSubmitSuccessResetsForm(t *testing.T) {
	fb := &fakeBackend{
		result:   &backend.UploadResult{UploadedCount: 7},
		labels:   []backend.LabelSummary{{Label: "tower", Count: 7}},
		progress: [][2]int64{{10, 100}, {55, 100}, {100, 100}},
	}
	w := New(fb)
	w.SetMode(ModeNew)
	w.SetNewLabel("  tower ")
	w.AddFiles(files("a", "b")...)

	require.NoError(t, w.Submit(context.Background()))
	assert.Equal(t, "tower", fb.lastLabel)
	assert.Equal(t, []string{"a", "b"}, names(fb.lastFiles))

	st := w.State()
	assert.Empty(t, st.Files)
	assert.Equal(t, ModeUnset, st.Mode)
	assert.Empty(t, st.NewLabel)
	assert.Empty(t, st.ExistingLabel)
	assert.Contains(t, st.Message, "7")
	assert.Equal(t, 100, st.Progress)
	assert.True(t, st.ProgressKnown)
	assert.False(t, st.Uploading)
	assert.Equal(t, 1, fb.summaries)
	assert.Equal(t, fb.labels, st.Labels)
}

func TestSubmitNormalisesNewLabel(t *testing.T) {
	fb := &fakeBackend{result: &backend.UploadResult{UploadedCount: 1}}
	w := New(fb)
	w.SetMode(ModeNew)
	w.SetNewLabel("cafe\u0301") // decomposed e + combining acute
	w.AddFiles(files("a")...)

	require.NoError(t, w.Submit(context.Background()))
	assert.Equal(t, "caf\u00e9", fb.lastLabel)
}

func TestSubmitFailureKeepsFiles(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"transport", errors.New("connection refused"), "Connection or server error"},
		{"status", &backend.StatusError{Endpoint: "upload", StatusCode: 500}, "Upload failed"},
		{"missing count", backend.ErrMissingCount, "Upload failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{err: tt.err}
			w := New(fb)
			w.SetMode(ModeExisting)
			w.SelectExistingLabel("tower")
			w.AddFiles(files("a", "b", "c")...)

			err := w.Submit(context.Background())
			assert.ErrorIs(t, err, tt.err)
			st := w.State()
			assert.False(t, st.Uploading)
			assert.Equal(t, []string{"a", "b", "c"}, names(st.Files))
			assert.Equal(t, ModeExisting, st.Mode)
			assert.Equal(t, "tower", st.ExistingLabel)
			assert.Contains(t, st.Message, tt.msg)
			assert.Equal(t, 0, fb.summaries)
		})
	}
}

func TestSubmitWhileUploadingIsRefused(t *testing.T) {
	fb := &fakeBackend{
		result:      &backend.UploadResult{UploadedCount: 1},
		blockUpload: make(chan struct{}),
		started:     make(chan struct{}),
	}
	w := New(fb)
	w.SetMode(ModeNew)
	w.SetNewLabel("tower")
	w.AddFiles(files("a")...)

	done := make(chan error, 1)
	go func() { done <- w.Submit(context.Background()) }()
	<-fb.started

	assert.True(t, w.State().Uploading)
	assert.ErrorIs(t, w.Submit(context.Background()), ErrBusy)

	close(fb.blockUpload)
	require.NoError(t, <-done)
	assert.Equal(t, 1, fb.uploads)
	assert.False(t, w.State().Uploading)
}

func TestProgressWithoutTotalStaysUnknown(t *testing.T) {
	fb := &fakeBackend{
		err:      errors.New("reset"),
		progress: [][2]int64{{10, 0}, {20, 0}},
	}
	w := New(fb)
	w.SetMode(ModeNew)
	w.SetNewLabel("tower")
	w.AddFiles(files("a")...)
	w.Submit(context.Background())

	st := w.State()
	assert.False(t, st.ProgressKnown)
	assert.Equal(t, 0, st.Progress)
}

func TestMountLoadsLabels(t *testing.T) {
	fb := &fakeBackend{labels: []backend.LabelSummary{{Label: "a", Count: 1}}}
	w := New(fb)
	w.Mount(context.Background())
	assert.Equal(t, fb.labels, w.State().Labels)
}

func TestCloseClearsPendingFiles(t *testing.T) {
	w := New(&fakeBackend{})
	w.AddFiles(files("a")...)
	w.Close()
	assert.Empty(t, w.State().Files)
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeNew, ParseMode("new"))
	assert.Equal(t, ModeExisting, ParseMode("existing"))
	assert.Equal(t, ModeUnset, ParseMode(""))
	assert.Equal(t, ModeUnset, ParseMode("bogus"))
	assert.Equal(t, "new", ModeNew.String())
}

func TestStartMarksUploadingBeforeReturning(t *testing.T) {
	b := &fakeBackend{
		result:      &backend.UploadResult{UploadedCount: 1},
		blockUpload: make(chan struct{}),
	}
	w := New(b)
	w.SetMode(ModeNew)
	w.SetNewLabel("porto")
	w.AddFiles(files("a.jpg")...)

	done, err := w.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, w.State().Uploading)

	_, err = w.Start(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(b.blockUpload)
	require.NoError(t, <-done)
	st := w.State()
	assert.False(t, st.Uploading)
	assert.Equal(t, "✅ Upload successful (1 images)", st.Message)
}

func TestStartValidationFailsSynchronously(t *testing.T) {
	b := &fakeBackend{}
	w := New(b)
	done, err := w.Start(context.Background())
	assert.ErrorIs(t, err, ErrModeUnset)
	assert.Nil(t, done)
	assert.Zero(t, b.uploads)
	assert.NotEmpty(t, w.State().Message)
}
