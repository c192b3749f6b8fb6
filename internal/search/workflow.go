// Package search holds the state of the "find similar images" form.
package search

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/drummonds/travellens-web/internal/backend"
	"github.com/drummonds/travellens-web/internal/metrics"
	"github.com/drummonds/travellens-web/internal/preview"
)

const (
	MinTopK     = 1
	MaxTopK     = 50
	DefaultTopK = 5
)

var (
	ErrBusy   = errors.New("a search is already in progress")
	ErrNoFile = errors.New("no query image selected")
)

const (
	alertNoFile = "Please select a file first!"
	alertFailed = "Failed to fetch results"
)

type Predictor interface {
	Predict(ctx context.Context, file backend.File, topK int) ([]backend.SearchResult, error)
}

// Previews creates and releases the thumbnail shown for the query image.
type Previews interface {
	Create(f backend.File) (preview.Handle, error)
	Release(h preview.Handle) error
}

type State struct {
	File    *backend.File
	Preview preview.Handle
	TopK    int
	Results []backend.SearchResult
	Loading bool
	Alert   string
}

type Workflow struct {
	predictor Predictor
	previews  Previews

	mu      sync.Mutex
	file    *backend.File
	preview preview.Handle
	topK    int
	results []backend.SearchResult
	loading bool
	alert   string
}

func New(p Predictor, previews Previews) *Workflow {
	return &Workflow{predictor: p, previews: previews, topK: DefaultTopK}
}

// SelectFile makes f the query image. The previous preview is released
// before the new one is created.
func (w *Workflow) SelectFile(f backend.File) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.file = &f
	if err := w.previews.Release(w.preview); err != nil {
		log.Printf("search: releasing preview: %v", err)
	}
	w.preview = ""

	h, err := w.previews.Create(f)
	if err != nil {
		log.WithField("file", f.Name).Printf("search: no preview: %v", err)
		return
	}
	w.preview = h
}

// ClampTopK parses raw as the number of results wanted. Anything that is not
// an integer becomes MinTopK; the result is always within [MinTopK, MaxTopK].
func ClampTopK(raw string) int {
	k, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || k < MinTopK {
		return MinTopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}

func (w *Workflow) SetTopK(raw string) int {
	k := ClampTopK(raw)
	w.mu.Lock()
	w.topK = k
	w.mu.Unlock()
	return k
}

// Submit runs the search for the selected file. Without a file it only
// raises an alert.
func (w *Workflow) Submit(ctx context.Context) error {
	q, err := w.begin()
	if err != nil {
		return err
	}
	return w.run(ctx, q)
}

// Start is Submit with the backend call running in the background. Loading
// is already set when Start returns; done receives the outcome.
func (w *Workflow) Start(ctx context.Context) (done <-chan error, err error) {
	q, err := w.begin()
	if err != nil {
		return nil, err
	}
	ch := make(chan error, 1)
	go func() { ch <- w.run(ctx, q) }()
	return ch, nil
}

type query struct {
	file backend.File
	topK int
}

func (w *Workflow) begin() (query, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loading {
		return query{}, ErrBusy
	}
	if w.file == nil {
		w.alert = alertNoFile
		metrics.ValidationRejects.WithLabelValues("search").Inc()
		return query{}, ErrNoFile
	}
	w.loading = true
	return query{file: *w.file, topK: w.topK}, nil
}

func (w *Workflow) run(ctx context.Context, q query) error {
	results, err := w.predictor.Predict(ctx, q.file, q.topK)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loading = false
	if err != nil {
		log.WithField("file", q.file.Name).Printf("search: API error: %v", err)
		w.alert = alertFailed
		return err
	}
	w.results = results
	return nil
}

// TakeAlert returns the pending alert and clears it, so it shows once.
func (w *Workflow) TakeAlert() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	a := w.alert
	w.alert = ""
	return a
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := State{
		Preview: w.preview,
		TopK:    w.topK,
		Results: append([]backend.SearchResult(nil), w.results...),
		Loading: w.loading,
		Alert:   w.alert,
	}
	if w.file != nil {
		f := *w.file
		st.File = &f
	}
	return st
}

// Close releases the preview when the form goes away.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.previews.Release(w.preview); err != nil {
		log.Printf("search: releasing preview: %v", err)
	}
	w.preview = ""
}
