// Package upload holds the state of the "upload training images" form:
// label choice, the pending file list, submission and its progress.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/drummonds/travellens-web/internal/backend"
	"github.com/drummonds/travellens-web/internal/metrics"
)

// MaxFiles is the most files one upload may carry.
const MaxFiles = 50

var (
	ErrBusy         = errors.New("an upload is already in progress")
	ErrModeUnset    = errors.New("a label choice is required")
	ErrEmptyLabel   = errors.New("label cannot be empty")
	ErrNoFiles      = errors.New("at least one file is required")
	ErrTooManyFiles = fmt.Errorf("at most %d files per upload", MaxFiles)
)

type Mode int

const (
	ModeUnset Mode = iota
	ModeNew
	ModeExisting
)

func (m Mode) String() string {
	switch m {
	case ModeNew:
		return "new"
	case ModeExisting:
		return "existing"
	}
	return ""
}

// ParseMode maps the form value back to a Mode. Anything unknown is unset.
func ParseMode(s string) Mode {
	switch s {
	case "new":
		return ModeNew
	case "existing":
		return ModeExisting
	}
	return ModeUnset
}

// Backend is the part of the CBIR API the upload form needs.
type Backend interface {
	Upload(ctx context.Context, label string, files []backend.File, progress backend.ProgressFunc) (*backend.UploadResult, error)
	LabelsSummary(ctx context.Context) ([]backend.LabelSummary, error)
}

// State is a copy of the workflow for rendering.
type State struct {
	Mode          Mode
	NewLabel      string
	ExistingLabel string
	Files         []backend.File
	Uploading     bool
	Progress      int
	ProgressKnown bool
	Message       string
	Labels        []backend.LabelSummary
}

type Workflow struct {
	backend Backend

	mu            sync.Mutex
	mode          Mode
	newLabel      string
	existingLabel string
	files         []backend.File
	uploading     bool
	progress      int
	progressKnown bool
	message       string
	labels        []backend.LabelSummary
}

func New(b Backend) *Workflow {
	return &Workflow{backend: b}
}

// Mount loads the label summary shown in the "existing label" picker.
func (w *Workflow) Mount(ctx context.Context) {
	w.loadLabels(ctx)
}

func (w *Workflow) loadLabels(ctx context.Context) {
	labels, err := w.backend.LabelsSummary(ctx)
	if err != nil {
		log.Printf("upload: failed to fetch labels: %v", err)
		return
	}
	w.mu.Lock()
	w.labels = labels
	w.mu.Unlock()
}

func (w *Workflow) SetMode(m Mode) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mode = m
}

func (w *Workflow) SetNewLabel(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.newLabel = s
}

func (w *Workflow) SelectExistingLabel(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.existingLabel = s
}

// AddFiles appends candidates whose name is not already pending and returns
// how many were added. Duplicates are dropped without error.
func (w *Workflow) AddFiles(candidates ...backend.File) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[string]bool, len(w.files))
	for _, f := range w.files {
		seen[f.Name] = true
	}
	added := 0
	for _, f := range candidates {
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		w.files = append(w.files, f)
		added++
	}
	return added
}

// RemoveFile drops the pending file at index i. Out of range is a no-op.
func (w *Workflow) RemoveFile(i int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.files) {
		return
	}
	w.files = append(w.files[:i:i], w.files[i+1:]...)
}

// resolvedLabel returns the label that would be submitted. Caller holds mu.
func (w *Workflow) resolvedLabel() string {
	if w.mode == ModeNew {
		return norm.NFC.String(strings.TrimSpace(w.newLabel))
	}
	return w.existingLabel
}

func (w *Workflow) validate() error {
	if w.mode == ModeUnset {
		return ErrModeUnset
	}
	if w.resolvedLabel() == "" {
		return ErrEmptyLabel
	}
	if len(w.files) == 0 {
		return ErrNoFiles
	}
	if len(w.files) > MaxFiles {
		return ErrTooManyFiles
	}
	return nil
}

// Submit validates the form and, if it is complete, uploads the pending
// files. Validation failures never reach the backend. On failure the
// pending files are kept so the user can retry.
func (w *Workflow) Submit(ctx context.Context) error {
	j, err := w.begin()
	if err != nil {
		return err
	}
	return w.run(ctx, j)
}

// Start is Submit with the upload itself running in the background. The
// workflow is already marked as uploading when Start returns; done receives
// the outcome.
func (w *Workflow) Start(ctx context.Context) (done <-chan error, err error) {
	j, err := w.begin()
	if err != nil {
		return nil, err
	}
	ch := make(chan error, 1)
	go func() { ch <- w.run(ctx, j) }()
	return ch, nil
}

type job struct {
	label string
	files []backend.File
}

// begin validates and flips the workflow into the uploading state.
func (w *Workflow) begin() (job, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.uploading {
		return job{}, ErrBusy
	}
	if err := w.validate(); err != nil {
		w.message = "⚠️ " + capitalize(err.Error())
		metrics.ValidationRejects.WithLabelValues("upload").Inc()
		return job{}, err
	}
	j := job{label: w.resolvedLabel(), files: append([]backend.File(nil), w.files...)}
	w.uploading = true
	w.progress = 0
	w.progressKnown = false
	w.message = ""
	return j, nil
}

func (w *Workflow) run(ctx context.Context, j job) error {
	defer func() {
		w.mu.Lock()
		w.uploading = false
		w.mu.Unlock()
	}()

	log.WithFields(log.Fields{"label": j.label, "files": len(j.files)}).Debug("upload: submitting")
	res, err := w.backend.Upload(ctx, j.label, j.files, w.onProgress)
	if err != nil {
		log.WithField("label", j.label).Printf("upload: failed: %v", err)
		w.mu.Lock()
		w.message = failureMessage(err)
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	w.message = fmt.Sprintf("✅ Upload successful (%d images)", res.UploadedCount)
	w.files = nil
	w.newLabel = ""
	w.existingLabel = ""
	w.mode = ModeUnset
	w.progress = 100
	w.progressKnown = true
	w.mu.Unlock()

	w.loadLabels(ctx)
	return nil
}

func (w *Workflow) onProgress(sent, total int64) {
	pct, ok := backend.Percent(sent, total)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if pct > w.progress || !w.progressKnown {
		w.progress = pct
	}
	w.progressKnown = true
}

func failureMessage(err error) string {
	var se *backend.StatusError
	if errors.As(err, &se) || errors.Is(err, backend.ErrMissingCount) {
		return "❌ Upload failed. Please try again"
	}
	return "❌ Connection or server error. Please try again"
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		Mode:          w.mode,
		NewLabel:      w.newLabel,
		ExistingLabel: w.existingLabel,
		Files:         append([]backend.File(nil), w.files...),
		Uploading:     w.uploading,
		Progress:      w.progress,
		ProgressKnown: w.progressKnown,
		Message:       w.message,
		Labels:        append([]backend.LabelSummary(nil), w.labels...),
	}
}

// Close drops the pending files when the form goes away.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files = nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
