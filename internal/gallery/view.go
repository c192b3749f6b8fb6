// Package gallery is the dataset browser: every label as a collapsible
// section showing at most a user-chosen number of images.
package gallery

import (
	"context"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/drummonds/travellens-web/internal/backend"
)

// DefaultCap is how many images an open section shows until the user
// confirms another number.
const DefaultCap = 10

type Lister interface {
	ListImages(ctx context.Context) ([]backend.ImageCollection, error)
}

// Section is one label as it should be rendered.
type Section struct {
	Label    string
	Expanded bool
	Total    int
	Images   []string // empty unless Expanded
}

type View struct {
	lister Lister

	mu         sync.Mutex
	loaded     bool
	collection []backend.ImageCollection
	expanded   map[string]bool
	capInput   int
	cap        int
}

func New(l Lister) *View {
	return &View{
		lister:   l,
		expanded: make(map[string]bool),
		capInput: DefaultCap,
		cap:      DefaultCap,
	}
}

// Fetch loads the collection. All sections start collapsed. A failed fetch
// leaves an empty collection.
func (v *View) Fetch(ctx context.Context) {
	items, err := v.lister.ListImages(ctx)
	if err != nil {
		log.Printf("gallery: fetch error: %v", err)
		items = nil
	}
	expanded := make(map[string]bool, len(items))
	for _, it := range items {
		expanded[it.Label] = false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.collection = items
	v.expanded = expanded
	v.loaded = true
}

// Loaded reports whether Fetch has run at least once.
func (v *View) Loaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loaded
}

func (v *View) Toggle(label string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.expanded[label] = !v.expanded[label]
}

func (v *View) Expanded(label string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.expanded[label]
}

// ParseCap reads a positive count; anything else becomes 1.
func ParseCap(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// SetCapInput records the number typed in the cap field without applying it.
func (v *View) SetCapInput(raw string) int {
	n := ParseCap(raw)
	v.mu.Lock()
	v.capInput = n
	v.mu.Unlock()
	return n
}

// ConfirmCap applies the pending cap input.
func (v *View) ConfirmCap() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cap = v.capInput
}

func (v *View) Cap() (input, active int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.capInput, v.cap
}

// Sections returns the collection in backend order, with open sections
// truncated to the first Cap images.
func (v *View) Sections() []Section {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Section, 0, len(v.collection))
	for _, it := range v.collection {
		s := Section{Label: it.Label, Total: len(it.Images), Expanded: v.expanded[it.Label]}
		if s.Expanded {
			n := min(v.cap, len(it.Images))
			s.Images = append([]string(nil), it.Images[:n]...)
		}
		out = append(out, s)
	}
	return out
}
