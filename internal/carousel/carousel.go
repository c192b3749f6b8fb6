// Package carousel is the landing page slideshow: every image in the
// dataset, in shuffled order, one at a time.
package carousel

import (
	"context"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/drummonds/travellens-web/internal/backend"
)

// Interval between automatic slide changes.
const Interval = 4 * time.Second

type Lister interface {
	ListImages(ctx context.Context) ([]backend.ImageCollection, error)
}

type Carousel struct {
	lister Lister

	mu      sync.Mutex
	rnd     *rand.Rand
	loaded  bool
	images  []string
	current int
}

func New(l Lister) *Carousel {
	return NewWithRand(l, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func NewWithRand(l Lister, rnd *rand.Rand) *Carousel {
	return &Carousel{lister: l, rnd: rnd}
}

// Load fetches and shuffles all images and rewinds to the first slide.
func (c *Carousel) Load(ctx context.Context) {
	items, err := c.lister.ListImages(ctx)
	if err != nil {
		log.Printf("carousel: failed to load images: %v", err)
	}
	var all []string
	for _, it := range items {
		all = append(all, it.Images...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rnd.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	c.images = all
	c.current = 0
	c.loaded = true
}

func (c *Carousel) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

func (c *Carousel) Next() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.images) == 0 {
		return
	}
	c.current = (c.current + 1) % len(c.images)
}

func (c *Carousel) Prev() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.images) == 0 {
		return
	}
	c.current = (c.current - 1 + len(c.images)) % len(c.images)
}

// Current returns the slide on show; ok is false when there are no images.
func (c *Carousel) Current() (url string, index, total int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.images) == 0 {
		return "", 0, 0, false
	}
	return c.images[c.current], c.current, len(c.images), true
}

// Images returns the slides in display order.
func (c *Carousel) Images() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.images...)
}
