// Package theme holds the light/dark preference. It is read from storage
// once at startup and written back on every change.
package theme

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

const storageKey = "theme"

type Preference struct {
	store Store

	mu    sync.Mutex
	theme Theme
}

// Load reads the stored theme. Missing or unrecognised values mean Light.
func Load(store Store) (*Preference, error) {
	v, ok, err := store.Get(storageKey)
	if err != nil {
		return nil, err
	}
	t := Light
	if ok && Theme(v) == Dark {
		t = Dark
	}
	return &Preference{store: store, theme: t}, nil
}

func (p *Preference) Theme() Theme {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.theme
}

// Toggle flips between light and dark and persists the result. The
// in-memory value changes even if the write fails.
func (p *Preference) Toggle() (Theme, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.theme == Dark {
		p.theme = Light
	} else {
		p.theme = Dark
	}
	if err := p.store.Put(storageKey, string(p.theme)); err != nil {
		log.Printf("theme: failed to persist %s: %v", p.theme, err)
		return p.theme, err
	}
	return p.theme, nil
}
