// Package session gives every browser its own set of form workflows and
// tears them down when the browser goes quiet.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/drummonds/travellens-web/internal/carousel"
	"github.com/drummonds/travellens-web/internal/gallery"
	"github.com/drummonds/travellens-web/internal/metrics"
	"github.com/drummonds/travellens-web/internal/search"
	"github.com/drummonds/travellens-web/internal/upload"
)

const CookieName = "travellens_session"

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 30 * time.Minute

type Session struct {
	ID       string
	Upload   *upload.Workflow
	Search   *search.Workflow
	Gallery  *gallery.View
	Carousel *carousel.Carousel

	ctx      context.Context
	cancel   context.CancelFunc
	lastSeen time.Time
}

// Context is cancelled when the session is closed. Background uploads and
// searches run under it.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close cancels work still in flight and releases everything the session
// holds.
func (s *Session) Close() {
	s.cancel()
	s.Upload.Close()
	s.Search.Close()
}

// Factory builds the workflows for a new session.
type Factory func(id string) *Session

// Backend is everything the workflows call on the CBIR service.
type Backend interface {
	upload.Backend
	search.Predictor
	gallery.Lister
}

// Workflows returns a Factory wiring fresh workflows to b and previews.
func Workflows(b Backend, previews search.Previews) Factory {
	return func(id string) *Session {
		return &Session{
			Upload:   upload.New(b),
			Search:   search.New(b, previews),
			Gallery:  gallery.New(b),
			Carousel: carousel.New(b),
		}
	}
}

type Manager struct {
	factory Factory
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(factory Factory, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating a fresh one (with a new id) when
// id is unknown. created reports whether a new session was made.
func (m *Manager) Get(id string) (s *Session, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && id != "" {
		s.lastSeen = m.now()
		return s, false
	}
	newID := uuid.NewString()
	s = m.factory(newID)
	s.ID = newID
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.lastSeen = m.now()
	m.sessions[newID] = s
	metrics.Sessions.Set(float64(len(m.sessions)))
	return s, true
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap closes sessions idle for longer than the TTL and returns how many
// were closed.
func (m *Manager) Reap() int {
	m.mu.Lock()
	var idle []*Session
	cutoff := m.now().Add(-m.ttl)
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	metrics.Sessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		log.Debugf("session: reaped %d idle sessions", len(idle))
	}
	return len(idle)
}

// Run reaps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Reap()
		case <-ctx.Done():
			return
		}
	}
}

// Close tears down every session.
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	metrics.Sessions.Set(0)
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
