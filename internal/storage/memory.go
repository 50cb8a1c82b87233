package storage

import (
	"context"
	"sync"
	"time"

	"github.com/garrettladley/whoopweb/internal/oauth"
	"github.com/garrettladley/whoopweb/internal/session"
)

var _ Backend = (*MemoryBackend)(nil)

type stateWithTTL struct {
	req oauth.AuthorizationRequest
	ttl time.Duration
}

// sessionEntry guards one session. Entries are locked individually so readers and
// writers of different sessions never contend.
type sessionEntry struct {
	mu        sync.RWMutex
	sess      *session.Session
	expiresAt time.Time
}

type MemoryBackend struct {
	sessions   sync.Map // id -> *sessionEntry
	sessionTTL time.Duration

	states   map[string]stateWithTTL
	statesMu sync.Mutex

	now  func() time.Time
	done chan struct{}
	once sync.Once
}

type MemoryOption func(*MemoryBackend)

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryBackend) {
		m.now = now
	}
}

// NewMemoryBackend returns an in-process backend. A zero sessionTTL keeps sessions until removed.
func NewMemoryBackend(sessionTTL time.Duration, opts ...MemoryOption) *MemoryBackend {
	m := &MemoryBackend{
		sessionTTL: sessionTTL,
		states:     make(map[string]stateWithTTL),
		now:        time.Now,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.cleanupLoop()

	return m
}

func (m *MemoryBackend) Get(_ context.Context, id string) (session.Session, error) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return session.Session{}, ErrNotFound
	}
	e := v.(*sessionEntry)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.sess == nil || m.expired(e.expiresAt) {
		return session.Session{}, ErrNotFound
	}
	return e.sess.Clone(), nil
}

func (m *MemoryBackend) Put(_ context.Context, s session.Session) error {
	v, _ := m.sessions.LoadOrStore(s.ID, &sessionEntry{})
	e := v.(*sessionEntry)

	c := s.Clone()

	e.mu.Lock()
	e.sess = &c
	if m.sessionTTL > 0 {
		e.expiresAt = m.now().Add(m.sessionTTL)
	}
	e.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Update(_ context.Context, s session.Session) error {
	v, ok := m.sessions.Load(s.ID)
	if !ok {
		return ErrNotFound
	}
	e := v.(*sessionEntry)

	c := s.Clone()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Remove clears sess under this lock after unlinking the entry.
	if e.sess == nil || m.expired(e.expiresAt) {
		return ErrNotFound
	}
	if cur, ok := m.sessions.Load(s.ID); !ok || cur != e {
		return ErrNotFound
	}

	e.sess = &c
	if m.sessionTTL > 0 {
		e.expiresAt = m.now().Add(m.sessionTTL)
	}
	return nil
}

func (m *MemoryBackend) Remove(_ context.Context, id string) error {
	v, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return nil
	}
	e := v.(*sessionEntry)

	e.mu.Lock()
	e.sess = nil
	e.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Set(_ context.Context, state string, req oauth.AuthorizationRequest, ttl time.Duration) error {
	m.statesMu.Lock()
	m.states[state] = stateWithTTL{req: req, ttl: ttl}
	m.statesMu.Unlock()
	return nil
}

func (m *MemoryBackend) GetAndDelete(_ context.Context, state string) (oauth.AuthorizationRequest, error) {
	m.statesMu.Lock()
	s, ok := m.states[state]
	if ok {
		delete(m.states, state)
	}
	m.statesMu.Unlock()

	if !ok {
		return oauth.AuthorizationRequest{}, ErrNotFound
	}

	if s.req.ExpiredAt(m.now(), s.ttl) {
		return oauth.AuthorizationRequest{}, ErrNotFound
	}

	return s.req, nil
}

func (m *MemoryBackend) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryBackend) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryBackend) expired(at time.Time) bool {
	return !at.IsZero() && !m.now().Before(at)
}

func (m *MemoryBackend) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.prune()
		case <-m.done:
			return
		}
	}
}

func (m *MemoryBackend) prune() {
	now := m.now()

	m.statesMu.Lock()
	for state, s := range m.states {
		if s.req.ExpiredAt(now, s.ttl) {
			delete(m.states, state)
		}
	}
	m.statesMu.Unlock()

	m.sessions.Range(func(key, value any) bool {
		e := value.(*sessionEntry)
		e.mu.RLock()
		stale := e.sess == nil || m.expired(e.expiresAt)
		e.mu.RUnlock()
		if stale {
			m.sessions.CompareAndDelete(key, e)
		}
		return true
	})
}
