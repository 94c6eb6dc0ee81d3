package wizard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager owns the live wizard sessions and evicts idle ones.
type Manager struct {
	deps Deps
	ttl  time.Duration

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(deps Deps, ttl time.Duration) *Manager {
	if deps.MatchConcurrency < 1 {
		deps.MatchConcurrency = 1
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = 2 * time.Second
	}
	return &Manager{
		deps:     deps,
		ttl:      ttl,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Create starts a new session at step 0.
func (m *Manager) Create(ctx context.Context) *Session {
	s := newSession(&m.deps)

	m.mu.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.deps.Metrics.SetActiveSessions(count)
	slog.InfoContext(ctx, "wizard session created", "sessionID", s.ID)
	return s
}

// Get returns the session and marks it as used.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch()
	return s, nil
}

// Close cancels any tracked job and forgets the session.
func (m *Manager) Close(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.CancelJob()
	m.deps.Metrics.SetActiveSessions(count)
	slog.InfoContext(ctx, "wizard session closed", "sessionID", id)
	return nil
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Start runs the idle-session janitor until Stop is called.
func (m *Manager) Start(interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.evictIdle(ctx, now)
			}
		}
	}()
}

// Stop halts the janitor and cancels every tracked job.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.CancelJob()
	}
}

// evictIdle drops sessions unused for longer than the TTL. Sessions with a
// job in flight are kept until the job finishes.
func (m *Manager) evictIdle(ctx context.Context, now time.Time) int {
	m.mu.Lock()
	var evicted []uuid.UUID
	for id, s := range m.sessions {
		if now.Sub(s.idleSince()) < m.ttl || s.busy() {
			continue
		}
		delete(m.sessions, id)
		evicted = append(evicted, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if len(evicted) > 0 {
		m.deps.Metrics.SetActiveSessions(count)
		slog.InfoContext(ctx, "evicted idle wizard sessions", "count", len(evicted), "remaining", count)
	}
	return len(evicted)
}
