// Package sessions keeps one booking workflow per visitor session and exposes
// it over HTTP and a websocket event stream.
package sessions

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/internal/observability/metrics"
	"github.com/wolfman30/medspa-booking/internal/workflow"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

const defaultIdleTimeout = 30 * time.Minute

var (
	ErrSessionNotFound = errors.New("sessions: session not found")
	ErrMissingProvider = errors.New("sessions: provider_id is required")
)

// Session pairs a workflow with the bookkeeping the manager needs.
type Session struct {
	ID         string
	Actor      string
	CreatedAt  time.Time
	Controller *workflow.Controller

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Config tunes a Manager.
type Config struct {
	IdleTimeout time.Duration
	Location    *time.Location
	Clock       func() time.Time
}

// Manager owns every live Controller.
type Manager struct {
	backend booking.Backend
	cfg     Config
	logger  *logging.Logger
	metrics *metrics.WorkflowMetrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(backend booking.Backend, cfg Config, logger *logging.Logger, m *metrics.WorkflowMetrics) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Manager{
		backend:  backend,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// Create starts a workflow for providerID on behalf of actor ("" = anonymous).
func (m *Manager) Create(providerID, actor string) (*Session, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, ErrMissingProvider
	}
	id := uuid.NewString()
	ctrl := workflow.New(providerID, m.backend,
		workflow.WithLogger(m.logger.With("session_id", id)),
		workflow.WithMetrics(m.metrics),
		workflow.WithClock(m.cfg.Clock),
		workflow.WithLocation(m.cfg.Location),
		workflow.WithActor(actor),
	)
	now := m.cfg.Clock()
	s := &Session{ID: id, Actor: actor, CreatedAt: now, Controller: ctrl, lastSeen: now}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	m.metrics.SessionOpened()

	ctrl.Start()
	m.logger.Info("booking session created", "session_id", id, "provider_id", providerID)
	return s, nil
}

// Get returns the session and marks it active.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(m.cfg.Clock())
	return s, nil
}

// Delete closes the workflow and forgets the session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.closeSession(s, "deleted")
	return nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle since before now-IdleTimeout.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.cfg.IdleTimeout)
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.closeSession(s, "idle")
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done, then closes everything left.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return
		case <-ticker.C:
			if n := m.Sweep(m.cfg.Clock()); n > 0 {
				m.logger.Info("evicted idle booking sessions", "count", n)
			}
		}
	}
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		m.closeSession(s, "shutdown")
	}
}

func (m *Manager) closeSession(s *Session, reason string) {
	s.Controller.Close()
	m.metrics.SessionClosed()
	m.logger.Info("booking session closed", "session_id", s.ID, "reason", reason)
}
