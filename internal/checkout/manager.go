package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/port"
	"github.com/nikolayk812/checkoutflow/internal/repository"
)

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrInvalidParams   = errors.New("invalid session params")
)

type entry struct {
	session *Session

	// serializes saves of one session
	mu      sync.Mutex
	version int64
}

// Manager keeps live sessions in memory and, with a repository, persists a
// snapshot of each after every change so a session outlives the process.
type Manager struct {
	deps Deps
	repo port.SessionRepository

	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
}

// NewManager builds a manager; repo may be nil to keep sessions in memory only.
func NewManager(deps Deps, repo port.SessionRepository) (*Manager, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	return &Manager{
		deps:     deps,
		repo:     repo,
		sessions: make(map[uuid.UUID]*entry),
	}, nil
}

// Create starts a session for the order and stores it.
func (m *Manager) Create(ctx context.Context, p Params) (*Session, error) {
	s, err := NewSession(m.deps, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	e := &entry{session: s}

	if m.repo != nil {
		data, err := s.marshalSnapshot()
		if err != nil {
			return nil, err
		}

		rec, err := m.repo.InsertSession(ctx, domain.CheckoutRecord{
			ID:       s.ID(),
			OrderRef: s.OrderRef(),
			OwnerID:  s.Owner(),
			Stage:    s.Stage().Name(),
			Snapshot: data,
		})
		if err != nil {
			return nil, fmt.Errorf("repo.InsertSession: %w", err)
		}
		e.version = rec.Version
	}

	m.mu.Lock()
	m.sessions[s.ID()] = e
	m.mu.Unlock()

	// the session exists even when auto-fill fails; its steps show the failure
	startErr := s.Start(ctx)

	if err := m.Save(ctx, s); err != nil {
		return s, errors.Join(startErr, err)
	}

	return s, startErr
}

// Get returns the session of owner, restoring it from the repository if needed.
// A session of another owner is reported as not found.
func (m *Manager) Get(ctx context.Context, id uuid.UUID, owner string) (*Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()

	if !ok {
		var err error
		if e, err = m.restore(ctx, id); err != nil {
			return nil, err
		}
	}

	if e.session.Owner() != owner {
		return nil, fmt.Errorf("session[%s]: %w", id, ErrSessionNotFound)
	}

	return e.session, nil
}

func (m *Manager) restore(ctx context.Context, id uuid.UUID) (*entry, error) {
	if m.repo == nil {
		return nil, fmt.Errorf("session[%s]: %w", id, ErrSessionNotFound)
	}

	rec, err := m.repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("session[%s]: %w", id, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("repo.GetSession: %w", err)
	}

	snap, err := unmarshalSnapshot(rec.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("session[%s]: %w", id, err)
	}

	s, err := Restore(ctx, m.deps, snap)
	if err != nil {
		return nil, fmt.Errorf("Restore: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// a concurrent restore may have won
	if e, ok := m.sessions[id]; ok {
		return e, nil
	}

	e := &entry{session: s, version: rec.Version}
	m.sessions[id] = e

	return e, nil
}

// Save persists the session snapshot and the consent acceptances recorded since the last save.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if m.repo == nil {
		s.TakeAcceptances()
		return nil
	}

	m.mu.Lock()
	e, ok := m.sessions[s.ID()]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session[%s]: %w", s.ID(), ErrSessionNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := s.marshalSnapshot()
	if err != nil {
		return err
	}

	version, err := m.repo.UpdateSession(ctx, domain.CheckoutRecord{
		ID:       s.ID(),
		Stage:    s.Stage().Name(),
		Snapshot: data,
		Version:  e.version,
	})
	if err != nil {
		return fmt.Errorf("repo.UpdateSession: %w", err)
	}
	e.version = version

	if acceptances := s.TakeAcceptances(); len(acceptances) > 0 {
		if err := m.repo.RecordAcceptances(ctx, s.ID(), s.Owner(), acceptances); err != nil {
			// keep them for the next save
			s.mu.Lock()
			s.unsaved = append(acceptances, s.unsaved...)
			s.mu.Unlock()
			return fmt.Errorf("repo.RecordAcceptances: %w", err)
		}
	}

	return nil
}

// Delete drops the session from memory and the repository.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID, owner string) error {
	s, err := m.Get(ctx, id, owner)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	m.deps.Tax.Invalidate(s.OrderRef())

	if m.repo == nil {
		return nil
	}

	if err := m.repo.DeleteSession(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("repo.DeleteSession: %w", err)
	}

	return nil
}

// Evict drops sessions last updated before idleSince, and paid sessions when
// a repository holds them. Evicted sessions with a repository are restored on
// the next Get; without one they are gone.
func (m *Manager) Evict(idleSince time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for id, e := range m.sessions {
		_, paid := e.session.Stage().(Paid)
		if !e.session.UpdatedAt().Before(idleSince) && !(paid && m.repo != nil) {
			continue
		}

		delete(m.sessions, id)
		m.deps.Tax.Invalidate(e.session.OrderRef())
		n++
	}

	if n > 0 {
		slog.Debug("evicted sessions", "method", "Manager.Evict", "count", n)
	}

	return n
}
