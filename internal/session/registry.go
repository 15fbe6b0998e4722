package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsboard/issue-calendar/internal/clock"
	"github.com/opsboard/issue-calendar/internal/searchcache"
)

// ErrUnknownSession is returned for ids that were never created or have
// expired.
var ErrUnknownSession = errors.New("unknown session")

// Backend records which sessions exist and when they were last used.
type Backend interface {
	CreateSession(ctx context.Context, id string, now time.Time) error
	SessionExists(ctx context.Context, id string) (bool, error)
	TouchSession(ctx context.Context, id string, now time.Time) error
	DeleteSessionsIdleSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// StorageFunc returns the cache storage of session id.
type StorageFunc func(id string) searchcache.Storage

// Registry creates sessions and finds them again by id. Sessions known
// to the backend but not in memory, e.g. after a restart, are restored
// from their storage.
type Registry struct {
	backend Backend
	storage StorageFunc
	remote  Remote
	clock   clock.Clock
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(backend Backend, storage StorageFunc, remote Remote, clk clock.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		backend:  backend,
		storage:  storage,
		remote:   remote,
		clock:    clk,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	if err := r.backend.CreateSession(ctx, id, r.clock.Now()); err != nil {
		return nil, err
	}
	s := New(id, r.remote, r.storage(id), r.clock, r.logger)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Info("session created", "session", id)
	return s, nil
}

// Get returns session id and marks it as used.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		if _, err := uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("session %q: %w", id, ErrUnknownSession)
		}
		exists, err := r.backend.SessionExists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("look up session %s: %w", id, err)
		}
		if !exists {
			return nil, fmt.Errorf("session %s: %w", id, ErrUnknownSession)
		}
		s = New(id, r.remote, r.storage(id), r.clock, r.logger)
		if err := s.Restore(ctx); err != nil {
			return nil, fmt.Errorf("restore session %s: %w", id, err)
		}
		r.sessions[id] = s
		r.logger.Info("session restored", "session", id, "worker", s.cache.QueryKey())
	}

	s.touch()
	if err := r.backend.TouchSession(ctx, id, r.clock.Now()); err != nil {
		r.logger.Warn("touch session", "session", id, "error", err)
	}
	return s, nil
}

// Len returns the number of sessions held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Expire drops sessions idle for longer than idle, in memory and in the
// backend. It returns the number removed from the backend.
func (r *Registry) Expire(ctx context.Context, idle time.Duration) (int64, error) {
	cutoff := r.clock.Now().Add(-idle)

	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idleSince(cutoff) {
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	n, err := r.backend.DeleteSessionsIdleSince(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	return n, nil
}

// RunExpiry calls Expire every interval until ctx is cancelled.
func (r *Registry) RunExpiry(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping session expiry")
			return
		case <-ticker.C:
			n, err := r.Expire(ctx, idle)
			if err != nil {
				r.logger.Error("expire sessions", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Info("expired sessions", "count", n)
			}
		}
	}
}
