package notebook

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"hue-gateway/internal/livy"
	"hue-gateway/internal/metrics"
)

// SessionCloser deletes a Livy session.
type SessionCloser interface {
	Close(ctx context.Context, sessionID int) error
}

// TrackedSession is a live Livy session started through the gateway.
type TrackedSession struct {
	ID       int       `json:"id"`
	User     string    `json:"user"`
	Kind     string    `json:"kind"`
	Started  time.Time `json:"started"`
	LastUsed time.Time `json:"last_used"`
}

// Sessions remembers the Livy sessions users started and closes those left
// idle longer than the TTL. A nil *Sessions tracks nothing.
type Sessions struct {
	mu       sync.Mutex
	sessions map[int]*TrackedSession

	closer  SessionCloser
	ttl     time.Duration
	metrics *metrics.Gateway
	logger  *slog.Logger
	now     func() time.Time
}

// NewSessions creates an empty registry.
func NewSessions(closer SessionCloser, ttl time.Duration, m *metrics.Gateway, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		sessions: make(map[int]*TrackedSession),
		closer:   closer,
		ttl:      ttl,
		metrics:  m,
		logger:   logger.With("component", "livy-sessions"),
		now:      time.Now,
	}
}

// Track records a newly started session.
func (s *Sessions) Track(user string, id int, kind string) {
	if s == nil {
		return
	}
	now := s.now()
	s.mu.Lock()
	s.sessions[id] = &TrackedSession{ID: id, User: user, Kind: kind, Started: now, LastUsed: now}
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetLivySessions(n)
}

// Touch marks a session as used.
func (s *Sessions) Touch(id int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok := s.sessions[id]; ok {
		ts.LastUsed = s.now()
	}
}

// Forget drops a session that was closed or lost.
func (s *Sessions) Forget(id int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetLivySessions(n)
}

// List returns the tracked sessions of user, or of everyone when user is
// empty.
func (s *Sessions) List(user string) []TrackedSession {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrackedSession, 0, len(s.sessions))
	for _, ts := range s.sessions {
		if user == "" || ts.User == user {
			out = append(out, *ts)
		}
	}
	return out
}

// Len returns the number of tracked sessions.
func (s *Sessions) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ReapIdle closes idle sessions every interval until ctx is done.
// Should be called in a background goroutine.
func (s *Sessions) ReapIdle(ctx context.Context, interval time.Duration) {
	if s == nil || s.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reapOnce(ctx)
		}
	}
}

func (s *Sessions) reapOnce(ctx context.Context) int {
	// Collect under the lock, close on the server after releasing it.
	s.mu.Lock()
	var stale []*TrackedSession
	cutoff := s.now().Add(-s.ttl)
	for id, ts := range s.sessions {
		if ts.LastUsed.Before(cutoff) {
			stale = append(stale, ts)
			delete(s.sessions, id)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetLivySessions(n)

	for _, ts := range stale {
		if err := s.close(ctx, ts.ID); err != nil {
			s.logger.Warn("close idle session", "session", ts.ID, "user", ts.User, "error", err)
			continue
		}
		s.logger.Info("idle session closed", "session", ts.ID, "user", ts.User, "idle_since", ts.LastUsed)
	}
	return len(stale)
}

// CloseAll closes every tracked session. Called on server shutdown.
func (s *Sessions) CloseAll(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	all := make([]*TrackedSession, 0, len(s.sessions))
	for id, ts := range s.sessions {
		all = append(all, ts)
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	s.metrics.SetLivySessions(0)

	var errs []error
	for _, ts := range all {
		if err := s.close(ctx, ts.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// close deletes a session, treating one the server no longer knows as
// closed.
func (s *Sessions) close(ctx context.Context, id int) error {
	err := s.closer.Close(ctx, id)
	var lerr *livy.Error
	if errors.As(err, &lerr) && lerr.NotFound() {
		return nil
	}
	return err
}
