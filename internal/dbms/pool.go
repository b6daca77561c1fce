package dbms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hue-gateway/internal/domain"
)

// Dialer opens a session on server for user.
type Dialer func(ctx context.Context, server domain.QueryServer, user string) (domain.QueryServerClient, error)

// ServerLookup resolves a query server definition by name.
type ServerLookup func(name string) (domain.QueryServer, error)

type poolKey struct {
	user   string
	server string
}

// Pool caches one Dbms per (user, server). Entries live until evicted,
// idle-closed or the pool is closed.
type Pool struct {
	mu      sync.RWMutex
	entries map[poolKey]*Dbms

	dial            Dialer
	lookup          ServerLookup
	opts            Options
	defaultDatabase string
	logger          *slog.Logger
}

// PoolOptions configure a Pool.
type PoolOptions struct {
	Dial   Dialer
	Lookup ServerLookup
	// Dbms are the options of every gateway the pool creates.
	Dbms Options
	// DefaultDatabase is selected with USE after a session is opened.
	DefaultDatabase string
}

// NewPool creates an empty Pool.
func NewPool(opts PoolOptions) *Pool {
	opts.Dbms.applyDefaults()
	return &Pool{
		entries:         make(map[poolKey]*Dbms),
		dial:            opts.Dial,
		lookup:          opts.Lookup,
		opts:            opts.Dbms,
		defaultDatabase: opts.DefaultDatabase,
		logger:          opts.Dbms.Logger.With("component", "dbms-pool"),
	}
}

// GetOrCreate returns the cached gateway for user on the named server,
// opening a session the first time. Uses double-checked locking so lookups
// of existing entries only take the read lock.
func (p *Pool) GetOrCreate(ctx context.Context, user, serverName string) (*Dbms, error) {
	key := poolKey{user: user, server: serverName}
	p.mu.RLock()
	if d, ok := p.entries[key]; ok {
		p.mu.RUnlock()
		return d, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if d, ok := p.entries[key]; ok {
		return d, nil
	}

	server, err := p.lookup(serverName)
	if err != nil {
		return nil, err
	}
	client, err := p.dial(ctx, server, user)
	if err != nil {
		return nil, domain.ClassifyError(fmt.Errorf("open session on %s: %w", serverName, err))
	}

	d := New(client, server, user, p.opts)
	if p.defaultDatabase != "" {
		if err := d.Use(ctx, p.defaultDatabase); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("select database %s: %w", p.defaultDatabase, err)
		}
	}
	p.entries[key] = d
	p.opts.Metrics.SetPooledConnections(len(p.entries))
	p.logger.Info("query server session opened", "server", serverName, "user", user)
	return d, nil
}

// Server resolves a query server definition without opening a session.
func (p *Pool) Server(name string) (domain.QueryServer, error) {
	return p.lookup(name)
}

// Evict closes and forgets the gateway of user on the named server. The next
// GetOrCreate opens a new session.
func (p *Pool) Evict(user, serverName string) {
	key := poolKey{user: user, server: serverName}
	p.mu.Lock()
	d, ok := p.entries[key]
	delete(p.entries, key)
	p.opts.Metrics.SetPooledConnections(len(p.entries))
	p.mu.Unlock()

	if !ok {
		return
	}
	if err := d.Close(); err != nil {
		p.logger.Warn("close evicted session", "server", serverName, "user", user, "error", err)
	}
	p.logger.Info("query server session evicted", "server", serverName, "user", user)
}

// CloseIdle closes gateways unused for longer than maxIdle and returns how
// many were closed.
func (p *Pool) CloseIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-maxIdle)

	p.mu.Lock()
	var idle []*Dbms
	for key, d := range p.entries {
		if d.IdleSince().Before(cutoff) {
			idle = append(idle, d)
			delete(p.entries, key)
		}
	}
	p.opts.Metrics.SetPooledConnections(len(p.entries))
	p.mu.Unlock()

	for _, d := range idle {
		if err := d.Close(); err != nil {
			p.logger.Warn("close idle session", "server", d.Server().Name, "user", d.User(), "error", err)
		}
	}
	return len(idle)
}

// CloseAll closes every cached gateway.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[poolKey]*Dbms)
	p.opts.Metrics.SetPooledConnections(0)
	p.mu.Unlock()

	var errs []error
	for key, d := range entries {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s/%s: %w", key.user, key.server, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of cached gateways.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
