package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB driver for local servers

	"hue-gateway/internal/compute"
	"hue-gateway/internal/domain"
	"hue-gateway/internal/hs2"
)

// backends dials query server sessions. HiveServer2-compatible servers get a
// thrift session; local servers share one DuckDB database per path.
type backends struct {
	logger *slog.Logger

	mu    sync.Mutex
	local map[string]*sql.DB
}

func newBackends(logger *slog.Logger) *backends {
	return &backends{logger: logger, local: make(map[string]*sql.DB)}
}

// dial implements dbms.Dialer.
func (b *backends) dial(ctx context.Context, server domain.QueryServer, user string) (domain.QueryServerClient, error) {
	logger := b.logger.With("server", server.Name, "user", user)
	if server.Type == domain.ServerTypeLocal {
		db, err := b.localDB(server.Configuration["path"])
		if err != nil {
			return nil, err
		}
		return compute.NewLocalClient(db, logger.With("component", "local-backend")), nil
	}
	return hs2.Dial(ctx, server, user, logger.With("component", "hs2"))
}

// localDB returns the DuckDB database at path, opening it on first use. An
// empty path is an in-memory database.
func (b *backends) localDB(path string) (*sql.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if db, ok := b.local[path]; ok {
		return db, nil
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	b.local[path] = db
	return db, nil
}

// Close closes the local databases.
func (b *backends) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for path, db := range b.local {
		errs = append(errs, db.Close())
		delete(b.local, path)
	}
	return errors.Join(errs...)
}
