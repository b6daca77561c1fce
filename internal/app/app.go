// Package app wires the gateway: metadata store, query server pool, Livy
// client, notebook services and background jobs.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"hue-gateway/internal/api"
	"hue-gateway/internal/config"
	"hue-gateway/internal/db"
	"hue-gateway/internal/db/repository"
	"hue-gateway/internal/dbms"
	"hue-gateway/internal/livy"
	"hue-gateway/internal/metrics"
	"hue-gateway/internal/service/history"
	"hue-gateway/internal/service/notebook"
)

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg    *config.Config
	Store  *db.Store
	Logger *slog.Logger
}

// App is the wired gateway.
type App struct {
	Pool      *dbms.Pool
	Livy      *livy.Client
	Sessions  *notebook.Sessions
	Notebooks *notebook.Service
	History   *history.Service
	Sweeper   *history.Sweeper
	Handler   *api.Handler
	Metrics   *metrics.Gateway
	Registry  *prometheus.Registry

	cfg      *config.Config
	backends *backends
	logger   *slog.Logger
}

// New wires all repositories, services and background jobs from deps.
// Nothing is started.
func New(deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	// === Repositories ===
	historyRepo := repository.NewQueryHistoryRepo(deps.Store.Write)
	notebookRepo := repository.NewNotebookRepo(deps.Store.Write)

	// === Query servers ===
	b := newBackends(logger)
	pool := dbms.NewPool(dbms.PoolOptions{
		Dial:            b.dial,
		Lookup:          cfg.QueryServer,
		DefaultDatabase: cfg.Gateway.DatabaseOnConnect,
		Dbms: dbms.Options{
			Timeout:      cfg.Gateway.QueryTimeout,
			PollInterval: cfg.Gateway.PollInterval,
			FetchSize:    cfg.Gateway.FetchSize,
			MaxFetchSize: cfg.Gateway.MaxFetchSize,
			History:      historyRepo,
			Metrics:      m,
			Logger:       logger,
		},
	})

	// === Livy ===
	livyClient := livy.New(livy.Options{
		URL:      cfg.Livy.URL,
		Timeout:  cfg.Livy.RequestTimeout,
		Username: cfg.Livy.Username,
		Password: cfg.Livy.Password,
		Logger:   logger,
	})
	sessions := notebook.NewSessions(livyClient, cfg.Livy.SessionIdleTTL, m, logger)

	// === Services ===
	notebooks := notebook.New(notebook.Options{
		Pool:                pool,
		Livy:                livyClient,
		Sessions:            sessions,
		Documents:           notebookRepo,
		SessionPollAttempts: cfg.Livy.SessionPollAttempts,
		SessionPollInterval: cfg.Livy.SessionPollInterval,
		Metrics:             m,
		Logger:              logger,
	})
	historySvc := history.NewService(historyRepo)
	sweeper := history.NewSweeper(history.SweeperOptions{
		History:     historyRepo,
		Pool:        pool,
		Schedule:    cfg.Gateway.HistorySweep,
		StaleAfter:  cfg.Gateway.HistoryStaleAfter,
		Batch:       cfg.Gateway.HistorySweepBatch,
		IdleTimeout: cfg.Gateway.ConnectionIdleTime,
		Logger:      logger,
	})

	return &App{
		Pool:      pool,
		Livy:      livyClient,
		Sessions:  sessions,
		Notebooks: notebooks,
		History:   historySvc,
		Sweeper:   sweeper,
		Handler:   api.NewHandler(notebooks, historySvc, logger),
		Metrics:   m,
		Registry:  registry,
		cfg:       cfg,
		backends:  b,
		logger:    logger,
	}, nil
}

// Close releases every backend resource: Livy sessions, pooled query server
// sessions and local databases.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(
		a.Sessions.CloseAll(ctx),
		a.Pool.CloseAll(),
		a.backends.Close(),
	)
}
