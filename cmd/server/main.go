// Package main is the entry point of the gateway HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"hue-gateway/internal/app"
	"hue-gateway/internal/config"
	"hue-gateway/internal/db"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server and the
// release of backend sessions.
const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	store, err := db.Open(cfg.MetaDBPath)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer func() { _ = store.Close() }()

	gw, err := app.New(app.Deps{Cfg: cfg, Store: store, Logger: logger})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gw.Router(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		// Long enough for a synchronous create_session, which polls Livy.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	if err := gw.Sweeper.Start(); err != nil {
		return fmt.Errorf("start history sweeper: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP API listening", "addr", cfg.ListenAddr, "tls", cfg.TLSCertFile != "",
			"servers", len(cfg.QueryServers), "livy", cfg.Livy.URL)
		logger.Info("connect the CLI with: hue --host " + gatewayURL(cfg.ListenAddr, cfg.TLSCertFile != "") + " history")
		var err error
		if cfg.TLSCertFile != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	})
	g.Go(func() error {
		gw.Sessions.ReapIdle(gctx, cfg.Livy.ReapInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		gw.Sweeper.Stop()
		err := srv.Shutdown(shutdownCtx)
		if closeErr := gw.Close(shutdownCtx); closeErr != nil {
			logger.Warn("release backend sessions", "error", closeErr)
		}
		return err
	})
	return g.Wait()
}

// gatewayURL returns the base URL a client on this machine should use for
// the listen address. Wildcard hosts become localhost.
func gatewayURL(listenAddr string, tls bool) string {
	scheme := "http"
	if tls {
		scheme = "https"
	}
	addr := strings.TrimSpace(listenAddr)
	host, port, err := net.SplitHostPort(addr)
	switch {
	case addr == "":
		host, port = "localhost", "8080"
	case err != nil:
		return scheme + "://" + addr
	case host == "" || host == "0.0.0.0" || host == "::":
		host = "localhost"
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}
