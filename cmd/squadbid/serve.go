package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/squadbid/config"
	"github.com/alejandrodnm/squadbid/internal/adapters/httpapi"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

// runServer sirve la API y corre los engines hasta que ctx se cancele.
func runServer(ctx context.Context, cfg *config.Config, a *app) error {
	router := httpapi.New(a.escrow, a.registry, a.query, a.hub).
		WithMetrics(a.metrics.Handler()).
		Router(cfg.API.AllowedOrigins)
	srv := &http.Server{
		Addr:         cfg.API.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.runner.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down http api")
		a.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
