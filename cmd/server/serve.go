package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chatforge/bridge-api/internal/ai"
	"github.com/chatforge/bridge-api/internal/config"
	"github.com/chatforge/bridge-api/internal/db"
	"github.com/chatforge/bridge-api/internal/httpapi"
	"github.com/chatforge/bridge-api/internal/metrics"
	"github.com/chatforge/bridge-api/internal/provider"
	"github.com/chatforge/bridge-api/internal/refresher"
	"github.com/chatforge/bridge-api/internal/store"
	"github.com/chatforge/bridge-api/internal/worker"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge HTTP server with its background loops",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	st := store.New(pool)
	m := metrics.New()
	wrk := worker.New(st, ai.NewClient(cfg.AIRuntimeURL, cfg.AIAPIKey), provider.NewClient(cfg.GraphAPIURL), m, worker.Config{
		SessionTTL:      cfg.SessionTTL,
		StaleClaimAfter: cfg.StaleClaimAfter,
	})
	ref := refresher.New(st, m, refresher.Config{
		GraphURL:  cfg.GraphAPIURL,
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		Threshold: time.Duration(cfg.RefreshThresholdDays) * 24 * time.Hour,
	})

	srv := &httpapi.Server{
		Store:     st,
		Worker:    wrk,
		Refresher: ref,
		Metrics:   m,
		Cfg:       cfg,
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	runEvery(ctx, "drain", cfg.DrainInterval, func(ctx context.Context) {
		summary, err := wrk.Drain(ctx, cfg.BatchSize)
		if err != nil {
			log.Error().Err(err).Msg("drain pass failed")
			return
		}
		if summary.Claimed > 0 || summary.Reaped > 0 {
			log.Info().
				Int("claimed", summary.Claimed).
				Int("completed", summary.Completed).
				Int("released", summary.Released).
				Int("failed", summary.Failed).
				Int64("reaped", summary.Reaped).
				Msg("drain pass finished")
		}
	})
	runEvery(ctx, "credential-refresh", cfg.RefreshInterval, func(ctx context.Context) {
		results, err := ref.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("credential refresh pass failed")
			return
		}
		if len(results) > 0 {
			log.Info().Int("connections", len(results)).Msg("credential refresh pass finished")
		}
	})
	runEvery(ctx, "session-cleanup", cfg.CleanupInterval, func(ctx context.Context) {
		n, err := st.CleanupSessions(ctx)
		if err != nil {
			log.Error().Err(err).Msg("session cleanup failed")
			return
		}
		m.SessionsCleaned.Add(float64(n))
		if n > 0 {
			log.Info().Int64("cleaned", n).Msg("session cleanup finished")
		}
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("env", cfg.Env).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
	return nil
}

// runEvery ticks fn until ctx is cancelled. A non-positive interval disables
// the loop; the HTTP control endpoints stay available for manual triggers.
func runEvery(ctx context.Context, name string, every time.Duration, fn func(context.Context)) {
	if every <= 0 {
		log.Info().Str("loop", name).Msg("background loop disabled")
		return
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		log.Info().Str("loop", name).Dur("interval", every).Msg("background loop started")
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fn(ctx)
			}
		}
	}()
}
