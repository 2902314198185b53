package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chatforge/bridge-api/internal/ai"
	"github.com/chatforge/bridge-api/internal/config"
	"github.com/chatforge/bridge-api/internal/db"
	"github.com/chatforge/bridge-api/internal/metrics"
	"github.com/chatforge/bridge-api/internal/provider"
	"github.com/chatforge/bridge-api/internal/refresher"
	"github.com/chatforge/bridge-api/internal/store"
	"github.com/chatforge/bridge-api/internal/worker"
)

// withStore opens the pool for a one-shot command. Only database-url is
// required here; full validation belongs to serve.
func withStore(fn func(ctx context.Context, st *store.Store, cfg config.Config) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.DatabaseURL == "" {
			return errors.New("database-url is required")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		return fn(ctx, store.New(pool), cfg)
	}
}

// printJSON writes operator-facing output to stdout; logs stay on stderr.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	_, err = os.Stdout.Write(out)
	return err
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: withStore(func(ctx context.Context, st *store.Store, cfg config.Config) error {
			return db.Migrate(ctx, st.DB)
		}),
	}
}

func drainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Claim one batch of queued events and run the pipeline",
		RunE: withStore(func(ctx context.Context, st *store.Store, cfg config.Config) error {
			wrk := worker.New(st, ai.NewClient(cfg.AIRuntimeURL, cfg.AIAPIKey), provider.NewClient(cfg.GraphAPIURL), metrics.New(), worker.Config{
				SessionTTL:      cfg.SessionTTL,
				StaleClaimAfter: cfg.StaleClaimAfter,
			})
			summary, err := wrk.Drain(ctx, cfg.BatchSize)
			if err != nil {
				return fmt.Errorf("drain: %w", err)
			}
			return printJSON(summary)
		}),
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-credentials",
		Short: "Exchange credentials that are close to expiry",
		RunE: withStore(func(ctx context.Context, st *store.Store, cfg config.Config) error {
			ref := refresher.New(st, metrics.New(), refresher.Config{
				GraphURL:  cfg.GraphAPIURL,
				AppID:     cfg.AppID,
				AppSecret: cfg.AppSecret,
				Threshold: time.Duration(cfg.RefreshThresholdDays) * 24 * time.Hour,
			})
			results, err := ref.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("refresh pass: %w", err)
			}
			return printJSON(map[string]any{"results": results})
		}),
	}
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session-cleanup",
		Short: "Delete expired participant sessions",
		RunE: withStore(func(ctx context.Context, st *store.Store, cfg config.Config) error {
			n, err := st.CleanupSessions(ctx)
			if err != nil {
				return fmt.Errorf("session cleanup: %w", err)
			}
			log.Info().Int64("cleaned", n).Msg("session cleanup finished")
			return printJSON(map[string]int64{"cleaned": n})
		}),
	}
}
