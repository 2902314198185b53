// Package store owns all SQL against the bridge schema. Handlers and
// background loops never touch the pool directly.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/chatforge/bridge-api/internal/bridge"
)

// Store encapsulates data access for every bridge entity.
type Store struct {
	DB *pgxpool.Pool
}

// New creates a Store over an open pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

// notFound maps pgx's sentinel onto the domain sentinel so callers test with
// errors.Is(err, bridge.ErrNotFound).
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return bridge.ErrNotFound
	}
	return err
}

// WithTx runs fn inside a transaction, rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// WithAdvisoryLock holds a session-level advisory lock keyed on an arbitrary
// string while fn runs. The lock lives on a dedicated pool connection so it
// survives across statements and outbound HTTP calls, then is released with
// the connection.
func (s *Store) WithAdvisoryLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	conn, err := s.DB.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("advisory lock %q: %w", key, err)
	}
	defer func() {
		// Unlock on a background context: the work context may already be done.
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
			log.Error().Err(err).Str("key", key).Msg("advisory unlock failed")
		}
	}()

	return fn(ctx)
}
