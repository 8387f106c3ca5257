package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
)

// TxManager runs units of work in SERIALIZABLE transactions and reruns them when
// Postgres reports a serialization failure or deadlock.
type TxManager struct {
	db              *sqlx.DB
	maxRetries      uint64
	initialInterval time.Duration
}

func NewTxManager(db *sqlx.DB, maxRetries int) *TxManager {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &TxManager{db: db, maxRetries: uint64(maxRetries), initialInterval: 50 * time.Millisecond}
}

func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	attempt := 0
	op := func() error {
		attempt++
		err := m.run(ctx, fn)
		if err == nil {
			return nil
		}
		if retryable(err) {
			slog.Warn("transaction conflict, retrying", "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.initialInterval
	policy.MaxElapsedTime = 0
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, m.maxRetries), ctx))
}

func (m *TxManager) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Error("failed to begin transaction", "method", "WithinTx", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "method", "WithinTx", "error", rbErr)
			return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "WithinTx", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", mapError(err, nil))
	}
	return nil
}
