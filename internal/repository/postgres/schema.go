package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/honeynil/skillswap-timebank/internal/repository"
	"github.com/jmoiron/sqlx"
)

// Schema is the idempotent DDL applied at start.
//
//go:embed schema.sql
var Schema string

// EnsureSchema creates any missing tables and indexes. Every statement is idempotent.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		slog.Error("failed to apply schema", "error", err)
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	slog.Info("schema applied")
	return nil
}

// NewStore wires every Postgres repository around one pool.
func NewStore(db *sqlx.DB, maxRetries int) repository.Store {
	return repository.Store{
		Tx:           NewTxManager(db, maxRetries),
		Members:      NewMemberRepository(db),
		Requests:     NewRequestRepository(db),
		Proposals:    NewProposalRepository(db),
		Transactions: NewTransactionRepository(db),
		Tags:         NewTagRepository(db),
		Ratings:      NewRatingRepository(db),
		Outbox:       NewOutboxRepository(db),
	}
}
