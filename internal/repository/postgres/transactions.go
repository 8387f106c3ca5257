package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/honeynil/skillswap-timebank/internal/models"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
)

// TransactionRepository writes the append-only transaction log.
type TransactionRepository struct {
	base
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{base{db: db}}
}

func (r *TransactionRepository) Create(ctx context.Context, e *models.TransactionEntry) (id int64, err error) {
	ctx, finish := instrument(ctx, "transaction-repository", "CreateTransaction")
	defer func() { finish(err) }()

	if e == nil {
		err = pkgerrors.ErrNilEntry
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return 0, err
	}
	if e.Amount <= 0 {
		err = fmt.Errorf("%w: non-positive entry amount %d", pkgerrors.ErrInvariantViolation, e.Amount)
		slog.Error("amount must be positive", "method", "Create", "amount", e.Amount, "error", err)
		return 0, err
	}

	query := `
		INSERT INTO transactions (from_member_id, to_member_id, amount, kind, request_id, proposal_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err = r.q(ctx).QueryRowxContext(ctx, query, e.FromMemberID, e.ToMemberID, e.Amount, e.Kind, e.RequestID, e.ProposalID, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		err = mapError(err, nil)
		slog.Error("failed to create transaction", "method", "Create", "from_member_id", e.FromMemberID, "to_member_id", e.ToMemberID, "kind", e.Kind, "error", err)
		return 0, fmt.Errorf("failed to create transaction: %w", err)
	}

	slog.Info("transaction created", "method", "Create", "id", e.ID, "from_member_id", e.FromMemberID, "to_member_id", e.ToMemberID, "amount", e.Amount, "kind", e.Kind)
	return e.ID, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (e *models.TransactionEntry, err error) {
	ctx, finish := instrument(ctx, "transaction-repository", "GetTransactionByID", attribute.Int64("transaction_id", id))
	defer func() { finish(err) }()

	var entry models.TransactionEntry
	query := `SELECT id, from_member_id, to_member_id, amount, kind, request_id, proposal_id, created_at FROM transactions WHERE id = $1`
	if err = r.q(ctx).GetContext(ctx, &entry, query, id); err != nil {
		err = mapError(err, fmt.Errorf("%w: %d", pkgerrors.ErrEntryNotFound, id))
		slog.Error("failed to get transaction by id", "method", "GetByID", "transaction_id", id, "error", err)
		return nil, err
	}
	return &entry, nil
}

func (r *TransactionRepository) ListByMember(ctx context.Context, memberID int64, limit, offset int) (out []models.TransactionEntry, err error) {
	ctx, finish := instrument(ctx, "transaction-repository", "ListTransactions", attribute.Int64("member_id", memberID))
	defer func() { finish(err) }()

	query := `
		SELECT id, from_member_id, to_member_id, amount, kind, request_id, proposal_id, created_at
		FROM transactions
		WHERE from_member_id = $1 OR to_member_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`
	if err = r.q(ctx).SelectContext(ctx, &out, query, memberID, limit, offset); err != nil {
		slog.Error("failed to list transactions", "method", "ListByMember", "member_id", memberID, "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return out, nil
}

func (r *TransactionRepository) Totals(ctx context.Context, memberID int64) (received, sent int64, err error) {
	ctx, finish := instrument(ctx, "transaction-repository", "TransactionTotals", attribute.Int64("member_id", memberID))
	defer func() { finish(err) }()

	query := `
		SELECT
			COALESCE(SUM(CASE WHEN to_member_id = $1 THEN amount ELSE 0 END), 0) AS received,
			COALESCE(SUM(CASE WHEN from_member_id = $1 THEN amount ELSE 0 END), 0) AS sent
		FROM transactions
		WHERE from_member_id = $1 OR to_member_id = $1`
	if err = r.q(ctx).QueryRowxContext(ctx, query, memberID).Scan(&received, &sent); err != nil {
		slog.Error("failed to sum transactions", "method", "Totals", "member_id", memberID, "error", err)
		return 0, 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return received, sent, nil
}
