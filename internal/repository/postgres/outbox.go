package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
)

const outboxColumns = `id, topic, key, payload, status, attempts, last_error, claimed_at, created_at, dispatched_at`

type OutboxRepository struct {
	base
	now func() time.Time
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{base: base{db: db}, now: time.Now}
}

func (r *OutboxRepository) Add(ctx context.Context, ev *models.OutboxEvent) (err error) {
	ctx, finish := instrument(ctx, "outbox-repository", "AddOutboxEvent", attribute.String("topic", ev.Topic))
	defer func() { finish(err) }()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Status == "" {
		ev.Status = models.OutboxPending
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now().UTC()
	}
	query := `INSERT INTO outbox (id, topic, key, payload, status, attempts, created_at) VALUES ($1, $2, $3, $4, $5, 0, $6)`
	if _, err = r.q(ctx).ExecContext(ctx, query, ev.ID, ev.Topic, ev.Key, []byte(ev.Payload), ev.Status, ev.CreatedAt); err != nil {
		slog.Error("failed to add outbox event", "method", "Add", "topic", ev.Topic, "error", err)
		return fmt.Errorf("failed to add outbox event: %w", err)
	}
	return nil
}

// ClaimPending commits the claim on its own, so the caller sends with no row locks
// held. SKIP LOCKED keeps two relays from claiming the same rows.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int, staleBefore time.Time) (out []models.OutboxEvent, err error) {
	ctx, finish := instrument(ctx, "outbox-repository", "ClaimOutboxEvents")
	defer func() { finish(err) }()

	query := `
		UPDATE outbox SET status = 'processing', claimed_at = $1
		WHERE id IN (
			SELECT id FROM outbox
			WHERE status = 'pending' OR (status = 'processing' AND claimed_at < $2)
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED)
		RETURNING ` + outboxColumns
	if err = r.q(ctx).SelectContext(ctx, &out, query, r.now().UTC(), staleBefore.UTC(), limit); err != nil {
		slog.Error("failed to claim outbox events", "method", "ClaimPending", "error", err)
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	return out, nil
}

func (r *OutboxRepository) MarkDispatched(ctx context.Context, id string) (err error) {
	ctx, finish := instrument(ctx, "outbox-repository", "MarkOutboxDispatched")
	defer func() { finish(err) }()

	query := `UPDATE outbox SET status = 'dispatched', dispatched_at = $1, claimed_at = NULL WHERE id = $2`
	if _, err = r.q(ctx).ExecContext(ctx, query, r.now().UTC(), id); err != nil {
		return fmt.Errorf("failed to mark outbox event dispatched: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkAttemptFailed(ctx context.Context, id, reason string, maxAttempts int) (err error) {
	ctx, finish := instrument(ctx, "outbox-repository", "MarkOutboxAttemptFailed")
	defer func() { finish(err) }()

	query := `
		UPDATE outbox
		SET attempts = attempts + 1,
			last_error = $1,
			status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'pending' END,
			claimed_at = NULL
		WHERE id = $3`
	if _, err = r.q(ctx).ExecContext(ctx, query, reason, maxAttempts, id); err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}
