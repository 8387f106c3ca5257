package repository

import (
	"context"
	"time"

	"github.com/honeynil/skillswap-timebank/internal/models"
)

type OutboxRepository interface {
	Add(ctx context.Context, ev *models.OutboxEvent) error
	// ClaimPending moves up to limit events to processing and returns them. Pending
	// events are eligible, and so are processing events claimed before staleBefore,
	// whose relay is assumed to have died mid-send.
	ClaimPending(ctx context.Context, limit int, staleBefore time.Time) ([]models.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id string) error
	MarkAttemptFailed(ctx context.Context, id string, reason string, maxAttempts int) error
}
