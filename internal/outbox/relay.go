package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/honeynil/skillswap-timebank/internal/infrastructure/kafka"
	"github.com/honeynil/skillswap-timebank/internal/infrastructure/observability"
	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultBatchSize   = 50
	defaultMaxAttempts = 10
	defaultInterval    = 2 * time.Second
	defaultClaimTTL    = time.Minute
)

type Config struct {
	BatchSize    int
	MaxAttempts  int
	PollInterval time.Duration
	// SendRetries bounds the in-batch retries of a single send before the attempt
	// is recorded as failed.
	SendRetries uint64
	// ClaimTTL is how long a claimed event may stay in processing before another
	// relay takes it over.
	ClaimTTL time.Duration
}

// Relay moves committed outbox events to Kafka. An event is marked dispatched only
// after the broker acknowledged it, so delivery is at least once.
type Relay struct {
	tx       repository.TxManager
	events   repository.OutboxRepository
	producer kafka.KafkaProducer
	cfg      Config
	backoff  func() backoff.BackOff
	now      func() time.Time
}

func NewRelay(tx repository.TxManager, events repository.OutboxRepository, producer kafka.KafkaProducer, cfg Config) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultInterval
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = defaultClaimTTL
	}
	return &Relay{
		tx:       tx,
		events:   events,
		producer: producer,
		cfg:      cfg,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 0
			return b
		},
		now: time.Now,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	slog.Info("outbox relay started", "interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			slog.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.DispatchBatch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("outbox dispatch failed", "error", err)
			}
		}
	}
}

// DispatchBatch claims up to BatchSize pending events and sends them. It returns the
// number of events the broker accepted. Send failures are recorded on the event and
// do not fail the batch. The claim commits before the first send, so no store lock
// or transaction is held across broker calls.
func (r *Relay) DispatchBatch(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer("outbox-relay").Start(ctx, "DispatchBatch")
	defer span.End()

	var events []models.OutboxEvent
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		events, err = r.events.ClaimPending(ctx, r.cfg.BatchSize, r.now().Add(-r.cfg.ClaimTTL))
		return err
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	sent := 0
	for _, ev := range events {
		sendErr := backoff.Retry(func() error {
			return r.producer.Send(ctx, ev.Topic, ev.Key, ev.Payload)
		}, backoff.WithContext(backoff.WithMaxRetries(r.backoff(), r.cfg.SendRetries), ctx))

		if sendErr != nil && ctx.Err() != nil {
			// Shutting down; the lease hands the rest of the batch to the next relay.
			return sent, ctx.Err()
		}
		if sendErr != nil {
			observability.OutboxDispatches.WithLabelValues(ev.Topic, "failed").Inc()
			slog.Warn("outbox event not delivered", "event_id", ev.ID, "topic", ev.Topic, "attempts", ev.Attempts+1, "error", sendErr)
			if err := r.events.MarkAttemptFailed(ctx, ev.ID, sendErr.Error(), r.cfg.MaxAttempts); err != nil {
				span.RecordError(err)
				return sent, err
			}
			continue
		}
		// An event sent but not marked is reclaimed after ClaimTTL and sent again.
		if err := r.events.MarkDispatched(ctx, ev.ID); err != nil {
			span.RecordError(err)
			return sent, err
		}
		observability.OutboxDispatches.WithLabelValues(ev.Topic, "dispatched").Inc()
		sent++
	}

	span.SetAttributes(attribute.Int("dispatched", sent))
	if sent > 0 {
		slog.Info("outbox batch dispatched", "count", sent)
	}
	return sent, nil
}
