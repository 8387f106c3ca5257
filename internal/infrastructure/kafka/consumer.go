package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/honeynil/skillswap-timebank/internal/models"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// RequestPublishedHandler reacts to a request becoming visible to teachers.
type RequestPublishedHandler interface {
	HandleRequestPublished(ctx context.Context, ev models.RequestPublishedEvent) (int, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	topic   string
	handler RequestPublishedHandler
	backoff func() backoff.BackOff
}

func NewConsumer(brokers []string, topic, groupID string, handler RequestPublishedHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		topic:   topic,
		handler: handler,
		backoff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Consume reads until ctx is cancelled. Offsets are committed after handling, so a
// crash redelivers; matching only notifies and is safe to repeat. Malformed events and
// events for requests that no longer exist are logged and committed. Any other handler
// failure is retried in place, so the partition waits for the store to recover rather
// than skipping the event.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				slog.Info("Kafka consumer stopped", "topic", c.topic)
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.topic, "error", err)
			continue
		}

		slog.Info("Kafka message received", "topic", msg.Topic, "key", string(msg.Key), "offset", msg.Offset)
		attempt := 0
		err = backoff.Retry(func() error {
			attempt++
			err := c.handle(ctx, msg)
			if err != nil && !errors.Is(err, errSkip) {
				slog.Warn("event handling failed, retrying", "offset", msg.Offset, "attempt", attempt, "error", err)
			}
			return err
		}, backoff.WithContext(c.newBackOff(), ctx))
		if err != nil && !errors.Is(err, errSkip) {
			slog.Info("Kafka consumer stopped before the event was handled", "topic", c.topic, "offset", msg.Offset, "error", err)
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			slog.Error("failed to commit Kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// errSkip marks an event that can never be handled and is committed as is.
var errSkip = errors.New("event skipped")

func (c *Consumer) newBackOff() backoff.BackOff {
	if c.backoff == nil {
		return defaultBackOff()
	}
	return c.backoff()
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		slog.Error("failed to unmarshal event", "key", string(msg.Key), "error", err)
		return backoff.Permanent(errSkip)
	}

	switch envelope.EventType {
	case models.EventRequestPublished:
		var event models.RequestPublishedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			slog.Error("failed to unmarshal request published event", "error", err)
			return backoff.Permanent(errSkip)
		}
		if event.RequestID == 0 {
			slog.Error("invalid request published event: missing request_id", "key", string(msg.Key))
			return backoff.Permanent(errSkip)
		}
		notified, err := c.handler.HandleRequestPublished(ctx, event)
		if pkgerrors.IsNotFound(err) {
			slog.Error("published request no longer exists", "request_id", event.RequestID, "error", err)
			return backoff.Permanent(errSkip)
		}
		if err != nil {
			return fmt.Errorf("failed to match request %d: %w", event.RequestID, err)
		}
		slog.Info("published request matched", "request_id", event.RequestID, "notified", notified)

	default:
		slog.Warn("unknown event type", "event_type", envelope.EventType, "key", string(msg.Key))
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
