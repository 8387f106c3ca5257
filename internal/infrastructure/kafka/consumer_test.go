package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/honeynil/skillswap-timebank/internal/models"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages and then blocks until ctx is cancelled.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) == 0 {
		r.mu.Unlock()
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	r.mu.Unlock()
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

// fakeHandler fails with errs in order, then with err on every later call.
type fakeHandler struct {
	events []models.RequestPublishedEvent
	errs   []error
	err    error
	onCall func(calls int)
}

func (h *fakeHandler) HandleRequestPublished(_ context.Context, ev models.RequestPublishedEvent) (int, error) {
	h.events = append(h.events, ev)
	if h.onCall != nil {
		h.onCall(len(h.events))
	}
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		return 0, err
	}
	return 1, h.err
}

func newTestConsumer(reader *fakeReader, handler *fakeHandler) *Consumer {
	return &Consumer{
		reader:  reader,
		topic:   "skill-requests",
		handler: handler,
		backoff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}

func TestConsumer_Consume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{Offset: 1, Key: []byte("7"), Value: []byte(`{"event_type":"request.published","request_id":7,"owner_id":2}`)},
			{Offset: 2, Value: []byte(`not json`)},
			{Offset: 3, Value: []byte(`{"event_type":"request.renamed","request_id":7}`)},
			{Offset: 4, Value: []byte(`{"event_type":"request.published"}`)},
			{Offset: 5, Value: []byte(`{"event_type":"request.published","request_id":9,"owner_id":3}`)},
		},
	}
	handler := &fakeHandler{}
	newTestConsumer(reader, handler).Consume(ctx)

	require.Len(t, handler.events, 2)
	assert.Equal(t, int64(7), handler.events[0].RequestID)
	assert.Equal(t, int64(2), handler.events[0].OwnerID)
	assert.Equal(t, int64(9), handler.events[1].RequestID)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, reader.committed)
}

func TestConsumer_RetriesStoreFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{Offset: 10, Value: []byte(`{"event_type":"request.published","request_id":1}`)},
			{Offset: 11, Value: []byte(`{"event_type":"request.published","request_id":2}`)},
		},
	}
	handler := &fakeHandler{errs: []error{errors.New("store unavailable"), errors.New("store unavailable")}}
	newTestConsumer(reader, handler).Consume(ctx)

	require.Len(t, handler.events, 4)
	assert.Equal(t, int64(1), handler.events[2].RequestID)
	assert.Equal(t, int64(2), handler.events[3].RequestID)
	assert.Equal(t, []int64{10, 11}, reader.committed)
}

func TestConsumer_SkipsMissingRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		msgs:   []kafka.Message{{Offset: 10, Value: []byte(`{"event_type":"request.published","request_id":1}`)}},
	}
	handler := &fakeHandler{err: fmt.Errorf("%w: 1", pkgerrors.ErrRequestNotFound)}
	newTestConsumer(reader, handler).Consume(ctx)

	assert.Len(t, handler.events, 1)
	assert.Equal(t, []int64{10}, reader.committed)
}

func TestConsumer_StopsWithoutCommitWhileFailing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		msgs:   []kafka.Message{{Offset: 10, Value: []byte(`{"event_type":"request.published","request_id":1}`)}},
	}
	handler := &fakeHandler{
		err: errors.New("store unavailable"),
		onCall: func(calls int) {
			if calls == 3 {
				cancel()
			}
		},
	}
	newTestConsumer(reader, handler).Consume(ctx)

	assert.Len(t, handler.events, 3)
	assert.Empty(t, reader.committed)
}
