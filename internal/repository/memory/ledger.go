package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/skillswap-timebank/internal/models"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"github.com/shopspring/decimal"
)

type transactionRepo struct {
	db *DB
}

func (r *transactionRepo) Create(ctx context.Context, e *models.TransactionEntry) (int64, error) {
	if e == nil {
		return 0, pkgerrors.ErrNilEntry
	}
	if e.Amount <= 0 {
		return 0, fmt.Errorf("%w: non-positive entry amount %d", pkgerrors.ErrInvariantViolation, e.Amount)
	}
	err := r.db.view(ctx, func(st *state) error {
		e.ID = st.nextID()
		st.entries = append(st.entries, *e)
		return nil
	})
	return e.ID, err
}

func (r *transactionRepo) GetByID(ctx context.Context, id int64) (*models.TransactionEntry, error) {
	var out *models.TransactionEntry
	err := r.db.view(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.ID == id {
				out = &e
				return nil
			}
		}
		return fmt.Errorf("%w: %d", pkgerrors.ErrEntryNotFound, id)
	})
	return out, err
}

func (r *transactionRepo) ListByMember(ctx context.Context, memberID int64, limit, offset int) ([]models.TransactionEntry, error) {
	var out []models.TransactionEntry
	err := r.db.view(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.FromMemberID == memberID || e.ToMemberID == memberID {
				out = append(out, e)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, limit, offset), err
}

func (r *transactionRepo) Totals(ctx context.Context, memberID int64) (received, sent int64, err error) {
	err = r.db.view(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.ToMemberID == memberID {
				received += e.Amount
			}
			if e.FromMemberID == memberID {
				sent += e.Amount
			}
		}
		return nil
	})
	return received, sent, err
}

type tagRepo struct {
	db *DB
}

func (r *tagRepo) Resolve(ctx context.Context, names []string) (ids []int64, unknown []string, err error) {
	err = r.db.view(ctx, func(st *state) error {
		byName := make(map[string]int64, len(st.tags))
		for id, n := range st.tags {
			byName[n] = id
		}
		for _, n := range names {
			if id, ok := byName[n]; ok {
				ids = append(ids, id)
				continue
			}
			unknown = append(unknown, n)
		}
		return nil
	})
	return ids, unknown, err
}

func (r *tagRepo) NamesByRequest(ctx context.Context, requestID int64) ([]string, error) {
	var out []string
	err := r.db.view(ctx, func(st *state) error {
		out = tagNames(st, st.requestTags[requestID])
		return nil
	})
	return out, err
}

type ratingRepo struct {
	db *DB
}

func (r *ratingRepo) Create(ctx context.Context, rt *models.Rating) error {
	return r.db.view(ctx, func(st *state) error {
		for _, existing := range st.ratings {
			if existing.ProposalID == rt.ProposalID {
				return pkgerrors.ErrAlreadyRated
			}
		}
		rt.ID = st.nextID()
		st.ratings = append(st.ratings, *rt)
		return nil
	})
}

func (r *ratingRepo) AverageForTeacher(ctx context.Context, teacherID int64) (decimal.Decimal, error) {
	var scores []decimal.Decimal
	err := r.db.view(ctx, func(st *state) error {
		for _, rt := range st.ratings {
			if rt.TeacherID == teacherID {
				scores = append(scores, rt.Score)
			}
		}
		return nil
	})
	if err != nil || len(scores) == 0 {
		return decimal.Zero, err
	}
	return decimal.Avg(scores[0], scores[1:]...).Round(2), nil
}

type outboxRepo struct {
	db *DB
}

func (r *outboxRepo) Add(ctx context.Context, ev *models.OutboxEvent) error {
	return r.db.view(ctx, func(st *state) error {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.Status == "" {
			ev.Status = models.OutboxPending
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = r.db.now().UTC()
		}
		st.outbox = append(st.outbox, *ev)
		return nil
	})
}

func (r *outboxRepo) ClaimPending(ctx context.Context, limit int, staleBefore time.Time) ([]models.OutboxEvent, error) {
	var out []models.OutboxEvent
	err := r.db.view(ctx, func(st *state) error {
		now := r.db.now().UTC()
		for i := range st.outbox {
			if limit > 0 && len(out) == limit {
				break
			}
			ev := &st.outbox[i]
			stale := ev.Status == models.OutboxProcessing && ev.ClaimedAt != nil && ev.ClaimedAt.Before(staleBefore)
			if ev.Status != models.OutboxPending && !stale {
				continue
			}
			claimedAt := now
			ev.Status = models.OutboxProcessing
			ev.ClaimedAt = &claimedAt
			out = append(out, *ev)
		}
		return nil
	})
	return out, err
}

func (r *outboxRepo) MarkDispatched(ctx context.Context, id string) error {
	return r.update(ctx, id, func(ev *models.OutboxEvent) {
		now := r.db.now().UTC()
		ev.Status = models.OutboxDispatched
		ev.DispatchedAt = &now
		ev.ClaimedAt = nil
	})
}

func (r *outboxRepo) MarkAttemptFailed(ctx context.Context, id, reason string, maxAttempts int) error {
	return r.update(ctx, id, func(ev *models.OutboxEvent) {
		ev.Attempts++
		ev.LastError = &reason
		ev.ClaimedAt = nil
		ev.Status = models.OutboxPending
		if ev.Attempts >= maxAttempts {
			ev.Status = models.OutboxFailed
		}
	})
}

func (r *outboxRepo) update(ctx context.Context, id string, fn func(ev *models.OutboxEvent)) error {
	return r.db.view(ctx, func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].ID == id {
				fn(&st.outbox[i])
				return nil
			}
		}
		return fmt.Errorf("outbox event %s not found", id)
	})
}

// Outbox returns a copy of every queued event.
func (db *DB) Outbox() []models.OutboxEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]models.OutboxEvent(nil), db.st.outbox...)
}
