package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/skillswap-timebank/internal/infrastructure/observability"
	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Ledger owns every change to a member's available and held minutes.
//
// Its methods must run inside a transaction started by repository.TxManager: they lock
// the member rows they touch and rely on the caller's transaction for atomicity. None of
// them is idempotent; the workflow guards each call with a locked state check.
type Ledger struct {
	members        repository.MemberRepository
	entries        repository.TransactionRepository
	systemMemberID int64
	now            func() time.Time
}

func New(members repository.MemberRepository, entries repository.TransactionRepository, systemMemberID int64) *Ledger {
	return &Ledger{
		members:        members,
		entries:        entries,
		systemMemberID: systemMemberID,
		now:            time.Now,
	}
}

// SystemMemberID is the account top-up credits are recorded from.
func (l *Ledger) SystemMemberID() int64 {
	return l.systemMemberID
}

// Hold moves minutes from available to held.
func (l *Ledger) Hold(ctx context.Context, memberID, minutes int64) (b models.Balance, err error) {
	ctx, done := l.track(ctx, "hold", minutes, &err, attribute.Int64("member_id", memberID))
	defer done()

	if err = validMinutes(minutes); err != nil {
		return b, err
	}
	m, err := l.lockOne(ctx, memberID)
	if err != nil {
		return b, err
	}
	if b, err = applyHold(m.Balance(), minutes); err != nil {
		return b, err
	}
	if err = l.members.UpdateBalance(ctx, b); err != nil {
		return b, fmt.Errorf("failed to persist hold: %w", err)
	}
	return b, nil
}

// Release moves minutes from held back to available.
func (l *Ledger) Release(ctx context.Context, memberID, minutes int64) (b models.Balance, err error) {
	ctx, done := l.track(ctx, "release", minutes, &err, attribute.Int64("member_id", memberID))
	defer done()

	if err = validMinutes(minutes); err != nil {
		return b, err
	}
	m, err := l.lockOne(ctx, memberID)
	if err != nil {
		return b, err
	}
	if b, err = applyRelease(m.Balance(), minutes); err != nil {
		return b, err
	}
	if err = l.members.UpdateBalance(ctx, b); err != nil {
		return b, fmt.Errorf("failed to persist release: %w", err)
	}
	return b, nil
}

// Transfer pays minutes out of from's held time into to's available time and records
// the movement in the transaction log.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID, minutes int64, ref models.Reference) (entry *models.TransactionEntry, err error) {
	ctx, done := l.track(ctx, "transfer", minutes, &err,
		attribute.Int64("from_member_id", fromID),
		attribute.Int64("to_member_id", toID),
	)
	defer done()

	if err = validMinutes(minutes); err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, fmt.Errorf("%w: transfer to self", pkgerrors.ErrInvalidInput)
	}

	locked, err := l.members.LockByIDs(ctx, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock members: %w", err)
	}
	from, ok := locked[fromID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", pkgerrors.ErrMemberNotFound, fromID)
	}
	to, ok := locked[toID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", pkgerrors.ErrMemberNotFound, toID)
	}

	fromBalance, err := applyDebitHeld(from.Balance(), minutes)
	if err != nil {
		return nil, err
	}
	toBalance := applyCredit(to.Balance(), minutes)

	if err = l.members.UpdateBalance(ctx, fromBalance); err != nil {
		return nil, fmt.Errorf("failed to persist debit: %w", err)
	}
	if err = l.members.UpdateBalance(ctx, toBalance); err != nil {
		return nil, fmt.Errorf("failed to persist credit: %w", err)
	}

	entry = &models.TransactionEntry{
		FromMemberID: fromID,
		ToMemberID:   toID,
		Amount:       minutes,
		Kind:         models.KindSettlement,
		RequestID:    ref.RequestID,
		ProposalID:   ref.ProposalID,
		CreatedAt:    l.now().UTC(),
	}
	if _, err = l.entries.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record transfer: %w", err)
	}
	return entry, nil
}

// Credit adds purchased minutes to a member's available time, recorded as coming from
// the system account.
func (l *Ledger) Credit(ctx context.Context, memberID, minutes int64, ref models.Reference) (entry *models.TransactionEntry, err error) {
	ctx, done := l.track(ctx, "credit", minutes, &err, attribute.Int64("member_id", memberID))
	defer done()

	if err = validMinutes(minutes); err != nil {
		return nil, err
	}
	if memberID == l.systemMemberID {
		return nil, fmt.Errorf("%w: the system account cannot be credited", pkgerrors.ErrInvalidInput)
	}
	m, err := l.lockOne(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err = l.members.UpdateBalance(ctx, applyCredit(m.Balance(), minutes)); err != nil {
		return nil, fmt.Errorf("failed to persist credit: %w", err)
	}

	entry = &models.TransactionEntry{
		FromMemberID: l.systemMemberID,
		ToMemberID:   memberID,
		Amount:       minutes,
		Kind:         models.KindTopUp,
		RequestID:    ref.RequestID,
		ProposalID:   ref.ProposalID,
		CreatedAt:    l.now().UTC(),
	}
	if _, err = l.entries.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record credit: %w", err)
	}
	return entry, nil
}

func (l *Ledger) lockOne(ctx context.Context, memberID int64) (*models.Member, error) {
	locked, err := l.members.LockByIDs(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock member: %w", err)
	}
	m, ok := locked[memberID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", pkgerrors.ErrMemberNotFound, memberID)
	}
	return m, nil
}

// track opens a span and returns a func that records metrics and logs the outcome.
func (l *Ledger) track(ctx context.Context, op string, minutes int64, errp *error, attrs ...attribute.KeyValue) (context.Context, func()) {
	ctx, span := otel.Tracer("ledger").Start(ctx, "Ledger."+op)
	span.SetAttributes(append(attrs, attribute.Int64("minutes", minutes))...)
	return ctx, func() {
		defer span.End()
		err := *errp
		observability.LedgerOperations.WithLabelValues(op, observability.Outcome(err)).Inc()
		if err == nil {
			observability.LedgerMinutes.WithLabelValues(op).Observe(float64(minutes))
			slog.Debug("ledger operation applied", "operation", op, "minutes", minutes)
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if stderrors.Is(err, pkgerrors.ErrInvariantViolation) {
			slog.Error("ledger invariant violated", "severity", "critical", "operation", op, "minutes", minutes, "error", err)
			return
		}
		slog.Warn("ledger operation rejected", "operation", op, "minutes", minutes, "error", err)
	}
}
