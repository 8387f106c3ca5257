package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/skillswap-timebank/internal/infrastructure/redis"
	"github.com/honeynil/skillswap-timebank/internal/ledger"
	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AccountService answers balance and history queries and applies top-ups.
type AccountService interface {
	GetBalance(ctx context.Context, memberID int64) (models.BalanceView, error)
	GetTransactionHistory(ctx context.Context, memberID int64, limit, offset int) ([]models.TransactionEntry, error)
	GetTransaction(ctx context.Context, id, viewerID int64) (*models.TransactionEntry, error)
	Reconcile(ctx context.Context, memberID int64) (*models.Reconciliation, error)
	TopUp(ctx context.Context, memberID, minutes int64) (*models.TransactionEntry, error)
}

type accountService struct {
	store  repository.Store
	ledger *ledger.Ledger
	cache  *balanceCache
}

func NewAccountService(store repository.Store, l *ledger.Ledger, redisClient redis.RedisClient, cacheTTL time.Duration) *accountService {
	return &accountService{
		store:  store,
		ledger: l,
		cache:  &balanceCache{client: redisClient, ttl: cacheTTL},
	}
}

func (s *accountService) GetBalance(ctx context.Context, memberID int64) (models.BalanceView, error) {
	tracer := otel.Tracer("account-service")
	ctx, span := tracer.Start(ctx, "GetBalance")
	span.SetAttributes(attribute.Int64("member_id", memberID))
	defer span.End()

	if b, ok := s.cache.get(ctx, memberID); ok {
		slog.Debug("balance fetched from cache", "member_id", memberID)
		return b.View(), nil
	}

	member, err := s.store.Members.GetByID(ctx, memberID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get balance")
		slog.Error("failed to get balance", "member_id", memberID, "error", err)
		return models.BalanceView{}, err
	}
	b := member.Balance()
	s.cache.set(ctx, b)

	slog.Debug("balance fetched from store", "member_id", memberID, "available", b.Available, "held", b.Held)
	return b.View(), nil
}

func (s *accountService) GetTransactionHistory(ctx context.Context, memberID int64, limit, offset int) ([]models.TransactionEntry, error) {
	tracer := otel.Tracer("account-service")
	ctx, span := tracer.Start(ctx, "GetTransactionHistory")
	span.SetAttributes(attribute.Int64("member_id", memberID))
	defer span.End()

	limit, offset = pageBounds(limit, offset)
	entries, err := s.store.Transactions.ListByMember(ctx, memberID, limit, offset)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to get transaction history", "member_id", memberID, "error", err)
		return nil, err
	}
	if entries == nil {
		entries = []models.TransactionEntry{}
	}

	slog.Info("transaction history retrieved", "member_id", memberID, "count", len(entries))
	return entries, nil
}

// GetTransaction returns one entry of the log. Members only see entries they are a
// party to; anything else reads as not found.
func (s *accountService) GetTransaction(ctx context.Context, id, viewerID int64) (*models.TransactionEntry, error) {
	ctx, span := otel.Tracer("account-service").Start(ctx, "GetTransaction")
	span.SetAttributes(attribute.Int64("transaction_id", id), attribute.Int64("member_id", viewerID))
	defer span.End()

	entry, err := s.store.Transactions.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if entry.FromMemberID != viewerID && entry.ToMemberID != viewerID {
		return nil, fmt.Errorf("%w: %d", pkgerrors.ErrEntryNotFound, id)
	}
	return entry, nil
}

// Reconcile compares the stored balance with what the transaction log says the member
// should hold. Both reads happen in one transaction.
func (s *accountService) Reconcile(ctx context.Context, memberID int64) (out *models.Reconciliation, err error) {
	tracer := otel.Tracer("account-service")
	ctx, span := tracer.Start(ctx, "Reconcile")
	span.SetAttributes(attribute.Int64("member_id", memberID))
	defer span.End()

	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		member, err := s.store.Members.GetByID(ctx, memberID)
		if err != nil {
			return err
		}
		received, sent, err := s.store.Transactions.Totals(ctx, memberID)
		if err != nil {
			return err
		}
		total := member.Balance().Total()
		out = &models.Reconciliation{
			MemberID:   memberID,
			Total:      total,
			Received:   received,
			Sent:       sent,
			NetFromLog: received - sent,
			Consistent: total == received-sent,
		}
		if memberID == s.ledger.SystemMemberID() {
			out.Exempt = true
			out.Consistent = true
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to reconcile", "member_id", memberID, "error", err)
		return nil, err
	}
	if !out.Consistent {
		slog.Error("balance does not match transaction log",
			"severity", "critical",
			"member_id", memberID,
			"total", out.Total,
			"net_from_log", out.NetFromLog)
	}
	return out, nil
}

func (s *accountService) TopUp(ctx context.Context, memberID, minutes int64) (entry *models.TransactionEntry, err error) {
	tracer := otel.Tracer("account-service")
	ctx, span := tracer.Start(ctx, "TopUp")
	span.SetAttributes(attribute.Int64("member_id", memberID), attribute.Int64("minutes", minutes))
	defer span.End()

	if minutes <= 0 {
		return nil, fmt.Errorf("%w: minutes must be positive", pkgerrors.ErrInvalidInput)
	}
	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		entry, err = s.ledger.Credit(ctx, memberID, minutes, models.Reference{})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "top-up failed")
		slog.Error("failed to top up", "member_id", memberID, "minutes", minutes, "error", err)
		return nil, err
	}
	s.cache.invalidate(ctx, memberID)

	slog.Info("member topped up", "member_id", memberID, "minutes", minutes, "transaction_id", entry.ID)
	return entry, nil
}
