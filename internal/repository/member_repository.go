package repository

import (
	"context"

	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/shopspring/decimal"
)

// MemberRepository persists members and their balance fields. Balance writes are
// reserved for the ledger package.
type MemberRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Member, error)
	// LockByIDs loads the members with a row lock, acquired in ascending id order.
	LockByIDs(ctx context.Context, ids ...int64) (map[int64]*models.Member, error)
	UpdateBalance(ctx context.Context, b models.Balance) error
	UpdateRating(ctx context.Context, memberID int64, rating decimal.Decimal) error
	FindBySkills(ctx context.Context, tagIDs []int64, excludeID int64) ([]models.Member, error)
}
