package repository

import (
	"context"

	"github.com/honeynil/skillswap-timebank/internal/models"
)

// TransactionRepository is append-only: there is no update or delete.
type TransactionRepository interface {
	Create(ctx context.Context, entry *models.TransactionEntry) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.TransactionEntry, error)
	ListByMember(ctx context.Context, memberID int64, limit, offset int) ([]models.TransactionEntry, error)
	// Totals returns the minutes a member has received and sent over its lifetime.
	Totals(ctx context.Context, memberID int64) (received, sent int64, err error)
}
