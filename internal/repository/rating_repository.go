package repository

import (
	"context"

	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/shopspring/decimal"
)

type RatingRepository interface {
	Create(ctx context.Context, r *models.Rating) error
	AverageForTeacher(ctx context.Context, teacherID int64) (decimal.Decimal, error)
}
