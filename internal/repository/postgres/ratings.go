package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type RatingRepository struct {
	base
}

func NewRatingRepository(db *sqlx.DB) *RatingRepository {
	return &RatingRepository{base{db: db}}
}

func (r *RatingRepository) Create(ctx context.Context, rt *models.Rating) (err error) {
	ctx, finish := instrument(ctx, "rating-repository", "CreateRating", attribute.Int64("proposal_id", rt.ProposalID))
	defer func() { finish(err) }()

	query := `
		INSERT INTO ratings (proposal_id, teacher_id, student_id, score, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err = r.q(ctx).QueryRowxContext(ctx, query, rt.ProposalID, rt.TeacherID, rt.StudentID, rt.Score, rt.CreatedAt).Scan(&rt.ID)
	if err != nil {
		err = mapError(err, nil)
		slog.Error("failed to create rating", "method", "Create", "proposal_id", rt.ProposalID, "error", err)
		return fmt.Errorf("failed to create rating: %w", err)
	}
	return nil
}

func (r *RatingRepository) AverageForTeacher(ctx context.Context, teacherID int64) (avg decimal.Decimal, err error) {
	ctx, finish := instrument(ctx, "rating-repository", "AverageRating", attribute.Int64("teacher_id", teacherID))
	defer func() { finish(err) }()

	var out decimal.NullDecimal
	if err = r.q(ctx).GetContext(ctx, &out, `SELECT ROUND(AVG(score), 2) FROM ratings WHERE teacher_id = $1`, teacherID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to average ratings: %w", err)
	}
	if !out.Valid {
		return decimal.Zero, nil
	}
	return out.Decimal, nil
}
