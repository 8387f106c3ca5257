package models

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	MinRating = decimal.Zero
	MaxRating = decimal.NewFromInt(5)
)

type Rating struct {
	ID         int64           `db:"id" json:"id"`
	ProposalID int64           `db:"proposal_id" json:"proposal_id"`
	TeacherID  int64           `db:"teacher_id" json:"teacher_id"`
	StudentID  int64           `db:"student_id" json:"student_id"`
	Score      decimal.Decimal `db:"score" json:"score"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
