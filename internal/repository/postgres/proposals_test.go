package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestProposalRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProposalRepository(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("Nil", func(t *testing.T) {
		assert.ErrorIs(t, repo.Create(ctx, nil), pkgerrors.ErrNilProposal)
	})

	t.Run("Success", func(t *testing.T) {
		p := &models.Proposal{RequestID: 1, TeacherID: 2, ScheduledTime: now, Status: models.ProposalProposed, CreatedAt: now}
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO proposals")).
			WithArgs(int64(1), int64(2), now, "", models.ProposalProposed, now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(8)))

		assert.NoError(t, repo.Create(ctx, p))
		assert.Equal(t, int64(8), p.ID)
		assert.Equal(t, now, p.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO proposals")).
			WillReturnError(&pq.Error{Code: codeUniqueViolation, Constraint: constraintOpenProposal})

		err := repo.Create(ctx, &models.Proposal{RequestID: 1, TeacherID: 2, Status: models.ProposalProposed})
		assert.ErrorIs(t, err, pkgerrors.ErrDuplicateProposal)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProposalRepository_TransitionOpen(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProposalRepository(db)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	mock.ExpectExec(regexp.QuoteMeta("WHERE request_id = $3 AND id <> $4 AND status = 'proposed'")).
		WithArgs(models.ProposalRejected, fixed, int64(1), int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.TransitionOpen(context.Background(), 1, 8, models.ProposalRejected)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepository_List(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProposalRepository(db)
	cols := []string{"id", "request_id", "teacher_id", "scheduled_time", "note", "status", "created_at", "updated_at"}
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.teacher_id = $1 AND p.status = $2 ORDER BY p.id DESC LIMIT $3")).
		WithArgs(int64(2), models.ProposalProposed, 10).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(8), int64(1), int64(2), now, "", "proposed", now, now))

	out, err := repo.List(context.Background(), repository.ProposalFilter{TeacherID: 2, Status: models.ProposalProposed, Limit: 10})
	assert.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, models.ProposalProposed, out[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
