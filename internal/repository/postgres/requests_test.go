package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"github.com/stretchr/testify/assert"
)

var requestCols = []string{"id", "owner_id", "title", "body", "duration_minutes", "preferred_time", "status", "created_at", "updated_at"}

func TestRequestRepository_LockByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM requests WHERE id = $1 FOR UPDATE")).
			WithArgs(int64(4)).
			WillReturnRows(sqlmock.NewRows(requestCols).AddRow(int64(4), int64(1), "Go", "", int64(60), now, "pending", now, now))
		mock.ExpectQuery(regexp.QuoteMeta("WHERE rt.request_id = $1 ORDER BY t.name")).
			WithArgs(int64(4)).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("go").AddRow("testing"))

		req, err := repo.LockByID(ctx, 4)
		assert.NoError(t, err)
		assert.Equal(t, models.RequestPending, req.Status)
		assert.Equal(t, int64(60), req.Duration)
		assert.Equal(t, []string{"go", "testing"}, req.Tags)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM requests WHERE id = $1 FOR UPDATE")).
			WithArgs(int64(5)).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.LockByID(ctx, 5)
		assert.ErrorIs(t, err, pkgerrors.ErrRequestNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRequestRepository_List(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRequestRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.status = $1 AND (r.status <> 'draft' OR r.owner_id = $2) ORDER BY r.created_at DESC, r.id DESC LIMIT $3 OFFSET $4")).
		WithArgs(models.RequestPending, int64(2), 20, 40).
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow(int64(9), int64(1), "SQL", "", int64(30), now, "pending", now, now).
			AddRow(int64(7), int64(3), "Go", "", int64(60), now, "pending", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE rt.request_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"request_id", "name"}).AddRow(int64(7), "go"))

	out, err := repo.List(context.Background(), repository.RequestFilter{Status: models.RequestPending, ViewerID: 2, Limit: 20, Offset: 40})
	assert.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Empty(t, out[0].Tags)
	assert.Equal(t, []string{"go"}, out[1].Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepository_SetTags(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM request_tags WHERE request_id = $1")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_tags")).
		WithArgs(int64(4), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	assert.NoError(t, repo.SetTags(context.Background(), 4, []int64{1, 2}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
