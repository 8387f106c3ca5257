package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

const requestColumns = `id, owner_id, title, body, duration_minutes, preferred_time, status, created_at, updated_at`

type RequestRepository struct {
	base
}

func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{base{db: db}}
}

func (r *RequestRepository) Create(ctx context.Context, req *models.Request) (err error) {
	ctx, finish := instrument(ctx, "request-repository", "CreateRequest")
	defer func() { finish(err) }()

	if req == nil {
		err = pkgerrors.ErrNilRequest
		return err
	}
	query := `
		INSERT INTO requests (owner_id, title, body, duration_minutes, preferred_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id`
	err = r.q(ctx).QueryRowxContext(ctx, query, req.OwnerID, req.Title, req.Body, req.Duration, req.PreferredTime, req.Status, req.CreatedAt).Scan(&req.ID)
	if err != nil {
		err = mapError(err, nil)
		slog.Error("failed to create request", "method", "Create", "owner_id", req.OwnerID, "error", err)
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.UpdatedAt = req.CreatedAt
	slog.Info("request created", "method", "Create", "request_id", req.ID, "owner_id", req.OwnerID)
	return nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*models.Request, error) {
	return r.get(ctx, "GetRequestByID", `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
}

func (r *RequestRepository) LockByID(ctx context.Context, id int64) (*models.Request, error) {
	return r.get(ctx, "LockRequest", `SELECT `+requestColumns+` FROM requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *RequestRepository) get(ctx context.Context, op, query string, id int64) (req *models.Request, err error) {
	ctx, finish := instrument(ctx, "request-repository", op, attribute.Int64("request_id", id))
	defer func() { finish(err) }()

	var out models.Request
	if err = r.q(ctx).GetContext(ctx, &out, query, id); err != nil {
		err = mapError(err, fmt.Errorf("%w: %d", pkgerrors.ErrRequestNotFound, id))
		slog.Error("failed to get request", "method", op, "request_id", id, "error", err)
		return nil, err
	}
	var tags []string
	err = r.q(ctx).SelectContext(ctx, &tags, requestTagNamesQuery, id)
	if err != nil {
		slog.Error("failed to load request tags", "method", op, "request_id", id, "error", err)
		return nil, fmt.Errorf("failed to load request tags: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	out.Tags = tags
	return &out, nil
}

func (r *RequestRepository) Update(ctx context.Context, req *models.Request) (err error) {
	ctx, finish := instrument(ctx, "request-repository", "UpdateRequest")
	defer func() { finish(err) }()

	if req == nil {
		err = pkgerrors.ErrNilRequest
		return err
	}
	query := `
		UPDATE requests
		SET title = $1, body = $2, duration_minutes = $3, preferred_time = $4, status = $5, updated_at = $6
		WHERE id = $7`
	res, err := r.q(ctx).ExecContext(ctx, query, req.Title, req.Body, req.Duration, req.PreferredTime, req.Status, req.UpdatedAt, req.ID)
	if err != nil {
		err = mapError(err, nil)
		slog.Error("failed to update request", "method", "Update", "request_id", req.ID, "error", err)
		return fmt.Errorf("failed to update request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = fmt.Errorf("%w: %d", pkgerrors.ErrRequestNotFound, req.ID)
		return err
	}
	return nil
}

func (r *RequestRepository) SetTags(ctx context.Context, requestID int64, tagIDs []int64) (err error) {
	ctx, finish := instrument(ctx, "request-repository", "SetRequestTags", attribute.Int64("request_id", requestID))
	defer func() { finish(err) }()

	if _, err = r.q(ctx).ExecContext(ctx, `DELETE FROM request_tags WHERE request_id = $1`, requestID); err != nil {
		slog.Error("failed to clear request tags", "method", "SetTags", "request_id", requestID, "error", err)
		return fmt.Errorf("failed to clear request tags: %w", err)
	}
	if len(tagIDs) == 0 {
		return nil
	}
	query := `INSERT INTO request_tags (request_id, tag_id) SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`
	if _, err = r.q(ctx).ExecContext(ctx, query, requestID, pq.Array(tagIDs)); err != nil {
		slog.Error("failed to set request tags", "method", "SetTags", "request_id", requestID, "error", err)
		return fmt.Errorf("failed to set request tags: %w", err)
	}
	return nil
}

func (r *RequestRepository) TagIDs(ctx context.Context, requestID int64) (ids []int64, err error) {
	ctx, finish := instrument(ctx, "request-repository", "RequestTagIDs", attribute.Int64("request_id", requestID))
	defer func() { finish(err) }()

	if err = r.q(ctx).SelectContext(ctx, &ids, `SELECT tag_id FROM request_tags WHERE request_id = $1 ORDER BY tag_id`, requestID); err != nil {
		return nil, fmt.Errorf("failed to get request tag ids: %w", err)
	}
	return ids, nil
}

// List returns requests newest first. Tags are loaded with a second query.
func (r *RequestRepository) List(ctx context.Context, f repository.RequestFilter) (out []models.Request, err error) {
	ctx, finish := instrument(ctx, "request-repository", "ListRequests")
	defer func() { finish(err) }()

	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Status != "" {
		where = append(where, "r.status = "+arg(f.Status))
	}
	if f.OwnerID != 0 {
		where = append(where, "r.owner_id = "+arg(f.OwnerID))
	}
	if f.ViewerID != 0 {
		where = append(where, "(r.status <> 'draft' OR r.owner_id = "+arg(f.ViewerID)+")")
	}
	if f.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM request_tags rt JOIN tags t ON t.id = rt.tag_id WHERE rt.request_id = r.id AND t.name = "+arg(f.Tag)+")")
	}

	query := `SELECT r.id, r.owner_id, r.title, r.body, r.duration_minutes, r.preferred_time, r.status, r.created_at, r.updated_at FROM requests r`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.created_at DESC, r.id DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	if err = r.q(ctx).SelectContext(ctx, &out, query, args...); err != nil {
		slog.Error("failed to list requests", "method", "List", "error", err)
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]int64, len(out))
	index := make(map[int64]int, len(out))
	for i := range out {
		ids[i] = out[i].ID
		index[out[i].ID] = i
		out[i].Tags = []string{}
	}
	var rows []struct {
		RequestID int64  `db:"request_id"`
		Name      string `db:"name"`
	}
	err = r.q(ctx).SelectContext(ctx, &rows, `
		SELECT rt.request_id, t.name FROM request_tags rt JOIN tags t ON t.id = rt.tag_id
		WHERE rt.request_id = ANY($1) ORDER BY t.name`, pq.Array(ids))
	if err != nil {
		slog.Error("failed to load request tags", "method", "List", "error", err)
		return nil, fmt.Errorf("failed to load request tags: %w", err)
	}
	for _, row := range rows {
		i := index[row.RequestID]
		out[i].Tags = append(out[i].Tags, row.Name)
	}
	return out, nil
}
