package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

type TagRepository struct {
	base
}

func NewTagRepository(db *sqlx.DB) *TagRepository {
	return &TagRepository{base{db: db}}
}

func (r *TagRepository) Resolve(ctx context.Context, names []string) (ids []int64, unknown []string, err error) {
	ctx, finish := instrument(ctx, "tag-repository", "ResolveTags")
	defer func() { finish(err) }()

	if len(names) == 0 {
		return nil, nil, nil
	}
	var rows []struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}
	if err = r.q(ctx).SelectContext(ctx, &rows, `SELECT id, name FROM tags WHERE name = ANY($1)`, pq.Array(names)); err != nil {
		slog.Error("failed to resolve tags", "method", "Resolve", "error", err)
		return nil, nil, fmt.Errorf("failed to resolve tags: %w", err)
	}
	byName := make(map[string]int64, len(rows))
	for _, row := range rows {
		byName[row.Name] = row.ID
	}
	for _, n := range names {
		if id, ok := byName[n]; ok {
			ids = append(ids, id)
			continue
		}
		unknown = append(unknown, n)
	}
	return ids, unknown, nil
}

const requestTagNamesQuery = `
	SELECT t.name FROM request_tags rt JOIN tags t ON t.id = rt.tag_id
	WHERE rt.request_id = $1 ORDER BY t.name`

func (r *TagRepository) NamesByRequest(ctx context.Context, requestID int64) (names []string, err error) {
	ctx, finish := instrument(ctx, "tag-repository", "TagNamesByRequest", attribute.Int64("request_id", requestID))
	defer func() { finish(err) }()

	if err = r.q(ctx).SelectContext(ctx, &names, requestTagNamesQuery, requestID); err != nil {
		return nil, fmt.Errorf("failed to get request tags: %w", err)
	}
	return names, nil
}
