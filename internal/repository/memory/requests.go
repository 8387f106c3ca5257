package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
)

type requestRepo struct {
	db *DB
}

func (r *requestRepo) Create(ctx context.Context, req *models.Request) error {
	if req == nil {
		return pkgerrors.ErrNilRequest
	}
	return r.db.view(ctx, func(st *state) error {
		if _, ok := st.members[req.OwnerID]; !ok {
			return fmt.Errorf("%w: %d", pkgerrors.ErrMemberNotFound, req.OwnerID)
		}
		req.ID = st.nextID()
		st.requests[req.ID] = *req
		return nil
	})
}

func (r *requestRepo) GetByID(ctx context.Context, id int64) (*models.Request, error) {
	var out *models.Request
	err := r.db.view(ctx, func(st *state) error {
		req, ok := st.requests[id]
		if !ok {
			return fmt.Errorf("%w: %d", pkgerrors.ErrRequestNotFound, id)
		}
		req.Tags = tagNames(st, st.requestTags[id])
		out = &req
		return nil
	})
	return out, err
}

func (r *requestRepo) LockByID(ctx context.Context, id int64) (*models.Request, error) {
	return r.GetByID(ctx, id)
}

func (r *requestRepo) Update(ctx context.Context, req *models.Request) error {
	if req == nil {
		return pkgerrors.ErrNilRequest
	}
	return r.db.view(ctx, func(st *state) error {
		if _, ok := st.requests[req.ID]; !ok {
			return fmt.Errorf("%w: %d", pkgerrors.ErrRequestNotFound, req.ID)
		}
		st.requests[req.ID] = *req
		return nil
	})
}

func (r *requestRepo) SetTags(ctx context.Context, requestID int64, tagIDs []int64) error {
	return r.db.view(ctx, func(st *state) error {
		st.requestTags[requestID] = append([]int64(nil), tagIDs...)
		return nil
	})
}

func (r *requestRepo) TagIDs(ctx context.Context, requestID int64) ([]int64, error) {
	var out []int64
	err := r.db.view(ctx, func(st *state) error {
		out = append(out, st.requestTags[requestID]...)
		return nil
	})
	return out, err
}

func (r *requestRepo) List(ctx context.Context, f repository.RequestFilter) ([]models.Request, error) {
	var out []models.Request
	err := r.db.view(ctx, func(st *state) error {
		for id, req := range st.requests {
			if f.Status != "" && req.Status != f.Status {
				continue
			}
			if f.OwnerID != 0 && req.OwnerID != f.OwnerID {
				continue
			}
			if req.Status == models.RequestDraft && f.ViewerID != 0 && req.OwnerID != f.ViewerID {
				continue
			}
			req.Tags = tagNames(st, st.requestTags[id])
			if f.Tag != "" && !contains(req.Tags, f.Tag) {
				continue
			}
			out = append(out, req)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, f.Limit, f.Offset), err
}

func tagNames(st *state, ids []int64) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, st.tags[id])
	}
	sort.Strings(names)
	return names
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
