package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/honeynil/skillswap-timebank/internal/models"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"github.com/shopspring/decimal"
)

type memberRepo struct {
	db *DB
}

func (r *memberRepo) GetByID(ctx context.Context, id int64) (*models.Member, error) {
	var out *models.Member
	err := r.db.view(ctx, func(st *state) error {
		m, ok := st.members[id]
		if !ok {
			return fmt.Errorf("%w: %d", pkgerrors.ErrMemberNotFound, id)
		}
		out = &m
		return nil
	})
	return out, err
}

// LockByIDs returns the members that exist; the whole store is already locked by the
// surrounding transaction.
func (r *memberRepo) LockByIDs(ctx context.Context, ids ...int64) (map[int64]*models.Member, error) {
	out := make(map[int64]*models.Member, len(ids))
	err := r.db.view(ctx, func(st *state) error {
		for _, id := range ids {
			if m, ok := st.members[id]; ok {
				out[id] = &m
			}
		}
		return nil
	})
	return out, err
}

func (r *memberRepo) UpdateBalance(ctx context.Context, b models.Balance) error {
	return r.db.view(ctx, func(st *state) error {
		m, ok := st.members[b.MemberID]
		if !ok {
			return fmt.Errorf("%w: %d", pkgerrors.ErrMemberNotFound, b.MemberID)
		}
		if b.Available < 0 || b.Held < 0 {
			return fmt.Errorf("%w: negative balance for member %d", pkgerrors.ErrInvariantViolation, b.MemberID)
		}
		m.Available, m.Held = b.Available, b.Held
		st.members[b.MemberID] = m
		return nil
	})
}

func (r *memberRepo) UpdateRating(ctx context.Context, memberID int64, rating decimal.Decimal) error {
	return r.db.view(ctx, func(st *state) error {
		m, ok := st.members[memberID]
		if !ok {
			return fmt.Errorf("%w: %d", pkgerrors.ErrMemberNotFound, memberID)
		}
		m.Rating = decimal.NewNullDecimal(rating)
		st.members[memberID] = m
		return nil
	})
}

func (r *memberRepo) FindBySkills(ctx context.Context, tagIDs []int64, excludeID int64) ([]models.Member, error) {
	want := make(map[int64]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		want[id] = struct{}{}
	}
	var out []models.Member
	err := r.db.view(ctx, func(st *state) error {
		for id, skills := range st.memberSkills {
			if id == excludeID {
				continue
			}
			for _, s := range skills {
				if _, ok := want[s]; ok {
					out = append(out, st.members[id])
					break
				}
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}
