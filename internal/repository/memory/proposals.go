package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
)

type proposalRepo struct {
	db *DB
}

// Create enforces the same uniqueness the Postgres partial indexes do.
func (r *proposalRepo) Create(ctx context.Context, p *models.Proposal) error {
	if p == nil {
		return pkgerrors.ErrNilProposal
	}
	return r.db.view(ctx, func(st *state) error {
		if _, ok := st.requests[p.RequestID]; !ok {
			return fmt.Errorf("%w: %d", pkgerrors.ErrRequestNotFound, p.RequestID)
		}
		for _, other := range st.proposals {
			if other.RequestID == p.RequestID && other.TeacherID == p.TeacherID && !other.Status.Terminal() {
				return pkgerrors.ErrDuplicateProposal
			}
		}
		p.ID = st.nextID()
		st.proposals[p.ID] = *p
		return nil
	})
}

func (r *proposalRepo) GetByID(ctx context.Context, id int64) (*models.Proposal, error) {
	var out *models.Proposal
	err := r.db.view(ctx, func(st *state) error {
		p, ok := st.proposals[id]
		if !ok {
			return fmt.Errorf("%w: %d", pkgerrors.ErrProposalNotFound, id)
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *proposalRepo) LockByID(ctx context.Context, id int64) (*models.Proposal, error) {
	return r.GetByID(ctx, id)
}

func (r *proposalRepo) ExistsOpen(ctx context.Context, requestID, teacherID int64) (bool, error) {
	var found bool
	err := r.db.view(ctx, func(st *state) error {
		for _, p := range st.proposals {
			if p.RequestID == requestID && p.TeacherID == teacherID && !p.Status.Terminal() {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *proposalRepo) FindAccepted(ctx context.Context, requestID int64) (*models.Proposal, error) {
	var out *models.Proposal
	err := r.db.view(ctx, func(st *state) error {
		for _, p := range st.proposals {
			if p.RequestID == requestID && p.Status == models.ProposalAccepted {
				out = &p
				return nil
			}
		}
		return fmt.Errorf("%w: no accepted proposal for request %d", pkgerrors.ErrProposalNotFound, requestID)
	})
	return out, err
}

func (r *proposalRepo) UpdateStatus(ctx context.Context, id int64, status models.ProposalStatus) error {
	return r.db.view(ctx, func(st *state) error {
		p, ok := st.proposals[id]
		if !ok {
			return fmt.Errorf("%w: %d", pkgerrors.ErrProposalNotFound, id)
		}
		if status == models.ProposalAccepted {
			for _, other := range st.proposals {
				if other.ID != id && other.RequestID == p.RequestID && other.Status == models.ProposalAccepted {
					return fmt.Errorf("%w: request %d already has an accepted proposal", pkgerrors.ErrInvariantViolation, p.RequestID)
				}
			}
		}
		p.Status = status
		p.UpdatedAt = r.db.now().UTC()
		st.proposals[id] = p
		return nil
	})
}

func (r *proposalRepo) TransitionOpen(ctx context.Context, requestID, exceptID int64, status models.ProposalStatus) (int64, error) {
	var n int64
	err := r.db.view(ctx, func(st *state) error {
		now := r.db.now().UTC()
		for id, p := range st.proposals {
			if p.RequestID != requestID || id == exceptID || p.Status != models.ProposalProposed {
				continue
			}
			p.Status = status
			p.UpdatedAt = now
			st.proposals[id] = p
			n++
		}
		return nil
	})
	return n, err
}

func (r *proposalRepo) List(ctx context.Context, f repository.ProposalFilter) ([]models.Proposal, error) {
	var out []models.Proposal
	err := r.db.view(ctx, func(st *state) error {
		for _, p := range st.proposals {
			if f.RequestID != 0 && p.RequestID != f.RequestID {
				continue
			}
			if f.TeacherID != 0 && p.TeacherID != f.TeacherID {
				continue
			}
			if f.StudentID != 0 && st.requests[p.RequestID].OwnerID != f.StudentID {
				continue
			}
			if f.Status != "" && p.Status != f.Status {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, f.Limit, f.Offset), err
}
