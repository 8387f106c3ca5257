package repository

import (
	"context"

	"github.com/honeynil/skillswap-timebank/internal/models"
)

type ProposalFilter struct {
	RequestID int64
	TeacherID int64
	// StudentID selects proposals received on requests owned by this member.
	StudentID int64
	Status    models.ProposalStatus
	Limit     int
	Offset    int
}

type ProposalRepository interface {
	Create(ctx context.Context, p *models.Proposal) error
	GetByID(ctx context.Context, id int64) (*models.Proposal, error)
	LockByID(ctx context.Context, id int64) (*models.Proposal, error)
	ExistsOpen(ctx context.Context, requestID, teacherID int64) (bool, error)
	FindAccepted(ctx context.Context, requestID int64) (*models.Proposal, error)
	UpdateStatus(ctx context.Context, id int64, status models.ProposalStatus) error
	// TransitionOpen moves every Proposed proposal of the request, except exceptID, to status.
	TransitionOpen(ctx context.Context, requestID, exceptID int64, status models.ProposalStatus) (int64, error)
	List(ctx context.Context, f ProposalFilter) ([]models.Proposal, error)
}
