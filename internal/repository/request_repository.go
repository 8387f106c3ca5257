package repository

import (
	"context"

	"github.com/honeynil/skillswap-timebank/internal/models"
)

type RequestFilter struct {
	Status  models.RequestStatus
	Tag     string
	OwnerID int64
	// ViewerID hides other members' drafts when set.
	ViewerID int64
	Limit    int
	Offset   int
}

type RequestRepository interface {
	Create(ctx context.Context, req *models.Request) error
	GetByID(ctx context.Context, id int64) (*models.Request, error)
	// LockByID loads the request with a row lock held until the transaction ends.
	LockByID(ctx context.Context, id int64) (*models.Request, error)
	Update(ctx context.Context, req *models.Request) error
	SetTags(ctx context.Context, requestID int64, tagIDs []int64) error
	TagIDs(ctx context.Context, requestID int64) ([]int64, error)
	List(ctx context.Context, f RequestFilter) ([]models.Request, error)
}
