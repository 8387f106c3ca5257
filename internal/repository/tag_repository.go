package repository

import "context"

type TagRepository interface {
	// Resolve maps tag names to ids; unknown names are returned separately.
	Resolve(ctx context.Context, names []string) (ids []int64, unknown []string, err error)
	NamesByRequest(ctx context.Context, requestID int64) ([]string, error)
}
