package repository

import "context"

// TxManager runs fn inside one atomic transaction. Repository calls made with the
// context passed to fn join that transaction; any error returned by fn rolls it back.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
