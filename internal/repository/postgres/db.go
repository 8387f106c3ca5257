package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/honeynil/skillswap-timebank/internal/infrastructure/observability"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type txKey struct{}

// querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type base struct {
	db *sqlx.DB
}

// q returns the transaction carried by ctx, or the pool when there is none.
func (b base) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return b.db
}

// instrument starts a span and returns the func that closes it and records the
// repository call metrics.
func instrument(ctx context.Context, tracerName, op string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, op)
	span.SetAttributes(attrs...)
	start := time.Now()
	return ctx, func(err error) {
		defer span.End()
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues(op, status).Inc()
		observability.RepositoryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Constraint names from schema.sql that map to domain errors.
const (
	constraintOpenProposal     = "proposals_open_teacher_uniq"
	constraintAcceptedProposal = "proposals_accepted_uniq"
	constraintRatingOnce       = "ratings_proposal_id_key"
)

// mapError translates driver errors into the domain errors callers match on.
func mapError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sql.ErrNoRows) && notFound != nil {
		return notFound
	}
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeUniqueViolation:
		switch pqErr.Constraint {
		case constraintOpenProposal:
			return fmt.Errorf("%w: %s", pkgerrors.ErrDuplicateProposal, pqErr.Message)
		case constraintRatingOnce:
			return fmt.Errorf("%w: %s", pkgerrors.ErrAlreadyRated, pqErr.Message)
		case constraintAcceptedProposal:
			return fmt.Errorf("%w: %s", pkgerrors.ErrInvariantViolation, pqErr.Message)
		}
	case codeCheckViolation:
		return fmt.Errorf("%w: %s", pkgerrors.ErrInvariantViolation, pqErr.Message)
	}
	return err
}

// retryable reports whether the transaction lost a serialization race and can be rerun.
func retryable(err error) bool {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
}
