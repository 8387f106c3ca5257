package errors

import (
	"errors"
)

var (
	ErrInsufficientBalance = errors.New("insufficient time balance")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrSelfProposal        = errors.New("cannot propose on own request")
	ErrDuplicateProposal   = errors.New("proposal already exists for this request")
	ErrInvariantViolation  = errors.New("ledger invariant violation")
	ErrInvalidInput        = errors.New("invalid input")

	ErrMemberNotFound   = errors.New("member not found")
	ErrRequestNotFound  = errors.New("request not found")
	ErrProposalNotFound = errors.New("proposal not found")
	ErrTagNotFound      = errors.New("tag not found")
	ErrEntryNotFound    = errors.New("transaction not found")
	ErrForbidden        = errors.New("action not allowed for this member")
	ErrAlreadyRated     = errors.New("session already rated")

	ErrNilRequest  = errors.New("request is nil")
	ErrNilProposal = errors.New("proposal is nil")
	ErrNilEntry    = errors.New("transaction entry is nil")
)

// IsNotFound reports whether err is one of the lookup failures.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrProposalNotFound) ||
		errors.Is(err, ErrTagNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}
