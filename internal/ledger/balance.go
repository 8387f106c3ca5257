package ledger

import (
	"fmt"

	"github.com/honeynil/skillswap-timebank/internal/models"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
)

// The functions below are the only place balance fields are computed. Each returns a
// new value and leaves the input untouched when the movement is not allowed.

func applyHold(b models.Balance, minutes int64) (models.Balance, error) {
	if b.Available < minutes {
		return b, fmt.Errorf("%w: member %d has %d available, %d requested", pkgerrors.ErrInsufficientBalance, b.MemberID, b.Available, minutes)
	}
	b.Available -= minutes
	b.Held += minutes
	return b, nil
}

func applyRelease(b models.Balance, minutes int64) (models.Balance, error) {
	if b.Held < minutes {
		return b, fmt.Errorf("%w: release of %d exceeds %d held by member %d", pkgerrors.ErrInvariantViolation, minutes, b.Held, b.MemberID)
	}
	b.Held -= minutes
	b.Available += minutes
	return b, nil
}

func applyDebitHeld(b models.Balance, minutes int64) (models.Balance, error) {
	if b.Held < minutes {
		return b, fmt.Errorf("%w: transfer of %d exceeds %d held by member %d", pkgerrors.ErrInvariantViolation, minutes, b.Held, b.MemberID)
	}
	b.Held -= minutes
	return b, nil
}

func applyCredit(b models.Balance, minutes int64) models.Balance {
	b.Available += minutes
	return b
}

func validMinutes(minutes int64) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: minutes must be positive, got %d", pkgerrors.ErrInvalidInput, minutes)
	}
	return nil
}
