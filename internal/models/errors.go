package models

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyTaken           = errors.New("inventory unit already taken")
	ErrInvalidTransition      = errors.New("invalid ticket status transition")
	ErrInvalidSectorKind      = errors.New("invalid sector kind for operation")
	ErrTicketNotHeldByUser    = errors.New("ticket not held by user")
	ErrTicketNotAvailable     = errors.New("ticket not available")
	ErrPaymentAlreadyInFlight = errors.New("payment already in flight")
	ErrNothingToRefund        = errors.New("nothing to refund")
	ErrDurationExceeded       = errors.New("show schedule exceeds event duration")

	ErrNotFound             = errors.New("not found")
	ErrInvalidSector        = errors.New("invalid sector")
	ErrNotOrderOwner        = errors.New("order does not belong to user")
	ErrInvalidOrderType     = errors.New("invalid order type")
	ErrPaymentSessionClosed = errors.New("payment session already closed")
)

// TransitionError reports a rejected ticket status change.
type TransitionError struct {
	TicketID string
	From     TicketStatus
	To       TicketStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("ticket %s: cannot move from %s to %s", e.TicketID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsRecoverable reports whether err is an expected conflict the caller can
// resolve by retrying with different input, as opposed to a logic error.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrAlreadyTaken) || errors.Is(err, ErrPaymentAlreadyInFlight)
}
