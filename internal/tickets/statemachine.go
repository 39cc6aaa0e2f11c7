package tickets

import (
	"ms-venue-ticketing/internal/models"
)

// Event is something that happens to a ticket and may move its status.
type Event string

const (
	EventExpire           Event = "expire"
	EventCancel           Event = "cancel"
	EventProceedToPay     Event = "proceed_to_pay"
	EventPaymentSucceeded Event = "payment_succeeded"
	EventPaymentFailed    Event = "payment_failed"
	EventRefund           Event = "refund"
)

var transitions = map[models.TicketStatus]map[Event]models.TicketStatus{
	models.TicketReserved: {
		EventExpire:       models.TicketExpired,
		EventCancel:       models.TicketCancelled,
		EventProceedToPay: models.TicketPaymentPending,
	},
	models.TicketPaymentPending: {
		EventPaymentSucceeded: models.TicketBought,
		EventPaymentFailed:    models.TicketExpired,
		EventExpire:           models.TicketExpired,
		EventCancel:           models.TicketCancelled,
	},
	models.TicketBought: {
		EventRefund: models.TicketRefunded,
	},
}

// eventTargets names the status an event aims for, used to report rejected
// transitions.
var eventTargets = map[Event]models.TicketStatus{
	EventExpire:           models.TicketExpired,
	EventCancel:           models.TicketCancelled,
	EventProceedToPay:     models.TicketPaymentPending,
	EventPaymentSucceeded: models.TicketBought,
	EventPaymentFailed:    models.TicketExpired,
	EventRefund:           models.TicketRefunded,
}

// InitialStatus reports whether a new ticket may start in status s.
func InitialStatus(s models.TicketStatus) bool {
	return s == models.TicketReserved || s == models.TicketPaymentPending
}

// CanTransition reports whether some event moves a ticket from one status to
// the other.
func CanTransition(from, to models.TicketStatus) bool {
	for _, target := range transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Next returns the status a ticket in status from reaches on event ev.
func Next(ticketID string, from models.TicketStatus, ev Event) (models.TicketStatus, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return "", &models.TransitionError{TicketID: ticketID, From: from, To: eventTargets[ev]}
}
