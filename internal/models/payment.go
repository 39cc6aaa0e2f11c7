package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Terminal() bool {
	return s != PaymentPending
}

type ProviderOutcome string

const (
	OutcomeSuccess ProviderOutcome = "SUCCESS"
	OutcomeFailure ProviderOutcome = "FAILURE"
)

func (o ProviderOutcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

// PaymentSession is one attempt to settle an order. ActiveOrderID is set only
// while the session is pending; its unique index allows at most one pending
// session per order.
type PaymentSession struct {
	bun.BaseModel `bun:"table:payment_sessions"`

	ID            string        `bun:"id,pk" json:"id"`
	OrderID       string        `bun:"order_id,notnull" json:"order_id"`
	ActiveOrderID string        `bun:"active_order_id,nullzero,unique" json:"-"`
	Status        PaymentStatus `bun:"status,notnull" json:"status"`
	TotalPrice    float64       `bun:"total_price,notnull" json:"total_price"`
	CreatedAt     time.Time     `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt     time.Time     `bun:"expires_at,notnull" json:"expires_at"`
	SettledAt     time.Time     `bun:"settled_at,nullzero" json:"settled_at,omitempty"`
}

type PaymentSessionTicket struct {
	bun.BaseModel `bun:"table:payment_session_tickets"`

	SessionID      string `bun:"session_id,pk" json:"session_id"`
	TicketID       string `bun:"ticket_id,pk" json:"ticket_id"`
	ActiveTicketID string `bun:"active_ticket_id,nullzero,unique" json:"-"`
}
