package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderType string

const (
	OrderTypeOrder       OrderType = "ORDER"
	OrderTypeReservation OrderType = "RESERVATION"
	OrderTypeRefund      OrderType = "REFUND"
)

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID         string    `bun:"id,pk" json:"id"`
	UserID     string    `bun:"user_id,notnull" json:"user_id"`
	Type       OrderType `bun:"type,notnull" json:"type"`
	GroupID    string    `bun:"group_id,nullzero" json:"group_id,omitempty"`
	TotalPrice float64   `bun:"total_price,notnull" json:"total_price"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
}

// OrderTicket associates a ticket with an order and records the sector price
// at the time the order was placed.
type OrderTicket struct {
	bun.BaseModel `bun:"table:order_tickets"`

	OrderID  string  `bun:"order_id,pk" json:"order_id"`
	TicketID string  `bun:"ticket_id,pk" json:"ticket_id"`
	Price    float64 `bun:"price,notnull" json:"price"`
}

type OrderGroup struct {
	bun.BaseModel `bun:"table:order_groups"`

	ID        string    `bun:"id,pk" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"user_id"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

type OrderWithTickets struct {
	Order
	Tickets []Ticket `json:"tickets"`
}

type OrderGroupView struct {
	GroupID string             `json:"group_id,omitempty"`
	Orders  []OrderWithTickets `json:"orders"`
}
