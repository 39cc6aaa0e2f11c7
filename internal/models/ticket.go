package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketReserved       TicketStatus = "RESERVED"
	TicketPaymentPending TicketStatus = "PAYMENT_PENDING"
	TicketBought         TicketStatus = "BOUGHT"
	TicketRefunded       TicketStatus = "REFUNDED"
	TicketExpired        TicketStatus = "EXPIRED"
	TicketCancelled      TicketStatus = "CANCELLED"
)

// Terminal statuses never change again.
func (s TicketStatus) Terminal() bool {
	switch s {
	case TicketBought, TicketRefunded, TicketExpired, TicketCancelled:
		return true
	}
	return false
}

type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:ticket"`

	ID               string       `bun:"id,pk" json:"id"`
	ShowID           string       `bun:"show_id,notnull" json:"show_id"`
	SectorID         string       `bun:"sector_id,notnull" json:"sector_id"`
	SeatID           string       `bun:"seat_id,nullzero" json:"seat_id,omitempty"`
	UnitKey          string       `bun:"unit_key,notnull" json:"unit_key"`
	UserID           string       `bun:"user_id,notnull" json:"user_id"`
	Status           TicketStatus `bun:"status,notnull" json:"status"`
	TicketCode       string       `bun:"ticket_code,nullzero" json:"ticket_code,omitempty"`
	OriginalTicketID string       `bun:"original_ticket_id,nullzero" json:"original_ticket_id,omitempty"`
	CreatedAt        time.Time    `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time    `bun:"updated_at,notnull" json:"updated_at"`
}

// InventoryClaim marks one inventory unit of a show as occupied by a
// ticket. The composite primary key is what keeps two tickets from holding
// the same seat or standing slot at once.
type InventoryClaim struct {
	bun.BaseModel `bun:"table:inventory_claims"`

	ShowID    string    `bun:"show_id,pk" json:"show_id"`
	UnitKey   string    `bun:"unit_key,pk" json:"unit_key"`
	SectorID  string    `bun:"sector_id,notnull" json:"sector_id"`
	TicketID  string    `bun:"ticket_id,notnull,unique" json:"ticket_id"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

type Hold struct {
	bun.BaseModel `bun:"table:holds"`

	ID        string    `bun:"id,pk" json:"id"`
	TicketID  string    `bun:"ticket_id,notnull,unique" json:"ticket_id"`
	ShowID    string    `bun:"show_id,notnull" json:"show_id"`
	UserID    string    `bun:"user_id,notnull" json:"user_id"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

func (h Hold) ExpiredAt(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}
