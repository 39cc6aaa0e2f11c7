package models

import "time"

type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "AVAILABLE"
	SeatStatusHeld      SeatStatus = "HELD"
	SeatStatusSold      SeatStatus = "SOLD"
)

// SeatStatusChangeEvent is published whenever inventory units of a show
// change occupancy.
type SeatStatusChangeEvent struct {
	ShowID   string     `json:"show_id"`
	SectorID string     `json:"sector_id"`
	UnitKeys []string   `json:"unit_keys"`
	Status   SeatStatus `json:"status"`
	At       time.Time  `json:"at"`
}

// TicketLifecycleEvent is published after a ticket reaches a terminal status.
type TicketLifecycleEvent struct {
	Type      string       `json:"type"`
	UserID    string       `json:"user_id"`
	OrderID   string       `json:"order_id,omitempty"`
	ShowID    string       `json:"show_id"`
	TicketIDs []string     `json:"ticket_ids"`
	Status    TicketStatus `json:"status"`
	At        time.Time    `json:"at"`
}
