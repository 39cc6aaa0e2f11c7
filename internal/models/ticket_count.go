package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketCount represents a daily count of tickets sold for a specific event/show
type TicketCount struct {
	bun.BaseModel `bun:"table:ticket_counts"`

	ID      int64     `bun:"id,pk,autoincrement"`
	EventID string    `bun:"event_id,notnull"`
	ShowID  string    `bun:"show_id,notnull"`
	Count   int       `bun:"count,notnull"`
	Date    time.Time `bun:"date,notnull"`
}
