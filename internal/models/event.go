package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID              string    `bun:"id,pk" json:"id"`
	Name            string    `bun:"name,notnull" json:"name"`
	Description     string    `bun:"description,nullzero" json:"description,omitempty"`
	DurationMinutes int       `bun:"duration_minutes,notnull" json:"duration_minutes"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Show is one scheduled performance of an Event in a Room; tickets are issued
// against shows.
type Show struct {
	bun.BaseModel `bun:"table:shows"`

	ID              string    `bun:"id,pk" json:"id"`
	EventID         string    `bun:"event_id,notnull" json:"event_id"`
	RoomID          string    `bun:"room_id,notnull" json:"room_id"`
	StartsAt        time.Time `bun:"starts_at,notnull" json:"starts_at"`
	DurationMinutes int       `bun:"duration_minutes,notnull" json:"duration_minutes"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"created_at"`
}

func (s Show) EndsAt() time.Time {
	return s.StartsAt.Add(time.Duration(s.DurationMinutes) * time.Minute)
}
