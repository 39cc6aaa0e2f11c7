package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SectorKind string

const (
	SectorSeated   SectorKind = "seated"
	SectorStanding SectorKind = "standing"
	SectorStage    SectorKind = "stage"
)

// Valid reports whether k is one of the known sector kinds.
func (k SectorKind) Valid() bool {
	switch k {
	case SectorSeated, SectorStanding, SectorStage:
		return true
	}
	return false
}

// Sellable reports whether tickets can be issued against a sector of this kind.
func (k SectorKind) Sellable() bool {
	return k == SectorSeated || k == SectorStanding
}

type Room struct {
	bun.BaseModel `bun:"table:rooms"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Sector is a tagged variant: Capacity is only meaningful for standing
// sectors, Price is zero for stage sectors, and seated sectors derive their
// capacity from the seats assigned to them.
type Sector struct {
	bun.BaseModel `bun:"table:sectors"`

	ID        string     `bun:"id,pk" json:"id"`
	RoomID    string     `bun:"room_id,notnull" json:"room_id"`
	Name      string     `bun:"name,notnull" json:"name"`
	Kind      SectorKind `bun:"kind,notnull" json:"kind"`
	Price     float64    `bun:"price" json:"price,omitempty"`
	Capacity  int        `bun:"capacity" json:"capacity,omitempty"`
	CreatedAt time.Time  `bun:"created_at,notnull" json:"created_at"`
}

type Seat struct {
	bun.BaseModel `bun:"table:seats"`

	ID       string `bun:"id,pk" json:"id"`
	RoomID   string `bun:"room_id,notnull" json:"room_id"`
	SectorID string `bun:"sector_id,nullzero" json:"sector_id,omitempty"`
	Row      int    `bun:"seat_row,notnull" json:"row"`
	Column   int    `bun:"seat_column,notnull" json:"column"`
	Deleted  bool   `bun:"deleted,notnull" json:"deleted"`
}
