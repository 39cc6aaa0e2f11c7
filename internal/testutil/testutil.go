// Package testutil builds in-memory databases and venue fixtures for tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/clock"
	"ms-venue-ticketing/internal/config"
	"ms-venue-ticketing/internal/database"
	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
	"ms-venue-ticketing/internal/utils"
)

// Epoch is the starting instant of every fixture clock.
var Epoch = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

// NewDB opens an in-memory SQLite database with the full schema. It is
// closed when the test ends.
func NewDB(t testing.TB) *bun.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{Driver: "sqlite"}, logger.Discard())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.CreateSchema(ctx, db); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return db
}

// Fixture inserts venue and schedule rows straight into the database.
type Fixture struct {
	t     testing.TB
	DB    *bun.DB
	Clock *clock.Manual
}

func NewFixture(t testing.TB) *Fixture {
	t.Helper()
	return &Fixture{t: t, DB: NewDB(t), Clock: clock.NewManual(Epoch)}
}

func (f *Fixture) insert(model interface{}) {
	f.t.Helper()
	if _, err := f.DB.NewInsert().Model(model).Exec(context.Background()); err != nil {
		f.t.Fatalf("Failed to insert %T: %v", model, err)
	}
}

func (f *Fixture) Room(name string) models.Room {
	f.t.Helper()
	room := models.Room{ID: utils.NewID(), Name: name, CreatedAt: f.Clock.Now()}
	f.insert(&room)
	return room
}

func (f *Fixture) SeatedSector(roomID string, price float64) models.Sector {
	f.t.Helper()
	return f.sector(roomID, models.SectorSeated, price, 0)
}

func (f *Fixture) StandingSector(roomID string, price float64, capacity int) models.Sector {
	f.t.Helper()
	return f.sector(roomID, models.SectorStanding, price, capacity)
}

func (f *Fixture) StageSector(roomID string) models.Sector {
	f.t.Helper()
	return f.sector(roomID, models.SectorStage, 0, 0)
}

func (f *Fixture) sector(roomID string, kind models.SectorKind, price float64, capacity int) models.Sector {
	f.t.Helper()
	sector := models.Sector{
		ID:        utils.NewID(),
		RoomID:    roomID,
		Name:      fmt.Sprintf("%s-%d", kind, f.Clock.Now().UnixNano()),
		Kind:      kind,
		Price:     price,
		Capacity:  capacity,
		CreatedAt: f.Clock.Now(),
	}
	f.insert(&sector)
	return sector
}

func (f *Fixture) Seat(sector models.Sector, row, column int) models.Seat {
	f.t.Helper()
	seat := models.Seat{
		ID:       fmt.Sprintf("seat-%d-%d-%s", row, column, utils.NewID()[:8]),
		RoomID:   sector.RoomID,
		SectorID: sector.ID,
		Row:      row,
		Column:   column,
	}
	f.insert(&seat)
	return seat
}

func (f *Fixture) Event(durationMinutes int) models.Event {
	f.t.Helper()
	event := models.Event{
		ID:              utils.NewID(),
		Name:            "Fixture Event",
		DurationMinutes: durationMinutes,
		CreatedAt:       f.Clock.Now(),
	}
	f.insert(&event)
	return event
}

func (f *Fixture) Show(eventID, roomID string, startsAt time.Time, durationMinutes int) models.Show {
	f.t.Helper()
	show := models.Show{
		ID:              utils.NewID(),
		EventID:         eventID,
		RoomID:          roomID,
		StartsAt:        startsAt.UTC(),
		DurationMinutes: durationMinutes,
		CreatedAt:       f.Clock.Now(),
	}
	f.insert(&show)
	return show
}

// Venue is the common starting point: one room holding a seated sector with
// a 2x3 seat grid, a standing sector of the given capacity and a stage.
type Venue struct {
	Room     models.Room
	Seated   models.Sector
	Standing models.Sector
	Stage    models.Sector
	Seats    []models.Seat
	Event    models.Event
	Show     models.Show
}

func (f *Fixture) Venue(seatPrice, standingPrice float64, standingCapacity int) Venue {
	f.t.Helper()
	v := Venue{Room: f.Room("Main Hall")}
	v.Seated = f.SeatedSector(v.Room.ID, seatPrice)
	v.Standing = f.StandingSector(v.Room.ID, standingPrice, standingCapacity)
	v.Stage = f.StageSector(v.Room.ID)
	for row := 1; row <= 2; row++ {
		for col := 1; col <= 3; col++ {
			v.Seats = append(v.Seats, f.Seat(v.Seated, row, col))
		}
	}
	v.Event = f.Event(180)
	v.Show = f.Show(v.Event.ID, v.Room.ID, Epoch.Add(24*time.Hour), 120)
	return v
}
