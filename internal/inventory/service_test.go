package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-venue-ticketing/internal/inventory"
	"ms-venue-ticketing/internal/inventory/db"
	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
	"ms-venue-ticketing/internal/testutil"
)

func newService(t *testing.T) (*inventory.Service, *testutil.Fixture) {
	f := testutil.NewFixture(t)
	return inventory.NewService(&db.DB{Bun: f.DB}, f.Clock, logger.Discard()), f
}

func TestValidateSector(t *testing.T) {
	tests := []struct {
		name    string
		sector  models.Sector
		wantErr bool
	}{
		{"seated with price", models.Sector{Name: "A", Kind: models.SectorSeated, Price: 50}, false},
		{"seated without price", models.Sector{Name: "A", Kind: models.SectorSeated}, true},
		{"seated with capacity", models.Sector{Name: "A", Kind: models.SectorSeated, Price: 50, Capacity: 10}, true},
		{"standing", models.Sector{Name: "Pit", Kind: models.SectorStanding, Price: 30, Capacity: 200}, false},
		{"standing without capacity", models.Sector{Name: "Pit", Kind: models.SectorStanding, Price: 30}, true},
		{"standing negative price", models.Sector{Name: "Pit", Kind: models.SectorStanding, Price: -1, Capacity: 5}, true},
		{"stage", models.Sector{Name: "Stage", Kind: models.SectorStage}, false},
		{"stage with price", models.Sector{Name: "Stage", Kind: models.SectorStage, Price: 10}, true},
		{"unknown kind", models.Sector{Name: "Box", Kind: "balcony", Price: 10}, true},
		{"missing name", models.Sector{Kind: models.SectorStage}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := inventory.ValidateSector(tt.sector)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidSector)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateRoomAndSectors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, "Blue Hall")
	require.NoError(t, err)

	seated, err := svc.CreateSector(ctx, models.Sector{RoomID: room.ID, Name: "Stalls", Kind: models.SectorSeated, Price: 45})
	require.NoError(t, err)
	_, err = svc.CreateSector(ctx, models.Sector{RoomID: room.ID, Name: "Pit", Kind: models.SectorStanding, Price: 25, Capacity: 100})
	require.NoError(t, err)

	_, err = svc.CreateSector(ctx, models.Sector{RoomID: "missing", Name: "X", Kind: models.SectorStage})
	assert.ErrorIs(t, err, models.ErrNotFound)

	sectors, err := svc.SectorsOfRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, sectors, 2)

	got, err := svc.GetSector(ctx, seated.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SectorSeated, got.Kind)
	assert.Equal(t, 45.0, got.Price)
}

func TestCapacityOf(t *testing.T) {
	svc, f := newService(t)
	ctx := context.Background()
	v := f.Venue(50, 30, 2)

	capacity, err := svc.CapacityOf(ctx, v.Seated)
	require.NoError(t, err)
	assert.Equal(t, 6, capacity)

	capacity, err = svc.CapacityOf(ctx, v.Standing)
	require.NoError(t, err)
	assert.Equal(t, 2, capacity)

	capacity, err = svc.CapacityOf(ctx, v.Stage)
	require.NoError(t, err)
	assert.Equal(t, 0, capacity)

	require.NoError(t, svc.DeleteSeat(ctx, v.Seats[0].ID))
	capacity, err = svc.CapacityOf(ctx, v.Seated)
	require.NoError(t, err)
	assert.Equal(t, 5, capacity)
}

func TestSellableCapacityRejectsStage(t *testing.T) {
	svc, f := newService(t)
	v := f.Venue(50, 30, 2)

	_, err := svc.SellableCapacity(context.Background(), v.Stage)
	assert.ErrorIs(t, err, models.ErrInvalidSectorKind)

	capacity, err := svc.SellableCapacity(context.Background(), v.Standing)
	require.NoError(t, err)
	assert.Equal(t, 2, capacity)
}

func TestSeatsOfOrdersByRowThenColumn(t *testing.T) {
	svc, f := newService(t)
	ctx := context.Background()
	room := f.Room("Hall")
	sector := f.SeatedSector(room.ID, 40)

	s22 := f.Seat(sector, 2, 2)
	s11 := f.Seat(sector, 1, 1)
	s21 := f.Seat(sector, 2, 1)
	s13 := f.Seat(sector, 1, 3)
	deleted := f.Seat(sector, 1, 2)
	require.NoError(t, svc.DeleteSeat(ctx, deleted.ID))

	ids, err := svc.SeatsOf(ctx, sector.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{s11.ID, s13.ID, s21.ID, s22.ID}, ids)
}

func TestAddSeats(t *testing.T) {
	svc, f := newService(t)
	ctx := context.Background()
	v := f.Venue(50, 30, 2)

	seats, err := svc.AddSeats(ctx, v.Seated.ID, []inventory.SeatPosition{{Row: 3, Column: 1}, {Row: 3, Column: 2}})
	require.NoError(t, err)
	require.Len(t, seats, 2)
	assert.Equal(t, v.Room.ID, seats[0].RoomID)

	_, err = svc.AddSeats(ctx, v.Standing.ID, []inventory.SeatPosition{{Row: 1, Column: 1}})
	assert.ErrorIs(t, err, models.ErrInvalidSectorKind)

	// (1,1) already exists in this room.
	_, err = svc.AddSeats(ctx, v.Seated.ID, []inventory.SeatPosition{{Row: 1, Column: 1}})
	assert.Error(t, err)

	assert.ErrorIs(t, svc.DeleteSeat(ctx, "missing"), models.ErrNotFound)
}

func TestResolveTarget(t *testing.T) {
	svc, f := newService(t)
	ctx := context.Background()
	v := f.Venue(50, 30, 2)

	target, err := svc.ResolveTarget(ctx, f.DB, v.Room.ID, v.Seated.ID, v.Seats[0].ID)
	require.NoError(t, err)
	assert.Equal(t, v.Seats[0].ID, target.Seat.ID)

	target, err = svc.ResolveTarget(ctx, f.DB, v.Room.ID, v.Standing.ID, "")
	require.NoError(t, err)
	assert.Nil(t, target.Seat)
	assert.Equal(t, 2, target.Capacity)

	_, err = svc.ResolveTarget(ctx, f.DB, v.Room.ID, v.Stage.ID, "")
	assert.ErrorIs(t, err, models.ErrInvalidSectorKind)

	_, err = svc.ResolveTarget(ctx, f.DB, v.Room.ID, v.Seated.ID, "")
	assert.ErrorIs(t, err, models.ErrInvalidSectorKind)

	_, err = svc.ResolveTarget(ctx, f.DB, v.Room.ID, v.Standing.ID, v.Seats[0].ID)
	assert.ErrorIs(t, err, models.ErrInvalidSectorKind)

	_, err = svc.ResolveTarget(ctx, f.DB, "other-room", v.Seated.ID, v.Seats[0].ID)
	assert.ErrorIs(t, err, models.ErrInvalidSector)

	require.NoError(t, svc.DeleteSeat(ctx, v.Seats[0].ID))
	_, err = svc.ResolveTarget(ctx, f.DB, v.Room.ID, v.Seated.ID, v.Seats[0].ID)
	assert.ErrorIs(t, err, models.ErrInvalidSectorKind)
}

func TestUnitKeys(t *testing.T) {
	assert.Equal(t, "seat:s1", inventory.SeatUnit("s1"))
	assert.Equal(t, "standing:sec:3", inventory.StandingUnit("sec", 3))
}
