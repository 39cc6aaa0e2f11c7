package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/models"
)

// DB stores rooms, sectors and seats. Bun is either the database handle or
// an open transaction.
type DB struct {
	Bun bun.IDB
}

func (d *DB) WithTx(tx bun.IDB) *DB {
	return &DB{Bun: tx}
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, models.ErrNotFound)
	}
	return err
}

func (d *DB) CreateRoom(ctx context.Context, room *models.Room) error {
	_, err := d.Bun.NewInsert().Model(room).Exec(ctx)
	return err
}

func (d *DB) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	err := d.Bun.NewSelect().Model(&room).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "room", id)
	}
	return &room, nil
}

func (d *DB) CreateSector(ctx context.Context, sector *models.Sector) error {
	_, err := d.Bun.NewInsert().Model(sector).Exec(ctx)
	return err
}

func (d *DB) GetSector(ctx context.Context, id string) (*models.Sector, error) {
	var sector models.Sector
	err := d.Bun.NewSelect().Model(&sector).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "sector", id)
	}
	return &sector, nil
}

func (d *DB) GetSectorsByRoom(ctx context.Context, roomID string) ([]models.Sector, error) {
	var sectors []models.Sector
	err := d.Bun.NewSelect().
		Model(&sectors).
		Where("room_id = ?", roomID).
		Order("name").
		Scan(ctx)
	return sectors, err
}

func (d *DB) CreateSeats(ctx context.Context, seats []models.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&seats).Exec(ctx)
	return err
}

func (d *DB) GetSeat(ctx context.Context, id string) (*models.Seat, error) {
	var seat models.Seat
	err := d.Bun.NewSelect().Model(&seat).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "seat", id)
	}
	return &seat, nil
}

// SoftDeleteSeat flags a seat as deleted, leaving row/column numbering of
// its neighbours untouched.
func (d *DB) SoftDeleteSeat(ctx context.Context, id string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Seat)(nil)).
		Set("deleted = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("seat %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (d *DB) CountActiveSeats(ctx context.Context, sectorID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Seat)(nil)).
		Where("sector_id = ?", sectorID).
		Where("deleted = ?", false).
		Count(ctx)
}

// GetActiveSeats returns the non-deleted seats of a sector ordered by row,
// then column.
func (d *DB) GetActiveSeats(ctx context.Context, sectorID string) ([]models.Seat, error) {
	var seats []models.Seat
	err := d.Bun.NewSelect().
		Model(&seats).
		Where("sector_id = ?", sectorID).
		Where("deleted = ?", false).
		Order("seat_row", "seat_column").
		Scan(ctx)
	return seats, err
}
