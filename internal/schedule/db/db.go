package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/models"
)

type DB struct {
	Bun bun.IDB
}

func (d *DB) WithTx(tx bun.IDB) *DB {
	return &DB{Bun: tx}
}

func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	return err
}

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().Model(&event).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &event, nil
}

// GetRoom looks up the room a show is scheduled in.
func (d *DB) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	err := d.Bun.NewSelect().Model(&room).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("room %s: %w", id, err)
	}
	return &room, nil
}

func (d *DB) CreateShow(ctx context.Context, show *models.Show) error {
	_, err := d.Bun.NewInsert().Model(show).Exec(ctx)
	return err
}

func (d *DB) GetShow(ctx context.Context, id string) (*models.Show, error) {
	var show models.Show
	err := d.Bun.NewSelect().Model(&show).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("show %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &show, nil
}

func (d *DB) GetShowsByEvent(ctx context.Context, eventID string) ([]models.Show, error) {
	var shows []models.Show
	err := d.Bun.NewSelect().
		Model(&shows).
		Where("event_id = ?", eventID).
		Order("starts_at").
		Scan(ctx)
	return shows, err
}
