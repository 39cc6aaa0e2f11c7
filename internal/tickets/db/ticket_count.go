package db

import (
	"context"
	"time"

	"ms-venue-ticketing/internal/models"
	"ms-venue-ticketing/internal/utils"
)

// IncrementTicketCount adds n sold tickets to the daily counter of a show.
func (d *DB) IncrementTicketCount(ctx context.Context, eventID, showID string, n int, timestamp time.Time) error {
	count := models.TicketCount{
		EventID: eventID,
		ShowID:  showID,
		Count:   n,
		Date:    utils.StartOfDay(timestamp),
	}
	_, err := d.Bun.NewInsert().
		Model(&count).
		On("CONFLICT (event_id, show_id, date) DO UPDATE").
		Set("count = ?TableAlias.count + EXCLUDED.count").
		Exec(ctx)
	return err
}

// GetTicketCountsForEvent returns all ticket counts for a specific event
func (d *DB) GetTicketCountsForEvent(ctx context.Context, eventID string) ([]models.TicketCount, error) {
	var counts []models.TicketCount
	err := d.Bun.NewSelect().
		Model(&counts).
		Where("event_id = ?", eventID).
		Order("show_id", "date").
		Scan(ctx)
	return counts, err
}

// GetTicketCountsForShow returns all ticket counts for a specific show
func (d *DB) GetTicketCountsForShow(ctx context.Context, showID string) ([]models.TicketCount, error) {
	var counts []models.TicketCount
	err := d.Bun.NewSelect().
		Model(&counts).
		Where("show_id = ?", showID).
		Order("date").
		Scan(ctx)
	return counts, err
}
