package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/models"
)

// DB stores tickets together with the inventory claims and holds that hang
// off them. Bun is either the database handle or an open transaction.
type DB struct {
	Bun bun.IDB
}

func (d *DB) WithTx(tx bun.IDB) *DB {
	return &DB{Bun: tx}
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ticket %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &ticket, nil
}

// GetTicketsByIDs returns the tickets in id order. A missing id is an error.
func (d *DB) GetTicketsByIDs(ctx context.Context, ids []string) ([]models.Ticket, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []models.Ticket
	err := d.Bun.NewSelect().
		Model(&found).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Ticket, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	tickets := make([]models.Ticket, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("ticket %s: %w", id, models.ErrNotFound)
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	return err
}

func (d *DB) GetTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("user_id = ?", userID).
		Order("created_at").
		Scan(ctx)
	return tickets, err
}

// CompareAndSetStatus moves a ticket from one status to another only if it
// is still in the expected status. It reports whether the row changed.
func (d *DB) CompareAndSetStatus(ctx context.Context, id string, from, to models.TicketStatus, code string, now time.Time) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", from)
	if code != "" {
		q = q.Set("ticket_code = ?", code)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimUnit inserts an inventory claim unless the unit is already claimed.
// It reports whether the claim was taken.
func (d *DB) ClaimUnit(ctx context.Context, claim *models.InventoryClaim) (bool, error) {
	res, err := d.Bun.NewInsert().
		Model(claim).
		On("CONFLICT (show_id, unit_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (d *DB) GetClaim(ctx context.Context, showID, unitKey string) (*models.InventoryClaim, error) {
	var claim models.InventoryClaim
	err := d.Bun.NewSelect().
		Model(&claim).
		Where("show_id = ?", showID).
		Where("unit_key = ?", unitKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &claim, nil
}

func (d *DB) GetClaimsBySector(ctx context.Context, showID, sectorID string) ([]models.InventoryClaim, error) {
	var claims []models.InventoryClaim
	err := d.Bun.NewSelect().
		Model(&claims).
		Where("show_id = ?", showID).
		Where("sector_id = ?", sectorID).
		Scan(ctx)
	return claims, err
}

func (d *DB) GetClaimsByShow(ctx context.Context, showID string) ([]models.InventoryClaim, error) {
	var claims []models.InventoryClaim
	err := d.Bun.NewSelect().
		Model(&claims).
		Where("show_id = ?", showID).
		Scan(ctx)
	return claims, err
}

func (d *DB) DeleteClaimByTicket(ctx context.Context, ticketID string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.InventoryClaim)(nil)).
		Where("ticket_id = ?", ticketID).
		Exec(ctx)
	return err
}

func (d *DB) CreateHold(ctx context.Context, hold *models.Hold) error {
	_, err := d.Bun.NewInsert().Model(hold).Exec(ctx)
	return err
}

// GetHoldByTicket returns nil without error when the ticket has no hold.
func (d *DB) GetHoldByTicket(ctx context.Context, ticketID string) (*models.Hold, error) {
	var hold models.Hold
	err := d.Bun.NewSelect().
		Model(&hold).
		Where("ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &hold, nil
}

func (d *DB) GetHoldsByShow(ctx context.Context, showID string) ([]models.Hold, error) {
	var holds []models.Hold
	err := d.Bun.NewSelect().
		Model(&holds).
		Where("show_id = ?", showID).
		Scan(ctx)
	return holds, err
}

func (d *DB) DeleteHoldByTicket(ctx context.Context, ticketID string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Hold)(nil)).
		Where("ticket_id = ?", ticketID).
		Exec(ctx)
	return err
}

// ExtendHolds sets a new expiry on the holds of the given tickets.
func (d *DB) ExtendHolds(ctx context.Context, ticketIDs []string, expiresAt time.Time) error {
	if len(ticketIDs) == 0 {
		return nil
	}
	_, err := d.Bun.NewUpdate().
		Model((*models.Hold)(nil)).
		Set("expires_at = ?", expiresAt).
		Where("ticket_id IN (?)", bun.In(ticketIDs)).
		Exec(ctx)
	return err
}
