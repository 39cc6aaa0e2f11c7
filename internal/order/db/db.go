package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/models"
)

// DB stores orders, their ticket lines and order groups. Bun is either the
// database handle or an open transaction.
type DB struct {
	Bun bun.IDB
}

func (d *DB) WithTx(tx bun.IDB) *DB {
	return &DB{Bun: tx}
}

// ---------------- ORDERS ----------------

// CreateOrder inserts the order and its ticket lines.
func (d *DB) CreateOrder(ctx context.Context, order *models.Order, lines []models.OrderTicket) error {
	if _, err := d.Bun.NewInsert().Model(order).Exec(ctx); err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&lines).Exec(ctx)
	return err
}

func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUser returns the user's orders, newest first.
func (d *DB) GetOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC, id").
		Scan(ctx)
	return orders, err
}

func (d *DB) SetOrderGroup(ctx context.Context, orderID, groupID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("group_id = ?", groupID).
		Where("id = ?", orderID).
		Exec(ctx)
	return err
}

// ---------------- ORDER LINES ----------------

// GetOrderLines returns the ticket lines of an order in ticket id order.
func (d *DB) GetOrderLines(ctx context.Context, orderID string) ([]models.OrderTicket, error) {
	var lines []models.OrderTicket
	err := d.Bun.NewSelect().
		Model(&lines).
		Where("order_id = ?", orderID).
		Order("ticket_id").
		Scan(ctx)
	return lines, err
}

// GetTicketsByOrder fetches the tickets referenced by an order.
func (d *DB) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Join("JOIN order_tickets AS ot ON ot.ticket_id = ticket.id").
		Where("ot.order_id = ?", orderID).
		OrderExpr("ticket.id").
		Scan(ctx)
	return tickets, err
}

// ---------------- GROUPS ----------------

func (d *DB) CreateGroup(ctx context.Context, group *models.OrderGroup) error {
	_, err := d.Bun.NewInsert().Model(group).Exec(ctx)
	return err
}
