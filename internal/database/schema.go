package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/models"
)

// Models lists every table owned by the service, parents first.
func Models() []interface{} {
	return []interface{}{
		(*models.Room)(nil),
		(*models.Sector)(nil),
		(*models.Seat)(nil),
		(*models.Event)(nil),
		(*models.Show)(nil),
		(*models.Ticket)(nil),
		(*models.InventoryClaim)(nil),
		(*models.Hold)(nil),
		(*models.OrderGroup)(nil),
		(*models.Order)(nil),
		(*models.OrderTicket)(nil),
		(*models.PaymentSession)(nil),
		(*models.PaymentSessionTicket)(nil),
		(*models.TicketCount)(nil),
	}
}

type index struct {
	model   interface{}
	name    string
	columns []string
	unique  bool
}

var indexes = []index{
	{(*models.Sector)(nil), "sectors_room_idx", []string{"room_id"}, false},
	{(*models.Seat)(nil), "seats_room_position_idx", []string{"room_id", "seat_row", "seat_column"}, true},
	{(*models.Seat)(nil), "seats_sector_idx", []string{"sector_id"}, false},
	{(*models.Show)(nil), "shows_event_idx", []string{"event_id"}, false},
	{(*models.Ticket)(nil), "tickets_show_status_idx", []string{"show_id", "status"}, false},
	{(*models.Ticket)(nil), "tickets_user_idx", []string{"user_id"}, false},
	{(*models.InventoryClaim)(nil), "inventory_claims_sector_idx", []string{"show_id", "sector_id"}, false},
	{(*models.Hold)(nil), "holds_expires_at_idx", []string{"expires_at"}, false},
	{(*models.Order)(nil), "orders_user_idx", []string{"user_id", "created_at"}, false},
	{(*models.OrderTicket)(nil), "order_tickets_ticket_idx", []string{"ticket_id"}, false},
	{(*models.PaymentSession)(nil), "payment_sessions_order_idx", []string{"order_id"}, false},
	{(*models.TicketCount)(nil), "ticket_counts_day_idx", []string{"event_id", "show_id", "date"}, true},
}

// CreateSchema creates tables and indexes straight from the bun models. It
// backs SQLite development mode and tests; Postgres deployments use the SQL
// migrations instead.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range Models() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	for _, idx := range indexes {
		q := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
