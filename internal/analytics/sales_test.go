package analytics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-venue-ticketing/internal/analytics"
	"ms-venue-ticketing/internal/holds"
	"ms-venue-ticketing/internal/inventory"
	invdb "ms-venue-ticketing/internal/inventory/db"
	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
	"ms-venue-ticketing/internal/order"
	"ms-venue-ticketing/internal/testutil"
	"ms-venue-ticketing/internal/tickets"
	ticketdb "ms-venue-ticketing/internal/tickets/db"
)

func buy(t *testing.T, m *holds.Manager, svc *order.OrderService, user string, reqs ...holds.AcquireRequest) *models.OrderWithTickets {
	ctx := context.Background()
	var ids []string
	for _, req := range reqs {
		req.UserID = user
		ticket, _, err := m.Acquire(ctx, req)
		require.NoError(t, err)
		ids = append(ids, ticket.ID)
	}
	o, err := svc.CreateOrder(ctx, user, ids, models.OrderTypeOrder)
	require.NoError(t, err)
	session, err := svc.StartPayment(ctx, user, o.ID)
	require.NoError(t, err)
	_, err = svc.SettlePayment(ctx, session.ID, models.OutcomeSuccess)
	require.NoError(t, err)
	return o
}

func TestEventSales(t *testing.T) {
	f := testutil.NewFixture(t)
	v := f.Venue(50, 30, 2)
	log := logger.Discard()
	machine := tickets.NewMachine(&ticketdb.DB{Bun: f.DB}, f.Clock)
	inv := inventory.NewService(&invdb.DB{Bun: f.DB}, f.Clock, log)
	m := holds.NewManager(f.DB, inv, machine, f.Clock, log)
	orders := order.NewOrderService(f.DB, machine, m, f.Clock, log)
	svc := analytics.NewService(f.DB, log)
	ctx := context.Background()

	seat := func(i int) holds.AcquireRequest {
		return holds.AcquireRequest{ShowID: v.Show.ID, SectorID: v.Seated.ID, SeatID: v.Seats[i].ID}
	}
	standing := holds.AcquireRequest{ShowID: v.Show.ID, SectorID: v.Standing.ID}

	buy(t, m, orders, "user-a", seat(0), standing)
	refunded := buy(t, m, orders, "user-b", seat(1))
	_, err := orders.Refund(ctx, "user-b", refunded.ID)
	require.NoError(t, err)

	report, err := svc.EventSales(ctx, v.Event.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalTicketsSold)
	assert.Equal(t, 1, report.TicketsRefunded)
	assert.Equal(t, 80.0, report.Revenue)
	require.Len(t, report.DailySales, 1)
	assert.Equal(t, testutil.Epoch.Format("2006-01-02"), report.DailySales[0].Date)
	assert.Equal(t, 3, report.DailySales[0].TicketsSold)
	require.Len(t, report.Shows, 1)
	assert.Equal(t, analytics.ShowSales{ShowID: v.Show.ID, TicketsSold: 3, TicketsRefunded: 1, Revenue: 80}, report.Shows[0])
}

func TestEventSalesWithoutSales(t *testing.T) {
	f := testutil.NewFixture(t)
	v := f.Venue(50, 30, 2)
	svc := analytics.NewService(f.DB, logger.Discard())

	report, err := svc.EventSales(context.Background(), v.Event.ID)
	require.NoError(t, err)
	assert.Zero(t, report.TotalTicketsSold)
	assert.Empty(t, report.DailySales)
	assert.Empty(t, report.Shows)

	_, err = svc.EventSales(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
