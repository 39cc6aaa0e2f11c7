package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-venue-ticketing/internal/holds"
	"ms-venue-ticketing/internal/inventory"
	invdb "ms-venue-ticketing/internal/inventory/db"
	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
	"ms-venue-ticketing/internal/notify"
	"ms-venue-ticketing/internal/order"
	"ms-venue-ticketing/internal/payment/storage"
	"ms-venue-ticketing/internal/testutil"
	"ms-venue-ticketing/internal/tickets"
	ticketdb "ms-venue-ticketing/internal/tickets/db"
)

type env struct {
	f        *testutil.Fixture
	venue    testutil.Venue
	store    *ticketdb.DB
	holds    *holds.Manager
	orders   *order.OrderService
	recorder *notify.Recorder
}

func newEnv(t *testing.T) *env {
	f := testutil.NewFixture(t)
	v := f.Venue(50, 30, 2)
	store := &ticketdb.DB{Bun: f.DB}
	machine := tickets.NewMachine(store, f.Clock)
	inv := inventory.NewService(&invdb.DB{Bun: f.DB}, f.Clock, logger.Discard())
	rec := &notify.Recorder{}
	m := holds.NewManager(f.DB, inv, machine, f.Clock, logger.Discard(), holds.WithPublisher(rec))
	svc := order.NewOrderService(f.DB, machine, m, f.Clock, logger.Discard(),
		order.WithPublisher(rec), order.WithPaymentSessionTTL(20*time.Minute))
	return &env{f: f, venue: v, store: store, holds: m, orders: svc, recorder: rec}
}

func (e *env) holdSeat(t *testing.T, user string, seat models.Seat) *models.Ticket {
	ticket, _, err := e.holds.Acquire(context.Background(), holds.AcquireRequest{
		UserID: user, ShowID: e.venue.Show.ID, SectorID: e.venue.Seated.ID, SeatID: seat.ID,
	})
	require.NoError(t, err)
	return ticket
}

func (e *env) holdStanding(t *testing.T, user string) *models.Ticket {
	ticket, _, err := e.holds.Acquire(context.Background(), holds.AcquireRequest{
		UserID: user, ShowID: e.venue.Show.ID, SectorID: e.venue.Standing.ID,
	})
	require.NoError(t, err)
	return ticket
}

func (e *env) status(t *testing.T, id string) models.TicketStatus {
	ticket, err := e.store.GetTicketByID(context.Background(), id)
	require.NoError(t, err)
	return ticket.Status
}

// paidOrder holds a seat and a standing place, orders them and opens a
// payment session.
func (e *env) paidOrder(t *testing.T, user string) (*models.OrderWithTickets, *models.PaymentSession) {
	ctx := context.Background()
	seat := e.holdSeat(t, user, e.venue.Seats[0])
	standing := e.holdStanding(t, user)
	o, err := e.orders.CreateOrder(ctx, user, []string{seat.ID, standing.ID}, models.OrderTypeOrder)
	require.NoError(t, err)
	session, err := e.orders.StartPayment(ctx, user, o.ID)
	require.NoError(t, err)
	return o, session
}

func TestCreateOrderSumsSectorPrices(t *testing.T) {
	e := newEnv(t)
	seat := e.holdSeat(t, "user-a", e.venue.Seats[0])
	standing := e.holdStanding(t, "user-a")

	o, err := e.orders.CreateOrder(context.Background(), "user-a", []string{seat.ID, standing.ID, seat.ID}, models.OrderTypeOrder)
	require.NoError(t, err)

	assert.Equal(t, 80.0, o.TotalPrice)
	assert.Equal(t, models.OrderTypeOrder, o.Type)
	assert.Len(t, o.Tickets, 2)

	got, err := e.orders.GetOrder(context.Background(), "user-a", o.ID)
	require.NoError(t, err)
	assert.Equal(t, 80.0, got.TotalPrice)
	assert.Len(t, got.Tickets, 2)
}

func TestCreateOrderRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mine := e.holdSeat(t, "user-a", e.venue.Seats[0])
	theirs := e.holdSeat(t, "user-b", e.venue.Seats[1])

	_, err := e.orders.CreateOrder(ctx, "user-a", []string{mine.ID, theirs.ID}, models.OrderTypeOrder)
	assert.ErrorIs(t, err, models.ErrTicketNotHeldByUser)

	_, err = e.orders.CreateOrder(ctx, "user-a", []string{mine.ID}, models.OrderTypeRefund)
	assert.ErrorIs(t, err, models.ErrInvalidOrderType)

	_, err = e.orders.CreateOrder(ctx, "user-a", nil, models.OrderTypeOrder)
	assert.ErrorIs(t, err, models.ErrTicketNotAvailable)

	_, err = e.orders.CreateOrder(ctx, "user-a", []string{"missing"}, models.OrderTypeOrder)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = e.holds.Release(ctx, "user-a", mine.ID, holds.ReleaseCancel)
	require.NoError(t, err)
	_, err = e.orders.CreateOrder(ctx, "user-a", []string{mine.ID}, models.OrderTypeOrder)
	assert.ErrorIs(t, err, models.ErrTicketNotAvailable)
}

func TestCreateOrderRejectsExpiredHold(t *testing.T) {
	e := newEnv(t)
	ticket := e.holdSeat(t, "user-a", e.venue.Seats[0])
	e.f.Clock.Advance(holds.DefaultReservationTTL)

	_, err := e.orders.CreateOrder(context.Background(), "user-a", []string{ticket.ID}, models.OrderTypeReservation)
	assert.ErrorIs(t, err, models.ErrTicketNotAvailable)
}

func TestReservationOrderRejectsPendingTickets(t *testing.T) {
	e := newEnv(t)
	ticket, _, err := e.holds.Acquire(context.Background(), holds.AcquireRequest{
		UserID: "user-a", ShowID: e.venue.Show.ID, SectorID: e.venue.Standing.ID, Flow: holds.FlowPurchase,
	})
	require.NoError(t, err)

	_, err = e.orders.CreateOrder(context.Background(), "user-a", []string{ticket.ID}, models.OrderTypeReservation)
	assert.ErrorIs(t, err, models.ErrTicketNotAvailable)

	o, err := e.orders.CreateOrder(context.Background(), "user-a", []string{ticket.ID}, models.OrderTypeOrder)
	require.NoError(t, err)
	assert.Equal(t, 30.0, o.TotalPrice)
}

func TestStartPaymentMovesTicketsAndExtendsHolds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, session := e.paidOrder(t, "user-a")

	assert.Equal(t, models.PaymentPending, session.Status)
	assert.Equal(t, 80.0, session.TotalPrice)
	assert.Equal(t, testutil.Epoch.Add(20*time.Minute), session.ExpiresAt)

	for _, tk := range o.Tickets {
		assert.Equal(t, models.TicketPaymentPending, e.status(t, tk.ID))
		hold, err := e.store.GetHoldByTicket(ctx, tk.ID)
		require.NoError(t, err)
		require.NotNil(t, hold)
		assert.True(t, hold.ExpiresAt.Equal(session.ExpiresAt))
	}
}

func TestStartPaymentRejectsSecondSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, _ := e.paidOrder(t, "user-a")

	_, err := e.orders.StartPayment(ctx, "user-a", o.ID)
	assert.ErrorIs(t, err, models.ErrPaymentAlreadyInFlight)
	assert.True(t, models.IsRecoverable(err))

	_, err = e.orders.StartPayment(ctx, "user-b", o.ID)
	assert.ErrorIs(t, err, models.ErrNotOrderOwner)
}

func TestTicketCannotBeInTwoSessions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ticket := e.holdSeat(t, "user-a", e.venue.Seats[0])

	first, err := e.orders.CreateOrder(ctx, "user-a", []string{ticket.ID}, models.OrderTypeOrder)
	require.NoError(t, err)
	second, err := e.orders.CreateOrder(ctx, "user-a", []string{ticket.ID}, models.OrderTypeOrder)
	require.NoError(t, err)

	_, err = e.orders.StartPayment(ctx, "user-a", first.ID)
	require.NoError(t, err)
	_, err = e.orders.StartPayment(ctx, "user-a", second.ID)
	assert.ErrorIs(t, err, models.ErrPaymentAlreadyInFlight)
}

func TestConcurrentStartPaymentOpensOneSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ticket := e.holdSeat(t, "user-a", e.venue.Seats[0])
	o, err := e.orders.CreateOrder(ctx, "user-a", []string{ticket.ID}, models.OrderTypeOrder)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.orders.StartPayment(ctx, "user-a", o.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, models.ErrPaymentAlreadyInFlight)
	}
	assert.Equal(t, 1, ok)
}

func TestSettleSuccessBuysEveryTicket(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, session := e.paidOrder(t, "user-a")

	settled, err := e.orders.SettlePayment(ctx, session.ID, models.OutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, settled.Status)

	for _, tk := range o.Tickets {
		got, err := e.store.GetTicketByID(ctx, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TicketBought, got.Status)
		assert.NotEmpty(t, got.TicketCode)
		hold, err := e.store.GetHoldByTicket(ctx, tk.ID)
		require.NoError(t, err)
		assert.Nil(t, hold)
	}

	counts, err := e.store.GetTicketCountsForShow(ctx, e.venue.Show.ID)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, 2, counts[0].Count)

	// Sold units stay claimed.
	_, _, err = e.holds.Acquire(ctx, holds.AcquireRequest{
		UserID: "user-b", ShowID: e.venue.Show.ID, SectorID: e.venue.Seated.ID, SeatID: e.venue.Seats[0].ID,
	})
	assert.ErrorIs(t, err, models.ErrAlreadyTaken)

	var bought bool
	for _, ev := range e.recorder.TicketEvents() {
		if ev.Type == notify.TypeTicketsBought {
			bought = true
			assert.Equal(t, o.ID, ev.OrderID)
			assert.Len(t, ev.TicketIDs, 2)
		}
	}
	assert.True(t, bought)
}

func TestSettlementsOnTheSameDayShareACounter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, first := e.paidOrder(t, "user-a")
	_, err := e.orders.SettlePayment(ctx, first.ID, models.OutcomeSuccess)
	require.NoError(t, err)

	seat := e.holdSeat(t, "user-b", e.venue.Seats[1])
	standing := e.holdStanding(t, "user-b")
	o, err := e.orders.CreateOrder(ctx, "user-b", []string{seat.ID, standing.ID}, models.OrderTypeOrder)
	require.NoError(t, err)
	second, err := e.orders.StartPayment(ctx, "user-b", o.ID)
	require.NoError(t, err)
	_, err = e.orders.SettlePayment(ctx, second.ID, models.OutcomeSuccess)
	require.NoError(t, err)

	counts, err := e.store.GetTicketCountsForShow(ctx, e.venue.Show.ID)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, 4, counts[0].Count)
	assert.Equal(t, models.TicketBought, e.status(t, seat.ID))
}

func TestSettleFailureScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, session := e.paidOrder(t, "user-a")
	require.Equal(t, 80.0, o.TotalPrice)

	settled, err := e.orders.SettlePayment(ctx, session.ID, models.OutcomeFailure)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, settled.Status)

	for _, tk := range o.Tickets {
		assert.Equal(t, models.TicketExpired, e.status(t, tk.ID))
		hold, err := e.store.GetHoldByTicket(ctx, tk.ID)
		require.NoError(t, err)
		assert.Nil(t, hold)
	}

	// The same units can be taken again right away.
	e.holdSeat(t, "user-b", e.venue.Seats[0])
	e.holdStanding(t, "user-b")
	e.holdStanding(t, "user-b")
}

func TestSettleIsAllOrNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, session := e.paidOrder(t, "user-a")

	// Knock one ticket out of PAYMENT_PENDING behind the session's back.
	_, err := e.f.DB.NewUpdate().Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketReserved).
		Where("id = ?", o.Tickets[1].ID).
		Exec(ctx)
	require.NoError(t, err)

	_, err = e.orders.SettlePayment(ctx, session.ID, models.OutcomeSuccess)
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	assert.Equal(t, models.TicketPaymentPending, e.status(t, o.Tickets[0].ID))
	assert.Equal(t, models.TicketReserved, e.status(t, o.Tickets[1].ID))
	got, err := (&storage.Store{Bun: e.f.DB}).GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, got.Status)
}

func TestSettleIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, session := e.paidOrder(t, "user-a")

	_, err := e.orders.SettlePayment(ctx, session.ID, models.OutcomeSuccess)
	require.NoError(t, err)
	events := len(e.recorder.TicketEvents())

	again, err := e.orders.SettlePayment(ctx, session.ID, models.OutcomeSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, again.Status)
	assert.Len(t, e.recorder.TicketEvents(), events)

	_, err = e.orders.SettlePayment(ctx, session.ID, models.OutcomeFailure)
	assert.ErrorIs(t, err, models.ErrPaymentSessionClosed)

	_, err = e.orders.SettlePayment(ctx, session.ID, "MAYBE")
	assert.Error(t, err)

	_, err = e.orders.SettlePayment(ctx, "missing", models.OutcomeSuccess)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSessionExpiryFailsThePayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, session := e.paidOrder(t, "user-a")

	e.f.Clock.Advance(19 * time.Minute)
	n, err := e.holds.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// One reaped hold takes the whole session down with it.
	e.f.Clock.Advance(time.Minute)
	n, err = e.holds.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, tk := range o.Tickets {
		assert.Equal(t, models.TicketExpired, e.status(t, tk.ID))
	}
	_, err = e.orders.SettlePayment(ctx, session.ID, models.OutcomeSuccess)
	assert.ErrorIs(t, err, models.ErrPaymentSessionClosed)
}

func TestRefundRoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, session := e.paidOrder(t, "user-a")
	_, err := e.orders.SettlePayment(ctx, session.ID, models.OutcomeSuccess)
	require.NoError(t, err)

	_, err = e.orders.Refund(ctx, "user-b", o.ID)
	assert.ErrorIs(t, err, models.ErrNotOrderOwner)

	refund, err := e.orders.Refund(ctx, "user-a", o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderTypeRefund, refund.Type)
	assert.Equal(t, 80.0, refund.TotalPrice)
	assert.NotEmpty(t, refund.GroupID)
	assert.Len(t, refund.Tickets, 2)
	for _, tk := range o.Tickets {
		assert.Equal(t, models.TicketRefunded, e.status(t, tk.ID))
	}

	_, err = e.orders.Refund(ctx, "user-a", o.ID)
	assert.ErrorIs(t, err, models.ErrNothingToRefund)

	_, err = e.orders.Refund(ctx, "user-a", refund.ID)
	assert.ErrorIs(t, err, models.ErrInvalidOrderType)

	history, err := e.orders.History(ctx, "user-a")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, refund.GroupID, history[0].GroupID)
	assert.Len(t, history[0].Orders, 2)

	// Refunded seats go back on sale.
	e.holdSeat(t, "user-b", e.venue.Seats[0])
}

func TestRefundCoversOnlyTicketsPaidByTheOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ticket := e.holdSeat(t, "user-a", e.venue.Seats[0])
	reservation, err := e.orders.CreateOrder(ctx, "user-a", []string{ticket.ID}, models.OrderTypeReservation)
	require.NoError(t, err)
	purchase, err := e.orders.CreateOrder(ctx, "user-a", []string{ticket.ID}, models.OrderTypeOrder)
	require.NoError(t, err)
	session, err := e.orders.StartPayment(ctx, "user-a", purchase.ID)
	require.NoError(t, err)
	_, err = e.orders.SettlePayment(ctx, session.ID, models.OutcomeSuccess)
	require.NoError(t, err)

	_, err = e.orders.Refund(ctx, "user-a", reservation.ID)
	assert.ErrorIs(t, err, models.ErrNothingToRefund)
	assert.Equal(t, models.TicketBought, e.status(t, ticket.ID))

	refund, err := e.orders.Refund(ctx, "user-a", purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, refund.TotalPrice)
	assert.Equal(t, models.TicketRefunded, e.status(t, ticket.ID))
}

func TestRefundWithoutBoughtTickets(t *testing.T) {
	e := newEnv(t)
	ticket := e.holdSeat(t, "user-a", e.venue.Seats[0])
	o, err := e.orders.CreateOrder(context.Background(), "user-a", []string{ticket.ID}, models.OrderTypeOrder)
	require.NoError(t, err)

	_, err = e.orders.Refund(context.Background(), "user-a", o.ID)
	assert.ErrorIs(t, err, models.ErrNothingToRefund)
	assert.Equal(t, models.TicketReserved, e.status(t, ticket.ID))
}

func TestGetOrderChecksOwner(t *testing.T) {
	e := newEnv(t)
	ticket := e.holdSeat(t, "user-a", e.venue.Seats[0])
	o, err := e.orders.CreateOrder(context.Background(), "user-a", []string{ticket.ID}, models.OrderTypeReservation)
	require.NoError(t, err)

	_, err = e.orders.GetOrder(context.Background(), "user-b", o.ID)
	assert.ErrorIs(t, err, models.ErrNotOrderOwner)

	_, err = e.orders.GetOrder(context.Background(), "user-a", "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
