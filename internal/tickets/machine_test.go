package tickets_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/inventory"
	"ms-venue-ticketing/internal/models"
	"ms-venue-ticketing/internal/testutil"
	"ms-venue-ticketing/internal/tickets"
	"ms-venue-ticketing/internal/tickets/db"
	"ms-venue-ticketing/internal/utils"
)

type machineEnv struct {
	f       *testutil.Fixture
	venue   testutil.Venue
	store   *db.DB
	machine *tickets.Machine
}

func newMachineEnv(t *testing.T) *machineEnv {
	f := testutil.NewFixture(t)
	store := &db.DB{Bun: f.DB}
	m := tickets.NewMachine(store, f.Clock)
	m.Codes = func() string { return "TKT-TEST-CODE" }
	return &machineEnv{f: f, venue: f.Venue(50, 30, 2), store: store, machine: m}
}

// heldTicket inserts a ticket on the given seat with its claim and hold.
func (e *machineEnv) heldTicket(t *testing.T, seat models.Seat, status models.TicketStatus) *models.Ticket {
	ctx := context.Background()
	now := e.f.Clock.Now()
	ticket := &models.Ticket{
		ID:        utils.NewID(),
		ShowID:    e.venue.Show.ID,
		SectorID:  seat.SectorID,
		SeatID:    seat.ID,
		UnitKey:   inventory.SeatUnit(seat.ID),
		UserID:    "user-a",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, e.store.CreateTicket(ctx, ticket))
	ok, err := e.store.ClaimUnit(ctx, &models.InventoryClaim{
		ShowID: ticket.ShowID, UnitKey: ticket.UnitKey, SectorID: ticket.SectorID, TicketID: ticket.ID, CreatedAt: now,
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, e.store.CreateHold(ctx, &models.Hold{
		ID: utils.NewID(), TicketID: ticket.ID, ShowID: ticket.ShowID, UserID: ticket.UserID,
		ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now,
	}))
	return ticket
}

func (e *machineEnv) apply(t *testing.T, ticket *models.Ticket, ev tickets.Event) error {
	return e.f.DB.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		return e.machine.Apply(ctx, tx, ticket, ev)
	})
}

func TestApplyCancelFreesUnitAndHold(t *testing.T) {
	env := newMachineEnv(t)
	ctx := context.Background()
	ticket := env.heldTicket(t, env.venue.Seats[0], models.TicketReserved)

	require.NoError(t, env.apply(t, ticket, tickets.EventCancel))
	assert.Equal(t, models.TicketCancelled, ticket.Status)

	stored, err := env.store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketCancelled, stored.Status)

	hold, err := env.store.GetHoldByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, hold)

	claim, err := env.store.GetClaim(ctx, env.venue.Show.ID, ticket.UnitKey)
	require.NoError(t, err)
	assert.Nil(t, claim)
}

func TestApplyBoughtKeepsClaimAndAssignsCode(t *testing.T) {
	env := newMachineEnv(t)
	ctx := context.Background()
	ticket := env.heldTicket(t, env.venue.Seats[1], models.TicketPaymentPending)

	require.NoError(t, env.apply(t, ticket, tickets.EventPaymentSucceeded))
	assert.Equal(t, models.TicketBought, ticket.Status)
	assert.Equal(t, "TKT-TEST-CODE", ticket.TicketCode)

	stored, err := env.store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "TKT-TEST-CODE", stored.TicketCode)

	hold, err := env.store.GetHoldByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, hold)

	claim, err := env.store.GetClaim(ctx, env.venue.Show.ID, ticket.UnitKey)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, ticket.ID, claim.TicketID)

	// Refund releases the unit.
	require.NoError(t, env.apply(t, ticket, tickets.EventRefund))
	claim, err = env.store.GetClaim(ctx, env.venue.Show.ID, ticket.UnitKey)
	require.NoError(t, err)
	assert.Nil(t, claim)
}

func TestApplyProceedToPayKeepsHold(t *testing.T) {
	env := newMachineEnv(t)
	ctx := context.Background()
	ticket := env.heldTicket(t, env.venue.Seats[2], models.TicketReserved)

	require.NoError(t, env.apply(t, ticket, tickets.EventProceedToPay))
	assert.Equal(t, models.TicketPaymentPending, ticket.Status)

	hold, err := env.store.GetHoldByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.NotNil(t, hold)
}

func TestApplyInvalidTransitionLeavesTicketUnchanged(t *testing.T) {
	env := newMachineEnv(t)
	ctx := context.Background()
	ticket := env.heldTicket(t, env.venue.Seats[3], models.TicketReserved)

	err := env.apply(t, ticket, tickets.EventRefund)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, models.TicketReserved, ticket.Status)

	stored, err := env.store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketReserved, stored.Status)

	hold, err := env.store.GetHoldByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.NotNil(t, hold)
}

func TestApplyDetectsStaleStatus(t *testing.T) {
	env := newMachineEnv(t)
	ticket := env.heldTicket(t, env.venue.Seats[4], models.TicketReserved)

	stale := *ticket
	require.NoError(t, env.apply(t, ticket, tickets.EventExpire))

	err := env.apply(t, &stale, tickets.EventCancel)
	var terr *models.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, models.TicketExpired, terr.From)
	assert.Equal(t, models.TicketCancelled, terr.To)
}

func TestApplyRollsBackWithTransaction(t *testing.T) {
	env := newMachineEnv(t)
	ctx := context.Background()
	ticket := env.heldTicket(t, env.venue.Seats[5], models.TicketReserved)
	boom := errors.New("boom")

	err := env.f.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tk := *ticket
		if err := env.machine.Apply(ctx, tx, &tk, tickets.EventCancel); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := env.store.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketReserved, stored.Status)

	claim, err := env.store.GetClaim(ctx, env.venue.Show.ID, ticket.UnitKey)
	require.NoError(t, err)
	assert.NotNil(t, claim)
}
