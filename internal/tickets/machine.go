package tickets

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/clock"
	"ms-venue-ticketing/internal/models"
	"ms-venue-ticketing/internal/tickets/db"
	"ms-venue-ticketing/internal/utils"
)

// Machine applies ticket transitions to storage. Every call runs inside a
// transaction owned by the caller so the side effects commit or roll back
// with whatever else the caller does.
type Machine struct {
	DB    *db.DB
	Clock clock.Clock
	// Codes generates the identifier printed on a bought ticket.
	Codes func() string
}

func NewMachine(d *db.DB, clk clock.Clock) *Machine {
	return &Machine{DB: d, Clock: clk, Codes: utils.GenerateTicketCode}
}

// Apply moves ticket t on event ev. The persisted status must still match
// t.Status; if another transaction got there first the call fails with a
// TransitionError carrying the status actually found. On success t is
// updated in place.
//
// Reaching any terminal status drops the ticket's hold. Every terminal
// status except BOUGHT also frees the inventory unit.
func (m *Machine) Apply(ctx context.Context, tx bun.IDB, t *models.Ticket, ev Event) error {
	to, err := Next(t.ID, t.Status, ev)
	if err != nil {
		return err
	}

	d := m.DB.WithTx(tx)
	now := m.Clock.Now()
	code := ""
	if to == models.TicketBought {
		code = m.Codes()
	}

	ok, err := d.CompareAndSetStatus(ctx, t.ID, t.Status, to, code, now)
	if err != nil {
		return fmt.Errorf("update ticket %s status: %w", t.ID, err)
	}
	if !ok {
		current, err := d.GetTicketByID(ctx, t.ID)
		if err != nil {
			return err
		}
		return &models.TransitionError{TicketID: t.ID, From: current.Status, To: to}
	}

	if to.Terminal() {
		if err := d.DeleteHoldByTicket(ctx, t.ID); err != nil {
			return fmt.Errorf("delete hold of ticket %s: %w", t.ID, err)
		}
		if to != models.TicketBought {
			if err := d.DeleteClaimByTicket(ctx, t.ID); err != nil {
				return fmt.Errorf("release unit of ticket %s: %w", t.ID, err)
			}
		}
	}

	t.Status = to
	t.UpdatedAt = now
	if code != "" {
		t.TicketCode = code
	}
	return nil
}
