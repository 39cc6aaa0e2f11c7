// Package holds owns time-bounded claims on inventory: creating a ticket and
// its hold atomically, releasing it on request, and reaping it once expired.
package holds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/clock"
	"ms-venue-ticketing/internal/inventory"
	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
	"ms-venue-ticketing/internal/notify"
	"ms-venue-ticketing/internal/payment/storage"
	scheduledb "ms-venue-ticketing/internal/schedule/db"
	"ms-venue-ticketing/internal/tickets"
	ticketdb "ms-venue-ticketing/internal/tickets/db"
	"ms-venue-ticketing/internal/utils"
)

// Flow selects the status a new ticket starts in and how long its hold
// lasts.
type Flow string

const (
	// FlowReservation is an explicit customer hold (RESERVED).
	FlowReservation Flow = "reservation"
	// FlowPurchase goes straight into the payment flow (PAYMENT_PENDING).
	FlowPurchase Flow = "purchase"
)

type ReleaseReason int

const (
	ReleaseCancel ReleaseReason = iota
	ReleaseExpire
)

const (
	DefaultReservationTTL = 30 * time.Minute
	DefaultPurchaseTTL    = 10 * time.Minute
	DefaultBatchSize      = 100
)

// ExpirySignal is told about every hold so it can announce the expiry
// without waiting for the next sweep.
type ExpirySignal interface {
	Arm(ctx context.Context, holdID string, ttl time.Duration) error
	Disarm(ctx context.Context, holdID string) error
}

type AcquireRequest struct {
	UserID   string
	ShowID   string
	SectorID string
	// SeatID is required for seated sectors and must be empty otherwise.
	SeatID string
	Flow   Flow
}

// Manager serialises access to inventory units through the claims table.
type Manager struct {
	db        *bun.DB
	tickets   *ticketdb.DB
	shows     *scheduledb.DB
	sessions  *storage.Store
	inventory *inventory.Service
	machine   *tickets.Machine
	clock     clock.Clock
	log       *logger.Logger
	publisher notify.Publisher
	signal    ExpirySignal

	reservationTTL time.Duration
	purchaseTTL    time.Duration
	batchSize      int
}

type Option func(*Manager)

func WithReservationTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.reservationTTL = d
		}
	}
}

func WithPurchaseTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.purchaseTTL = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

func WithPublisher(p notify.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

func WithExpirySignal(s ExpirySignal) Option {
	return func(m *Manager) { m.signal = s }
}

func NewManager(db *bun.DB, inv *inventory.Service, machine *tickets.Machine, clk clock.Clock, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		db:             db,
		tickets:        &ticketdb.DB{Bun: db},
		shows:          &scheduledb.DB{Bun: db},
		sessions:       &storage.Store{Bun: db},
		inventory:      inv,
		machine:        machine,
		clock:          clk,
		log:            log,
		publisher:      notify.NopPublisher{},
		reservationTTL: DefaultReservationTTL,
		purchaseTTL:    DefaultPurchaseTTL,
		batchSize:      DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) flow(f Flow) (models.TicketStatus, time.Duration, error) {
	switch f {
	case FlowReservation, "":
		return models.TicketReserved, m.reservationTTL, nil
	case FlowPurchase:
		return models.TicketPaymentPending, m.purchaseTTL, nil
	}
	return "", 0, fmt.Errorf("unknown hold flow %q", f)
}

// Acquire creates a ticket and its hold on one inventory unit. For a seated
// sector the unit is the requested seat; for a standing sector it is the
// lowest free slot. Two callers racing for the same unit cannot both win:
// the claim insert is the only gate, and the loser gets ErrAlreadyTaken.
func (m *Manager) Acquire(ctx context.Context, req AcquireRequest) (*models.Ticket, *models.Hold, error) {
	if req.UserID == "" {
		return nil, nil, errors.New("user id is required")
	}
	status, ttl, err := m.flow(req.Flow)
	if err != nil {
		return nil, nil, err
	}

	var (
		ticket  *models.Ticket
		hold    *models.Hold
		expired ended
	)
	err = m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		expired = ended{}
		show, err := m.shows.WithTx(tx).GetShow(ctx, req.ShowID)
		if err != nil {
			return err
		}
		target, err := m.inventory.ResolveTarget(ctx, tx, show.RoomID, req.SectorID, req.SeatID)
		if err != nil {
			return err
		}

		now := m.clock.Now()
		t := &models.Ticket{
			ID:        utils.NewID(),
			ShowID:    show.ID,
			SectorID:  target.Sector.ID,
			UserID:    req.UserID,
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if target.Seat != nil {
			t.SeatID = target.Seat.ID
		}

		unitKey, freed, err := m.claim(ctx, tx, t, target)
		expired = freed
		if err != nil {
			return err
		}
		t.UnitKey = unitKey

		d := m.tickets.WithTx(tx)
		if err := d.CreateTicket(ctx, t); err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		h := &models.Hold{
			ID:        utils.NewID(),
			TicketID:  t.ID,
			ShowID:    show.ID,
			UserID:    req.UserID,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}
		if err := d.CreateHold(ctx, h); err != nil {
			return fmt.Errorf("create hold: %w", err)
		}
		ticket, hold = t, h
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrAlreadyTaken) {
			m.log.LogHold("TAKEN", req.SectorID, fmt.Sprintf("show=%s seat=%s user=%s", req.ShowID, req.SeatID, req.UserID))
		}
		return nil, nil, err
	}

	m.log.LogHold("ACQUIRE", ticket.ID, fmt.Sprintf("unit=%s status=%s expires=%s", ticket.UnitKey, ticket.Status, hold.ExpiresAt.Format(time.RFC3339)))
	m.announceEnded(ctx, expired)
	m.publisher.SeatsChanged(ctx, models.SeatStatusChangeEvent{
		ShowID:   ticket.ShowID,
		SectorID: ticket.SectorID,
		UnitKeys: []string{ticket.UnitKey},
		Status:   models.SeatStatusHeld,
		At:       hold.CreatedAt,
	})
	m.arm(ctx, hold, ttl)
	return ticket, hold, nil
}

// claim takes the target unit for ticket t. Claims whose tickets sit on an
// expired hold are expired on the spot so a stale hold never blocks a sale
// while waiting for the reaper. It returns the claimed unit key and whatever
// was expired along the way.
func (m *Manager) claim(ctx context.Context, tx bun.Tx, t *models.Ticket, target *inventory.Target) (string, ended, error) {
	d := m.tickets.WithTx(tx)
	var expired ended

	tryClaim := func(key string) (bool, error) {
		ok, err := d.ClaimUnit(ctx, &models.InventoryClaim{
			ShowID:    t.ShowID,
			UnitKey:   key,
			SectorID:  t.SectorID,
			TicketID:  t.ID,
			CreatedAt: t.CreatedAt,
		})
		if err != nil {
			return false, fmt.Errorf("claim %s: %w", key, err)
		}
		return ok, nil
	}

	if target.Seat != nil {
		key := inventory.SeatUnit(target.Seat.ID)
		ok, err := tryClaim(key)
		if err != nil || ok {
			return key, expired, err
		}
		existing, err := d.GetClaim(ctx, t.ShowID, key)
		if err != nil {
			return "", expired, err
		}
		if existing != nil {
			freed, err := m.expireIfStale(ctx, tx, existing.TicketID)
			if err != nil {
				return "", expired, err
			}
			expired.add(freed)
		}
		ok, err = tryClaim(key)
		if err != nil {
			return "", expired, err
		}
		if !ok {
			return "", expired, fmt.Errorf("seat %s for show %s: %w", target.Seat.ID, t.ShowID, models.ErrAlreadyTaken)
		}
		return key, expired, nil
	}

	claims, err := d.GetClaimsBySector(ctx, t.ShowID, t.SectorID)
	if err != nil {
		return "", expired, err
	}
	taken := make(map[string]bool, len(claims))
	for _, c := range claims {
		taken[c.UnitKey] = true
	}
	if len(claims) >= target.Capacity {
		for _, c := range claims {
			freed, err := m.expireIfStale(ctx, tx, c.TicketID)
			if err != nil {
				return "", expired, err
			}
			for _, ft := range freed.tickets {
				delete(taken, ft.UnitKey)
			}
			expired.add(freed)
		}
	}

	for slot := 1; slot <= target.Capacity; slot++ {
		key := inventory.StandingUnit(t.SectorID, slot)
		if taken[key] {
			continue
		}
		ok, err := tryClaim(key)
		if err != nil {
			return "", expired, err
		}
		if ok {
			return key, expired, nil
		}
	}
	return "", expired, fmt.Errorf("standing sector %s for show %s is full: %w", t.SectorID, t.ShowID, models.ErrAlreadyTaken)
}

// expireIfStale expires the ticket when its hold has run out, reporting what
// changed. A live or missing hold leaves everything alone.
func (m *Manager) expireIfStale(ctx context.Context, tx bun.Tx, ticketID string) (ended, error) {
	d := m.tickets.WithTx(tx)
	hold, err := d.GetHoldByTicket(ctx, ticketID)
	if err != nil {
		return ended{}, err
	}
	if hold == nil || !hold.ExpiredAt(m.clock.Now()) {
		return ended{}, nil
	}
	ticket, err := d.GetTicketByID(ctx, ticketID)
	if err != nil {
		return ended{}, err
	}
	if ticket.Status.Terminal() {
		return ended{}, nil
	}
	return m.finish(ctx, tx, ticket, tickets.EventExpire, models.PaymentFailed)
}

// ended is the outcome of finish: the tickets that changed and the ids of
// the holds they dropped.
type ended struct {
	tickets []models.Ticket
	holdIDs []string
}

func (e *ended) add(o ended) {
	e.tickets = append(e.tickets, o.tickets...)
	e.holdIDs = append(e.holdIDs, o.holdIDs...)
}

// finish applies ev to ticket. When the ticket is part of a pending payment
// session the session is closed with sessionStatus and every ticket in it
// goes the same way, so a session never ends half paid.
func (m *Manager) finish(ctx context.Context, tx bun.Tx, ticket *models.Ticket, ev tickets.Event, sessionStatus models.PaymentStatus) (ended, error) {
	batch := []models.Ticket{*ticket}

	if ticket.Status == models.TicketPaymentPending {
		sessions := m.sessions.WithTx(tx)
		session, err := sessions.GetActiveSessionForTicket(ctx, ticket.ID)
		if err != nil {
			return ended{}, err
		}
		if session != nil {
			if _, err := sessions.CloseSession(ctx, session.ID, sessionStatus, m.clock.Now()); err != nil {
				return ended{}, fmt.Errorf("close payment session %s: %w", session.ID, err)
			}
			ids, err := sessions.GetSessionTicketIDs(ctx, session.ID)
			if err != nil {
				return ended{}, err
			}
			batch, err = m.tickets.WithTx(tx).GetTicketsByIDs(ctx, ids)
			if err != nil {
				return ended{}, err
			}
			m.log.LogPayment("CLOSE", session.ID, fmt.Sprintf("status=%s by ticket %s", sessionStatus, ticket.ID))
		}
	}

	d := m.tickets.WithTx(tx)
	var out ended
	for i := range batch {
		t := &batch[i]
		if t.Status.Terminal() {
			continue
		}
		hold, err := d.GetHoldByTicket(ctx, t.ID)
		if err != nil {
			return ended{}, err
		}
		if err := m.machine.Apply(ctx, tx, t, ev); err != nil {
			return ended{}, err
		}
		out.tickets = append(out.tickets, *t)
		if hold != nil {
			out.holdIDs = append(out.holdIDs, hold.ID)
		}
	}
	return out, nil
}

// Release ends a user's hold on a ticket, cancelling or expiring it. Calling
// it on a ticket that already reached a terminal status is a no-op.
func (m *Manager) Release(ctx context.Context, userID, ticketID string, reason ReleaseReason) (*models.Ticket, error) {
	ev, sessionStatus := tickets.EventCancel, models.PaymentCancelled
	if reason == ReleaseExpire {
		ev, sessionStatus = tickets.EventExpire, models.PaymentFailed
	}

	var (
		result  *models.Ticket
		changed ended
	)
	err := m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		changed = ended{}
		ticket, err := m.tickets.WithTx(tx).GetTicketByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.UserID != userID {
			return fmt.Errorf("ticket %s: %w", ticketID, models.ErrTicketNotHeldByUser)
		}
		result = ticket
		if ticket.Status.Terminal() {
			return nil
		}
		changed, err = m.finish(ctx, tx, ticket, ev, sessionStatus)
		if err != nil {
			return err
		}
		for _, c := range changed.tickets {
			if c.ID == ticketID {
				*result = c
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(changed.tickets) == 0 {
		m.log.LogHold("RELEASE", ticketID, fmt.Sprintf("already %s, nothing to do", result.Status))
		return result, nil
	}
	m.log.LogHold("RELEASE", ticketID, fmt.Sprintf("%d ticket(s) -> %s", len(changed.tickets), result.Status))
	m.announceEnded(ctx, changed)
	return result, nil
}

// ReapHold expires a single hold if it is due. It reports whether the hold
// was reaped; a hold that is gone, or was extended, is left to its owner.
func (m *Manager) ReapHold(ctx context.Context, holdID string) (bool, error) {
	var changed ended
	reaped := false
	err := m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		changed, reaped = ended{}, false
		var hold models.Hold
		err := tx.NewSelect().Model(&hold).Where("id = ?", holdID).Limit(1).Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		now := m.clock.Now()
		res, err := tx.NewDelete().
			Model((*models.Hold)(nil)).
			Where("id = ?", holdID).
			Where("expires_at <= ?", now).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		reaped = true

		ticket, err := m.tickets.WithTx(tx).GetTicketByID(ctx, hold.TicketID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return err
		}
		if ticket.Status.Terminal() {
			return nil
		}
		changed, err = m.finish(ctx, tx, ticket, tickets.EventExpire, models.PaymentFailed)
		changed.holdIDs = append(changed.holdIDs, hold.ID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("reap hold %s: %w", holdID, err)
	}
	m.announceEnded(ctx, changed)
	return reaped, nil
}

// Reap expires every hold whose expiry has passed, in batches. Failures on
// individual holds are logged and left for the next sweep; the joined error
// is returned alongside the number of holds reaped.
func (m *Manager) Reap(ctx context.Context) (int, error) {
	total := 0
	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var due []models.Hold
		err := m.db.NewSelect().
			Model(&due).
			Column("id").
			Where("expires_at <= ?", m.clock.Now()).
			Order("expires_at").
			Limit(m.batchSize).
			Scan(ctx)
		if err != nil {
			return total, fmt.Errorf("list expired holds: %w", err)
		}

		reapedInBatch := 0
		for _, h := range due {
			ok, err := m.ReapHold(ctx, h.ID)
			if err != nil {
				m.log.Error("REAP", err.Error())
				errs = append(errs, err)
				continue
			}
			if ok {
				reapedInBatch++
			}
		}
		total += reapedInBatch

		// A short batch means nothing else is due; a batch without progress
		// means the rest keeps failing and waits for the next sweep.
		if len(due) < m.batchSize || reapedInBatch == 0 {
			break
		}
	}
	if total > 0 {
		m.log.Info("REAP", fmt.Sprintf("Expired %d hold(s)", total))
	}
	return total, errors.Join(errs...)
}

// ExtendHolds moves the expiry of the holds on the given tickets, used when a
// payment session sets a new deadline. It runs inside the caller's
// transaction; re-arm the expiry signal after commit with Rearm.
func ExtendHolds(ctx context.Context, tx bun.IDB, ticketIDs []string, expiresAt time.Time) error {
	return (&ticketdb.DB{Bun: tx}).ExtendHolds(ctx, ticketIDs, expiresAt)
}

// Rearm re-arms the expiry signal of the holds on the given tickets.
func (m *Manager) Rearm(ctx context.Context, ticketIDs []string) {
	if m.signal == nil {
		return
	}
	now := m.clock.Now()
	for _, id := range ticketIDs {
		hold, err := m.tickets.GetHoldByTicket(ctx, id)
		if err != nil || hold == nil {
			continue
		}
		m.arm(ctx, hold, hold.ExpiresAt.Sub(now))
	}
}

func (m *Manager) arm(ctx context.Context, hold *models.Hold, ttl time.Duration) {
	if m.signal == nil {
		return
	}
	if err := m.signal.Arm(ctx, hold.ID, ttl); err != nil {
		m.log.Warn("REDIS", fmt.Sprintf("Failed to arm expiry for hold %s: %v", hold.ID, err))
	}
}

// Disarm drops the expiry signals of holds that ended outside the manager,
// such as on settlement.
func (m *Manager) Disarm(ctx context.Context, holdIDs []string) {
	if m.signal == nil {
		return
	}
	for _, id := range holdIDs {
		if err := m.signal.Disarm(ctx, id); err != nil {
			m.log.Warn("REDIS", fmt.Sprintf("Failed to disarm expiry for hold %s: %v", id, err))
		}
	}
}

// announceEnded publishes terminal transitions and the units they freed, and
// disarms the expiry signals of the dropped holds.
func (m *Manager) announceEnded(ctx context.Context, e ended) {
	m.Disarm(ctx, e.holdIDs)
	if len(e.tickets) == 0 {
		return
	}
	notify.Announce(ctx, m.publisher, "", e.tickets, m.clock.Now())
}
