// Package order turns held tickets into orders and settles their payment
// sessions as a single unit: every ticket of a session is bought, or none is.
package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/clock"
	"ms-venue-ticketing/internal/database"
	"ms-venue-ticketing/internal/holds"
	invdb "ms-venue-ticketing/internal/inventory/db"
	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
	"ms-venue-ticketing/internal/notify"
	orderdb "ms-venue-ticketing/internal/order/db"
	"ms-venue-ticketing/internal/payment/storage"
	scheduledb "ms-venue-ticketing/internal/schedule/db"
	"ms-venue-ticketing/internal/tickets"
	ticketdb "ms-venue-ticketing/internal/tickets/db"
	"ms-venue-ticketing/internal/utils"
)

const DefaultPaymentSessionTTL = 15 * time.Minute

// HoldKeeper is implemented by *holds.Manager. The service tells it when
// hold deadlines move or holds end at settlement.
type HoldKeeper interface {
	Rearm(ctx context.Context, ticketIDs []string)
	Disarm(ctx context.Context, holdIDs []string)
}

type OrderService struct {
	db        *bun.DB
	orders    *orderdb.DB
	tickets   *ticketdb.DB
	sessions  *storage.Store
	venues    *invdb.DB
	shows     *scheduledb.DB
	machine   *tickets.Machine
	holds     HoldKeeper
	clock     clock.Clock
	logger    *logger.Logger
	publisher notify.Publisher

	sessionTTL time.Duration
}

type Option func(*OrderService)

func WithPaymentSessionTTL(d time.Duration) Option {
	return func(s *OrderService) {
		if d > 0 {
			s.sessionTTL = d
		}
	}
}

func WithPublisher(p notify.Publisher) Option {
	return func(s *OrderService) { s.publisher = p }
}

func NewOrderService(db *bun.DB, machine *tickets.Machine, keeper HoldKeeper, clk clock.Clock, log *logger.Logger, opts ...Option) *OrderService {
	s := &OrderService{
		db:         db,
		orders:     &orderdb.DB{Bun: db},
		tickets:    &ticketdb.DB{Bun: db},
		sessions:   &storage.Store{Bun: db},
		venues:     &invdb.DB{Bun: db},
		shows:      &scheduledb.DB{Bun: db},
		machine:    machine,
		holds:      keeper,
		clock:      clk,
		logger:     log,
		publisher:  notify.NopPublisher{},
		sessionTTL: DefaultPaymentSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ HoldKeeper = (*holds.Manager)(nil)

// ---------------- ORDERS ----------------

// CreateOrder records an order over tickets the user currently holds. The
// total is the sum of each ticket's sector price at the time of ordering.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, ticketIDs []string, orderType models.OrderType) (*models.OrderWithTickets, error) {
	if orderType != models.OrderTypeOrder && orderType != models.OrderTypeReservation {
		return nil, fmt.Errorf("%q: %w", orderType, models.ErrInvalidOrderType)
	}
	ids := dedupe(ticketIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("order needs at least one ticket: %w", models.ErrTicketNotAvailable)
	}

	var result *models.OrderWithTickets
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ts, err := s.tickets.WithTx(tx).GetTicketsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		for i := range ts {
			if err := s.checkHeld(ctx, tx, userID, &ts[i], orderType); err != nil {
				return err
			}
		}

		prices := map[string]float64{}
		order := &models.Order{
			ID:        utils.NewID(),
			UserID:    userID,
			Type:      orderType,
			CreatedAt: s.clock.Now(),
		}
		lines := make([]models.OrderTicket, len(ts))
		for i, t := range ts {
			price, ok := prices[t.SectorID]
			if !ok {
				sector, err := s.venues.WithTx(tx).GetSector(ctx, t.SectorID)
				if err != nil {
					return err
				}
				price = sector.Price
				prices[t.SectorID] = price
			}
			lines[i] = models.OrderTicket{OrderID: order.ID, TicketID: t.ID, Price: price}
			order.TotalPrice += price
		}

		if err := s.orders.WithTx(tx).CreateOrder(ctx, order, lines); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		result = &models.OrderWithTickets{Order: *order, Tickets: ts}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogOrder("CREATE", result.ID, fmt.Sprintf("user=%s type=%s tickets=%d total=%.2f", userID, orderType, len(result.Tickets), result.TotalPrice))
	return result, nil
}

// checkHeld verifies that t belongs to userID, is still under a live hold
// and is in a status the order type accepts.
func (s *OrderService) checkHeld(ctx context.Context, tx bun.IDB, userID string, t *models.Ticket, orderType models.OrderType) error {
	if t.UserID != userID {
		return fmt.Errorf("ticket %s: %w", t.ID, models.ErrTicketNotHeldByUser)
	}
	switch t.Status {
	case models.TicketReserved:
	case models.TicketPaymentPending:
		if orderType == models.OrderTypeReservation {
			return fmt.Errorf("ticket %s is %s: %w", t.ID, t.Status, models.ErrTicketNotAvailable)
		}
	default:
		return fmt.Errorf("ticket %s is %s: %w", t.ID, t.Status, models.ErrTicketNotAvailable)
	}
	hold, err := s.tickets.WithTx(tx).GetHoldByTicket(ctx, t.ID)
	if err != nil {
		return err
	}
	if hold == nil || hold.UserID != userID || hold.ExpiredAt(s.clock.Now()) {
		return fmt.Errorf("ticket %s has no live hold: %w", t.ID, models.ErrTicketNotAvailable)
	}
	return nil
}

// GetOrder returns an order with its tickets. Only the owner may read it.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (*models.OrderWithTickets, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %s: %w", orderID, models.ErrNotOrderOwner)
	}
	ts, err := s.orders.GetTicketsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &models.OrderWithTickets{Order: *order, Tickets: ts}, nil
}

// History lists the user's orders, newest first. Orders linked through an
// order group (a sale and its refunds) are listed together.
func (s *OrderService) History(ctx context.Context, userID string) ([]models.OrderGroupView, error) {
	orders, err := s.orders.GetOrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var views []models.OrderGroupView
	byGroup := map[string]int{}
	for _, o := range orders {
		ts, err := s.orders.GetTicketsByOrder(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		entry := models.OrderWithTickets{Order: o, Tickets: ts}
		if o.GroupID != "" {
			if i, ok := byGroup[o.GroupID]; ok {
				views[i].Orders = append(views[i].Orders, entry)
				continue
			}
			byGroup[o.GroupID] = len(views)
		}
		views = append(views, models.OrderGroupView{GroupID: o.GroupID, Orders: []models.OrderWithTickets{entry}})
	}
	return views, nil
}

// ---------------- PAYMENT ----------------

// StartPayment opens a payment session over every ticket of the order and
// moves them to PAYMENT_PENDING. Their holds now expire with the session.
func (s *OrderService) StartPayment(ctx context.Context, userID, orderID string) (*models.PaymentSession, error) {
	var (
		session   *models.PaymentSession
		ticketIDs []string
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		order, err := s.orders.WithTx(tx).GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return fmt.Errorf("order %s: %w", orderID, models.ErrNotOrderOwner)
		}
		if order.Type == models.OrderTypeRefund {
			return fmt.Errorf("refund order %s cannot be paid: %w", orderID, models.ErrInvalidOrderType)
		}

		sessions := s.sessions.WithTx(tx)
		active, err := sessions.GetActiveSessionForOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("order %s has session %s: %w", orderID, active.ID, models.ErrPaymentAlreadyInFlight)
		}

		ts, err := s.orders.WithTx(tx).GetTicketsByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if len(ts) == 0 {
			return fmt.Errorf("order %s has no tickets: %w", orderID, models.ErrTicketNotAvailable)
		}
		for i := range ts {
			t := &ts[i]
			if err := s.checkHeld(ctx, tx, userID, t, models.OrderTypeOrder); err != nil {
				return err
			}
			if t.Status == models.TicketReserved {
				if err := s.machine.Apply(ctx, tx, t, tickets.EventProceedToPay); err != nil {
					return err
				}
			}
			ticketIDs = append(ticketIDs, t.ID)
		}

		now := s.clock.Now()
		session = &models.PaymentSession{
			ID:         utils.NewID(),
			OrderID:    orderID,
			Status:     models.PaymentPending,
			TotalPrice: order.TotalPrice,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.sessionTTL),
		}
		if err := sessions.CreateSession(ctx, session, ticketIDs); err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("order %s: %w", orderID, models.ErrPaymentAlreadyInFlight)
			}
			return fmt.Errorf("create payment session: %w", err)
		}
		return holds.ExtendHolds(ctx, tx, ticketIDs, session.ExpiresAt)
	})
	if err != nil {
		if errors.Is(err, models.ErrPaymentAlreadyInFlight) {
			s.logger.LogPayment("IN_FLIGHT", orderID, err.Error())
		}
		return nil, err
	}

	s.holds.Rearm(ctx, ticketIDs)
	s.logger.LogPayment("START", session.ID, fmt.Sprintf("order=%s tickets=%d total=%.2f expires=%s", orderID, len(ticketIDs), session.TotalPrice, session.ExpiresAt.Format(time.RFC3339)))
	return session, nil
}

// SettlePayment applies the provider's verdict to a session. SUCCESS buys
// every ticket of the session, FAILURE expires every one; either way the
// whole batch commits or nothing does. Repeating the verdict a session was
// already closed with is a no-op; a different verdict fails with
// ErrPaymentSessionClosed.
func (s *OrderService) SettlePayment(ctx context.Context, sessionID string, outcome models.ProviderOutcome) (*models.PaymentSession, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("unknown provider outcome %q", outcome)
	}
	status, ev := models.PaymentSucceeded, tickets.EventPaymentSucceeded
	if outcome == models.OutcomeFailure {
		status, ev = models.PaymentFailed, tickets.EventPaymentFailed
	}

	var (
		session *models.PaymentSession
		changed []models.Ticket
		holdIDs []string
		replay  bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		changed, holdIDs, replay = nil, nil, false
		sessions := s.sessions.WithTx(tx)
		var err error
		session, err = sessions.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status.Terminal() {
			if session.Status == status {
				replay = true
				return nil
			}
			return fmt.Errorf("session %s is %s: %w", sessionID, session.Status, models.ErrPaymentSessionClosed)
		}

		now := s.clock.Now()
		ok, err := sessions.CloseSession(ctx, sessionID, status, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("session %s: %w", sessionID, models.ErrPaymentSessionClosed)
		}
		session.Status, session.SettledAt, session.ActiveOrderID = status, now, ""

		ids, err := sessions.GetSessionTicketIDs(ctx, sessionID)
		if err != nil {
			return err
		}
		d := s.tickets.WithTx(tx)
		ts, err := d.GetTicketsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		perShow := map[string]int{}
		for i := range ts {
			t := &ts[i]
			if outcome == models.OutcomeFailure && t.Status.Terminal() {
				continue
			}
			hold, err := d.GetHoldByTicket(ctx, t.ID)
			if err != nil {
				return err
			}
			if err := s.machine.Apply(ctx, tx, t, ev); err != nil {
				return err
			}
			if hold != nil {
				holdIDs = append(holdIDs, hold.ID)
			}
			changed = append(changed, *t)
			perShow[t.ShowID]++
		}

		if outcome == models.OutcomeSuccess {
			return s.countSold(ctx, tx, perShow, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if replay {
		s.logger.LogPayment("REPLAY", sessionID, fmt.Sprintf("already %s", session.Status))
		return session, nil
	}
	s.logger.LogPayment("SETTLE", sessionID, fmt.Sprintf("outcome=%s tickets=%d", outcome, len(changed)))
	s.holds.Disarm(ctx, holdIDs)
	notify.Announce(ctx, s.publisher, session.OrderID, changed, session.SettledAt)
	return session, nil
}

func (s *OrderService) countSold(ctx context.Context, tx bun.IDB, perShow map[string]int, now time.Time) error {
	showIDs := make([]string, 0, len(perShow))
	for id := range perShow {
		showIDs = append(showIDs, id)
	}
	sort.Strings(showIDs)
	for _, id := range showIDs {
		show, err := s.shows.WithTx(tx).GetShow(ctx, id)
		if err != nil {
			return err
		}
		if err := s.tickets.WithTx(tx).IncrementTicketCount(ctx, show.EventID, show.ID, perShow[id], now); err != nil {
			return fmt.Errorf("count sold tickets: %w", err)
		}
	}
	return nil
}

// ---------------- REFUNDS ----------------

// Refund refunds the bought tickets this order paid for, that is the tickets
// of its succeeded payment sessions. The refund is recorded as a REFUND
// order over the same tickets, grouped with the original.
func (s *OrderService) Refund(ctx context.Context, userID, orderID string) (*models.OrderWithTickets, error) {
	var (
		refund   *models.OrderWithTickets
		refunded []models.Ticket
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		refunded = nil
		orders := s.orders.WithTx(tx)
		order, err := orders.GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return fmt.Errorf("order %s: %w", orderID, models.ErrNotOrderOwner)
		}
		if order.Type == models.OrderTypeRefund {
			return fmt.Errorf("order %s is a refund: %w", orderID, models.ErrInvalidOrderType)
		}

		lines, err := orders.GetOrderLines(ctx, orderID)
		if err != nil {
			return err
		}
		price := make(map[string]float64, len(lines))
		for _, l := range lines {
			price[l.TicketID] = l.Price
		}
		paid, err := s.paidTickets(ctx, tx, orderID)
		if err != nil {
			return err
		}
		ts, err := orders.GetTicketsByOrder(ctx, orderID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		refundOrder := &models.Order{
			ID:        utils.NewID(),
			UserID:    userID,
			Type:      models.OrderTypeRefund,
			GroupID:   order.GroupID,
			CreatedAt: now,
		}
		var refundLines []models.OrderTicket
		for i := range ts {
			t := &ts[i]
			if t.Status != models.TicketBought || !paid[t.ID] {
				continue
			}
			if err := s.machine.Apply(ctx, tx, t, tickets.EventRefund); err != nil {
				return err
			}
			refunded = append(refunded, *t)
			refundLines = append(refundLines, models.OrderTicket{OrderID: refundOrder.ID, TicketID: t.ID, Price: price[t.ID]})
			refundOrder.TotalPrice += price[t.ID]
		}
		if len(refunded) == 0 {
			return fmt.Errorf("order %s: %w", orderID, models.ErrNothingToRefund)
		}

		if refundOrder.GroupID == "" {
			group := &models.OrderGroup{ID: utils.NewID(), UserID: userID, CreatedAt: now}
			if err := orders.CreateGroup(ctx, group); err != nil {
				return fmt.Errorf("create order group: %w", err)
			}
			if err := orders.SetOrderGroup(ctx, orderID, group.ID); err != nil {
				return err
			}
			refundOrder.GroupID = group.ID
		}
		if err := orders.CreateOrder(ctx, refundOrder, refundLines); err != nil {
			return fmt.Errorf("create refund order: %w", err)
		}
		refund = &models.OrderWithTickets{Order: *refundOrder, Tickets: refunded}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogOrder("REFUND", orderID, fmt.Sprintf("refund=%s tickets=%d total=%.2f", refund.ID, len(refunded), refund.TotalPrice))
	notify.Announce(ctx, s.publisher, orderID, refunded, refund.CreatedAt)
	return refund, nil
}

// paidTickets returns the tickets settled by the order's succeeded sessions.
func (s *OrderService) paidTickets(ctx context.Context, tx bun.IDB, orderID string) (map[string]bool, error) {
	sessions := s.sessions.WithTx(tx)
	list, err := sessions.GetSessionsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	paid := map[string]bool{}
	for _, session := range list {
		if session.Status != models.PaymentSucceeded {
			continue
		}
		ids, err := sessions.GetSessionTicketIDs(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			paid[id] = true
		}
	}
	return paid, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
