package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/models"
)

// Store persists payment sessions and the tickets each one covers. Bun is
// either the database handle or an open transaction.
type Store struct {
	Bun bun.IDB
}

func (s *Store) WithTx(tx bun.IDB) *Store {
	return &Store{Bun: tx}
}

// CreateSession inserts a pending session and its ticket links. The unique
// active columns make this fail with a unique violation when the order, or
// any of the tickets, already has a pending session.
func (s *Store) CreateSession(ctx context.Context, session *models.PaymentSession, ticketIDs []string) error {
	session.ActiveOrderID = session.OrderID
	if _, err := s.Bun.NewInsert().Model(session).Exec(ctx); err != nil {
		return err
	}
	links := make([]models.PaymentSessionTicket, len(ticketIDs))
	for i, id := range ticketIDs {
		links[i] = models.PaymentSessionTicket{SessionID: session.ID, TicketID: id, ActiveTicketID: id}
	}
	if len(links) == 0 {
		return nil
	}
	_, err := s.Bun.NewInsert().Model(&links).Exec(ctx)
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := s.Bun.NewSelect().Model(&session).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment session %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &session, nil
}

// GetActiveSessionForOrder returns nil without error when the order has no
// pending session.
func (s *Store) GetActiveSessionForOrder(ctx context.Context, orderID string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := s.Bun.NewSelect().
		Model(&session).
		Where("active_order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// GetActiveSessionForTicket returns the pending session covering a ticket,
// or nil.
func (s *Store) GetActiveSessionForTicket(ctx context.Context, ticketID string) (*models.PaymentSession, error) {
	var link models.PaymentSessionTicket
	err := s.Bun.NewSelect().
		Model(&link).
		Where("active_ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s.GetSession(ctx, link.SessionID)
}

func (s *Store) GetSessionTicketIDs(ctx context.Context, sessionID string) ([]string, error) {
	var links []models.PaymentSessionTicket
	err := s.Bun.NewSelect().
		Model(&links).
		Where("session_id = ?", sessionID).
		Order("ticket_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.TicketID
	}
	return ids, nil
}

func (s *Store) GetSessionsByOrder(ctx context.Context, orderID string) ([]models.PaymentSession, error) {
	var sessions []models.PaymentSession
	err := s.Bun.NewSelect().
		Model(&sessions).
		Where("order_id = ?", orderID).
		Order("created_at").
		Scan(ctx)
	return sessions, err
}

// CloseSession moves a pending session to a terminal status and clears its
// active markers. It reports false when the session was no longer pending.
func (s *Store) CloseSession(ctx context.Context, id string, status models.PaymentStatus, now time.Time) (bool, error) {
	res, err := s.Bun.NewUpdate().
		Model((*models.PaymentSession)(nil)).
		Set("status = ?", status).
		Set("active_order_id = NULL").
		Set("settled_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", models.PaymentPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	_, err = s.Bun.NewUpdate().
		Model((*models.PaymentSessionTicket)(nil)).
		Set("active_ticket_id = NULL").
		Where("session_id = ?", id).
		Exec(ctx)
	return true, err
}
