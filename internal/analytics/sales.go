// Package analytics reports ticket sales per event and show.
package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
	ticketdb "ms-venue-ticketing/internal/tickets/db"
)

// EventSales aggregates the sales of every show of an event.
// TotalTicketsSold counts sales as they happened; Revenue only includes
// tickets that are still bought.
type EventSales struct {
	EventID          string              `json:"event_id"`
	TotalTicketsSold int                 `json:"total_tickets_sold"`
	TicketsRefunded  int                 `json:"tickets_refunded"`
	Revenue          float64             `json:"revenue"`
	DailySales       []DailySalesMetrics `json:"daily_sales"`
	Shows            []ShowSales         `json:"shows"`
}

// DailySalesMetrics contains tickets sold on one day across all shows.
type DailySalesMetrics struct {
	Date        string `json:"date"`
	TicketsSold int    `json:"tickets_sold"`
}

type ShowSales struct {
	ShowID          string  `json:"show_id"`
	TicketsSold     int     `json:"tickets_sold"`
	TicketsRefunded int     `json:"tickets_refunded"`
	Revenue         float64 `json:"revenue"`
}

type Service struct {
	db      *bun.DB
	tickets *ticketdb.DB
	log     *logger.Logger
}

func NewService(db *bun.DB, log *logger.Logger) *Service {
	return &Service{db: db, tickets: &ticketdb.DB{Bun: db}, log: log}
}

type settledLine struct {
	ShowID string              `bun:"show_id"`
	Status models.TicketStatus `bun:"status"`
	Count  int                 `bun:"n"`
	Amount float64             `bun:"amount"`
}

// settledLines sums the order prices of tickets paid through a succeeded
// payment session, per show and current ticket status.
func (s *Service) settledLines(ctx context.Context, eventID string) ([]settledLine, error) {
	var lines []settledLine
	err := s.db.NewRaw(`
		SELECT t.show_id AS show_id, t.status AS status, COUNT(*) AS n, SUM(ot.price) AS amount
		FROM payment_sessions AS ps
		JOIN payment_session_tickets AS pst ON pst.session_id = ps.id
		JOIN order_tickets AS ot ON ot.order_id = ps.order_id AND ot.ticket_id = pst.ticket_id
		JOIN tickets AS t ON t.id = pst.ticket_id
		JOIN shows AS s ON s.id = t.show_id
		WHERE ps.status = ? AND s.event_id = ?
		GROUP BY t.show_id, t.status
		ORDER BY t.show_id`,
		models.PaymentSucceeded, eventID).Scan(ctx, &lines)
	return lines, err
}

// EventSales builds the sales report of an event.
func (s *Service) EventSales(ctx context.Context, eventID string) (*EventSales, error) {
	var event models.Event
	if err := s.db.NewSelect().Model(&event).Where("id = ?", eventID).Limit(1).Scan(ctx); err != nil {
		return nil, fmt.Errorf("event %s: %w", eventID, models.ErrNotFound)
	}

	counts, err := s.tickets.GetTicketCountsForEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket counts: %w", err)
	}
	lines, err := s.settledLines(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settled orders: %w", err)
	}

	report := &EventSales{EventID: eventID, DailySales: []DailySalesMetrics{}, Shows: []ShowSales{}}
	index := map[string]int{}
	show := func(id string) *ShowSales {
		i, ok := index[id]
		if !ok {
			i = len(report.Shows)
			index[id] = i
			report.Shows = append(report.Shows, ShowSales{ShowID: id})
		}
		return &report.Shows[i]
	}

	days := map[string]int{}
	for _, c := range counts {
		day := c.Date.UTC().Format("2006-01-02")
		if _, ok := days[day]; !ok {
			report.DailySales = append(report.DailySales, DailySalesMetrics{Date: day})
		}
		days[day] += c.Count
		report.TotalTicketsSold += c.Count
	}
	for i := range report.DailySales {
		report.DailySales[i].TicketsSold = days[report.DailySales[i].Date]
	}
	sort.Slice(report.DailySales, func(i, j int) bool {
		return report.DailySales[i].Date < report.DailySales[j].Date
	})

	for _, c := range counts {
		show(c.ShowID).TicketsSold += c.Count
	}
	for _, l := range lines {
		sh := show(l.ShowID)
		switch l.Status {
		case models.TicketBought:
			sh.Revenue += l.Amount
			report.Revenue += l.Amount
		case models.TicketRefunded:
			sh.TicketsRefunded += l.Count
			report.TicketsRefunded += l.Count
		}
	}

	s.log.Debug("ANALYTICS", fmt.Sprintf("Sales report for event %s: %d sold, %.2f revenue", eventID, report.TotalTicketsSold, report.Revenue))
	return report, nil
}
