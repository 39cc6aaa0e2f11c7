// Package notify publishes ticket and seat events once the transaction that
// caused them has committed. Delivery is best effort.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-venue-ticketing/internal/config"
	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
)

const (
	TypeTicketsBought    = "tickets.bought"
	TypeTicketsExpired   = "tickets.expired"
	TypeTicketsCancelled = "tickets.cancelled"
	TypeTicketsRefunded  = "tickets.refunded"
	TypeSeatsStatus      = "seats.status"
)

type Publisher interface {
	TicketsChanged(ctx context.Context, ev models.TicketLifecycleEvent)
	SeatsChanged(ctx context.Context, ev models.SeatStatusChangeEvent)
}

// LifecycleType names the event published when tickets reach status s.
func LifecycleType(s models.TicketStatus) string {
	switch s {
	case models.TicketBought:
		return TypeTicketsBought
	case models.TicketExpired:
		return TypeTicketsExpired
	case models.TicketCancelled:
		return TypeTicketsCancelled
	case models.TicketRefunded:
		return TypeTicketsRefunded
	}
	return ""
}

// SeatStatusOf maps a ticket status to the occupancy of its unit.
func SeatStatusOf(s models.TicketStatus) models.SeatStatus {
	switch s {
	case models.TicketReserved, models.TicketPaymentPending:
		return models.SeatStatusHeld
	case models.TicketBought:
		return models.SeatStatusSold
	}
	return models.SeatStatusAvailable
}

type NopPublisher struct{}

func (NopPublisher) TicketsChanged(context.Context, models.TicketLifecycleEvent) {}
func (NopPublisher) SeatsChanged(context.Context, models.SeatStatusChangeEvent)  {}

// Sink is implemented by *kafka.Producer.
type Sink interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// KafkaPublisher writes events to Kafka on background goroutines.
type KafkaPublisher struct {
	sink    Sink
	topics  config.TopicConfig
	log     *logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewKafkaPublisher(sink Sink, topics config.TopicConfig, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{sink: sink, topics: topics, log: log, timeout: 5 * time.Second}
}

func (p *KafkaPublisher) TicketsChanged(_ context.Context, ev models.TicketLifecycleEvent) {
	key := ev.OrderID
	if key == "" {
		key = ev.ShowID
	}
	p.publish(p.topics.TicketEvents, key, ev)
}

func (p *KafkaPublisher) SeatsChanged(_ context.Context, ev models.SeatStatusChangeEvent) {
	p.publish(p.topics.SeatStatus, ev.ShowID, ev)
}

// publish is detached from the caller's context: the request may be long
// gone by the time the broker answers.
func (p *KafkaPublisher) publish(topic, key string, payload interface{}) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.sink.Publish(ctx, topic, key, payload); err != nil {
			p.log.Error("KAFKA", fmt.Sprintf("Failed to publish to %s (key %s): %v", topic, key, err))
		}
	}()
}

// Wait blocks until every publish started so far has finished.
func (p *KafkaPublisher) Wait() {
	p.wg.Wait()
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu      sync.Mutex
	Tickets []models.TicketLifecycleEvent
	Seats   []models.SeatStatusChangeEvent
}

func (r *Recorder) TicketsChanged(_ context.Context, ev models.TicketLifecycleEvent) {
	r.mu.Lock()
	r.Tickets = append(r.Tickets, ev)
	r.mu.Unlock()
}

func (r *Recorder) SeatsChanged(_ context.Context, ev models.SeatStatusChangeEvent) {
	r.mu.Lock()
	r.Seats = append(r.Seats, ev)
	r.mu.Unlock()
}

// TicketEvents returns a copy of the recorded lifecycle events.
func (r *Recorder) TicketEvents() []models.TicketLifecycleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TicketLifecycleEvent(nil), r.Tickets...)
}

// SeatEvents returns a copy of the recorded seat events.
func (r *Recorder) SeatEvents() []models.SeatStatusChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SeatStatusChangeEvent(nil), r.Seats...)
}

// Announce publishes the terminal transitions in ts: one lifecycle event per
// (show, user, status) and one seat event per (show, sector, occupancy).
func Announce(ctx context.Context, p Publisher, orderID string, ts []models.Ticket, at time.Time) {
	type group struct {
		show, user string
		status     models.TicketStatus
	}
	type unit struct {
		show, sector string
		status       models.SeatStatus
	}
	var groups []group
	lifecycle := map[group][]string{}
	var units []unit
	seats := map[unit][]string{}

	for _, t := range ts {
		g := group{t.ShowID, t.UserID, t.Status}
		if _, ok := lifecycle[g]; !ok {
			groups = append(groups, g)
		}
		lifecycle[g] = append(lifecycle[g], t.ID)

		u := unit{t.ShowID, t.SectorID, SeatStatusOf(t.Status)}
		if _, ok := seats[u]; !ok {
			units = append(units, u)
		}
		seats[u] = append(seats[u], t.UnitKey)
	}

	for _, g := range groups {
		p.TicketsChanged(ctx, models.TicketLifecycleEvent{
			Type:      LifecycleType(g.status),
			UserID:    g.user,
			OrderID:   orderID,
			ShowID:    g.show,
			TicketIDs: lifecycle[g],
			Status:    g.status,
			At:        at,
		})
	}
	for _, u := range units {
		p.SeatsChanged(ctx, models.SeatStatusChangeEvent{
			ShowID:   u.show,
			SectorID: u.sector,
			UnitKeys: seats[u],
			Status:   u.status,
			At:       at,
		})
	}
}

// Fanout delivers every event to each publisher in turn.
type Fanout []Publisher

func (f Fanout) TicketsChanged(ctx context.Context, ev models.TicketLifecycleEvent) {
	for _, p := range f {
		p.TicketsChanged(ctx, ev)
	}
}

func (f Fanout) SeatsChanged(ctx context.Context, ev models.SeatStatusChangeEvent) {
	for _, p := range f {
		p.SeatsChanged(ctx, ev)
	}
}
