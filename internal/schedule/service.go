package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/clock"
	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
	"ms-venue-ticketing/internal/schedule/db"
	"ms-venue-ticketing/internal/utils"
)

// ValidateEventDuration checks that the span from the earliest show start to
// the latest show end fits in the event's declared duration.
func ValidateEventDuration(event models.Event, shows []models.Show) error {
	if len(shows) == 0 {
		return nil
	}
	minStart := shows[0].StartsAt
	maxEnd := shows[0].EndsAt()
	for _, s := range shows[1:] {
		if s.StartsAt.Before(minStart) {
			minStart = s.StartsAt
		}
		if end := s.EndsAt(); end.After(maxEnd) {
			maxEnd = end
		}
	}

	span := maxEnd.Sub(minStart)
	if time.Duration(event.DurationMinutes)*time.Minute < span {
		return fmt.Errorf("event %s lasts %d minutes but its shows span %.0f: %w",
			event.ID, event.DurationMinutes, span.Minutes(), models.ErrDurationExceeded)
	}
	return nil
}

type Service struct {
	DB     *db.DB
	Bun    *bun.DB
	Clock  clock.Clock
	Logger *logger.Logger
}

func NewService(bunDB *bun.DB, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{DB: &db.DB{Bun: bunDB}, Bun: bunDB, Clock: clk, Logger: log}
}

func (s *Service) CreateEvent(ctx context.Context, name, description string, durationMinutes int) (*models.Event, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("event name is required")
	}
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("event duration must be positive")
	}
	event := &models.Event{
		ID:              utils.NewID(),
		Name:            name,
		Description:     description,
		DurationMinutes: durationMinutes,
		CreatedAt:       s.Clock.Now(),
	}
	if err := s.DB.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return event, nil
}

// CreateShow schedules a show for an event, rejecting it when the event's
// shows would no longer fit in the event duration.
func (s *Service) CreateShow(ctx context.Context, eventID, roomID string, startsAt time.Time, durationMinutes int) (*models.Show, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("show duration must be positive")
	}
	show := &models.Show{
		ID:              utils.NewID(),
		EventID:         eventID,
		RoomID:          roomID,
		StartsAt:        startsAt.UTC(),
		DurationMinutes: durationMinutes,
		CreatedAt:       s.Clock.Now(),
	}

	err := s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		d := s.DB.WithTx(tx)
		event, err := d.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if _, err := d.GetRoom(ctx, roomID); err != nil {
			return err
		}
		existing, err := d.GetShowsByEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := ValidateEventDuration(*event, append(existing, *show)); err != nil {
			return err
		}
		return d.CreateShow(ctx, show)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("SCHEDULE", fmt.Sprintf("Show %s scheduled for event %s at %s", show.ID, eventID, show.StartsAt.Format(time.RFC3339)))
	return show, nil
}

func (s *Service) GetShow(ctx context.Context, id string) (*models.Show, error) {
	return s.DB.GetShow(ctx, id)
}
