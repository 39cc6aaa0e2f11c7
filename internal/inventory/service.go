package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/clock"
	"ms-venue-ticketing/internal/inventory/db"
	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
	"ms-venue-ticketing/internal/utils"
)

// Service answers capacity questions about rooms, sectors and seats and
// administers the venue layout.
type Service struct {
	DB     *db.DB
	Clock  clock.Clock
	Logger *logger.Logger
}

func NewService(d *db.DB, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{DB: d, Clock: clk, Logger: log}
}

// SeatPosition is a row/column coordinate for AddSeats.
type SeatPosition struct {
	Row    int
	Column int
}

// ValidateSector checks the kind-specific fields of a sector.
func ValidateSector(s models.Sector) error {
	if !s.Kind.Valid() {
		return fmt.Errorf("sector kind %q: %w", s.Kind, models.ErrInvalidSector)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("sector name is required: %w", models.ErrInvalidSector)
	}
	switch s.Kind {
	case models.SectorSeated:
		if s.Price <= 0 {
			return fmt.Errorf("seated sector needs a positive price: %w", models.ErrInvalidSector)
		}
		if s.Capacity != 0 {
			return fmt.Errorf("seated sector capacity comes from its seats: %w", models.ErrInvalidSector)
		}
	case models.SectorStanding:
		if s.Price <= 0 {
			return fmt.Errorf("standing sector needs a positive price: %w", models.ErrInvalidSector)
		}
		if s.Capacity <= 0 {
			return fmt.Errorf("standing sector needs a positive capacity: %w", models.ErrInvalidSector)
		}
	case models.SectorStage:
		if s.Price != 0 || s.Capacity != 0 {
			return fmt.Errorf("stage sector carries no price or capacity: %w", models.ErrInvalidSector)
		}
	}
	return nil
}

func (s *Service) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("room name is required")
	}
	room := &models.Room{ID: utils.NewID(), Name: name, CreatedAt: s.Clock.Now()}
	if err := s.DB.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	s.Logger.Info("INVENTORY", fmt.Sprintf("Room created: %s (%s)", room.Name, room.ID))
	return room, nil
}

func (s *Service) CreateSector(ctx context.Context, sector models.Sector) (*models.Sector, error) {
	if err := ValidateSector(sector); err != nil {
		return nil, err
	}
	if _, err := s.DB.GetRoom(ctx, sector.RoomID); err != nil {
		return nil, err
	}
	sector.ID = utils.NewID()
	sector.CreatedAt = s.Clock.Now()
	if err := s.DB.CreateSector(ctx, &sector); err != nil {
		return nil, fmt.Errorf("failed to create sector: %w", err)
	}
	s.Logger.Info("INVENTORY", fmt.Sprintf("Sector created: %s kind=%s room=%s", sector.ID, sector.Kind, sector.RoomID))
	return &sector, nil
}

// AddSeats creates seats in a seated sector. Seats inherit the sector's room.
func (s *Service) AddSeats(ctx context.Context, sectorID string, positions []SeatPosition) ([]models.Seat, error) {
	sector, err := s.DB.GetSector(ctx, sectorID)
	if err != nil {
		return nil, err
	}
	if sector.Kind != models.SectorSeated {
		return nil, fmt.Errorf("cannot add seats to %s sector %s: %w", sector.Kind, sector.ID, models.ErrInvalidSectorKind)
	}

	seats := make([]models.Seat, 0, len(positions))
	for _, p := range positions {
		if p.Row <= 0 || p.Column <= 0 {
			return nil, fmt.Errorf("seat position %d/%d must be positive", p.Row, p.Column)
		}
		seats = append(seats, models.Seat{
			ID:       utils.NewID(),
			RoomID:   sector.RoomID,
			SectorID: sector.ID,
			Row:      p.Row,
			Column:   p.Column,
		})
	}
	if err := s.DB.CreateSeats(ctx, seats); err != nil {
		return nil, fmt.Errorf("failed to create seats: %w", err)
	}
	return seats, nil
}

func (s *Service) DeleteSeat(ctx context.Context, seatID string) error {
	if err := s.DB.SoftDeleteSeat(ctx, seatID); err != nil {
		return err
	}
	s.Logger.Info("INVENTORY", fmt.Sprintf("Seat %s soft-deleted", seatID))
	return nil
}

func (s *Service) GetSector(ctx context.Context, id string) (*models.Sector, error) {
	return s.DB.GetSector(ctx, id)
}

func (s *Service) SectorsOfRoom(ctx context.Context, roomID string) ([]models.Sector, error) {
	return s.DB.GetSectorsByRoom(ctx, roomID)
}

// CapacityOf returns the number of sellable units in a sector: its active
// seats when seated, the stored capacity when standing, and zero for a stage.
func (s *Service) CapacityOf(ctx context.Context, sector models.Sector) (int, error) {
	return capacityOf(ctx, s.DB, sector)
}

func capacityOf(ctx context.Context, d *db.DB, sector models.Sector) (int, error) {
	switch sector.Kind {
	case models.SectorSeated:
		return d.CountActiveSeats(ctx, sector.ID)
	case models.SectorStanding:
		return sector.Capacity, nil
	case models.SectorStage:
		return 0, nil
	}
	return 0, fmt.Errorf("sector %s kind %q: %w", sector.ID, sector.Kind, models.ErrInvalidSectorKind)
}

// SellableCapacity is CapacityOf for callers about to sell; stage sectors
// are rejected.
func (s *Service) SellableCapacity(ctx context.Context, sector models.Sector) (int, error) {
	return sellableCapacity(ctx, s.DB, sector)
}

func sellableCapacity(ctx context.Context, d *db.DB, sector models.Sector) (int, error) {
	if !sector.Kind.Sellable() {
		return 0, fmt.Errorf("sector %s is %s: %w", sector.ID, sector.Kind, models.ErrInvalidSectorKind)
	}
	return capacityOf(ctx, d, sector)
}

// SeatsOf lists active seat ids of a sector in row, then column order.
func (s *Service) SeatsOf(ctx context.Context, sectorID string) ([]string, error) {
	seats, err := s.DB.GetActiveSeats(ctx, sectorID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(seats))
	for i, seat := range seats {
		ids[i] = seat.ID
	}
	return ids, nil
}

// Target is the resolved sellable target of a hold request.
type Target struct {
	Sector models.Sector
	Seat   *models.Seat
	// Capacity is the number of standing slots; zero for seats.
	Capacity int
}

// ResolveTarget loads and checks a sector (and seat, for seated sectors)
// against the room a show takes place in. It runs on idb so holds can call
// it inside their transaction.
func (s *Service) ResolveTarget(ctx context.Context, idb bun.IDB, roomID, sectorID, seatID string) (*Target, error) {
	d := s.DB.WithTx(idb)

	sector, err := d.GetSector(ctx, sectorID)
	if err != nil {
		return nil, err
	}
	if sector.RoomID != roomID {
		return nil, fmt.Errorf("sector %s is not in room %s: %w", sector.ID, roomID, models.ErrInvalidSector)
	}

	switch sector.Kind {
	case models.SectorSeated:
		if seatID == "" {
			return nil, fmt.Errorf("seated sector %s needs a seat: %w", sector.ID, models.ErrInvalidSectorKind)
		}
		seat, err := d.GetSeat(ctx, seatID)
		if err != nil {
			return nil, err
		}
		if seat.SectorID != sector.ID || seat.Deleted {
			return nil, fmt.Errorf("seat %s is not sellable in sector %s: %w", seat.ID, sector.ID, models.ErrInvalidSectorKind)
		}
		return &Target{Sector: *sector, Seat: seat}, nil
	case models.SectorStanding:
		if seatID != "" {
			return nil, fmt.Errorf("standing sector %s has no seats: %w", sector.ID, models.ErrInvalidSectorKind)
		}
		capacity, err := sellableCapacity(ctx, d, *sector)
		if err != nil {
			return nil, err
		}
		return &Target{Sector: *sector, Capacity: capacity}, nil
	default:
		_, err := sellableCapacity(ctx, d, *sector)
		return nil, err
	}
}

// SeatUnit and StandingUnit build the inventory unit keys claimed by tickets.
func SeatUnit(seatID string) string {
	return "seat:" + seatID
}

func StandingUnit(sectorID string, slot int) string {
	return fmt.Sprintf("standing:%s:%d", sectorID, slot)
}
