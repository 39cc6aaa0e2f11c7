// Package availability reports which units of a show can be taken right now.
package availability

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/clock"
	"ms-venue-ticketing/internal/inventory"
	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
	scheduledb "ms-venue-ticketing/internal/schedule/db"
	ticketdb "ms-venue-ticketing/internal/tickets/db"
)

type SectorAvailability struct {
	SectorID string            `json:"sector_id"`
	Kind     models.SectorKind `json:"kind"`
	Price    float64           `json:"price"`
	Capacity int               `json:"capacity"`
	Taken    int               `json:"taken"`
	Free     int               `json:"free"`
}

type ShowAvailability struct {
	ShowID string `json:"show_id"`
	// Seats maps every active seat of the show's seated sectors to whether
	// it can be taken.
	Seats   map[string]bool               `json:"seats"`
	Sectors map[string]SectorAvailability `json:"sectors"`
	At      time.Time                     `json:"at"`
}

// Takeable flattens the report to one flag per identifier: "seat:<id>" for
// seats and "sector:<id>" for sectors with at least one free unit.
func (a *ShowAvailability) Takeable() map[string]bool {
	out := make(map[string]bool, len(a.Seats)+len(a.Sectors))
	for id, free := range a.Seats {
		out["seat:"+id] = free
	}
	for id, s := range a.Sectors {
		out["sector:"+id] = s.Free > 0
	}
	return out
}

type Service struct {
	inventory *inventory.Service
	shows     *scheduledb.DB
	tickets   *ticketdb.DB
	clock     clock.Clock
	logger    *logger.Logger
}

func NewService(db *bun.DB, inv *inventory.Service, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{
		inventory: inv,
		shows:     &scheduledb.DB{Bun: db},
		tickets:   &ticketdb.DB{Bun: db},
		clock:     clk,
		logger:    log,
	}
}

// Availability computes the current occupancy of a show. A unit is taken
// while a claim on it belongs to a sold ticket or to one whose hold has not
// yet expired; claims left behind by expired holds count as free even
// before the reaper gets to them. Stage sectors are not listed.
func (s *Service) Availability(ctx context.Context, showID string) (*ShowAvailability, error) {
	show, err := s.shows.GetShow(ctx, showID)
	if err != nil {
		return nil, err
	}
	sectors, err := s.inventory.SectorsOfRoom(ctx, show.RoomID)
	if err != nil {
		return nil, err
	}
	claims, err := s.tickets.GetClaimsByShow(ctx, showID)
	if err != nil {
		return nil, err
	}
	holds, err := s.tickets.GetHoldsByShow(ctx, showID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	stale := make(map[string]bool, len(holds))
	for _, h := range holds {
		if h.ExpiredAt(now) {
			stale[h.TicketID] = true
		}
	}
	taken := make(map[string]bool, len(claims))
	perSector := map[string]int{}
	for _, c := range claims {
		if stale[c.TicketID] {
			continue
		}
		taken[c.UnitKey] = true
		perSector[c.SectorID]++
	}

	out := &ShowAvailability{
		ShowID:  showID,
		Seats:   map[string]bool{},
		Sectors: map[string]SectorAvailability{},
		At:      now,
	}
	for _, sector := range sectors {
		if !sector.Kind.Sellable() {
			continue
		}
		sa := SectorAvailability{SectorID: sector.ID, Kind: sector.Kind, Price: sector.Price}
		switch sector.Kind {
		case models.SectorSeated:
			seats, err := s.inventory.SeatsOf(ctx, sector.ID)
			if err != nil {
				return nil, err
			}
			sa.Capacity = len(seats)
			for _, id := range seats {
				free := !taken[inventory.SeatUnit(id)]
				out.Seats[id] = free
				if !free {
					sa.Taken++
				}
			}
		case models.SectorStanding:
			sa.Capacity = sector.Capacity
			sa.Taken = perSector[sector.ID]
			if sa.Taken > sa.Capacity {
				sa.Taken = sa.Capacity
			}
		}
		sa.Free = sa.Capacity - sa.Taken
		out.Sectors[sector.ID] = sa
	}
	return out, nil
}
