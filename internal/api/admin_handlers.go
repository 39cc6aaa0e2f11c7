package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-venue-ticketing/internal/inventory"
	"ms-venue-ticketing/internal/models"
)

type roomRequest struct {
	Name string `json:"name" validate:"required"`
}

type sectorRequest struct {
	Name     string  `json:"name" validate:"required"`
	Kind     string  `json:"kind" validate:"required,oneof=seated standing stage"`
	Price    float64 `json:"price" validate:"gte=0"`
	Capacity int     `json:"capacity" validate:"gte=0"`
}

type seatPosition struct {
	Row    int `json:"row" validate:"gte=1"`
	Column int `json:"column" validate:"gte=1"`
}

type seatsRequest struct {
	Seats []seatPosition `json:"seats" validate:"required,min=1,dive"`
}

type eventRequest struct {
	Name            string `json:"name" validate:"required"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes" validate:"gt=0"`
}

type showRequest struct {
	RoomID          string    `json:"room_id" validate:"required"`
	StartsAt        time.Time `json:"starts_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"gt=0"`
}

func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, err := h.Inventory.CreateRoom(r.Context(), req.Name)
	if err != nil {
		h.fail(w, r, "create room", err)
		return
	}
	ok(w, http.StatusCreated, "room created", room)
}

func (h *Handler) CreateSector(w http.ResponseWriter, r *http.Request) {
	var req sectorRequest
	if !h.decode(w, r, &req) {
		return
	}
	sector, err := h.Inventory.CreateSector(r.Context(), models.Sector{
		RoomID:   chi.URLParam(r, "roomId"),
		Name:     req.Name,
		Kind:     models.SectorKind(req.Kind),
		Price:    req.Price,
		Capacity: req.Capacity,
	})
	if err != nil {
		h.fail(w, r, "create sector", err)
		return
	}
	ok(w, http.StatusCreated, "sector created", sector)
}

func (h *Handler) AddSeats(w http.ResponseWriter, r *http.Request) {
	var req seatsRequest
	if !h.decode(w, r, &req) {
		return
	}
	positions := make([]inventory.SeatPosition, len(req.Seats))
	for i, p := range req.Seats {
		positions[i] = inventory.SeatPosition{Row: p.Row, Column: p.Column}
	}
	seats, err := h.Inventory.AddSeats(r.Context(), chi.URLParam(r, "sectorId"), positions)
	if err != nil {
		h.fail(w, r, "add seats", err)
		return
	}
	ok(w, http.StatusCreated, "seats added", seats)
}

func (h *Handler) DeleteSeat(w http.ResponseWriter, r *http.Request) {
	if err := h.Inventory.DeleteSeat(r.Context(), chi.URLParam(r, "seatId")); err != nil {
		h.fail(w, r, "delete seat", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !h.decode(w, r, &req) {
		return
	}
	event, err := h.Schedule.CreateEvent(r.Context(), req.Name, req.Description, req.DurationMinutes)
	if err != nil {
		h.fail(w, r, "create event", err)
		return
	}
	ok(w, http.StatusCreated, "event created", event)
}

func (h *Handler) CreateShow(w http.ResponseWriter, r *http.Request) {
	var req showRequest
	if !h.decode(w, r, &req) {
		return
	}
	show, err := h.Schedule.CreateShow(r.Context(), chi.URLParam(r, "eventId"), req.RoomID, req.StartsAt, req.DurationMinutes)
	if err != nil {
		h.fail(w, r, "create show", err)
		return
	}
	ok(w, http.StatusCreated, "show created", show)
}

func (h *Handler) GetShow(w http.ResponseWriter, r *http.Request) {
	show, err := h.Schedule.GetShow(r.Context(), chi.URLParam(r, "showId"))
	if err != nil {
		h.fail(w, r, "get show", err)
		return
	}
	ok(w, http.StatusOK, "show", show)
}
