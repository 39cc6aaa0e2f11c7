package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-venue-ticketing/internal/holds"
	"ms-venue-ticketing/internal/models"
)

type holdRequest struct {
	SectorID string `json:"sector_id" validate:"required"`
	SeatID   string `json:"seat_id"`
	Flow     string `json:"flow" validate:"omitempty,oneof=reservation purchase"`
}

type holdResponse struct {
	Ticket *models.Ticket `json:"ticket"`
	Hold   *models.Hold   `json:"hold"`
}

type verifyRequest struct {
	QRData string `json:"qr_data" validate:"required"`
}

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	showID := chi.URLParam(r, "showId")
	report, err := h.Availability.Availability(r.Context(), showID)
	if err != nil {
		h.fail(w, r, "availability", err)
		return
	}
	ok(w, http.StatusOK, "availability", map[string]interface{}{
		"show":     report,
		"takeable": report.Takeable(),
	})
}

func (h *Handler) AcquireHold(w http.ResponseWriter, r *http.Request) {
	var req holdRequest
	if !h.decode(w, r, &req) {
		return
	}
	ticket, hold, err := h.Holds.Acquire(r.Context(), holds.AcquireRequest{
		UserID:   userID(r),
		ShowID:   chi.URLParam(r, "showId"),
		SectorID: req.SectorID,
		SeatID:   req.SeatID,
		Flow:     holds.Flow(req.Flow),
	})
	if err != nil {
		h.fail(w, r, "hold", err)
		return
	}
	ok(w, http.StatusCreated, "ticket held", holdResponse{Ticket: ticket, Hold: hold})
}

func (h *Handler) ReleaseTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")
	ticket, err := h.Holds.Release(r.Context(), userID(r), ticketID, holds.ReleaseCancel)
	if err != nil {
		h.fail(w, r, "release", err)
		return
	}
	ok(w, http.StatusOK, fmt.Sprintf("ticket %s", ticket.Status), ticket)
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	ts, err := h.Tickets.GetTicketsByUser(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, "list tickets", err)
		return
	}
	ok(w, http.StatusOK, "tickets", ts)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Tickets.GetTicket(r.Context(), userID(r), chi.URLParam(r, "ticketId"))
	if err != nil {
		h.fail(w, r, "get ticket", err)
		return
	}
	ok(w, http.StatusOK, "ticket", ticket)
}

func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.Tickets.TicketQR(r.Context(), userID(r), chi.URLParam(r, "ticketId"))
	if err != nil {
		h.fail(w, r, "ticket qr", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) TicketPDF(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")
	pdf, err := h.Tickets.TicketPDF(r.Context(), userID(r), ticketID)
	if err != nil {
		h.fail(w, r, "ticket pdf", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=ticket-%s.pdf", ticketID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) VerifyTicket(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	ticket, err := h.Tickets.VerifyQR(r.Context(), req.QRData)
	if err != nil {
		h.fail(w, r, "verify ticket", err)
		return
	}
	ok(w, http.StatusOK, "ticket valid", ticket)
}
