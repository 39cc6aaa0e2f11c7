package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) EventSales(w http.ResponseWriter, r *http.Request) {
	report, err := h.Sales.EventSales(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, "event sales", err)
		return
	}
	ok(w, http.StatusOK, "event sales", report)
}

// StreamSeats streams the show's seat status changes as server-sent events.
func (h *Handler) StreamSeats(w http.ResponseWriter, r *http.Request) {
	showID := chi.URLParam(r, "showId")
	if _, err := h.Schedule.GetShow(r.Context(), showID); err != nil {
		h.fail(w, r, "seat stream", err)
		return
	}
	h.Seats.Stream(w, r, showID)
}
