// Package api exposes the ticketing core over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-venue-ticketing/internal/analytics"
	"ms-venue-ticketing/internal/auth"
	"ms-venue-ticketing/internal/availability"
	"ms-venue-ticketing/internal/database"
	"ms-venue-ticketing/internal/holds"
	"ms-venue-ticketing/internal/inventory"
	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
	"ms-venue-ticketing/internal/order"
	"ms-venue-ticketing/internal/schedule"
	"ms-venue-ticketing/internal/sse"
	"ms-venue-ticketing/internal/tickets"
	"ms-venue-ticketing/internal/utils"
)

type Handler struct {
	Holds        *holds.Manager
	Orders       *order.OrderService
	Tickets      *tickets.TicketService
	Availability *availability.Service
	Inventory    *inventory.Service
	Schedule     *schedule.Service
	Sales        *analytics.Service
	Seats        *sse.SeatEventEmitter
	Logger       *logger.Logger
}

// statusFor maps core error kinds to HTTP status codes.
func statusFor(err error) int {
	var transition *models.TransitionError
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyTaken),
		errors.Is(err, models.ErrPaymentAlreadyInFlight),
		errors.Is(err, models.ErrTicketNotAvailable),
		errors.Is(err, models.ErrPaymentSessionClosed),
		errors.Is(err, models.ErrNothingToRefund),
		database.IsUniqueViolation(err):
		return http.StatusConflict
	case errors.As(err, &transition),
		errors.Is(err, models.ErrInvalidSectorKind),
		errors.Is(err, models.ErrInvalidSector),
		errors.Is(err, models.ErrDurationExceeded),
		errors.Is(err, models.ErrInvalidOrderType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrTicketNotHeldByUser),
		errors.Is(err, models.ErrNotOrderOwner):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// fail logs err and writes it with the status its kind maps to. Internal
// errors are not echoed to the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		msg = "internal error"
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	}
	resp := utils.ErrorResponse(op+" failed", msg)
	if models.IsRecoverable(err) {
		resp.Data = map[string]bool{"retryable": true}
	}
	utils.WriteJSON(w, status, resp)
}

// decode reads a JSON body into dst and validates it. It writes the 400
// response itself and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return false
	}
	if errs := utils.ValidateStruct(dst); errs != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("validation failed", utils.FormatValidationErrors(errs)))
		return false
	}
	return true
}

func ok(w http.ResponseWriter, status int, message string, data interface{}) {
	utils.WriteJSON(w, status, utils.SuccessResponse(message, data))
}

func userID(r *http.Request) string {
	return auth.UserID(r.Context())
}
