package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-venue-ticketing/internal/models"
)

type createOrderRequest struct {
	TicketIDs []string `json:"ticket_ids" validate:"required,min=1,dive,required"`
	Type      string   `json:"type" validate:"omitempty,oneof=ORDER RESERVATION"`
}

type callbackRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=SUCCESS FAILURE"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	orderType := models.OrderType(req.Type)
	if orderType == "" {
		orderType = models.OrderTypeOrder
	}
	o, err := h.Orders.CreateOrder(r.Context(), userID(r), req.TicketIDs, orderType)
	if err != nil {
		h.fail(w, r, "create order", err)
		return
	}
	ok(w, http.StatusCreated, "order created", o)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.GetOrder(r.Context(), userID(r), chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, r, "get order", err)
		return
	}
	ok(w, http.StatusOK, "order", o)
}

func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.Orders.History(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, "order history", err)
		return
	}
	ok(w, http.StatusOK, "orders", history)
}

func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	session, err := h.Orders.StartPayment(r.Context(), userID(r), chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, r, "start payment", err)
		return
	}
	ok(w, http.StatusCreated, "payment started", session)
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	refund, err := h.Orders.Refund(r.Context(), userID(r), chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, r, "refund", err)
		return
	}
	ok(w, http.StatusOK, "order refunded", refund)
}

// PaymentCallback receives the provider's verdict for a payment session.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.Orders.SettlePayment(r.Context(), chi.URLParam(r, "sessionId"), models.ProviderOutcome(req.Outcome))
	if err != nil {
		h.fail(w, r, "settle payment", err)
		return
	}
	ok(w, http.StatusOK, "payment settled", session)
}
