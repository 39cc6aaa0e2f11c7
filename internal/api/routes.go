package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ms-venue-ticketing/internal/auth"
	"ms-venue-ticketing/internal/logger"
)

// CallbackSecretHeader carries the shared secret on payment provider
// callbacks.
const CallbackSecretHeader = "X-Payment-Callback-Secret"

type RouterConfig struct {
	CallbackSecret string
	CORSOrigins    []string
}

// NewRouter wires every route. Availability, the seat stream and health are
// public, the payment callback is guarded by the shared secret and the rest
// needs a bearer token.
func NewRouter(h *Handler, verifier auth.Verifier, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		ok(w, http.StatusOK, "ok", nil)
	})

	// --- Public Routes ---
	r.Get("/api/shows/{showId}/availability", h.GetAvailability)
	r.Get("/api/shows/{showId}/stream", h.StreamSeats)

	// --- Payment provider ---
	r.With(auth.RequireSecret(CallbackSecretHeader, cfg.CallbackSecret)).
		Post("/api/payments/{sessionId}/callback", h.PaymentCallback)

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, h.Logger))

		r.Route("/api", func(r chi.Router) {
			r.Post("/shows/{showId}/holds", h.AcquireHold)
			r.Get("/shows/{showId}", h.GetShow)

			r.Route("/tickets", func(r chi.Router) {
				r.Get("/", h.ListTickets)
				r.Post("/verify", h.VerifyTicket)
				r.Get("/{ticketId}", h.GetTicket)
				r.Delete("/{ticketId}", h.ReleaseTicket)
				r.Get("/{ticketId}/qr", h.TicketQR)
				r.Get("/{ticketId}/pdf", h.TicketPDF)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.CreateOrder)
				r.Get("/", h.OrderHistory)
				r.Get("/{orderId}", h.GetOrder)
				r.Post("/{orderId}/payments", h.StartPayment)
				r.Post("/{orderId}/refund", h.Refund)
			})

			// Venue and schedule administration.
			r.Post("/rooms", h.CreateRoom)
			r.Post("/rooms/{roomId}/sectors", h.CreateSector)
			r.Post("/sectors/{sectorId}/seats", h.AddSeats)
			r.Delete("/seats/{seatId}", h.DeleteSeat)
			r.Post("/events", h.CreateEvent)
			r.Post("/events/{eventId}/shows", h.CreateShow)
			r.Get("/events/{eventId}/sales", h.EventSales)
		})
	})
	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", ww.Status()), time.Since(start).String())
		})
	}
}
