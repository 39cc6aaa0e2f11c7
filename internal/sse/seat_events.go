// Package sse fans seat status changes out to browsers watching a show.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
)

const clientBuffer = 16

// SeatEventEmitter keeps one channel per connected client, keyed by show.
// It implements notify.Publisher so it can sit next to the Kafka publisher.
type SeatEventEmitter struct {
	mu      sync.RWMutex
	clients map[string][]chan models.SeatStatusChangeEvent
	log     *logger.Logger
}

func NewSeatEventEmitter(log *logger.Logger) *SeatEventEmitter {
	return &SeatEventEmitter{
		clients: make(map[string][]chan models.SeatStatusChangeEvent),
		log:     log,
	}
}

// Subscribe registers a client for showID. The channel is closed once ctx is
// done.
func (e *SeatEventEmitter) Subscribe(ctx context.Context, showID string) <-chan models.SeatStatusChangeEvent {
	ch := make(chan models.SeatStatusChangeEvent, clientBuffer)

	e.mu.Lock()
	e.clients[showID] = append(e.clients[showID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(showID, ch)
	}()
	return ch
}

func (e *SeatEventEmitter) TicketsChanged(context.Context, models.TicketLifecycleEvent) {}

// SeatsChanged broadcasts ev to the show's clients. Slow clients miss events
// rather than block the publisher.
func (e *SeatEventEmitter) SeatsChanged(_ context.Context, ev models.SeatStatusChangeEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.clients[ev.ShowID] {
		select {
		case ch <- ev:
		default:
			e.log.Debug("SSE", fmt.Sprintf("Dropped seat event for slow client on show %s", ev.ShowID))
		}
	}
}

func (e *SeatEventEmitter) remove(showID string, ch chan models.SeatStatusChangeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[showID]
	for i, c := range clients {
		if c == ch {
			e.clients[showID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[showID]) == 0 {
		delete(e.clients, showID)
	}
}

func (e *SeatEventEmitter) ClientCount(showID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[showID])
}

// Stream writes the show's seat events to w until the client goes away.
func (e *SeatEventEmitter) Stream(w http.ResponseWriter, r *http.Request, showID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	setupHeaders(w)

	ctx := r.Context()
	events := e.Subscribe(ctx, showID)

	fmt.Fprintf(w, "event: connected\ndata: {\"show_id\":%q}\n\n", showID)
	flusher.Flush()
	e.log.Info("SSE", fmt.Sprintf("Client connected to seat events of show %s", showID))

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				e.log.Error("SSE", fmt.Sprintf("Failed to serialize seat event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: seats\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ctx.Done():
			e.log.Debug("SSE", fmt.Sprintf("Client left seat events of show %s", showID))
			return
		}
	}
}

func setupHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
