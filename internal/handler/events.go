package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/trainerbook/scheduling-server-go/internal/events"
)

// EventsHandler streams a trainer's lifecycle events over SSE. Subscribers
// such as notification dispatch and external calendar sync consume this
// feed; the core never waits on them.
type EventsHandler struct {
	broker *events.Broker
}

func NewEventsHandler(broker *events.Broker) *EventsHandler {
	return &EventsHandler{broker: broker}
}

// GET /v1/trainers/{trainerID}/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	trainerID := chi.URLParam(r, "trainerID")
	if trainerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Trainer ID is required"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(trainerID)
	defer h.broker.Unsubscribe(client)

	log.Info().
		Str("trainerId", trainerID).
		Msg("event stream established")

	h.sendEvent(w, flusher, "connected", map[string]any{
		"trainerId": trainerID,
	})

	heartbeat := time.NewTicker(events.HeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return

		case <-client.Done:
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case event := <-client.Events:
			h.sendEvent(w, flusher, string(event.Type), event)
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Msg("failed to marshal event")
		return
	}

	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	flusher.Flush()
}
