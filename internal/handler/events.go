package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/subwire/agentpay/internal/errors"
	"github.com/subwire/agentpay/internal/model"
	"github.com/subwire/agentpay/internal/sse"
)

// EventsHandler streams settlement and ledger events for one agent address
// over SSE. Receipt dashboards and the operator console hang off this.
type EventsHandler struct {
	broker *sse.Broker
}

func NewEventsHandler(broker *sse.Broker) *EventsHandler {
	return &EventsHandler{broker: broker}
}

// GET /v1/events?spender=0x...
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	spender := r.URL.Query().Get("spender")
	if !model.IsValidAddress(spender) {
		writeError(w, apperrors.InvalidInput("spender", "must be a 0x address"))
		return
	}
	spender = strings.ToLower(spender)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(spender)
	defer h.broker.Unsubscribe(client)

	log.Info().Str("spender", spender).Msg("sse connection established")

	ctx := r.Context()

	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("spender", spender).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("spender", spender).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("spender", spender).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
