package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/systemicrisk/internal/events"
)

const (
	streamBuffer       = 100
	streamWriteTimeout = 5 * time.Second
	streamPingInterval = 30 * time.Second
)

// EventsStreamHandler pushes bus events to websocket clients.
type EventsStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/stream?types=SNAPSHOT_CREATED,REFRESH_FAILED
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var types []events.EventType
	if filter := r.URL.Query().Get("types"); filter != "" {
		for _, t := range strings.Split(filter, ",") {
			types = append(types, events.EventType(strings.TrimSpace(t)))
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// Buffer to prevent blocking the publisher
	eventChan := make(chan *events.Event, streamBuffer)
	unsubscribe := h.eventBus.Subscribe(func(event *events.Event) {
		// Non-blocking send (drop if channel full)
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}, types...)
	defer unsubscribe()

	h.log.Info().Int("types", len(types)).Msg("Client connected to event stream")

	// Clients only listen; CloseRead handles control frames and cancels on close
	ctx := conn.CloseRead(r.Context())

	if err := h.write(ctx, conn, map[string]interface{}{
		"type":      "connected",
		"timestamp": time.Now(),
	}); err != nil {
		return
	}

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from event stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event := <-eventChan:
			if err := h.write(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("Failed to write event, closing stream")
				return
			}
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *EventsStreamHandler) write(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
