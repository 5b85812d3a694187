package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gosuda/cimut/internal/controller"
	redisstore "github.com/gosuda/cimut/internal/store/redis"
)

// PubSub is satisfied by the Redis and in-memory stores.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// SessionLookup resolves a live session and keeps it alive while a client
// streams it. *controller.Registry implements it.
type SessionLookup interface {
	Acquire(id uuid.UUID) (*controller.Controller, func(), error)
}

// Hub streams session snapshots to WebSocket clients.
type Hub struct {
	pubsub   PubSub
	sessions SessionLookup
}

// NewHub creates a new WebSocket hub. sessions may be set later with
// SetSessions, since the registry publishes through the hub.
func NewHub(pubsub PubSub, sessions SessionLookup) *Hub {
	return &Hub{pubsub: pubsub, sessions: sessions}
}

// SetSessions sets the session lookup. It must be called before serving.
func (h *Hub) SetSessions(sessions SessionLookup) {
	h.sessions = sessions
}

// PublishSnapshot implements controller.Publisher. Failures are logged; a
// client that misses a snapshot catches up on the next one.
func (h *Hub) PublishSnapshot(ctx context.Context, snap controller.Snapshot) {
	payload, err := json.Marshal(SessionEvent{
		Type:      EventSnapshot,
		Snapshot:  snap,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).Msg("ws.Hub.PublishSnapshot: marshal")
		return
	}

	if err := h.Publish(ctx, redisstore.SessionChannel(snap.Session.ID), payload); err != nil {
		log.Warn().Err(err).Str("session_id", snap.Session.ID.String()).Msg("publish snapshot")
	}
}

// ServeSession handles WebSocket connections for a panel session.
// Sends the current snapshot, then every snapshot published on
// "cimut:session:<sessionID>".
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	ctrl, release, err := h.sessions.Acquire(sessionID)
	if err != nil {
		if errors.Is(err, controller.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer release()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	// Clients never send; CloseRead handles their close frame.
	ctx := conn.CloseRead(r.Context())

	messages, cleanup, err := h.pubsub.Subscribe(ctx, redisstore.SessionChannel(sessionID))
	if err != nil {
		log.Error().Err(err).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	initial, err := json.Marshal(SessionEvent{
		Type:      EventSnapshot,
		Snapshot:  ctrl.Snapshot(),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "encode failed")
		return
	}
	if writeErr := conn.Write(ctx, websocket.MessageText, initial); writeErr != nil {
		log.Debug().Err(writeErr).Msg("websocket write")
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}

// Publish sends a payload to a pub/sub channel.
func (h *Hub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := h.pubsub.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("ws.Hub.Publish: %w", err)
	}
	return nil
}
