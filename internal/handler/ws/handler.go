// Package ws is the websocket transport collaborator: it upgrades
// connections, binds them to channel names, feeds inbound frames to the
// router, and drives the register/drain/disconnect lifecycle.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/courier-chat/courier/internal/engine"
	"github.com/courier-chat/courier/internal/model/message"
	"github.com/courier-chat/courier/internal/registry"
	"github.com/courier-chat/courier/internal/router"
)

const defaultWriteTimeout = 10 * time.Second

// Handler serves the /ws/{channel} endpoint.
type Handler struct {
	reg          *registry.Registry
	eng          *engine.Engine
	rtr          *router.Router
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	log          zerolog.Logger
}

func New(reg *registry.Registry, eng *engine.Engine, rtr *router.Router, log zerolog.Logger, writeTimeout time.Duration) *Handler {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Handler{
		reg: reg,
		eng: eng,
		rtr: rtr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		writeTimeout: writeTimeout,
		log:          log.With().Str("component", "ws").Logger(),
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{channel}", h.serve)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if channel == "" {
		http.Error(w, "channel is required", http.StatusBadRequest)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newConn(channel, wsConn, h.writeTimeout)
	ctx := r.Context()

	// If a prior session held this name its in-flight messages go back to
	// the queue head now, before the first drain for the new session.
	if prior := h.reg.Register(channel, conn); prior != nil {
		if err := h.eng.HandleDisconnect(ctx, channel); err != nil {
			h.log.Warn().Err(err).Str("channel", channel).Msg("requeue for evicted session failed")
		}
	}

	h.log.Info().Str("channel", channel).Msg("channel connected")
	if err := conn.Send(message.NewControl(message.TypeReady)); err != nil {
		h.log.Debug().Err(err).Str("channel", channel).Msg("failed to send ready frame")
	}

	go func() {
		if err := h.eng.Drain(ctx, channel); err != nil {
			h.log.Warn().Err(err).Str("channel", channel).Msg("initial drain failed")
		}
	}()

	h.readLoop(ctx, conn)

	// Clear the binding first so no new drain reserves messages for a dead
	// socket, then return the in-flight set to the queue. A false return
	// means a newer session evicted us and already ran the requeue.
	if h.reg.Unregister(channel, conn) {
		if err := h.eng.HandleDisconnect(context.Background(), channel); err != nil {
			h.log.Warn().Err(err).Str("channel", channel).Msg("requeue on disconnect failed")
		}
	}
	_ = conn.Close()
	h.log.Info().Str("channel", channel).Msg("channel disconnected")
}

func (h *Handler) readLoop(ctx context.Context, conn *Conn) {
	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Str("channel", conn.channel).Msg("read loop ended")
			}
			return
		}

		if err := h.rtr.Route(ctx, raw, conn); err != nil {
			var rerr *router.RoutingError
			if errors.As(err, &rerr) {
				// Drop the frame, keep the connection.
				h.log.Warn().Err(err).Str("channel", conn.channel).Msg("dropped unroutable frame")
				continue
			}
			h.log.Error().Err(err).Str("channel", conn.channel).Msg("failed to process frame")
		}
	}
}
