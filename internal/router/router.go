// Package router dispatches parsed inbound frames: acknowledgments clear
// in-flight records, payloads get stamped and queued, transport pings are
// answered in place.
package router

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/courier-chat/courier/internal/engine"
	"github.com/courier-chat/courier/internal/model/message"
)

// Peer is the inbound side of a connection: the channel name it is bound
// to plus the ability to write replies back to it.
type Peer interface {
	Channel() string
	Send(msg message.Message) error
}

// RoutingError marks a frame the router refused. The connection stays
// open; only the offending frame is dropped.
type RoutingError struct {
	Reason string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("router: %s", e.Reason)
}

// Router validates inbound frames and hands them to the delivery engine.
type Router struct {
	engine *engine.Engine
	log    zerolog.Logger
}

func New(eng *engine.Engine, log zerolog.Logger) *Router {
	return &Router{
		engine: eng,
		log:    log.With().Str("component", "router").Logger(),
	}
}

// Route processes one raw inbound frame from src. A *RoutingError return
// means the frame was malformed or unrecognized and was dropped; store
// errors from enqueueing propagate unchanged so the transport can decide
// how to respond.
func (r *Router) Route(ctx context.Context, raw []byte, src Peer) error {
	msg, err := message.Decode(raw)
	if err != nil {
		return &RoutingError{Reason: err.Error()}
	}

	switch msg.Type {
	case message.TypePing:
		return src.Send(message.NewControl(message.TypePong))

	case message.TypePong:
		return nil

	case message.TypeAck:
		id, err := msg.AckID()
		if err != nil {
			return &RoutingError{Reason: "ack without a message id"}
		}
		return r.engine.Acknowledge(ctx, src.Channel(), id)

	case message.TypeText:
		return r.routePayload(ctx, msg, src)

	default:
		return &RoutingError{Reason: fmt.Sprintf("unrecognized type %q", msg.Type)}
	}
}

// routePayload stamps origin and a fresh id onto a user payload, queues it,
// and echoes the assigned id back to the sender so receipts can be
// correlated.
func (r *Router) routePayload(ctx context.Context, msg message.Message, src Peer) error {
	if msg.Dest == "" {
		return &RoutingError{Reason: "payload without a destination"}
	}

	out := msg
	out.ID = uuid.NewString()
	out.From = src.Channel()
	out.Attempts = 0

	if err := r.engine.Enqueue(ctx, out); err != nil {
		return err
	}
	r.log.Debug().Str("from", out.From).Str("dest", out.Dest).Str("id", out.ID).Msg("payload queued")

	if err := src.Send(message.NewAccepted(out.ID)); err != nil {
		r.log.Debug().Err(err).Str("channel", out.From).Msg("failed to send accepted frame")
	}
	return nil
}
