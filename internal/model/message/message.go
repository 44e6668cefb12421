package message

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type discriminates message envelopes on the wire. Payload types carry
// user data to a destination channel; transport types drive the delivery
// protocol itself and are never queued for a third party.
type Type string

const (
	// TypeText is a user payload addressed to a destination channel.
	TypeText Type = "text"

	// TypeAck is sent by a receiver to confirm delivery; its data field
	// holds the id of the confirmed message.
	TypeAck Type = "ack"

	// TypeAccepted is sent to a sender once its payload has been queued,
	// echoing the id assigned by the server.
	TypeAccepted Type = "accepted"

	// TypeReceipt notifies the original sender that its message was
	// acknowledged by the recipient.
	TypeReceipt Type = "receipt"

	// TypeReady signals a freshly registered connection that its queue is
	// being drained.
	TypeReady Type = "ready"

	TypePing Type = "ping"
	TypePong Type = "pong"
)

// Transport reports whether the type belongs to the delivery protocol
// rather than to user traffic.
func (t Type) Transport() bool {
	switch t {
	case TypeAck, TypeAccepted, TypeReceipt, TypeReady, TypePing, TypePong:
		return true
	}
	return false
}

var (
	ErrEmptyEnvelope = errors.New("message: empty envelope")
	ErrMissingType   = errors.New("message: missing type")
	ErrBadAckData    = errors.New("message: ack data is not a message id")
)

// Message is the wire envelope exchanged with clients and stored in the
// durable queue. It is immutable once constructed; Data is opaque to the
// delivery core.
//
// Attempts counts timed-out redeliveries and rides along on requeue so the
// exhaustion policy survives the in-flight record being dropped.
type Message struct {
	ID       string          `json:"id,omitempty"`
	Type     Type            `json:"type"`
	From     string          `json:"from,omitempty"`
	Dest     string          `json:"dest,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Time     int64           `json:"time,omitempty"`
	Attempts int             `json:"attempts,omitempty"`
}

// New builds a payload message with a fresh id and millisecond timestamp.
func New(t Type, from, dest string, data json.RawMessage) Message {
	return Message{
		ID:   uuid.NewString(),
		Type: t,
		From: from,
		Dest: dest,
		Data: data,
		Time: time.Now().UnixMilli(),
	}
}

// NewAck builds an acknowledgment for the given message id.
func NewAck(id string) Message {
	return Message{Type: TypeAck, Data: quote(id)}
}

// NewAccepted echoes the server-assigned id back to the sender.
func NewAccepted(id string) Message {
	return Message{Type: TypeAccepted, Data: quote(id), Time: time.Now().UnixMilli()}
}

// NewReceipt builds a delivery receipt addressed to the original sender.
func NewReceipt(dest, deliveredID string) Message {
	return Message{
		ID:   uuid.NewString(),
		Type: TypeReceipt,
		Dest: dest,
		Data: quote(deliveredID),
		Time: time.Now().UnixMilli(),
	}
}

// NewControl builds a bare transport frame (ready, ping, pong).
func NewControl(t Type) Message {
	return Message{Type: t, Time: time.Now().UnixMilli()}
}

// Decode parses a raw frame. Only structural validity is checked here;
// routing decides whether the type is recognized.
func Decode(raw []byte) (Message, error) {
	if len(raw) == 0 {
		return Message{}, ErrEmptyEnvelope
	}
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	if m.Type == "" {
		return Message{}, ErrMissingType
	}
	return m, nil
}

// Encode marshals the envelope. Field order is fixed by the struct, so
// encoding the same value always yields identical bytes; the queue store
// relies on this to release reservations by value.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// AckID extracts the referenced message id from an ack or receipt frame.
func (m Message) AckID() (string, error) {
	var id string
	if err := json.Unmarshal(m.Data, &id); err != nil || id == "" {
		return "", ErrBadAckData
	}
	return id, nil
}

func quote(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
