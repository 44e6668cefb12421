// Package queue defines the durable queue store consumed by the delivery
// engine and provides a Redis-backed implementation plus an in-memory one
// with identical semantics.
//
// Every channel owns one FIFO queue and one reservation list. A message is
// in exactly one of the two at any time: PopReserve moves it from queue to
// reservation in a single atomic step, and the Requeue/Discard operations
// release the reservation while (re)inserting or dropping the message.
package queue

import (
	"context"
	"errors"

	"github.com/courier-chat/courier/internal/model/message"
)

var (
	// ErrMissingDest is returned by Push when the message has no
	// destination to key the queue by.
	ErrMissingDest = errors.New("queue: message has no destination")

	// ErrNotReserved is returned when a release operation refers to a
	// message that is not in the channel's reservation list.
	ErrNotReserved = errors.New("queue: message not reserved")
)

// Store is the durable queue contract. Implementations must make
// PopReserve atomic with respect to concurrent callers for the same
// channel, including callers in other processes sharing the store.
type Store interface {
	// Push appends the message to the tail of the channel's queue.
	Push(ctx context.Context, channel string, msg message.Message) error

	// PopReserve atomically moves the head message from the channel's
	// queue to its reservation list. ok is false on an empty queue.
	PopReserve(ctx context.Context, channel string) (msg message.Message, ok bool, err error)

	// RequeueTail releases the reservation for reserved and appends
	// updated to the queue tail. reserved and updated usually differ only
	// in the attempts counter.
	RequeueTail(ctx context.Context, channel string, reserved, updated message.Message) error

	// RequeueHead releases the reservation and puts the message back at
	// the queue head, making it the next to be popped.
	RequeueHead(ctx context.Context, channel string, msg message.Message) error

	// Discard drops the reservation without requeueing.
	Discard(ctx context.Context, channel string, msg message.Message) error

	// Pending reports the number of queued (not reserved) messages.
	Pending(ctx context.Context, channel string) (int64, error)

	// Reserved reports the number of reserved messages.
	Reserved(ctx context.Context, channel string) (int64, error)
}
