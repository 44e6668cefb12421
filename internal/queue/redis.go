package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/courier-chat/courier/internal/model/message"
)

// DefaultPrefix namespaces queue keys so the store can share a Redis
// database with other tenants.
const DefaultPrefix = "courier:"

// RedisStore keeps per-channel queues as Redis lists.
//
// Schema: messages are LPUSH'ed onto "{prefix}{channel}" and consumed from
// the opposite end, so the right end of the list is the queue head.
// PopReserve is a single LMOVE into "{prefix}{channel}:inflight", which is
// what makes concurrent drains safe across processes.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedisStore wraps an established client. prefix may be empty, in which
// case DefaultPrefix is used.
func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) queueKey(channel string) string {
	return s.prefix + channel
}

func (s *RedisStore) reservedKey(channel string) string {
	return s.prefix + channel + ":inflight"
}

// Push appends the message to the queue tail.
func (s *RedisStore) Push(ctx context.Context, channel string, msg message.Message) error {
	if channel == "" {
		return ErrMissingDest
	}
	raw, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("queue: encode %s: %w", msg.ID, err)
	}
	if err := s.rdb.LPush(ctx, s.queueKey(channel), raw).Err(); err != nil {
		return fmt.Errorf("queue: push %s: %w", channel, err)
	}
	return nil
}

// PopReserve moves the head message into the reservation list atomically.
func (s *RedisStore) PopReserve(ctx context.Context, channel string) (message.Message, bool, error) {
	raw, err := s.rdb.LMove(ctx, s.queueKey(channel), s.reservedKey(channel), "RIGHT", "LEFT").Result()
	if errors.Is(err, redis.Nil) {
		return message.Message{}, false, nil
	}
	if err != nil {
		return message.Message{}, false, fmt.Errorf("queue: reserve %s: %w", channel, err)
	}
	msg, err := message.Decode([]byte(raw))
	if err != nil {
		return message.Message{}, false, fmt.Errorf("queue: reserve %s: %w", channel, err)
	}
	return msg, true, nil
}

// RequeueTail releases the reservation and appends updated to the queue
// tail. The release and the insert are two store round trips; callers
// serialize mutations per channel, so no third party observes the gap.
func (s *RedisStore) RequeueTail(ctx context.Context, channel string, reserved, updated message.Message) error {
	if err := s.release(ctx, channel, reserved); err != nil {
		return err
	}
	return s.Push(ctx, channel, updated)
}

// RequeueHead releases the reservation and puts the message back at the
// queue head.
func (s *RedisStore) RequeueHead(ctx context.Context, channel string, msg message.Message) error {
	if err := s.release(ctx, channel, msg); err != nil {
		return err
	}
	raw, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("queue: encode %s: %w", msg.ID, err)
	}
	if err := s.rdb.RPush(ctx, s.queueKey(channel), raw).Err(); err != nil {
		return fmt.Errorf("queue: requeue %s: %w", channel, err)
	}
	return nil
}

// Discard drops the reservation permanently.
func (s *RedisStore) Discard(ctx context.Context, channel string, msg message.Message) error {
	return s.release(ctx, channel, msg)
}

// Pending reports the queued message count for a channel.
func (s *RedisStore) Pending(ctx context.Context, channel string) (int64, error) {
	n, err := s.rdb.LLen(ctx, s.queueKey(channel)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: pending %s: %w", channel, err)
	}
	return n, nil
}

// Reserved reports the reserved message count for a channel.
func (s *RedisStore) Reserved(ctx context.Context, channel string) (int64, error) {
	n, err := s.rdb.LLen(ctx, s.reservedKey(channel)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: reserved %s: %w", channel, err)
	}
	return n, nil
}

// release removes the message from the reservation list by value. Encode
// is deterministic for a given Message, so the bytes match what PopReserve
// moved there.
func (s *RedisStore) release(ctx context.Context, channel string, msg message.Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("queue: encode %s: %w", msg.ID, err)
	}
	n, err := s.rdb.LRem(ctx, s.reservedKey(channel), 1, raw).Result()
	if err != nil {
		return fmt.Errorf("queue: release %s: %w", channel, err)
	}
	if n == 0 {
		return ErrNotReserved
	}
	return nil
}
