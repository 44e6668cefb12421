package queue

import (
	"context"
	"sync"

	"github.com/courier-chat/courier/internal/model/message"
)

// MemoryStore is an in-process Store with the same semantics as the Redis
// implementation. It backs tests and single-process embedding; it is not
// durable and cannot be shared across processes.
type MemoryStore struct {
	mu       sync.Mutex
	channels map[string]*memoryChannel
}

type memoryChannel struct {
	queued   []message.Message // index 0 is the head
	reserved []message.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{channels: make(map[string]*memoryChannel)}
}

func (s *MemoryStore) channel(name string) *memoryChannel {
	ch, ok := s.channels[name]
	if !ok {
		ch = &memoryChannel{}
		s.channels[name] = ch
	}
	return ch
}

func (s *MemoryStore) Push(_ context.Context, channel string, msg message.Message) error {
	if channel == "" {
		return ErrMissingDest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channel(channel)
	ch.queued = append(ch.queued, msg)
	return nil
}

func (s *MemoryStore) PopReserve(_ context.Context, channel string) (message.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channel(channel)
	if len(ch.queued) == 0 {
		return message.Message{}, false, nil
	}
	msg := ch.queued[0]
	ch.queued = ch.queued[1:]
	ch.reserved = append(ch.reserved, msg)
	return msg, true, nil
}

func (s *MemoryStore) RequeueTail(_ context.Context, channel string, reserved, updated message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channel(channel)
	if !ch.release(reserved.ID) {
		return ErrNotReserved
	}
	ch.queued = append(ch.queued, updated)
	return nil
}

func (s *MemoryStore) RequeueHead(_ context.Context, channel string, msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channel(channel)
	if !ch.release(msg.ID) {
		return ErrNotReserved
	}
	ch.queued = append([]message.Message{msg}, ch.queued...)
	return nil
}

func (s *MemoryStore) Discard(_ context.Context, channel string, msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.channel(channel).release(msg.ID) {
		return ErrNotReserved
	}
	return nil
}

func (s *MemoryStore) Pending(_ context.Context, channel string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.channel(channel).queued)), nil
}

func (s *MemoryStore) Reserved(_ context.Context, channel string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.channel(channel).reserved)), nil
}

func (ch *memoryChannel) release(id string) bool {
	for i, m := range ch.reserved {
		if m.ID == id {
			ch.reserved = append(ch.reserved[:i], ch.reserved[i+1:]...)
			return true
		}
	}
	return false
}
