// Package engine implements the reliable delivery core: it moves messages
// between a channel's durable queue, its in-flight set, and its live
// connection, and enforces the acknowledgment window and retry policy.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/courier-chat/courier/internal/model/message"
	"github.com/courier-chat/courier/internal/queue"
	"github.com/courier-chat/courier/internal/registry"
)

// Config carries the delivery policy knobs. Zero values fall back to the
// defaults below.
type Config struct {
	// AckWindow is how long a delivered message may stay unacknowledged
	// before the sweep requeues it.
	AckWindow time.Duration

	// MaxAttempts bounds timed-out redeliveries; past it the message is
	// reported undeliverable and dropped.
	MaxAttempts int

	// SweepInterval is the period of the timeout sweep.
	SweepInterval time.Duration
}

const (
	defaultAckWindow     = 30 * time.Second
	defaultMaxAttempts   = 5
	defaultSweepInterval = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.AckWindow <= 0 {
		c.AckWindow = defaultAckWindow
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	return c
}

// UndeliverableFunc is notified when a message exhausts its delivery
// attempts and is dropped.
type UndeliverableFunc func(channel string, msg message.Message)

// Option tunes an Engine at construction time.
type Option func(*Engine)

// WithClock substitutes the wall clock; tests use a mock to step the
// acknowledgment window.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithUndeliverableFunc installs a handler for attempts-exceeded drops.
func WithUndeliverableFunc(fn UndeliverableFunc) Option {
	return func(e *Engine) { e.undeliverable = fn }
}

// inflightRecord tracks one delivered-but-unacknowledged message. seq
// preserves delivery order so a disconnect can restore the queue head in
// the order the messages were handed out.
type inflightRecord struct {
	msg        message.Message
	enqueuedAt time.Time
	attempts   int
	seq        uint64
}

// channelState serializes all in-flight mutations for one channel name.
// Cross-process safety does not come from this lock; it comes from the
// store's atomic pop-and-reserve.
type channelState struct {
	mu       sync.Mutex
	inflight map[string]*inflightRecord
	seq      uint64
}

// Engine is the delivery state machine. One instance per process; multiple
// processes may share one queue store.
type Engine struct {
	store         queue.Store
	reg           *registry.Registry
	cfg           Config
	clock         clock.Clock
	log           zerolog.Logger
	undeliverable UndeliverableFunc

	mu       sync.Mutex
	channels map[string]*channelState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(store queue.Store, reg *registry.Registry, cfg Config, log zerolog.Logger, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:    store,
		reg:      reg,
		cfg:      cfg.withDefaults(),
		clock:    clock.New(),
		log:      log.With().Str("component", "engine").Logger(),
		channels: make(map[string]*channelState),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.undeliverable == nil {
		e.undeliverable = func(channel string, msg message.Message) {
			e.log.Error().Str("channel", channel).Str("id", msg.ID).
				Int("attempts", msg.Attempts).Msg("message undeliverable, dropping")
		}
	}
	return e
}

func (e *Engine) state(name string) *channelState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.channels[name]
	if !ok {
		st = &channelState{inflight: make(map[string]*inflightRecord)}
		e.channels[name] = st
	}
	return st
}

// Enqueue pushes the message onto its destination queue. A store failure is
// returned to the caller; the payload was not accepted. When the recipient
// is online a drain is kicked off immediately instead of waiting for the
// next poll cycle.
func (e *Engine) Enqueue(ctx context.Context, msg message.Message) error {
	if msg.Dest == "" {
		return queue.ErrMissingDest
	}
	if err := e.store.Push(ctx, msg.Dest, msg); err != nil {
		return err
	}
	if _, ok := e.reg.Lookup(msg.Dest); ok {
		e.triggerDrain(msg.Dest)
	}
	return nil
}

func (e *Engine) triggerDrain(name string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.Drain(e.ctx, name); err != nil {
			e.log.Warn().Err(err).Str("channel", name).Msg("drain failed, will retry on next trigger")
		}
	}()
}

// Drain moves queued messages to in-flight and writes them to the live
// connection until the queue empties or the connection goes away. Safe to
// call concurrently; mutations for one channel are serialized.
func (e *Engine) Drain(ctx context.Context, name string) error {
	st := e.state(name)
	st.mu.Lock()
	defer st.mu.Unlock()

	for {
		conn, ok := e.reg.Lookup(name)
		if !ok {
			return nil
		}
		msg, ok, err := e.store.PopReserve(ctx, name)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		st.seq++
		st.inflight[msg.ID] = &inflightRecord{
			msg:        msg,
			enqueuedAt: e.clock.Now(),
			attempts:   msg.Attempts,
			seq:        st.seq,
		}

		if err := conn.Send(msg); err != nil {
			// The connection is going away. The record stays in-flight;
			// the disconnect path requeues it at the head.
			e.log.Debug().Err(err).Str("channel", name).Str("id", msg.ID).Msg("send failed mid-drain")
			return nil
		}
	}
}

// Acknowledge clears the in-flight record matching id for the channel.
// Unknown, duplicate, or late acks are no-ops: retries make them expected.
// When the acked message names an origin, a delivery receipt is queued
// back to it.
func (e *Engine) Acknowledge(ctx context.Context, name, id string) error {
	st := e.state(name)

	st.mu.Lock()
	rec, ok := st.inflight[id]
	if !ok {
		st.mu.Unlock()
		return nil
	}
	delete(st.inflight, id)
	if err := e.store.Discard(ctx, name, rec.msg); err != nil && !errors.Is(err, queue.ErrNotReserved) {
		st.mu.Unlock()
		return err
	}
	st.mu.Unlock()

	e.log.Debug().Str("channel", name).Str("id", id).Msg("acknowledged")

	if rec.msg.From != "" {
		receipt := message.NewReceipt(rec.msg.From, rec.msg.ID)
		if err := e.Enqueue(ctx, receipt); err != nil {
			e.log.Warn().Err(err).Str("channel", rec.msg.From).Msg("failed to queue delivery receipt")
		}
	}
	return nil
}

// HandleDisconnect returns every in-flight message for the channel to the
// head of its queue, preserving the order they were handed out, and clears
// the in-flight set. It runs to completion even if individual requeues
// fail; failures are joined into the returned error.
func (e *Engine) HandleDisconnect(ctx context.Context, name string) error {
	st := e.state(name)
	st.mu.Lock()
	defer st.mu.Unlock()

	recs := make([]*inflightRecord, 0, len(st.inflight))
	for _, rec := range st.inflight {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	// Push newest first so the oldest ends up at the very head.
	var errs []error
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		delete(st.inflight, rec.msg.ID)
		if err := e.store.RequeueHead(ctx, name, rec.msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Run drives the timeout sweep until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	ticker := e.clock.Ticker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

// Close stops background drains and waits for them to finish.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// sweep requeues every in-flight message whose acknowledgment window has
// elapsed. Timed-out messages go to the queue tail, not the head, so a
// consistently failing peer cannot block the rest of the queue. Messages
// past MaxAttempts are dropped and reported.
func (e *Engine) sweep(ctx context.Context) {
	e.mu.Lock()
	names := make([]string, 0, len(e.channels))
	for name := range e.channels {
		names = append(names, name)
	}
	e.mu.Unlock()

	now := e.clock.Now()
	for _, name := range names {
		if n := e.sweepChannel(ctx, name, now); n > 0 {
			if _, ok := e.reg.Lookup(name); ok {
				e.triggerDrain(name)
			}
		}
	}
}

// sweepChannel handles one channel and reports how many messages were
// requeued for redelivery.
func (e *Engine) sweepChannel(ctx context.Context, name string, now time.Time) int {
	st := e.state(name)
	st.mu.Lock()
	defer st.mu.Unlock()

	requeued := 0
	for id, rec := range st.inflight {
		if now.Sub(rec.enqueuedAt) < e.cfg.AckWindow {
			continue
		}

		attempts := rec.attempts + 1
		if attempts > e.cfg.MaxAttempts {
			if err := e.store.Discard(ctx, name, rec.msg); err != nil && !errors.Is(err, queue.ErrNotReserved) {
				e.log.Warn().Err(err).Str("channel", name).Str("id", id).Msg("sweep discard failed, retrying next cycle")
				continue
			}
			delete(st.inflight, id)
			dropped := rec.msg
			dropped.Attempts = attempts
			e.undeliverable(name, dropped)
			continue
		}

		updated := rec.msg
		updated.Attempts = attempts
		if err := e.store.RequeueTail(ctx, name, rec.msg, updated); err != nil {
			e.log.Warn().Err(err).Str("channel", name).Str("id", id).Msg("sweep requeue failed, retrying next cycle")
			continue
		}
		delete(st.inflight, id)
		requeued++
		e.log.Debug().Str("channel", name).Str("id", id).Int("attempts", attempts).Msg("ack window elapsed, requeued")
	}
	return requeued
}

// InflightLen reports the in-flight record count for a channel.
func (e *Engine) InflightLen(name string) int {
	st := e.state(name)
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.inflight)
}
