// Package registry tracks which live connection currently represents each
// channel name. It owns nothing but the mapping; the durable queue is never
// touched from here.
package registry

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/courier-chat/courier/internal/model/message"
)

// Conn is the live-connection handle the delivery core writes to. The
// transport collaborator provides the implementation.
type Conn interface {
	// Send writes one message to the peer. Implementations serialize
	// concurrent calls.
	Send(msg message.Message) error

	// Close tears the connection down; the transport's read loop observes
	// the closure and runs its disconnect path.
	Close() error
}

// Registry maps channel names to live connections. At most one connection
// is bound per name at any instant.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
	log   zerolog.Logger
}

func New(log zerolog.Logger) *Registry {
	return &Registry{
		conns: make(map[string]Conn),
		log:   log.With().Str("component", "registry").Logger(),
	}
}

// Register binds conn to name and returns the evicted prior connection, if
// any. The prior connection is closed before the new binding is visible,
// so a drain started after Register never writes to the old session.
func (r *Registry) Register(name string, conn Conn) Conn {
	r.mu.Lock()
	prior := r.conns[name]
	if prior != nil {
		_ = prior.Close()
	}
	r.conns[name] = conn
	r.mu.Unlock()

	if prior != nil {
		r.log.Info().Str("channel", name).Msg("evicted prior connection")
	}
	return prior
}

// Unregister clears the binding for name, but only if conn is still the
// bound connection. It reports whether the binding was cleared; false means
// a newer session already took the name over (the caller was evicted) and
// must not run its disconnect cleanup.
func (r *Registry) Unregister(name string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[name] != conn {
		return false
	}
	delete(r.conns, name)
	return true
}

// Lookup returns the live connection bound to name, if any.
func (r *Registry) Lookup(name string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[name]
	return conn, ok
}

// Len reports the number of currently bound channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
