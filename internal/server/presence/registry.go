// Package presence tracks which users have a live, joined connection and
// pushes presence and friend notices to them.
package presence

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophrelay/internal/protocol"
	"github.com/dmitrijs2005/gophrelay/internal/server/metrics"
)

// Conn is the sending half of a client connection.
type Conn interface {
	ID() string
	Send(ctx context.Context, frame string) error
	Close() error
}

// Registry maps canonical usernames to their joined connection. Absence is
// never an error.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]Conn
	metrics *metrics.Metrics
}

// NewRegistry returns an empty Registry that reports its size to m.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{conns: make(map[string]Conn), metrics: m}
}

// Register stores c under user, replacing any other connection. It returns
// the displaced connection, if any.
func (r *Registry) Register(user string, c Conn) (Conn, bool) {
	user = protocol.Canonical(user)

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.conns[user]
	r.conns[user] = c
	r.metrics.SetOnline(len(r.conns))
	if !ok || prev == c {
		return nil, false
	}
	return prev, true
}

// RegisterIfAbsent stores c under user unless another connection holds the
// name. It reports whether c is now the registered connection.
func (r *Registry) RegisterIfAbsent(user string, c Conn) bool {
	user = protocol.Canonical(user)

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[user]; ok {
		return prev == c
	}
	r.conns[user] = c
	r.metrics.SetOnline(len(r.conns))
	return true
}

// Unregister removes user only while c is still its registered connection,
// so a late cleanup cannot evict a newer session.
func (r *Registry) Unregister(user string, c Conn) bool {
	user = protocol.Canonical(user)

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.conns[user]; !ok || cur != c {
		return false
	}
	delete(r.conns, user)
	r.metrics.SetOnline(len(r.conns))
	return true
}

func (r *Registry) Lookup(user string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[protocol.Canonical(user)]
	return c, ok
}

func (r *Registry) IsOnline(user string) bool {
	_, ok := r.Lookup(user)
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
