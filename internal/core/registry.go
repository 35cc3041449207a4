package core

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/duplexnet"
)

// registry owns the set of active connections, keyed by connection id. It
// is the source of truth for "is this connection still live" and drives
// the lifecycle callbacks on state transitions.
type registry struct {
	mu           sync.RWMutex
	conns        map[string]*Conn
	onConnect    []duplexnet.ConnectFn
	onDisconnect []duplexnet.DisconnectFn

	log     zerolog.Logger
	metrics *Metrics
}

func newRegistry(log zerolog.Logger, metrics *Metrics) *registry {
	return &registry{
		conns:   make(map[string]*Conn),
		log:     log,
		metrics: metrics,
	}
}

// add assigns a fresh id to conn, stores it, and runs the connect
// callbacks in registration order. The caller starts the heartbeat before
// callbacks see the connection.
func (r *registry) add(conn *Conn, start func(*Conn)) {
	r.mu.Lock()
	id := newConnID(func(candidate string) bool {
		_, ok := r.conns[candidate]
		return ok
	})
	conn.mu.Lock()
	conn.id = id
	conn.alive = true
	conn.latency = duplexnet.UnmeasuredLatency
	conn.mu.Unlock()
	r.conns[id] = conn
	callbacks := append([]duplexnet.ConnectFn(nil), r.onConnect...)
	r.mu.Unlock()

	r.metrics.ActiveConnections.Inc()
	if start != nil {
		start(conn)
	}
	r.log.Debug().Str("client_id", id).Str("remote_addr", conn.RemoteAddr()).Msg("client connected")
	for _, cb := range callbacks {
		cb(conn)
	}
}

// remove handles a close event. Duplicate close events are logged as an
// error and are a no-op. Disconnect callbacks run in registration order
// with the connection still intact; removal, heartbeat teardown and field
// reset follow.
func (r *registry) remove(conn *Conn, reason duplexnet.DisconnectReason) {
	id := conn.ID()

	r.mu.Lock()
	registered, ok := r.conns[id]
	if !ok || registered != conn {
		r.mu.Unlock()
		r.log.Error().Str("client_id", id).Msg("close event for unknown client")
		return
	}
	callbacks := append([]duplexnet.DisconnectFn(nil), r.onDisconnect...)
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(conn, reason)
	}

	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
	r.metrics.ActiveConnections.Dec()

	conn.mu.Lock()
	stop := conn.stopHB
	conn.stopHB = nil
	conn.mu.Unlock()
	if stop != nil {
		stop()
	}
	conn.reset()
	r.log.Debug().Str("client_id", id).Str("reason", string(reason)).Msg("client disconnected")
}

func (r *registry) get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// has reports whether conn is still the registered entry for its id. A
// destroyed connection (cleared id) is never registered.
func (r *registry) has(conn *Conn) bool {
	id := conn.ID()
	if id == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id] == conn
}

// snapshot returns a copy of the current id to connection mapping.
func (r *registry) snapshot() map[string]*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Conn, len(r.conns))
	for id, conn := range r.conns {
		out[id] = conn
	}
	return out
}

func (r *registry) addConnectFn(fn duplexnet.ConnectFn) {
	r.mu.Lock()
	r.onConnect = append(r.onConnect, fn)
	r.mu.Unlock()
}

func (r *registry) addDisconnectFn(fn duplexnet.DisconnectFn) {
	r.mu.Lock()
	r.onDisconnect = append(r.onDisconnect, fn)
	r.mu.Unlock()
}
