// Package core implements the protocol engine shared by both transport
// variants: frame dispatch, request/response correlation, event fan-out,
// connection lifecycle and the heartbeat monitor. Transports feed it
// accepted links and inbound frames; everything else lives here.
package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/duplexnet"
	"github.com/luciancaetano/duplexnet/internal/protocol"
)

// Options configures one engine instance.
type Options struct {
	// Logger receives all engine logging. Error logging is
	// unconditional; connect/disconnect chatter is at debug level.
	Logger zerolog.Logger
	// Codec converts between the wire encoding and UTF-8 when the
	// configured encoding is not utf8. Nil means passthrough.
	Codec duplexnet.TextCodec
	// CallTimeout bounds how long a pending call waits for its
	// response. Zero means DefaultCallTimeout.
	CallTimeout time.Duration
	// Heartbeat is the transport's liveness policy.
	Heartbeat HeartbeatPolicy
	// Registerer receives the engine metrics. Nil means a private
	// registry, available from MetricsGatherer.
	Registerer prometheus.Registerer
}

// Engine is the composition root of the protocol. Every mutable structure
// (registry, correlation table, listener registries) is owned by exactly
// one Engine; construct one per listening endpoint.
type Engine struct {
	log     zerolog.Logger
	codec   duplexnet.TextCodec
	hb      HeartbeatPolicy
	metrics *Metrics
	promReg *prometheus.Registry

	registry *registry
	calls    *callTable
	events   *dispatcher
}

// NewEngine wires the engine subsystems together.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		log:   opts.Logger,
		codec: opts.Codec,
		hb:    opts.Heartbeat,
	}
	reg := opts.Registerer
	if reg == nil {
		e.promReg = prometheus.NewRegistry()
		reg = e.promReg
	}
	e.metrics = NewMetrics(reg)
	e.registry = newRegistry(opts.Logger, e.metrics)
	e.calls = newCallTable(opts.CallTimeout, opts.Logger, e.metrics)
	e.events = newDispatcher()
	return e
}

// MetricsGatherer exposes the engine's private metrics registry, or nil
// when an external Registerer was supplied.
func (e *Engine) MetricsGatherer() *prometheus.Registry {
	return e.promReg
}

// Attach registers a freshly accepted transport link: a connection id is
// generated, the entry stored, its heartbeat started, and every connect
// callback invoked in registration order.
func (e *Engine) Attach(link Link) *Conn {
	conn := &Conn{link: link}
	e.registry.add(conn, func(c *Conn) {
		c.mu.Lock()
		c.stopHB = e.startHeartbeat(c)
		c.mu.Unlock()
	})
	return conn
}

// Detach handles a transport close event. Duplicate detach of the same
// connection is logged as an error and is a no-op.
func (e *Engine) Detach(conn *Conn, reason duplexnet.DisconnectReason) {
	e.registry.remove(conn, reason)
}

// HandleFrame processes one inbound wire frame from conn: decode, then
// route by correlation id. A positive id resolves a pending call; id 0 is
// a broadcast fanned out to the listener registries. Decode failures are
// logged with the offending client and raw text, and never close the
// connection.
func (e *Engine) HandleFrame(conn *Conn, raw []byte) {
	if e.codec != nil {
		text, err := e.codec.Decode(raw)
		if err != nil {
			e.metrics.DecodeErrors.Inc()
			e.log.Error().Str("client_id", conn.ID()).Err(err).Msg("encoding conversion failed, frame discarded")
			return
		}
		raw = text
	}

	id, args, err := protocol.Decode(raw)
	if err != nil {
		e.metrics.DecodeErrors.Inc()
		e.log.Error().
			Str("client_id", conn.ID()).
			Str("raw", string(raw)).
			Err(err).
			Msg("malformed frame discarded")
		return
	}
	e.metrics.FramesDecoded.Inc()

	if id != duplexnet.NoReplyID {
		if !e.calls.resolve(id, args) {
			// Late response after timeout. Expected, not an error.
			e.log.Debug().Int32("correlation_id", id).Msg("stale response dropped")
		}
		return
	}

	if len(args) == 0 {
		return
	}
	event, ok := args[0].(string)
	if !ok {
		e.log.Error().Str("client_id", conn.ID()).Msg("broadcast frame without event name discarded")
		return
	}
	e.events.dispatch(conn, event, args[1:])
}

// Broadcast sends a fire-and-forget event frame to every registered
// connection. Per-connection write failures are logged and do not stop
// the fan-out.
func (e *Engine) Broadcast(ctx context.Context, event string, args ...any) error {
	frame, err := e.encodeFrame(duplexnet.NoReplyID, event, args)
	if err != nil {
		return err
	}
	for _, conn := range e.registry.snapshot() {
		if err := conn.link.WriteFrame(ctx, frame); err != nil {
			e.log.Error().Str("client_id", conn.ID()).Err(err).Msg("broadcast write failed")
		}
	}
	return nil
}

// SendTo sends a fire-and-forget event frame to one connection.
func (e *Engine) SendTo(ctx context.Context, clientID, event string, args ...any) error {
	conn, ok := e.registry.get(clientID)
	if !ok {
		e.log.Error().Str("client_id", clientID).Msg("send to unknown client")
		return duplexnet.ErrUnknownClient
	}
	return e.callConn(ctx, conn, event, args, nil)
}

// Call sends a correlated request frame to one connection and registers
// reply for the response. The handler fires at most once; on timeout it
// is dropped without being invoked.
func (e *Engine) Call(ctx context.Context, clientID, event string, args []any, reply duplexnet.ResponseHandler) error {
	conn, ok := e.registry.get(clientID)
	if !ok {
		e.log.Error().Str("client_id", clientID).Msg("call to unknown client")
		return duplexnet.ErrUnknownClient
	}
	return e.callConn(ctx, conn, event, args, reply)
}

// callConn encodes and writes one event frame on conn. A non-nil reply is
// registered in the correlation table before the write, and removed again
// if the write fails since no response can arrive.
func (e *Engine) callConn(ctx context.Context, conn *Conn, event string, args []any, reply duplexnet.ResponseHandler) error {
	id := duplexnet.NoReplyID
	var pc *pendingCall
	if reply != nil {
		pc = e.calls.register(reply)
		id = pc.id
	}

	frame, err := e.encodeFrame(id, event, args)
	if err != nil {
		if pc != nil {
			e.calls.remove(pc)
		}
		return err
	}
	if err := conn.link.WriteFrame(ctx, frame); err != nil {
		e.log.Error().Str("client_id", conn.ID()).Err(err).Msg("transport write failed")
		if pc != nil {
			e.calls.remove(pc)
		}
		return err
	}
	return nil
}

func (e *Engine) encodeFrame(id int32, event string, args []any) ([]byte, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, event)
	payload = append(payload, args...)

	frame, err := protocol.Encode(id, payload)
	if err != nil {
		return nil, err
	}
	if e.codec != nil {
		if frame, err = e.codec.Encode(frame); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// PendingCalls reports the number of requests awaiting a response.
func (e *Engine) PendingCalls() int {
	return e.calls.size()
}

// On registers a named-event listener.
func (e *Engine) On(event string, fn duplexnet.EventListener) duplexnet.ListenerID {
	return e.events.on(event, fn)
}

// Once registers a listener removed before its first invocation.
func (e *Engine) Once(event string, fn duplexnet.EventListener) duplexnet.ListenerID {
	return e.events.once(event, fn)
}

// Off removes one named-event registration.
func (e *Engine) Off(event string, id duplexnet.ListenerID) {
	e.events.off(event, id)
}

// OnAny registers a wildcard listener.
func (e *Engine) OnAny(fn duplexnet.AnyListener) duplexnet.ListenerID {
	return e.events.onAny(fn)
}

// OffAny removes one wildcard registration.
func (e *Engine) OffAny(id duplexnet.ListenerID) {
	e.events.offAny(id)
}

// OffAll clears one event's listener list.
func (e *Engine) OffAll(event string) {
	e.events.offAll(event)
}

// Reset clears every named event's listener list; wildcard listeners are
// untouched.
func (e *Engine) Reset() {
	e.events.reset()
}

// Clients returns a snapshot of connection id to client handle.
func (e *Engine) Clients() map[string]duplexnet.Client {
	conns := e.registry.snapshot()
	out := make(map[string]duplexnet.Client, len(conns))
	for id, conn := range conns {
		out[id] = conn
	}
	return out
}

// Client looks up one connected client.
func (e *Engine) Client(id string) (duplexnet.Client, bool) {
	conn, ok := e.registry.get(id)
	if !ok {
		return nil, false
	}
	return conn, true
}

// OnConnect appends a connect callback.
func (e *Engine) OnConnect(fn duplexnet.ConnectFn) {
	e.registry.addConnectFn(fn)
}

// OnDisconnect appends a disconnect callback.
func (e *Engine) OnDisconnect(fn duplexnet.DisconnectFn) {
	e.registry.addDisconnectFn(fn)
}

// CloseAll closes every tracked connection's link. Detach happens via each
// transport read loop observing the close.
func (e *Engine) CloseAll() {
	for _, conn := range e.registry.snapshot() {
		conn.link.Close()
	}
}
