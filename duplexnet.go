package duplexnet

import (
	"context"
	"time"
)

// ListenerID identifies a single listener registration. It is returned by
// On, Once and OnAny and is the token Off and OffAny use to remove that
// registration. Go functions are not comparable, so removal works on the
// token rather than on the function value itself.
type ListenerID uint64

// EventListener handles a broadcast frame addressed to a named event.
// It receives the client the frame arrived on and the event's positional
// arguments (the frame payload minus the leading event name).
type EventListener func(client Client, args []any)

// AnyListener handles every decoded broadcast frame regardless of event
// name. Wildcard listeners run before the name-specific listeners of the
// same dispatch.
type AnyListener func(client Client, event string, args []any)

// ResponseHandler receives the argument list of a correlated response
// frame. It is invoked at most once: either with the response arguments,
// or never if the call times out first.
type ResponseHandler func(args []any)

// ConnectFn is called when a new client finishes connecting, after the
// client has been registered and its heartbeat started. Callbacks run in
// registration order.
type ConnectFn func(client Client)

// DisconnectFn is called when a client disconnects, before the client is
// removed from the registry. The reason is DisconnectEnd for a graceful
// close and DisconnectError for a transport error or failed heartbeat.
type DisconnectFn func(client Client, reason DisconnectReason)

// DisconnectReason tells disconnect callbacks why the connection ended.
type DisconnectReason string

const (
	// DisconnectEnd means the peer closed the connection gracefully.
	DisconnectEnd DisconnectReason = "end"
	// DisconnectError means the transport reported an error or a
	// heartbeat probe went unanswered.
	DisconnectError DisconnectReason = "error"
)

// TextCodec converts between the wire encoding and UTF-8 text. It is only
// consulted when the server is configured with an encoding other than
// "utf8"; the conversion itself is an external collaborator, not part of
// this module.
type TextCodec interface {
	// Decode converts raw bytes read from the transport into UTF-8 text.
	Decode(raw []byte) ([]byte, error)
	// Encode converts UTF-8 frame text into the wire encoding.
	Encode(text []byte) ([]byte, error)
}

// Server is the public surface shared by both transport variants
// (message-oriented WebSocket and stream-oriented TCP). A Server owns all
// of its state; construct one per listening endpoint and pass it to the
// collaborators that need to send or subscribe.
//
// Example usage:
//
//	import "github.com/luciancaetano/duplexnet/ws"
//
//	server, _ := ws.New(&ws.Config{Addr: ":8080"})
//
//	server.On("chat", func(client duplexnet.Client, args []any) {
//	    server.Send(ctx, "chat", args...)
//	})
//
//	server.Start(ctx)
type Server interface {
	// Start begins accepting connections. Calling Start on a running
	// server logs a message and returns ErrAlreadyRunning.
	Start(ctx context.Context) error

	// Stop closes the listening socket and drops every tracked
	// connection. Calling Stop on a stopped server logs an error and
	// returns ErrNotRunning.
	Stop(ctx context.Context) error

	// Send broadcasts a fire-and-forget event frame to every connected
	// client. Broadcast frames always carry correlation id 0 and never
	// register a pending call.
	Send(ctx context.Context, event string, args ...any) error

	// SendTo sends a fire-and-forget event frame to one client. An
	// unknown client id or a stopped server logs an error and returns
	// without sending.
	SendTo(ctx context.Context, clientID, event string, args ...any) error

	// Call sends a correlated request frame to one client and registers
	// reply to receive the response arguments. The reply handler fires
	// at most once; if no response arrives within the call timeout the
	// handler is dropped without being invoked.
	Call(ctx context.Context, clientID, event string, args []any, reply ResponseHandler) error

	// On registers a listener for a named event. Listeners for the same
	// event are invoked in registration order.
	On(event string, fn EventListener) ListenerID

	// Once registers a listener that removes itself before its first
	// invocation is delegated.
	Once(event string, fn EventListener) ListenerID

	// Off removes one listener registration. Removing an unknown id is
	// a no-op. Removal only affects future dispatches; a dispatch
	// already in progress iterates over a snapshot.
	Off(event string, id ListenerID)

	// OnAny registers a wildcard listener invoked for every broadcast
	// frame, before that frame's name-specific listeners.
	OnAny(fn AnyListener) ListenerID

	// OffAny removes one wildcard registration.
	OffAny(id ListenerID)

	// OffAll clears every listener for one event name.
	OffAll(event string)

	// Reset clears every named event's listener list. Wildcard
	// listeners are untouched.
	Reset()

	// Clients returns a snapshot of connection id to client handle.
	Clients() map[string]Client

	// Client looks up a single connected client by id.
	Client(id string) (Client, bool)

	// OnConnect appends a connect callback. There is no removal API;
	// callbacks live for the lifetime of the server.
	OnConnect(fn ConnectFn)

	// OnDisconnect appends a disconnect callback.
	OnDisconnect(fn DisconnectFn)
}

// Client represents one connected peer.
//
// The identifier is generated when the connection is accepted and stays
// constant until the connection is destroyed, at which point it is
// cleared so late callbacks cannot misattribute work to a reused handle.
type Client interface {
	// ID returns the connection identifier, or "" once the connection
	// has been destroyed.
	ID() string

	// RemoteAddr returns the peer's network address ("IP:port").
	RemoteAddr() string

	// Latency returns the last heartbeat-measured latency for this
	// connection, or UnmeasuredLatency if no probe has completed yet.
	// The message-oriented transport records half the round trip; the
	// stream-oriented transport records the full round trip.
	Latency() time.Duration

	// Alive reports whether the connection is still registered and, on
	// the message-oriented transport, whether the most recent heartbeat
	// probe was answered.
	Alive() bool

	// Close terminates the connection. Disconnect callbacks fire once
	// via the transport's close event.
	Close(ctx context.Context) error
}

// UnmeasuredLatency is the Latency value of a connection whose heartbeat
// has not completed a probe yet.
const UnmeasuredLatency time.Duration = -1
