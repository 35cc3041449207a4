package duplexnet

import "errors"

// Reserved protocol values.
const (
	// NoReplyID is the correlation id of fire-and-forget frames. It is
	// never placed in the pending-call table.
	NoReplyID int32 = 0

	// MaxCorrelationID bounds the correlation id space. Generated ids
	// fall in [1, MaxCorrelationID].
	MaxCorrelationID int32 = 1<<31 - 1

	// HeartbeatEvent is the event name of the periodic liveness probe.
	// Peers answer it with an empty correlated response.
	HeartbeatEvent = "ping"

	// DefaultEncoding is the text encoding assumed when none is
	// configured. Any other encoding routes through a TextCodec.
	DefaultEncoding = "utf8"
)

// Sentinel errors. No condition in this module is fatal to the process;
// the worst outcome is a dropped frame or a terminated single connection.
var (
	// ErrBadFrame means an inbound frame had no leading correlation id
	// digit run. The frame is discarded and the connection stays open.
	ErrBadFrame = errors.New("frame has no leading correlation id")

	// ErrBadJSON means a frame body failed to parse as a JSON array.
	// The frame is discarded and the connection stays open.
	ErrBadJSON = errors.New("frame body is not a JSON array")

	// ErrUnknownClient means an operation addressed a connection id
	// absent from the registry.
	ErrUnknownClient = errors.New("client not found")

	// ErrNotRunning means a send or stop operation was invoked while
	// the listener is inactive.
	ErrNotRunning = errors.New("server is not running")

	// ErrAlreadyRunning means Start was called on a running server.
	ErrAlreadyRunning = errors.New("server already running")

	// ErrConnectionClosed means a write was attempted on a connection
	// that has already been closed.
	ErrConnectionClosed = errors.New("client connection is closed")

	// ErrEncodingCodec means the server was configured with a non-utf8
	// encoding but no TextCodec collaborator was supplied.
	ErrEncodingCodec = errors.New("non-utf8 encoding requires a text codec")
)
