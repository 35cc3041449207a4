// Package duplexnet provides a lightweight duplex messaging protocol for persistent socket connections.
//
// The library implements socket.io-style semantics (named events, broadcast, and
// request/response RPC with correlation ids) without an external broker, over either a
// message-oriented transport (WebSocket) or a stream-oriented transport (raw TCP). Both
// variants share one protocol engine: frame codec, correlation table, event dispatcher,
// connection registry and heartbeat monitor.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/duplexnet"
//	    "github.com/luciancaetano/duplexnet/ws"
//	)
//
//	server, err := ws.New(&ws.Config{Addr: ":8080", CheckOrigin: ws.AllOrigins()})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Named event listener
//	server.On("chat", func(client duplexnet.Client, args []any) {
//	    server.Send(ctx, "chat", args...) // rebroadcast to everyone
//	})
//
//	// Request/response RPC with a 5s timeout
//	server.Call(ctx, clientID, "sum", []any{2, 3}, func(args []any) {
//	    fmt.Println("sum =", args[0])
//	})
//
//	server.Start(ctx)
//
// # Protocol Format
//
// One frame is the decimal correlation id immediately followed by a JSON array of
// arguments, with no separator:
//
//	0["testEvent",5333,true,false,"test, data"]   broadcast (id 0, first element = event name)
//	42["ping"]                                    correlated request
//	42[]                                          its response, same id
//
// Correlation id 0 means "no response expected". A positive id matches the response back
// to the handler registered when the request was sent; the handler fires at most once,
// or never if the call times out (5 seconds).
//
// On the WebSocket transport one frame is one message. On the TCP transport each frame
// is NUL-terminated, and partial frames are buffered across reads.
//
// # Heartbeat
//
// Every connection is probed periodically through the same request/response path. The
// WebSocket variant probes every 30 seconds and terminates connections that miss a probe,
// recording half the round trip as the connection's latency. The TCP variant probes every
// 5 seconds, records the full round trip, and leaves termination to transport close/error
// events.
//
// # Rate Limiting
//
// Each client has independent token-bucket rate limiting on inbound messages:
//
//	// Default: 100 messages/second, burst 200
//	cfg := &ws.Config{Addr: ":8080", RateLimit: ws.DefaultRateLimit()}
//
//	// Disabled
//	cfg := &ws.Config{Addr: ":8080", RateLimit: ws.NoRateLimit()}
//
// A client exceeding the limit is disconnected (close code 1008 on WebSocket).
//
// # Important
//
//   - A malformed frame is logged and discarded; it never closes the connection.
//   - Listener and callback invocation order is registration order; wildcard listeners
//     run before name-specific ones.
//   - Construct one server per listening endpoint; nothing is shared across instances.
//   - Configure CheckOrigin in production (never use ws.AllOrigins() in production).
package duplexnet
