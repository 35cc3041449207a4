// Package ws is the public constructor for the message-oriented
// (WebSocket) variant of the duplexnet protocol server.
package ws

import (
	"net/http"

	"github.com/luciancaetano/duplexnet"
	"github.com/luciancaetano/duplexnet/internal/core"
	"github.com/luciancaetano/duplexnet/internal/websocket"
)

type Config = websocket.Config
type CheckOriginFn = websocket.CheckOriginFn
type RateLimitConfig = core.RateLimitConfig

// New creates a WebSocket protocol server.
//
// Example:
//
//	server, err := ws.New(&ws.Config{
//	    Addr:        ":8080",
//	    CheckOrigin: ws.AllOrigins(),
//	    RateLimit:   ws.DefaultRateLimit(),
//	})
func New(cfg *Config) (duplexnet.Server, error) {
	return websocket.New(cfg)
}

// AllOrigins returns a checkOrigin function that allows all origins.
// Never use it in production.
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimit allows 100 messages per second with burst of 200.
func DefaultRateLimit() *RateLimitConfig {
	return core.DefaultRateLimit()
}

// NoRateLimit returns a configuration with rate limiting disabled.
func NoRateLimit() *RateLimitConfig {
	return core.NoRateLimit()
}
