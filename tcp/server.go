// Package tcp is the public constructor for the stream-oriented (raw TCP)
// variant of the duplexnet protocol server.
package tcp

import (
	"github.com/luciancaetano/duplexnet"
	"github.com/luciancaetano/duplexnet/internal/core"
	"github.com/luciancaetano/duplexnet/internal/tcpsock"
)

type Config = tcpsock.Config
type RateLimitConfig = core.RateLimitConfig

// New creates a TCP protocol server.
//
// Example:
//
//	server, err := tcp.New(&tcp.Config{Addr: ":9000"})
func New(cfg *Config) (duplexnet.Server, error) {
	return tcpsock.New(cfg)
}

// DefaultRateLimit allows 100 messages per second with burst of 200.
func DefaultRateLimit() *RateLimitConfig {
	return core.DefaultRateLimit()
}

// NoRateLimit returns a configuration with rate limiting disabled.
func NoRateLimit() *RateLimitConfig {
	return core.NoRateLimit()
}
