package core

import "golang.org/x/time/rate"

// RateLimitConfig defines per-client inbound message rate limiting.
type RateLimitConfig struct {
	// MessagesPerSecond is the sustained rate one client may send.
	MessagesPerSecond rate.Limit
	// Burst is the token bucket capacity.
	Burst int
	// Enabled determines if rate limiting is active.
	Enabled bool
}

// DefaultRateLimit allows 100 messages per second with burst of 200.
func DefaultRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled.
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// NewLimiter builds one client's limiter, or nil when limiting is off.
func (c *RateLimitConfig) NewLimiter() *rate.Limiter {
	if c == nil || !c.Enabled {
		return nil
	}
	return rate.NewLimiter(c.MessagesPerSecond, c.Burst)
}
