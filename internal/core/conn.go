package core

import (
	"context"
	"sync"
	"time"

	"github.com/luciancaetano/duplexnet"
)

// Link is the transport capability set the engine needs from one accepted
// connection. The message-oriented transport writes one frame per message;
// the stream-oriented transport suffixes the frame delimiter itself.
type Link interface {
	// WriteFrame queues one encoded frame for delivery. It must not
	// block the engine beyond ctx.
	WriteFrame(ctx context.Context, frame []byte) error

	// Close terminates the connection. The transport's read loop then
	// observes the close and detaches the connection from the engine.
	Close() error

	// RemoteAddr returns the peer address ("IP:port").
	RemoteAddr() string
}

// Conn is one registered connection. It is created when the transport
// accepts a peer and destroyed on close, error or failed heartbeat. The
// transport handle is exclusively owned by this entry and never shared.
type Conn struct {
	mu       sync.RWMutex
	id       string
	link     Link
	alive    bool
	latency  time.Duration
	hbFailed bool
	stopHB   func()
}

// ID returns the connection identifier, or "" once the connection has been
// destroyed. The id is cleared at destruction so late-arriving callbacks
// cannot misattribute work to a reused handle.
func (c *Conn) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() string {
	return c.link.RemoteAddr()
}

// Latency returns the last heartbeat-measured latency, or
// duplexnet.UnmeasuredLatency before the first completed probe.
func (c *Conn) Latency() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latency
}

// Alive reports whether the connection is still registered and its most
// recent heartbeat probe (where the policy tracks one) was answered.
func (c *Conn) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id != "" && c.alive
}

// Close terminates the connection. Disconnect callbacks run once, driven
// by the transport's close event.
func (c *Conn) Close(ctx context.Context) error {
	return c.link.Close()
}

func (c *Conn) setLatency(d time.Duration) {
	c.mu.Lock()
	c.latency = d
	c.mu.Unlock()
}

func (c *Conn) setAlive(v bool) {
	c.mu.Lock()
	c.alive = v
	c.mu.Unlock()
}

// markHeartbeatFailed records that the heartbeat monitor is terminating
// this connection. Set before the link is closed so the transport's read
// loop can report the disconnect as an error rather than a peer close.
func (c *Conn) markHeartbeatFailed() {
	c.mu.Lock()
	c.hbFailed = true
	c.mu.Unlock()
}

// HeartbeatFailed reports whether the heartbeat monitor terminated this
// connection.
func (c *Conn) HeartbeatFailed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hbFailed
}

// reset clears identity and measurement state at destruction.
func (c *Conn) reset() {
	c.mu.Lock()
	c.id = ""
	c.alive = false
	c.latency = duplexnet.UnmeasuredLatency
	c.mu.Unlock()
}

var _ duplexnet.Client = (*Conn)(nil)
