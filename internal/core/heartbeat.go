package core

import (
	"context"
	"time"

	"github.com/luciancaetano/duplexnet"
)

// HeartbeatPolicy controls the per-connection liveness probe. The two
// transports differ only in cadence and in what a missed probe means.
type HeartbeatPolicy struct {
	// Interval between probes. Zero disables the heartbeat.
	Interval time.Duration
	// TerminateOnMiss forcibly closes a connection whose previous probe
	// went unanswered.
	TerminateOnMiss bool
	// HalfRoundTrip records half the measured round trip as the
	// connection latency instead of the full round trip.
	HalfRoundTrip bool
}

// MessageHeartbeat is the policy for the message-oriented transport:
// probe every 30s, terminate on a missed pong, record one-way latency.
func MessageHeartbeat() HeartbeatPolicy {
	return HeartbeatPolicy{
		Interval:        30 * time.Second,
		TerminateOnMiss: true,
		HalfRoundTrip:   true,
	}
}

// StreamHeartbeat is the policy for the stream-oriented transport: probe
// every 5s, record the full round trip, and leave dead-connection
// detection to transport close/error events.
func StreamHeartbeat() HeartbeatPolicy {
	return HeartbeatPolicy{
		Interval: 5 * time.Second,
	}
}

// startHeartbeat runs the probe loop for one connection and returns its
// stop handle. The loop also exits on its own once the connection leaves
// the registry.
func (e *Engine) startHeartbeat(conn *Conn) func() {
	if e.hb.Interval <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	go e.heartbeatLoop(conn, stop)
	return func() { close(stop) }
}

func (e *Engine) heartbeatLoop(conn *Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(e.hb.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !e.registry.has(conn) {
				return
			}
			if e.hb.TerminateOnMiss {
				if !conn.Alive() {
					e.log.Debug().Str("client_id", conn.ID()).Msg("heartbeat unanswered, terminating connection")
					conn.markHeartbeatFailed()
					conn.link.Close()
					return
				}
				// Cleared until the pong handler sets it back.
				conn.setAlive(false)
			}
			e.probe(conn)
		}
	}
}

// probe sends one correlated ping through the regular request/response
// path and records latency from its response.
func (e *Engine) probe(conn *Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), e.calls.timeout)
	defer cancel()

	start := time.Now()
	err := e.callConn(ctx, conn, duplexnet.HeartbeatEvent, nil, func([]any) {
		rtt := time.Since(start)
		if e.hb.HalfRoundTrip {
			rtt /= 2
		}
		conn.setLatency(rtt)
		conn.setAlive(true)
		e.metrics.HeartbeatLatency.Set(rtt.Seconds())
	})
	if err != nil {
		e.log.Debug().Str("client_id", conn.ID()).Err(err).Msg("heartbeat probe failed")
	}
}
