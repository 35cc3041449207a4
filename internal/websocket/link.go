package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/duplexnet"
	"github.com/luciancaetano/duplexnet/internal/core"
)

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 256
)

// link wraps one upgraded WebSocket connection as a core.Link. The
// transport guarantees message boundaries, so one frame is written as one
// text message with no extra delimiting.
type link struct {
	conn       *websocket.Conn
	remoteAddr string
	sendCh     chan []byte
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex
	closed     bool
	limiter    *rate.Limiter
}

func newLink(conn *websocket.Conn, remoteAddr string, rl *core.RateLimitConfig) *link {
	ctx, cancel := context.WithCancel(context.Background())
	l := &link{
		conn:       conn,
		remoteAddr: remoteAddr,
		sendCh:     make(chan []byte, sendQueueSize),
		ctx:        ctx,
		cancel:     cancel,
		limiter:    rl.NewLimiter(),
	}
	go l.writePump()
	return l
}

// WriteFrame queues one encoded frame for delivery.
func (l *link) WriteFrame(ctx context.Context, frame []byte) error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return duplexnet.ErrConnectionClosed
	}

	// Keep the lock while queueing to prevent a race with Close.
	select {
	case l.sendCh <- frame:
		l.mu.RUnlock()
		return nil
	case <-ctx.Done():
		l.mu.RUnlock()
		return ctx.Err()
	case <-l.ctx.Done():
		l.mu.RUnlock()
		return duplexnet.ErrConnectionClosed
	}
}

// Close closes the connection gracefully.
func (l *link) Close() error {
	return l.closeWithCode(websocket.CloseNormalClosure, "")
}

// closeWithCode closes the connection with a close code and optional
// reason. Idempotent.
func (l *link) closeWithCode(code int, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.cancel()

	message := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	l.conn.WriteControl(websocket.CloseMessage, message, deadline)

	close(l.sendCh)
	return l.conn.Close()
}

// RemoteAddr returns the peer's network address.
func (l *link) RemoteAddr() string {
	return l.remoteAddr
}

// allow checks the client's inbound rate limit. True when the message may
// be processed.
func (l *link) allow() bool {
	if l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}

// writePump pumps frames from the send channel to the connection. The
// context is cancelled on exit so writers stranded on a full queue
// unblock and Close can acquire the lock they hold.
func (l *link) writePump() {
	defer func() {
		l.cancel()
		l.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-l.sendCh:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed by closeWithCode.
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-l.ctx.Done():
			return
		}
	}
}

var _ core.Link = (*link)(nil)
