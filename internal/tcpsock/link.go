package tcpsock

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/luciancaetano/duplexnet"
	"github.com/luciancaetano/duplexnet/internal/core"
	"github.com/luciancaetano/duplexnet/internal/protocol"
)

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 256
)

// link wraps one accepted TCP connection as a core.Link. The underlying
// channel is an undifferentiated byte stream, so every outbound frame is
// suffixed with the frame delimiter before it is written.
type link struct {
	conn    net.Conn
	sendCh  chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	closed  bool
	limiter *rate.Limiter
}

func newLink(conn net.Conn, rl *core.RateLimitConfig) *link {
	ctx, cancel := context.WithCancel(context.Background())
	l := &link{
		conn:    conn,
		sendCh:  make(chan []byte, sendQueueSize),
		ctx:     ctx,
		cancel:  cancel,
		limiter: rl.NewLimiter(),
	}
	go l.writePump()
	return l
}

// WriteFrame queues one encoded frame for delivery. The delimiter is
// appended by the write pump.
func (l *link) WriteFrame(ctx context.Context, frame []byte) error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return duplexnet.ErrConnectionClosed
	}

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

// Close closes the connection. Idempotent.
func (l *link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.cancel()
	close(l.sendCh)
	return l.conn.Close()
}

// RemoteAddr returns the peer's network address.
func (l *link) RemoteAddr() string {
	return l.conn.RemoteAddr().String()
}

// allow checks the client's inbound rate limit.
func (l *link) allow() bool {
	if l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}

// writePump pumps frames from the send channel to the socket, suffixing
// each with the delimiter. The context is cancelled on exit so writers
// stranded on a full queue unblock and Close can acquire the lock they
// hold.
func (l *link) writePump() {
	defer func() {
		l.cancel()
		l.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-l.sendCh:
			if !ok {
				return
			}
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if _, err := l.conn.Write(protocol.AppendDelimiter(frame)); err != nil {
				return
			}

		case <-l.ctx.Done():
			return
		}
	}
}

var _ core.Link = (*link)(nil)
