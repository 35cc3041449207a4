package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/duplexnet"
	"github.com/luciancaetano/duplexnet/internal/core"
	"github.com/luciancaetano/duplexnet/internal/protocol"
)

// newTestServer runs the upgrade handler on an httptest listener so tests
// get an ephemeral port without racing on fixed addresses.
func newTestServer(t *testing.T, mods ...func(*Config)) (*Server, string) {
	t.Helper()

	cfg := &Config{
		Addr:              ":0",
		CheckOrigin:       func(*http.Request) bool { return true },
		HeartbeatInterval: time.Hour,
	}
	for _, mod := range mods {
		mod(cfg)
	}

	s, err := New(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(http.HandlerFunc(s.handleUpgrade))
	t.Cleanup(ts.Close)

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) (int32, []any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	id, args, err := protocol.Decode(data)
	require.NoError(t, err)
	return id, args
}

func TestNewRejectsEncodingWithoutCodec(t *testing.T) {
	t.Parallel()

	_, err := New(&Config{Addr: ":0", Encoding: "latin1"})
	assert.ErrorIs(t, err, duplexnet.ErrEncodingCodec)
}

// wireCodec marks wire bytes with a prefix so tests can observe the
// conversion in both directions.
type wireCodec struct{}

func (wireCodec) Encode(text []byte) ([]byte, error) {
	return append([]byte("w:"), text...), nil
}

func (wireCodec) Decode(raw []byte) ([]byte, error) {
	if !strings.HasPrefix(string(raw), "w:") {
		return nil, errors.New("missing wire marker")
	}
	return raw[2:], nil
}

func TestConfiguredCodecAppliesOnWire(t *testing.T) {
	t.Parallel()

	s, url := newTestServer(t, func(cfg *Config) {
		cfg.Encoding = "latin1"
		cfg.Codec = wireCodec{}
	})

	got := make(chan []any, 1)
	s.On("echo", func(c duplexnet.Client, args []any) { got <- args })

	conn := dial(t, url)
	require.Eventually(t, func() bool { return len(s.Clients()) == 1 },
		2*time.Second, 10*time.Millisecond)

	// Inbound frames arrive in the wire encoding and are converted
	// before dispatch.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`w:0["echo","hi"]`)))
	select {
	case args := <-got:
		assert.Equal(t, []any{"hi"}, args)
	case <-time.After(2 * time.Second):
		t.Fatal("encoded inbound frame never dispatched")
	}

	// Outbound frames are converted after encoding.
	require.NoError(t, s.Send(context.Background(), "announce", 1))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `w:0["announce",1]`, string(data))
}

func TestConnectAndDisconnectCallbacks(t *testing.T) {
	t.Parallel()

	s, url := newTestServer(t)

	connected := make(chan duplexnet.Client, 1)
	disconnected := make(chan duplexnet.DisconnectReason, 1)
	s.OnConnect(func(c duplexnet.Client) { connected <- c })
	s.OnDisconnect(func(c duplexnet.Client, reason duplexnet.DisconnectReason) {
		disconnected <- reason
	})

	conn := dial(t, url)

	var client duplexnet.Client
	select {
	case client = <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("connect callback never fired")
	}
	assert.NotEmpty(t, client.ID())
	assert.True(t, client.Alive())

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	select {
	case reason := <-disconnected:
		assert.Equal(t, duplexnet.DisconnectEnd, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback never fired")
	}

	assert.Eventually(t, func() bool { return len(s.Clients()) == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesAllClients(t *testing.T) {
	t.Parallel()

	s, url := newTestServer(t)
	a := dial(t, url)
	b := dial(t, url)

	require.Eventually(t, func() bool { return len(s.Clients()) == 2 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Send(context.Background(), "announce", 7))

	for _, conn := range []*websocket.Conn{a, b} {
		id, args := readFrame(t, conn)
		assert.Equal(t, duplexnet.NoReplyID, id)
		assert.Equal(t, []any{"announce", float64(7)}, args)
	}
	assert.Zero(t, s.PendingCalls())
}

func TestCallRoundTrip(t *testing.T) {
	t.Parallel()

	s, url := newTestServer(t)

	connected := make(chan duplexnet.Client, 1)
	s.OnConnect(func(c duplexnet.Client) { connected <- c })
	conn := dial(t, url)
	client := <-connected

	reply := make(chan []any, 1)
	require.NoError(t, s.Call(context.Background(), client.ID(), "sum", []any{2, 3},
		func(args []any) { reply <- args }))

	id, args := readFrame(t, conn)
	require.Positive(t, id)
	assert.Equal(t, []any{"sum", float64(2), float64(3)}, args)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(fmt.Sprintf("%d[5]", id))))

	select {
	case got := <-reply:
		assert.Equal(t, []any{float64(5)}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("response handler never fired")
	}
	assert.Zero(t, s.PendingCalls())
}

func TestInboundEventDispatch(t *testing.T) {
	t.Parallel()

	s, url := newTestServer(t)

	got := make(chan []any, 1)
	s.On("echo", func(c duplexnet.Client, args []any) { got <- args })

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`0["echo","hi",1]`)))

	select {
	case args := <-got:
		assert.Equal(t, []any{"hi", float64(1)}, args)
	case <-time.After(2 * time.Second):
		t.Fatal("event listener never fired")
	}
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	t.Parallel()

	s, url := newTestServer(t)

	got := make(chan []any, 1)
	s.On("ok", func(c duplexnet.Client, args []any) { got <- args })

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`abc[1,2]`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`0["ok"]`)))

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not survive the malformed frame")
	}
	assert.Len(t, s.Clients(), 1)
}

func TestUnansweredHeartbeatReportsErrorReason(t *testing.T) {
	t.Parallel()

	s, url := newTestServer(t, func(cfg *Config) {
		cfg.HeartbeatInterval = 25 * time.Millisecond
	})

	disconnected := make(chan duplexnet.DisconnectReason, 1)
	s.OnDisconnect(func(c duplexnet.Client, reason duplexnet.DisconnectReason) {
		disconnected <- reason
	})

	// Connect but never answer the probe frames: the monitor terminates
	// the connection and the disconnect is an error, not a peer close.
	dial(t, url)

	select {
	case reason := <-disconnected:
		assert.Equal(t, duplexnet.DisconnectError, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("unanswered heartbeat never terminated the connection")
	}
}

func TestRateLimitDisconnectsClient(t *testing.T) {
	t.Parallel()

	s, url := newTestServer(t, func(cfg *Config) {
		cfg.RateLimit = &core.RateLimitConfig{
			MessagesPerSecond: 1,
			Burst:             2,
			Enabled:           true,
		}
	})

	conn := dial(t, url)
	for i := 0; i < 10; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`0["spam"]`)); err != nil {
			break
		}
	}

	assert.Eventually(t, func() bool { return len(s.Clients()) == 0 },
		2*time.Second, 10*time.Millisecond, "rate-limited client was not dropped")
}

func TestStartStopGuards(t *testing.T) {
	t.Parallel()

	s, err := New(&Config{Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.ErrorIs(t, s.Start(ctx), duplexnet.ErrAlreadyRunning)

	require.NoError(t, s.Stop(ctx))
	assert.ErrorIs(t, s.Stop(ctx), duplexnet.ErrNotRunning)
	assert.ErrorIs(t, s.Send(ctx, "evt"), duplexnet.ErrNotRunning)
	assert.ErrorIs(t, s.SendTo(ctx, "id", "evt"), duplexnet.ErrNotRunning)
	assert.ErrorIs(t, s.Call(ctx, "id", "evt", nil, nil), duplexnet.ErrNotRunning)
}
