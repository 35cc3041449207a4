// Package websocket implements the message-oriented transport variant on
// top of the Gorilla WebSocket library. One wire frame is one WebSocket
// message; the transport guarantees the boundaries.
package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/duplexnet"
	"github.com/luciancaetano/duplexnet/internal/core"
)

// CheckOriginFn validates the origin of a WebSocket connection request.
// Return true to allow the connection.
type CheckOriginFn = func(r *http.Request) bool

// Config configures one WebSocket server instance.
type Config struct {
	// Addr is the listen address, e.g. ":8080" or "localhost:8080".
	Addr string
	// Path is the upgrade endpoint. Default "/ws".
	Path string
	// CheckOrigin validates connection origins (CORS). Nil rejects
	// cross-origin requests (the Gorilla default).
	CheckOrigin CheckOriginFn
	// RateLimit is the per-client inbound limit. Nil means the default
	// (100 msg/s, burst 200).
	RateLimit *core.RateLimitConfig
	// Encoding is the wire text encoding. Empty or "utf8" means no
	// conversion; anything else requires Codec.
	Encoding string
	// Codec converts between the configured encoding and UTF-8.
	Codec duplexnet.TextCodec
	// DevLogging enables verbose connect/disconnect/listen logging.
	// Error logging is unconditional.
	DevLogging bool
	// Logger overrides the default stderr logger.
	Logger *zerolog.Logger
	// CallTimeout overrides the 5s pending-call timeout.
	CallTimeout time.Duration
	// HeartbeatInterval overrides the 30s probe interval.
	HeartbeatInterval time.Duration
	// Registerer receives the engine metrics. Nil keeps them on a
	// private registry.
	Registerer prometheus.Registerer
}

// Server is the WebSocket variant of the protocol server. The embedded
// engine provides the listener, lifecycle and client surface; the server
// adds transport bootstrap and the running-state guards.
type Server struct {
	*core.Engine

	addr      string
	path      string
	rateLimit *core.RateLimitConfig
	upgrader  websocket.Upgrader
	server    *http.Server
	log       zerolog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a WebSocket protocol server from cfg.
func New(cfg *Config) (*Server, error) {
	if cfg.Encoding != "" && cfg.Encoding != duplexnet.DefaultEncoding && cfg.Codec == nil {
		return nil, duplexnet.ErrEncodingCodec
	}
	logger := core.NewLogger("ws", cfg.DevLogging)
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	rl := cfg.RateLimit
	if rl == nil {
		rl = core.DefaultRateLimit()
	}
	hb := core.MessageHeartbeat()
	if cfg.HeartbeatInterval > 0 {
		hb.Interval = cfg.HeartbeatInterval
	}
	path := cfg.Path
	if path == "" {
		path = "/ws"
	}

	var codec duplexnet.TextCodec
	if cfg.Encoding != "" && cfg.Encoding != duplexnet.DefaultEncoding {
		codec = cfg.Codec
	}

	return &Server{
		Engine: core.NewEngine(core.Options{
			Logger:      logger,
			Codec:       codec,
			CallTimeout: cfg.CallTimeout,
			Heartbeat:   hb,
			Registerer:  cfg.Registerer,
		}),
		addr:      cfg.Addr,
		path:      path,
		rateLimit: rl,
		log:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}, nil
}

// Start begins accepting connections. Calling Start on a running server
// logs a message and returns ErrAlreadyRunning.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Debug().Msg("start ignored, server already running")
		return duplexnet.ErrAlreadyRunning
	}
	s.running = true

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleUpgrade)
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Surface immediate bind errors before declaring the server up.
	select {
	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		s.log.Debug().Str("addr", s.addr).Str("path", s.path).Msg("listening")
		return nil
	}
}

// Stop closes the listening socket and drops all tracked connections.
// Calling Stop on a stopped server logs an error and returns
// ErrNotRunning.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.log.Error().Msg("stop ignored, server is not running")
		return duplexnet.ErrNotRunning
	}
	s.running = false
	server := s.server
	s.mu.Unlock()

	s.CloseAll()
	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// Send broadcasts a fire-and-forget event frame to every connected client.
func (s *Server) Send(ctx context.Context, event string, args ...any) error {
	if !s.isRunning() {
		s.log.Error().Str("event", event).Msg("send ignored, server is not running")
		return duplexnet.ErrNotRunning
	}
	return s.Engine.Broadcast(ctx, event, args...)
}

// SendTo sends a fire-and-forget event frame to one client.
func (s *Server) SendTo(ctx context.Context, clientID, event string, args ...any) error {
	if !s.isRunning() {
		s.log.Error().Str("event", event).Msg("send ignored, server is not running")
		return duplexnet.ErrNotRunning
	}
	return s.Engine.SendTo(ctx, clientID, event, args...)
}

// Call sends a correlated request to one client.
func (s *Server) Call(ctx context.Context, clientID, event string, args []any, reply duplexnet.ResponseHandler) error {
	if !s.isRunning() {
		s.log.Error().Str("event", event).Msg("call ignored, server is not running")
		return duplexnet.ErrNotRunning
	}
	return s.Engine.Call(ctx, clientID, event, args, reply)
}

func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// handleUpgrade accepts one incoming WebSocket connection.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	l := newLink(wsConn, r.RemoteAddr, s.rateLimit)
	conn := s.Attach(l)
	go s.readLoop(conn, l)
}

// readLoop pumps inbound messages into the engine until the connection
// ends. Each message is one complete frame.
func (s *Server) readLoop(conn *core.Conn, l *link) {
	defer l.Close()

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			reason := duplexnet.DisconnectError
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) {
				reason = duplexnet.DisconnectEnd
			}
			// A locally closed link reads as net.ErrClosed; when the
			// heartbeat monitor did the closing the disconnect is an
			// error, not a peer close.
			if conn.HeartbeatFailed() {
				reason = duplexnet.DisconnectError
			}
			s.Detach(conn, reason)
			return
		}

		if !l.allow() {
			s.log.Warn().Str("client_id", conn.ID()).Str("remote_addr", l.RemoteAddr()).Msg("rate limit exceeded")
			l.closeWithCode(websocket.ClosePolicyViolation, "rate limit exceeded")
			s.Detach(conn, duplexnet.DisconnectError)
			return
		}

		s.HandleFrame(conn, data)
	}
}

var _ duplexnet.Server = (*Server)(nil)
