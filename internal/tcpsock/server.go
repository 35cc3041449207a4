// Package tcpsock implements the stream-oriented transport variant over
// raw TCP. The byte stream carries no message boundaries, so frames are
// delimiter-terminated and partial frames are buffered across reads.
package tcpsock

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/duplexnet"
	"github.com/luciancaetano/duplexnet/internal/core"
	"github.com/luciancaetano/duplexnet/internal/protocol"
)

const readBufferSize = 4096

// Config configures one TCP server instance.
type Config struct {
	// Addr is the listen address, e.g. ":9000" or "localhost:9000".
	Addr string
	// RateLimit is the per-client inbound limit. Nil means the default
	// (100 msg/s, burst 200).
	RateLimit *core.RateLimitConfig
	// Encoding is the wire text encoding. Empty or "utf8" means no
	// conversion; anything else requires Codec.
	Encoding string
	// Codec converts between the configured encoding and UTF-8.
	Codec duplexnet.TextCodec
	// DevLogging enables verbose connect/disconnect/listen logging.
	DevLogging bool
	// Logger overrides the default stderr logger.
	Logger *zerolog.Logger
	// CallTimeout overrides the 5s pending-call timeout.
	CallTimeout time.Duration
	// HeartbeatInterval overrides the 5s probe interval.
	HeartbeatInterval time.Duration
	// Registerer receives the engine metrics.
	Registerer prometheus.Registerer
}

// Server is the TCP variant of the protocol server.
type Server struct {
	*core.Engine

	addr      string
	rateLimit *core.RateLimitConfig
	log       zerolog.Logger

	mu       sync.Mutex
	running  bool
	listener net.Listener
}

// New creates a TCP protocol server from cfg.
func New(cfg *Config) (*Server, error) {
	if cfg.Encoding != "" && cfg.Encoding != duplexnet.DefaultEncoding && cfg.Codec == nil {
		return nil, duplexnet.ErrEncodingCodec
	}
	logger := core.NewLogger("tcp", cfg.DevLogging)
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	rl := cfg.RateLimit
	if rl == nil {
		rl = core.DefaultRateLimit()
	}
	hb := core.StreamHeartbeat()
	if cfg.HeartbeatInterval > 0 {
		hb.Interval = cfg.HeartbeatInterval
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
		rateLimit: rl,
		log:       logger,
	}, nil
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Debug().Msg("start ignored, server already running")
		return duplexnet.ErrAlreadyRunning
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.log.Debug().Str("addr", s.addr).Msg("listening")
	go s.acceptLoop(listener)
	return nil
}

// Stop closes the listening socket and drops all tracked connections.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.log.Error().Msg("stop ignored, server is not running")
		return duplexnet.ErrNotRunning
	}
	s.running = false
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	s.CloseAll()
	if listener != nil {
		return listener.Close()
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

// Addr returns the bound listener address, or "" when the server is not
// running. Useful when the configured address picks an ephemeral port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error().Err(err).Msg("accept failed")
			return
		}

		l := newLink(conn, s.rateLimit)
		c := s.Attach(l)
		go s.readLoop(c, l)
	}
}

// readLoop pumps the byte stream into the per-connection frame decoder.
// Each read is appended to the accumulation buffer; complete
// delimiter-terminated frames are extracted in order and any trailing
// fragment is retained for the next read.
func (s *Server) readLoop(conn *core.Conn, l *link) {
	defer l.Close()

	decoder := &protocol.StreamDecoder{}
	buf := make([]byte, readBufferSize)

	for {
		n, err := l.conn.Read(buf)
		if n > 0 {
			for _, frame := range decoder.Feed(buf[:n]) {
				if !l.allow() {
					s.log.Warn().Str("client_id", conn.ID()).Str("remote_addr", l.RemoteAddr()).Msg("rate limit exceeded")
					s.Detach(conn, duplexnet.DisconnectError)
					return
				}
				s.HandleFrame(conn, frame)
			}
		}
		if err != nil {
			reason := duplexnet.DisconnectError
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				reason = duplexnet.DisconnectEnd
			}
			if conn.HeartbeatFailed() {
				reason = duplexnet.DisconnectError
			}
			s.Detach(conn, reason)
			return
		}
	}
}

var _ duplexnet.Server = (*Server)(nil)
