// Command duplexnetd runs standalone duplexnet protocol servers from a
// TOML configuration file, exposing prometheus metrics for each enabled
// transport.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/luciancaetano/duplexnet"
	"github.com/luciancaetano/duplexnet/tcp"
	"github.com/luciancaetano/duplexnet/ws"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "duplexnetd",
		Short:        "duplex messaging protocol server (WebSocket and TCP)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.DevLogging)
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var servers []duplexnet.Server

	if cfg.WebSocket.Enabled {
		wsLog := logger.With().Str("component", "ws").Logger()
		server, err := ws.New(&ws.Config{
			Addr:       cfg.WebSocket.Addr,
			Path:       cfg.WebSocket.Path,
			Encoding:   cfg.Encoding,
			DevLogging: cfg.DevLogging,
			Logger:     &wsLog,
			Registerer: prometheus.WrapRegistererWith(prometheus.Labels{"transport": "ws"}, reg),
		})
		if err != nil {
			return err
		}
		hookLifecycle(server, wsLog)
		servers = append(servers, server)
	}

	if cfg.TCP.Enabled {
		tcpLog := logger.With().Str("component", "tcp").Logger()
		server, err := tcp.New(&tcp.Config{
			Addr:       cfg.TCP.Addr,
			Encoding:   cfg.Encoding,
			DevLogging: cfg.DevLogging,
			Logger:     &tcpLog,
			Registerer: prometheus.WrapRegistererWith(prometheus.Labels{"transport": "tcp"}, reg),
		})
		if err != nil {
			return err
		}
		hookLifecycle(server, tcpLog)
		servers = append(servers, server)
	}

	for _, server := range servers {
		if err := server.Start(ctx); err != nil {
			return err
		}
	}
	logger.Info().
		Bool("websocket", cfg.WebSocket.Enabled).
		Bool("tcp", cfg.TCP.Enabled).
		Msg("duplexnetd started")

	metricsSrv := startMetrics(cfg.Metrics.Addr, reg, logger)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, server := range servers {
		if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, duplexnet.ErrNotRunning) {
			logger.Error().Err(err).Msg("server stop failed")
		}
	}
	return metricsSrv.Shutdown(shutdownCtx)
}

// hookLifecycle logs connection churn through the daemon's logger.
func hookLifecycle(server duplexnet.Server, log zerolog.Logger) {
	server.OnConnect(func(client duplexnet.Client) {
		log.Info().Str("client_id", client.ID()).Str("remote_addr", client.RemoteAddr()).Msg("client connected")
	})
	server.OnDisconnect(func(client duplexnet.Client, reason duplexnet.DisconnectReason) {
		log.Info().Str("client_id", client.ID()).Str("reason", string(reason)).Msg("client disconnected")
	})
}

func startMetrics(addr string, reg *prometheus.Registry, logger zerolog.Logger) *http.Server {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}

func newLogger(dev bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().Timestamp().Str("app", "duplexnetd").Logger()
	if !dev {
		logger = logger.Level(zerolog.InfoLevel)
	}
	return logger
}
