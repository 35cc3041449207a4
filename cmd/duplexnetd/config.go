package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the daemon's TOML configuration file.
type Config struct {
	DevLogging bool   `toml:"dev_logging"`
	Encoding   string `toml:"encoding"`

	WebSocket WebSocketConfig `toml:"websocket"`
	TCP       TCPConfig       `toml:"tcp"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

type WebSocketConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	Path    string `toml:"path"`
}

type TCPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

func loadConfig(path string) (Config, error) {
	cfg := Config{
		WebSocket: WebSocketConfig{Enabled: true, Addr: ":8080", Path: "/ws"},
		TCP:       TCPConfig{Enabled: false, Addr: ":9000"},
		Metrics:   MetricsConfig{Addr: ":9100"},
	}
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if !cfg.WebSocket.Enabled && !cfg.TCP.Enabled {
		return Config{}, fmt.Errorf("config %s enables no transport", path)
	}
	return cfg, nil
}
