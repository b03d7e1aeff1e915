// Package config loads daemon and client settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Server configures the relay daemon.
type Server struct {
	// ListenAddr is the TCP address the relay binds.
	ListenAddr string `env:"NYXAR_LISTEN_ADDR" envDefault:":9470"`
	// DatabaseDSN selects the PostgreSQL store. Empty means the
	// in-memory store: nothing survives a restart.
	DatabaseDSN string `env:"NYXAR_DATABASE_DSN"`
	// Noise requires the encrypted channel on every connection.
	Noise bool `env:"NYXAR_NOISE"`
	// LogLevel is a logrus level name.
	LogLevel string `env:"NYXAR_LOG_LEVEL" envDefault:"info"`
}

// Client configures the command-line client.
type Client struct {
	// RelayAddr is the relay's host:port.
	RelayAddr string `env:"NYXAR_RELAY_ADDR" envDefault:"127.0.0.1:9470"`
	// DataDir holds the encrypted identity store.
	DataDir string `env:"NYXAR_DATA_DIR"`
	// Noise upgrades the relay connection to the encrypted channel.
	Noise bool `env:"NYXAR_NOISE"`
	// LogLevel is a logrus level name.
	LogLevel string `env:"NYXAR_LOG_LEVEL" envDefault:"warn"`
}

// LoadServer reads the daemon configuration from the environment.
func LoadServer() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// LoadClient reads the client configuration from the environment.
func LoadClient() (Client, error) {
	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return Client{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Client{}, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".nyxar")
	}
	return cfg, nil
}

// ApplyLogLevel configures the global logger from a level name.
func ApplyLogLevel(name string) error {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	logrus.SetLevel(level)
	return nil
}
