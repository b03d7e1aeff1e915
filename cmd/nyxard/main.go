// Command nyxard runs the message relay daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shakilkhan1801/NYXAR/config"
	"github.com/shakilkhan1801/NYXAR/presence"
	"github.com/shakilkhan1801/NYXAR/relay"
	"github.com/shakilkhan1801/NYXAR/storage"
	"github.com/shakilkhan1801/NYXAR/storage/postgres"
	"github.com/shakilkhan1801/NYXAR/transport"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Fatal("Relay terminated")
	}
}

func rootCommand() *cobra.Command {
	cfg, err := config.LoadServer()

	cmd := &cobra.Command{
		Use:          "nyxard",
		Short:        "Nyxar message relay",
		Long:         "nyxard relays end-to-end encrypted messages and call signaling between Nyxar clients, queueing messages for offline recipients.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err != nil {
				return err
			}
			if err := config.ApplyLogLevel(cfg.LogLevel); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "TCP listen address")
	cmd.Flags().StringVar(&cfg.DatabaseDSN, "dsn", cfg.DatabaseDSN, "PostgreSQL DSN (empty for in-memory storage)")
	cmd.Flags().BoolVar(&cfg.Noise, "noise", cfg.Noise, "require the encrypted channel on every connection")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	return cmd
}

func run(ctx context.Context, cfg config.Server) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		directory storage.DirectoryStore
		queue     storage.QueueStore
	)
	if cfg.DatabaseDSN != "" {
		store, err := postgres.Connect(ctx, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		directory, queue = store, store
	} else {
		logrus.WithFields(logrus.Fields{
			"function": "run",
		}).Warn("No database configured, offline messages will not survive a restart")
		mem := storage.NewMemoryStore()
		directory, queue = mem, mem
	}

	var static *noise.DHKey
	if cfg.Noise {
		key, err := transport.GenerateStaticKey()
		if err != nil {
			return err
		}
		static = &key
	}

	r := relay.New(presence.NewRegistry(directory), queue)
	srv, err := relay.NewServer(cfg.ListenAddr, static, r)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	select {
	case <-ctx.Done():
		logrus.WithFields(logrus.Fields{
			"function": "run",
		}).Info("Shutting down")
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
