// Command hubd is the session runtime daemon: it spawns, supervises,
// and multiplexes interactive AI coding-agent CLIs over PTYs and
// exposes them to browser clients over WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/trybotster/hubd/internal/config"
	"github.com/trybotster/hubd/internal/daemon"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n\nPANIC: %v\n", r)
			os.Exit(1)
		}
	}()

	listenAddr := flag.String("listen", "", "override the configured listen address")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	level := slog.LevelInfo
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	logger.Info("hubd starting", "version", Version, "listen_addr", cfg.ListenAddr)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create daemon: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("hubd: received shutdown signal")
		cancel()
	}()

	if err := d.Run(ctx); err != nil {
		logger.Error("hubd: run error", "error", err)
		os.Exit(1)
	}
}
