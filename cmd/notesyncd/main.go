package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/notesync/internal/client/config"
	"github.com/dmitrijs2005/notesync/internal/client/daemon"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

func main() {

	cfg := config.LoadConfig(os.Args[1:])
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, closer := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, MaxSizeMB: 10, MaxBackups: 3})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app, err := daemon.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "failed to start", "error", err)
		return
	}

	app.Run(ctx)

}
