package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/auth"
	"github.com/dmitrijs2005/notesync/internal/client/bootstrap"
	"github.com/dmitrijs2005/notesync/internal/client/cli"
	"github.com/dmitrijs2005/notesync/internal/client/config"
	"github.com/dmitrijs2005/notesync/internal/client/triggers"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.LoadConfig(os.Args[1:])
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}

	// the REPL owns the terminal, so logs go to a file unless asked otherwise
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = filepath.Join(cfg.DataDir, "notesync.log")
	}
	logger, closer := logging.New(logging.Options{Level: cfg.LogLevel, File: logFile, MaxSizeMB: 10, MaxBackups: 3})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in := bufio.NewReader(os.Stdin)
	console := cli.NewConsole(os.Stdout)
	prompter := &auth.TerminalPrompter{Reader: in, Out: console, Backend: cfg.RemoteBackend}

	rt, err := bootstrap.Open(ctx, cfg, logger, prompter, console)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer rt.Close()

	gate := triggers.NewSessionGate(rt.Engine, rt.State, logger, cfg.SessionDebounce, cfg.CycleTimeout)
	start := startup{rt: rt, gate: gate, log: logger, timeout: cfg.CycleTimeout}

	cli.NewApp(rt.Notes, rt.Engine, start, in, console).Run(ctx)
	return 0
}

// startup runs the install/update path, then the session sync.
type startup struct {
	rt      *bootstrap.Runtime
	gate    *triggers.SessionGate
	log     logging.Logger
	timeout time.Duration
}

func (s startup) Fire(ctx context.Context) bool {
	triggers.Startup(ctx, s.rt.Engine, s.rt.State, s.rt.Auth, s.log, s.timeout)
	return s.gate.Fire(ctx)
}
