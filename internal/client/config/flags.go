package config

import (
	"flag"

	"github.com/dmitrijs2005/notesync/internal/flagx"
)

var (
	valueFlags = []string{
		"-d", "-db", "-backend", "-file", "-folder", "-drive-url",
		"-s3-region", "-s3-bucket", "-s3-endpoint",
		"-interval", "-jitter", "-session-debounce", "-local-debounce",
		"-cycle-timeout", "-remote-timeout",
		"-status-addr", "-health-addr", "-log-file", "-log-level",
	}
	boolFlags = []string{"-v"}
)

// parseFlags populates Config fields from command-line flags. Only the
// flags listed above are looked at, so other components may share args.
// It panics on invalid values.
func parseFlags(cfg *Config, args []string) {
	fs := flag.NewFlagSet("notesync", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.DatabaseDSN, "db", cfg.DatabaseDSN, "database DSN (SQLite path or postgres:// URL)")
	fs.StringVar(&cfg.RemoteBackend, "backend", cfg.RemoteBackend, "remote backend: drive or s3")
	fs.StringVar(&cfg.FileName, "file", cfg.FileName, "remote snapshot file name")
	fs.StringVar(&cfg.FolderName, "folder", cfg.FolderName, "visible folder name")
	fs.StringVar(&cfg.DriveAPIBaseURL, "drive-url", cfg.DriveAPIBaseURL, "Drive API base URL")
	fs.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3BaseEndpoint, "s3-endpoint", cfg.S3BaseEndpoint, "S3-compatible endpoint URL")
	fs.DurationVar(&cfg.SyncInterval, "interval", cfg.SyncInterval, "periodic sync interval, 0 disables")
	fs.Float64Var(&cfg.IntervalJitter, "jitter", cfg.IntervalJitter, "periodic sync jitter ratio")
	fs.DurationVar(&cfg.SessionDebounce, "session-debounce", cfg.SessionDebounce, "minimum time between session syncs")
	fs.DurationVar(&cfg.LocalChangeDebounce, "local-debounce", cfg.LocalChangeDebounce, "quiet time after local writes before syncing")
	fs.DurationVar(&cfg.CycleTimeout, "cycle-timeout", cfg.CycleTimeout, "deadline for one sync cycle")
	fs.DurationVar(&cfg.RemoteCallTimeout, "remote-timeout", cfg.RemoteCallTimeout, "deadline for one remote call")
	fs.StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "status websocket/HTTP listen address, empty disables")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "gRPC health listen address, empty disables")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "log file (rotated), stderr when empty")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	verbose := fs.Bool("v", false, "shorthand for -log-level debug")

	if err := fs.Parse(flagx.FilterArgs(args, valueFlags, boolFlags)); err != nil {
		panic(err)
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}
}
