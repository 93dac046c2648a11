// Package config loads runtime configuration for the notesync REPL and the
// notesyncd daemon.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// DatabaseDSN defaults to <DataDir>/notes.db once all layers are applied.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "15m" or
// integer nanoseconds:
//
//	{
//	  "data_dir": "/home/me/.notesync",
//	  "remote_backend": "s3",
//	  "s3_bucket": "notes",
//	  "sync_interval": "10m",
//	  "interval_jitter": 0.2
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
