package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/notesync/internal/flagx"
	"github.com/dmitrijs2005/notesync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer and
// zero-value fields that are absent leave the Config untouched.
type JsonConfig struct {
	DataDir     string `json:"data_dir"`
	DatabaseDSN string `json:"database_dsn"`

	RemoteBackend   string `json:"remote_backend"`
	FileName        string `json:"file_name"`
	FolderName      string `json:"folder_name"`
	DriveAPIBaseURL string `json:"drive_api_base_url"`
	S3Region        string `json:"s3_region"`
	S3Bucket        string `json:"s3_bucket"`
	S3BaseEndpoint  string `json:"s3_base_endpoint"`

	AccessToken     string `json:"access_token"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`

	SyncInterval        *timex.Duration `json:"sync_interval"`
	IntervalJitter      *float64        `json:"interval_jitter"`
	SessionDebounce     *timex.Duration `json:"session_debounce"`
	LocalChangeDebounce *timex.Duration `json:"local_change_debounce"`
	CycleTimeout        *timex.Duration `json:"cycle_timeout"`
	RemoteCallTimeout   *timex.Duration `json:"remote_call_timeout"`

	StatusAddr string `json:"status_addr"`
	HealthAddr string `json:"health_addr"`
	LogFile    string `json:"log_file"`
	LogLevel   string `json:"log_level"`
}

// parseJson overlays Config with values loaded from the file given with -c
// or -config. It panics on read or unmarshal errors.
func parseJson(cfg *Config, args []string) {
	path := flagx.JSONConfigPath(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}
	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.RemoteBackend, jc.RemoteBackend)
	setString(&cfg.FileName, jc.FileName)
	setString(&cfg.FolderName, jc.FolderName)
	setString(&cfg.DriveAPIBaseURL, jc.DriveAPIBaseURL)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.Credential.AccessToken, jc.AccessToken)
	setString(&cfg.Credential.AccessKeyID, jc.AccessKeyID)
	setString(&cfg.Credential.SecretAccessKey, jc.SecretAccessKey)
	setString(&cfg.StatusAddr, jc.StatusAddr)
	setString(&cfg.HealthAddr, jc.HealthAddr)
	setString(&cfg.LogFile, jc.LogFile)
	setString(&cfg.LogLevel, jc.LogLevel)

	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.IntervalJitter != nil {
		cfg.IntervalJitter = *jc.IntervalJitter
	}
	if jc.SessionDebounce != nil {
		cfg.SessionDebounce = jc.SessionDebounce.Duration
	}
	if jc.LocalChangeDebounce != nil {
		cfg.LocalChangeDebounce = jc.LocalChangeDebounce.Duration
	}
	if jc.CycleTimeout != nil {
		cfg.CycleTimeout = jc.CycleTimeout.Duration
	}
	if jc.RemoteCallTimeout != nil {
		cfg.RemoteCallTimeout = jc.RemoteCallTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
