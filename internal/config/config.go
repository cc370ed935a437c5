// Package config loads runtime configuration from the environment.
// Command-line flags override individual fields after loading.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration.
type Config struct {
	DataDir    string
	ListenAddr string
	LogLevel   string

	// Remote backend
	RemoteURL   string
	RemoteToken string

	// Object storage for photos
	S3Endpoint       string
	S3Bucket         string
	S3AccessKey      string
	S3SecretKey      string
	S3Region         string
	S3ForcePathStyle bool

	// Photo drop directory; empty disables the intake watcher
	DropDir string

	SyncInterval      time.Duration
	ConnectivityProbe time.Duration
}

// FromEnv loads configuration from FIELDSYNC_* environment variables, with
// sensible defaults for a local deployment.
func FromEnv() *Config {
	return &Config{
		DataDir:    envOr("FIELDSYNC_DATA_DIR", "./data"),
		ListenAddr: envOr("FIELDSYNC_LISTEN_ADDR", "127.0.0.1:8090"),
		LogLevel:   envOr("FIELDSYNC_LOG_LEVEL", "INFO"),

		RemoteURL:   envOr("FIELDSYNC_REMOTE_URL", "http://localhost:8080"),
		RemoteToken: os.Getenv("FIELDSYNC_REMOTE_TOKEN"),

		S3Endpoint:       os.Getenv("FIELDSYNC_S3_ENDPOINT"),
		S3Bucket:         envOr("FIELDSYNC_S3_BUCKET", "fieldsync-photos"),
		S3AccessKey:      os.Getenv("FIELDSYNC_S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("FIELDSYNC_S3_SECRET_KEY"),
		S3Region:         envOr("FIELDSYNC_S3_REGION", "us-east-1"),
		S3ForcePathStyle: envBool("FIELDSYNC_S3_PATH_STYLE", false),

		DropDir: os.Getenv("FIELDSYNC_DROP_DIR"),

		SyncInterval:      envDuration("FIELDSYNC_SYNC_INTERVAL", time.Minute),
		ConnectivityProbe: envDuration("FIELDSYNC_PROBE_INTERVAL", 10*time.Second),
	}
}

// PhotoUploadEnabled reports whether object storage is configured.
func (c *Config) PhotoUploadEnabled() bool {
	return c.S3Endpoint != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
