// Package config assembles the runtime settings for the uplink CLI in three
// layers: built-in defaults, an optional JSON file (-c/-config), then
// command-line flags. Later layers win.
package config

import (
	"time"

	"github.com/lyceum-cloud/uplink/internal/common"
)

// Config holds runtime settings for the uplink engine and CLI.
type Config struct {
	// APIBaseURL is the platform storage API root, e.g.
	// "https://files.lyceum.cloud". All HTTP requests are built from it.
	APIBaseURL string

	// StateDSN locates the durable task store. Plain values are SQLite
	// paths; postgres:// DSNs select the PostgreSQL backend.
	StateDSN string

	// Backend chooses the remote object store: "http" (default) or "s3".
	Backend string

	MaxConcurrent      int
	LargeFileThreshold int64
	ChunkSize          int64
	RetryDelay         time.Duration
	SaveInterval       time.Duration

	// S3 settings, used only when Backend is "s3".
	S3Region    string
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}

// LoadDefaults populates c with the built-in defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://127.0.0.1:8080"
	c.StateDSN = "uplink.db"
	c.Backend = "http"
	c.MaxConcurrent = common.DefaultMaxConcurrentUploads
	c.LargeFileThreshold = common.DefaultLargeFileThreshold
	c.ChunkSize = common.DefaultChunkSize
	c.RetryDelay = common.DefaultRetryDelay
	c.SaveInterval = common.DefaultSaveInterval
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
