package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/lyceum-cloud/uplink/internal/flagx"
	"github.com/lyceum-cloud/uplink/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations use
// timex.Duration so JSON can specify them either as strings like "5s" or as
// integer nanoseconds.
type JsonConfig struct {
	APIBaseURL         string         `json:"api_base_url"`
	StateDSN           string         `json:"state_dsn"`
	Backend            string         `json:"backend"`
	MaxConcurrent      int            `json:"max_concurrent"`
	LargeFileThreshold int64          `json:"large_file_threshold"`
	ChunkSize          int64          `json:"chunk_size"`
	RetryDelay         timex.Duration `json:"retry_delay"`
	SaveInterval       timex.Duration `json:"save_interval"`

	S3Region    string `json:"s3_region"`
	S3Endpoint  string `json:"s3_endpoint"`
	S3Bucket    string `json:"s3_bucket"`
	S3AccessKey string `json:"s3_access_key"`
	S3SecretKey string `json:"s3_secret_key"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// the -c/-config flag, if any. Only fields present in the file (non-zero
// after unmarshal) override the current values. Read and parse errors panic;
// a config file that exists but cannot be used is a startup defect.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.APIBaseURL != "" {
		cfg.APIBaseURL = jc.APIBaseURL
	}
	if jc.StateDSN != "" {
		cfg.StateDSN = jc.StateDSN
	}
	if jc.Backend != "" {
		cfg.Backend = jc.Backend
	}
	if jc.MaxConcurrent != 0 {
		cfg.MaxConcurrent = jc.MaxConcurrent
	}
	if jc.LargeFileThreshold != 0 {
		cfg.LargeFileThreshold = jc.LargeFileThreshold
	}
	if jc.ChunkSize != 0 {
		cfg.ChunkSize = jc.ChunkSize
	}
	if jc.RetryDelay.Duration != 0 {
		cfg.RetryDelay = time.Duration(jc.RetryDelay.Duration)
	}
	if jc.SaveInterval.Duration != 0 {
		cfg.SaveInterval = time.Duration(jc.SaveInterval.Duration)
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3Endpoint != "" {
		cfg.S3Endpoint = jc.S3Endpoint
	}
	if jc.S3Bucket != "" {
		cfg.S3Bucket = jc.S3Bucket
	}
	if jc.S3AccessKey != "" {
		cfg.S3AccessKey = jc.S3AccessKey
	}
	if jc.S3SecretKey != "" {
		cfg.S3SecretKey = jc.S3SecretKey
	}
}
