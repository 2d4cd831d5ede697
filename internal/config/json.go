package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/karsell/intake/internal/flagx"
	"github.com/karsell/intake/internal/timex"
)

// JsonConfig is the file-shaped counterpart of Config. Interval fields
// use timex.Duration so both "2s" and integer nanoseconds parse.
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	DatabaseDSN      string `json:"database_dsn"`
	CacheDSN         string `json:"cache_dsn"`
	RedisURL         string `json:"redis_url"`
	SecretKey        string `json:"secret_key"`

	TokenValidityDuration timex.Duration `json:"token_validity_duration"`

	S3AccessKeyID     string `json:"s3_access_key_id"`
	S3SecretAccessKey string `json:"s3_secret_access_key"`
	S3Bucket          string `json:"s3_bucket"`
	S3Region          string `json:"s3_region"`
	S3BaseEndpoint    string `json:"s3_base_endpoint"`
	S3PublicBaseURL   string `json:"s3_public_base_url"`

	KafkaBrokers string `json:"kafka_brokers"`
	KafkaTopic   string `json:"kafka_topic"`

	SaveDebounce      timex.Duration `json:"save_debounce"`
	InsuranceInterval timex.Duration `json:"insurance_interval"`
	MinSaveInterval   timex.Duration `json:"min_save_interval"`
	SnapshotCacheTTL  timex.Duration `json:"snapshot_cache_ttl"`
	ValuationTTL      timex.Duration `json:"valuation_ttl"`
	SubmitTimeout     timex.Duration `json:"submit_timeout"`

	SessionIdleTTL timex.Duration `json:"session_idle_ttl"`
	SweepCron      string         `json:"sweep_cron"`
}

// parseJson overlays values from the JSON file named by -c/-config onto
// cfg. Absent file means no overlay; an unreadable or invalid file is a
// startup failure.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	overlayString(&cfg.EndpointAddrHTTP, c.EndpointAddrHTTP)
	overlayString(&cfg.DatabaseDSN, c.DatabaseDSN)
	overlayString(&cfg.CacheDSN, c.CacheDSN)
	overlayString(&cfg.RedisURL, c.RedisURL)
	overlayString(&cfg.SecretKey, c.SecretKey)
	overlayDuration(&cfg.TokenValidityDuration, c.TokenValidityDuration)
	overlayString(&cfg.S3AccessKeyID, c.S3AccessKeyID)
	overlayString(&cfg.S3SecretAccessKey, c.S3SecretAccessKey)
	overlayString(&cfg.S3Bucket, c.S3Bucket)
	overlayString(&cfg.S3Region, c.S3Region)
	overlayString(&cfg.S3BaseEndpoint, c.S3BaseEndpoint)
	overlayString(&cfg.S3PublicBaseURL, c.S3PublicBaseURL)
	overlayString(&cfg.KafkaBrokers, c.KafkaBrokers)
	overlayString(&cfg.KafkaTopic, c.KafkaTopic)
	overlayDuration(&cfg.SaveDebounce, c.SaveDebounce)
	overlayDuration(&cfg.InsuranceInterval, c.InsuranceInterval)
	overlayDuration(&cfg.MinSaveInterval, c.MinSaveInterval)
	overlayDuration(&cfg.SnapshotCacheTTL, c.SnapshotCacheTTL)
	overlayDuration(&cfg.ValuationTTL, c.ValuationTTL)
	overlayDuration(&cfg.SubmitTimeout, c.SubmitTimeout)
	overlayDuration(&cfg.SessionIdleTTL, c.SessionIdleTTL)
	overlayString(&cfg.SweepCron, c.SweepCron)
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlayDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}
