package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays environment variables onto cfg. A .env file in the
// working directory is loaded first; a missing one is not an error.
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	envString(&cfg.EndpointAddrHTTP, "INTAKE_HTTP_ADDR")
	envString(&cfg.DatabaseDSN, "INTAKE_DATABASE_DSN")
	envString(&cfg.CacheDSN, "INTAKE_CACHE_DSN")
	envString(&cfg.RedisURL, "INTAKE_REDIS_URL")
	envString(&cfg.SecretKey, "INTAKE_SECRET_KEY")
	envDuration(&cfg.TokenValidityDuration, "INTAKE_TOKEN_VALIDITY")
	envString(&cfg.S3AccessKeyID, "INTAKE_S3_ACCESS_KEY_ID")
	envString(&cfg.S3SecretAccessKey, "INTAKE_S3_SECRET_ACCESS_KEY")
	envString(&cfg.S3Bucket, "INTAKE_S3_BUCKET")
	envString(&cfg.S3Region, "INTAKE_S3_REGION")
	envString(&cfg.S3BaseEndpoint, "INTAKE_S3_BASE_ENDPOINT")
	envString(&cfg.S3PublicBaseURL, "INTAKE_S3_PUBLIC_BASE_URL")
	envString(&cfg.KafkaBrokers, "INTAKE_KAFKA_BROKERS")
	envString(&cfg.KafkaTopic, "INTAKE_KAFKA_TOPIC")
	envDuration(&cfg.SaveDebounce, "INTAKE_SAVE_DEBOUNCE")
	envDuration(&cfg.InsuranceInterval, "INTAKE_INSURANCE_INTERVAL")
	envDuration(&cfg.MinSaveInterval, "INTAKE_MIN_SAVE_INTERVAL")
	envDuration(&cfg.SnapshotCacheTTL, "INTAKE_SNAPSHOT_CACHE_TTL")
	envDuration(&cfg.ValuationTTL, "INTAKE_VALUATION_TTL")
	envDuration(&cfg.SubmitTimeout, "INTAKE_SUBMIT_TIMEOUT")
	envDuration(&cfg.SessionIdleTTL, "INTAKE_SESSION_IDLE_TTL")
	envString(&cfg.SweepCron, "INTAKE_SWEEP_CRON")
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
