package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string

	StorageMode string
	MongoURI    string
	MongoDB     string

	LockMode      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SchedulerMode string
	SweepInterval time.Duration

	KafkaBrokers       []string
	KafkaTopicPrefix   string
	NotifyTopic        string
	PaymentsTopic      string
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration

	IdempotencyTTL    time.Duration
	LockWait          time.Duration
	DraftTTL          time.Duration
	PendingPaymentTTL time.Duration
	AssignmentLead    time.Duration

	PaymentCapture string
	PaymentsMode   string
	StripeKey      string

	TaxPercent      int64
	CatalogFixtures string
	CORSOrigins     []string

	S3Endpoint       string
	S3PublicEndpoint string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3UseSSL         bool
}

// Load reads an optional .env file and then parses configuration from the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv parses configuration from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		StorageMode:      strings.ToLower(getEnv("STORAGE_MODE", "memory")),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "divineconnect"),
		LockMode:         strings.ToLower(getEnv("LOCK_MODE", "memory")),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		SchedulerMode:    strings.ToLower(getEnv("SCHEDULER_MODE", "memory")),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		NotifyTopic:      getEnv("NOTIFY_TOPIC", "notifications.v1"),
		PaymentsTopic:    getEnv("PAYMENTS_TOPIC", "payments.events.v1"),
		PaymentCapture:   strings.ToLower(getEnv("PAYMENT_CAPTURE", "deferred")),
		PaymentsMode:     strings.ToLower(getEnv("PAYMENTS_MODE", "memory")),
		StripeKey:        os.Getenv("STRIPE_KEY"),
		CatalogFixtures:  getEnv("CATALOG_FIXTURES", "data/catalog.json"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
		S3AccessKey:      getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:         getEnv("S3_BUCKET", "divineconnect-certificates"),
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = splitList(brokers)
	}
	cfg.CORSOrigins = splitList(getEnv("CORS_ORIGINS", "*"))

	var err error
	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.TaxPercent, err = parseInt64Env("TAX_PERCENT", 18); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"IDEMP_TTL", 168 * time.Hour, &cfg.IdempotencyTTL},
		{"OUTBOX_POLL_INTERVAL", 500 * time.Millisecond, &cfg.OutboxPollInterval},
		{"SWEEP_INTERVAL", time.Minute, &cfg.SweepInterval},
		{"LOCK_WAIT", 2 * time.Second, &cfg.LockWait},
		{"DRAFT_TTL", 10 * time.Minute, &cfg.DraftTTL},
		{"PENDING_PAYMENT_TTL", 0, &cfg.PendingPaymentTTL},
		{"ASSIGNMENT_LEAD", 24 * time.Hour, &cfg.AssignmentLead},
	}
	for _, d := range durations {
		if *d.dst, err = parseDurationEnv(d.key, d.def); err != nil {
			return Config{}, err
		}
	}

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if err := oneOf("STORAGE_MODE", c.StorageMode, "memory", "mongo"); err != nil {
		return err
	}
	if err := oneOf("LOCK_MODE", c.LockMode, "memory", "redis"); err != nil {
		return err
	}
	if err := oneOf("SCHEDULER_MODE", c.SchedulerMode, "memory", "asynq"); err != nil {
		return err
	}
	if err := oneOf("PAYMENT_CAPTURE", c.PaymentCapture, "deferred", "synchronous"); err != nil {
		return err
	}
	if err := oneOf("PAYMENTS_MODE", c.PaymentsMode, "memory", "stripe"); err != nil {
		return err
	}
	if c.StorageMode == "mongo" && c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required when STORAGE_MODE=mongo")
	}
	if c.PaymentsMode == "stripe" && c.StripeKey == "" {
		return fmt.Errorf("STRIPE_KEY is required when PAYMENTS_MODE=stripe")
	}
	if c.TaxPercent < 0 || c.TaxPercent > 100 {
		return fmt.Errorf("invalid TAX_PERCENT %d", c.TaxPercent)
	}
	if c.DraftTTL <= 0 {
		return fmt.Errorf("DRAFT_TTL must be positive")
	}
	return nil
}

// Distributed reports whether more than one instance can share state safely.
func (c Config) Distributed() bool {
	return c.StorageMode == "mongo" && c.LockMode == "redis"
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q, want one of %s", key, value, strings.Join(allowed, ", "))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}

func parseIntEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return v, nil
}

func parseInt64Env(key string, def int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return v, nil
}
