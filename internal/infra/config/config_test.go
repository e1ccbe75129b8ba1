package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StorageMode)
	assert.Equal(t, "deferred", cfg.PaymentCapture)
	assert.EqualValues(t, 18, cfg.TaxPercent)
	assert.Equal(t, 10*time.Minute, cfg.DraftTTL)
	assert.Equal(t, 2*time.Second, cfg.LockWait)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, cfg.RetryBackoff)
	assert.False(t, cfg.Distributed())
	assert.Empty(t, cfg.S3Endpoint)
	assert.Equal(t, "divineconnect-certificates", cfg.S3Bucket)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_MODE", "mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("LOCK_MODE", "redis")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PAYMENT_CAPTURE", "Synchronous")
	t.Setenv("TAX_PERCENT", "5")
	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	t.Setenv("S3_USE_SSL", "yes")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "synchronous", cfg.PaymentCapture)
	assert.EqualValues(t, 5, cfg.TaxPercent)
	assert.True(t, cfg.Distributed())
	assert.True(t, cfg.S3UseSSL)
	assert.Equal(t, "http://minio:9000", cfg.S3PublicEndpoint)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"STORAGE_MODE":    "postgres",
		"LOCK_WAIT":       "soon",
		"TAX_PERCENT":     "150",
		"PAYMENT_CAPTURE": "later",
		"S3_USE_SSL":      "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}

	t.Run("mongo without uri", func(t *testing.T) {
		t.Setenv("STORAGE_MODE", "mongo")
		_, err := FromEnv()
		assert.Error(t, err)
	})
}
