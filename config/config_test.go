package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5, cfg.Review.DuplicateThreshold)
	assert.Equal(t, "scan", cfg.Review.Index)
	assert.False(t, cfg.Review.StrictFingerprint)
	assert.Equal(t, 24*time.Hour, cfg.Review.FingerprintCacheTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REVIEW_INDEX", "bktree")
	t.Setenv("REVIEW_STRICT_FINGERPRINT", "true")
	t.Setenv("REVIEW_DUPLICATE_THRESHOLD", "8")
	t.Setenv("DB_RUN_MIGRATIONS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "bktree", cfg.Review.Index)
	assert.True(t, cfg.Review.StrictFingerprint)
	assert.Equal(t, 8, cfg.Review.DuplicateThreshold)
	assert.True(t, cfg.Database.RunMigrations)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("REVIEW_INDEX", "lsh")
	_, err := Load()
	assert.Error(t, err)
}
