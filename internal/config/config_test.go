package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("PORT", "")

	cfg := Load()

	assert.Equal(t, ":8084", cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "disk", cfg.Storage.Driver)
	assert.Equal(t, int64(5<<20), cfg.Storage.MaxUploadSize)
	assert.Equal(t, int64(10000), cfg.Rewards.ReferralPoints)
	assert.Equal(t, 3, cfg.Rewards.ValidityMonths)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Len(t, cfg.Kafka.Topics.All(), 5)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("REFERRAL_POINTS", "2500")
	t.Setenv("STORAGE_MAX_UPLOAD_MB", "not-a-number")

	cfg := Load()

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, int64(2500), cfg.Rewards.ReferralPoints)
	assert.Equal(t, int64(5<<20), cfg.Storage.MaxUploadSize)
}
