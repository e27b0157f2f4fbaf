package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "persona", cfg.Mongo.Database)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "persona.record-changes", cfg.Kafka.ChangeTopic)
	assert.Equal(t, 24*time.Hour, cfg.EventRetention)
	assert.Equal(t, 5*time.Minute, cfg.RecordCacheTTL)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PERSONA_MONGO_URI", "mongodb://db:27017")
	t.Setenv("PERSONA_MONGO_DB", "identity")
	t.Setenv("PERSONA_REDIS_URL", "redis://cache:6379")
	t.Setenv("PERSONA_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("PERSONA_EVENT_RETENTION", "48h")
	t.Setenv("PERSONA_RECORD_CACHE_TTL", "30s")

	cfg := FromEnv()

	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	assert.Equal(t, "identity", cfg.Mongo.Database)
	assert.Equal(t, "redis://cache:6379", cfg.Redis.URL)
	require.Len(t, cfg.Kafka.Brokers, 2)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 48*time.Hour, cfg.EventRetention)
	assert.Equal(t, 30*time.Second, cfg.RecordCacheTTL)
}

func TestFromEnvRejectsBadDurations(t *testing.T) {
	t.Setenv("PERSONA_EVENT_RETENTION", "yesterday")
	t.Setenv("PERSONA_RECORD_CACHE_TTL", "-5m")

	cfg := FromEnv()

	assert.Equal(t, 24*time.Hour, cfg.EventRetention)
	assert.Equal(t, 5*time.Minute, cfg.RecordCacheTTL)
}
