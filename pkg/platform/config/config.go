package config

import (
	"os"
	"strings"
	"time"
)

// Config collects everything the storage core needs to talk to its backing
// services. Transport-level settings live with whatever embeds this library.
type Config struct {
	Mongo MongoConfig
	Redis RedisConfig
	Kafka KafkaConfig

	// EventRetention is how long appended events stay readable before the
	// store's retention mechanism removes them.
	EventRetention time.Duration

	// RecordCacheTTL bounds staleness of the read-through record cache.
	RecordCacheTTL time.Duration
}

// MongoConfig locates the document database.
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig locates the optional record cache. An empty URL disables it.
type RedisConfig struct {
	URL string
}

// KafkaConfig locates the optional change notifier. No brokers disables it.
type KafkaConfig struct {
	Brokers     []string
	ChangeTopic string
}

// FromEnv builds a Config from environment variables so callers stay lean.
func FromEnv() Config {
	cfg := Config{
		Mongo: MongoConfig{
			URI:      envOr("PERSONA_MONGO_URI", "mongodb://localhost:27017"),
			Database: envOr("PERSONA_MONGO_DB", "persona"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("PERSONA_REDIS_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:     splitBrokers(os.Getenv("PERSONA_KAFKA_BROKERS")),
			ChangeTopic: envOr("PERSONA_KAFKA_CHANGE_TOPIC", "persona.record-changes"),
		},
		EventRetention: envDurationOr("PERSONA_EVENT_RETENTION", 24*time.Hour),
		RecordCacheTTL: envDurationOr("PERSONA_RECORD_CACHE_TTL", 5*time.Minute),
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitBrokers(v string) []string {
	if v == "" {
		return nil
	}
	var brokers []string
	for _, b := range strings.Split(v, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
