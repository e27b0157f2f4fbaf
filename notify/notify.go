// Package notify broadcasts best-effort record-change notices so downstream
// systems can react without polling the change feed.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"persona/pkg/platform/config"
)

// Change is the notice produced after a record mutation.
type Change struct {
	ExternalID   string    `json:"external_id"`
	ResourceType string    `json:"resource_type"`
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher delivers change notices. Delivery is best-effort; callers log
// failures and move on.
type Publisher interface {
	PublishChange(ctx context.Context, ch Change) error
}

// KafkaPublisher publishes changes to a Kafka topic, keyed by external id so
// notices for one record stay in order within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher connects to the configured brokers and provisions the
// change topic.
func NewKafkaPublisher(ctx context.Context, cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Brokers...))
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	if err := ensureTopic(ctx, client, cfg.ChangeTopic); err != nil {
		client.Close()
		return nil, err
	}
	return &KafkaPublisher{client: client, topic: cfg.ChangeTopic}, nil
}

// PublishChange produces one notice and waits for broker acknowledgement.
func (p *KafkaPublisher) PublishChange(ctx context.Context, ch Change) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("marshal change notice: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ch.ExternalID),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce change notice: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// ensureTopic idempotently creates the change topic, the broker-side
// counterpart of index provisioning.
func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic, res.Err)
		}
	}
	return nil
}
