package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// RefreshEvent is published once per finished feed refresh.
type RefreshEvent struct {
	FeedID         string    `json:"feed_id"`
	FeedURL        string    `json:"feed_url"`
	Status         string    `json:"status"`
	ItemsProcessed int       `json:"items_processed"`
	Inserted       int       `json:"inserted"`
	Updated        int       `json:"updated"`
	Unchanged      int       `json:"unchanged"`
	Warnings       int       `json:"warnings"`
	Error          string    `json:"error,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	At             time.Time `json:"at"`
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
}

// Publisher sends refresh events to Kafka, keyed by feed ID so events of
// one feed stay ordered within a partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(config ProducerConfig) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(config.Brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	slog.Info("Connected to Kafka", "brokers", config.Brokers, "topic", config.Topic)
	return NewPublisherWithProducer(producer, config.Topic), nil
}

func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

func NewSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V3_6_0_0
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Timeout = 5 * time.Second
	return config
}

func (p *Publisher) Publish(ctx context.Context, event RefreshEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode refresh event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.FeedID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("failed to publish refresh event: %w", err)
	}

	slog.Debug("Refresh event published", "feed", event.FeedID, "partition", partition, "offset", offset)
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
