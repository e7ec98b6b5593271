package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/playfab-session/internal/config"
	"github.com/playfab-session/internal/domain"
)

// EventPublisher publishes session events to the events topic, keyed by session id
type EventPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewEventPublisher connects a synchronous producer to the configured brokers
func NewEventPublisher(cfg *config.KafkaConfig, logger *slog.Logger) (*EventPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Timeout = 5 * time.Second
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return NewEventPublisherWithProducer(producer, cfg.EventsTopic, logger), nil
}

// NewEventPublisherWithProducer wraps an existing producer
func NewEventPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// RecordEvent publishes a session event
func (p *EventPublisher) RecordEvent(_ context.Context, event domain.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.SessionID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
		Timestamp: event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}

	p.logger.Debug("published session event",
		"type", event.Type,
		"session_id", event.SessionID,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// Close flushes and closes the producer
func (p *EventPublisher) Close() error {
	return p.producer.Close()
}
