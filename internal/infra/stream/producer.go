// Package stream publishes the activity log to Kafka so other services can
// follow the lot in real time.
package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/parkpilot/server/internal/events"
	"github.com/parkpilot/server/internal/platform/logger"
	"github.com/parkpilot/server/internal/platform/metrics"
)

// ProducerConfig contains configuration for the activity publisher.
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	RetryMax     int
	Timeout      time.Duration
	RequiredAcks sarama.RequiredAcks
	Compression  sarama.CompressionCodec
}

// DefaultProducerConfig returns a default producer configuration.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "parking-activity",
		ClientID:     "parkpilot",
		RetryMax:     3,
		Timeout:      10 * time.Second,
		RequiredAcks: sarama.WaitForLocal,
		Compression:  sarama.CompressionSnappy,
	}
}

// Message is the JSON value written for each event.
type Message struct {
	LotID string          `json:"lot_id"`
	Event events.LotEvent `json:"event"`
}

// ActivityPublisher forwards lot events to a Kafka topic. It satisfies
// events.EventPersister. Events are keyed by lot so one lot stays ordered
// within its partition; the event log calls Append from a single writer.
type ActivityPublisher struct {
	producer sarama.SyncProducer
	topic    string
	lotID    string
	logger   *logger.Logger
	metrics  *metrics.Collector
}

// NewActivityPublisher connects a sync producer to the brokers.
func NewActivityPublisher(cfg ProducerConfig, lotID string, log *logger.Logger) (*ActivityPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = cfg.ClientID
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = cfg.RequiredAcks
	saramaConfig.Producer.Compression = cfg.Compression
	saramaConfig.Producer.Retry.Max = cfg.RetryMax
	saramaConfig.Producer.Timeout = cfg.Timeout
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	// A retried batch must not overtake a later one.
	saramaConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewActivityPublisherWithProducer(producer, cfg.Topic, lotID, log), nil
}

// NewActivityPublisherWithProducer wraps an existing producer.
func NewActivityPublisherWithProducer(producer sarama.SyncProducer, topic, lotID string, log *logger.Logger) *ActivityPublisher {
	return &ActivityPublisher{
		producer: producer,
		topic:    topic,
		lotID:    lotID,
		logger:   log.With("component", "stream", "topic", topic),
		metrics:  metrics.Get(),
	}
}

// Append publishes one event.
func (p *ActivityPublisher) Append(e events.LotEvent) error {
	start := time.Now()
	err := p.publish(e)
	p.metrics.RecordEventWrite(time.Since(start), err)
	return err
}

func (p *ActivityPublisher) publish(e events.LotEvent) error {
	value, err := json.Marshal(Message{LotID: p.lotID, Event: e})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(p.lotID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(e.Type)},
			{Key: []byte("event_id"), Value: []byte(e.ID)},
		},
		Timestamp: e.Timestamp,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	p.logger.Debug("event published", "type", e.Type, "partition", partition, "offset", offset)
	return nil
}

// Close flushes and closes the producer.
func (p *ActivityPublisher) Close() error {
	return p.producer.Close()
}
