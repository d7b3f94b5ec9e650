package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig selects the brokers and topic for event publishing
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Configured reports whether brokers and a topic are set
func (c KafkaConfig) Configured() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

// MessageWriter is the subset of kafka.Writer the sink uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON, keyed by ticker so one ticker's events
// stay ordered within a partition
type Kafka struct {
	writer MessageWriter
}

// NewKafka creates a synchronous writer over the configured brokers
func NewKafka(config KafkaConfig) *Kafka {
	return NewKafkaWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	})
}

// NewKafkaWithWriter wraps an existing writer
func NewKafkaWithWriter(w MessageWriter) *Kafka {
	return &Kafka{writer: w}
}

// Notify implements Notifier
func (k *Kafka) Notify(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	key := e.Ticker
	if key == "" {
		key = string(e.Kind)
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Time:    e.Time,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(e.Kind)}},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Kind, err)
	}
	return nil
}

// Close flushes and closes the writer
func (k *Kafka) Close() error {
	return k.writer.Close()
}
