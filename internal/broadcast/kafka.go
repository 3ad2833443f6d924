package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const writeTimeout = 10 * time.Second

// MessageWriter is the part of kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes every frame to one topic, keyed by event id so the
// frames of one alert land on the same partition.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher configures a synchronous writer with leader acks.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewKafkaPublisherWithWriter(w, topic, logger), nil
}

func NewKafkaPublisherWithWriter(w MessageWriter, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Publish(ctx context.Context, m Message) error {
	value, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast: %w", err)
	}
	id, _ := m.Data["event_id"].(string)
	severity, _ := m.Data["severity"].(string)
	msg := kafka.Message{
		Key:   []byte(id),
		Value: value,
		Headers: []kafka.Header{
			{Key: "channel", Value: []byte(m.Channel)},
			{Key: "event_type", Value: []byte(m.Event)},
			{Key: "severity", Value: []byte(severity)},
		},
		Time: time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	p.logger.Debug("published broadcast", "topic", p.topic, "channel", m.Channel, "event_id", id)
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.logger.Info("closing kafka publisher", "topic", p.topic)
	return p.writer.Close()
}
