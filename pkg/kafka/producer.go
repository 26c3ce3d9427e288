package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vehicle-catalog-ingest/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Header names set on every produced record.
const (
	HeaderContentType = "content-type"
	HeaderEventType   = "event-type"
)

// Message is one JSON record. Key picks the partition; Type travels in the
// event-type header so consumers can route without decoding Payload.
type Message struct {
	Key     string
	Type    string
	Payload any
}

// Producer writes Messages to a single topic.
type Producer struct {
	writer *kafka.Writer
	topic  string
	logger *slog.Logger
}

// NewProducer creates a Producer for topic. Run reports arrive a few times a
// day at most, so every write is synchronous and acknowledged by all
// replicas.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{
		writer: w,
		topic:  topic,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Send encodes msg and waits for the broker to acknowledge it.
func (p *Producer) Send(ctx context.Context, msg Message) error {
	record, err := encode(msg, time.Now())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		p.logger.Error("write failed", "key", msg.Key, "type", msg.Type, "error", err)
		return fmt.Errorf("writing %s to %s: %w", msg.Type, p.topic, err)
	}
	p.logger.Debug("record written", "key", msg.Key, "type", msg.Type, "bytes", len(record.Value))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encode(msg Message, now time.Time) (kafka.Message, error) {
	value, err := json.Marshal(msg.Payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding %s payload: %w", msg.Type, err)
	}
	headers := []kafka.Header{{Key: HeaderContentType, Value: []byte("application/json")}}
	if msg.Type != "" {
		headers = append(headers, kafka.Header{Key: HeaderEventType, Value: []byte(msg.Type)})
	}
	return kafka.Message{
		Key:     []byte(msg.Key),
		Value:   value,
		Headers: headers,
		Time:    now.UTC(),
	}, nil
}
