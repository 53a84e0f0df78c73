package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"growth-engine/internal/domain"
)

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher emits audit records to a Kafka topic, keyed by operation so
// records of one operation stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, errors.New("events: kafka topic must not be empty")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
		},
		topic: topic,
	}, nil
}

func (p *KafkaPublisher) Record(ctx context.Context, rec domain.AuditRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("events: marshal audit record: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(rec.Operation),
		Value: payload,
		Time:  rec.OccurredAt,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(rec.Action)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", rec.Action, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Discard drops every record. Used when no brokers are configured.
type Discard struct{}

func (Discard) Record(context.Context, domain.AuditRecord) error { return nil }

func (Discard) Close() error { return nil }
