// Package events moves committed outbox rows onto a message transport.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

// Publisher delivers one outbox event. Delivery is at-least-once; consumers
// dedupe on the event-id header.
type Publisher interface {
	Publish(ctx context.Context, e domain.OutboxEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes every event to a single topic keyed by merchant, so
// per-merchant order is kept within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e domain.OutboxEvent) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.AggregateID.String()),
		Value: e.Payload,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(e.ID.String())},
			{Key: "event-type", Value: []byte(e.EventType)},
			{Key: "topic", Value: []byte(e.Topic)},
		},
	})
	if err != nil {
		return fmt.Errorf("KafkaPublisher.Publish: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// RedisStreamPublisher appends events to a Redis stream.
type RedisStreamPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisStreamPublisher(client redis.Cmdable, stream string) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: 100_000}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, e domain.OutboxEvent) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":     e.ID.String(),
			"event_type":   e.EventType,
			"topic":        e.Topic,
			"aggregate_id": e.AggregateID.String(),
			"data":         string(e.Payload),
			"created_at":   e.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("RedisStreamPublisher.Publish: %w", err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (p *RedisStreamPublisher) Close() error { return nil }

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e domain.OutboxEvent) error {
	p.logger.Info("outbox event",
		"event_id", e.ID,
		"event_type", e.EventType,
		"topic", e.Topic,
		"aggregate_id", e.AggregateID,
		"payload", string(e.Payload),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// FanoutPublisher publishes to every target and fails only if all of them do.
type FanoutPublisher struct {
	targets []Publisher
	logger  *slog.Logger
}

func NewFanoutPublisher(logger *slog.Logger, targets ...Publisher) *FanoutPublisher {
	return &FanoutPublisher{targets: targets, logger: logger}
}

func (p *FanoutPublisher) Publish(ctx context.Context, e domain.OutboxEvent) error {
	var errs []error
	for _, t := range p.targets {
		if err := t.Publish(ctx, e); err != nil {
			p.logger.Warn("fanout target failed", "event_id", e.ID, "error", err)
			errs = append(errs, err)
		}
	}
	if len(p.targets) > 0 && len(errs) == len(p.targets) {
		return fmt.Errorf("FanoutPublisher.Publish: %w", errors.Join(errs...))
	}
	return nil
}

func (p *FanoutPublisher) Close() error {
	var errs []error
	for _, t := range p.targets {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
