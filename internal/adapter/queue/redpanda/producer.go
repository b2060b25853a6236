// Package redpanda provides Redpanda/Kafka queue integration.
//
// It handles message publishing and consumption for batch sanitization
// jobs with exactly-once delivery semantics, and supports horizontal
// scaling of workers.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/observability"
	"github.com/fairyhunter13/payload-sanitizer/internal/domain"
)

const (
	// TopicSanitize is the Kafka topic for batch sanitization jobs.
	TopicSanitize = "sanitize-batches"
)

// Producer wraps a transactional Kafka producer and implements domain.Queue.
type Producer struct {
	client *kgo.Client
	// Serializes transactions so concurrent submissions do not interleave.
	transactionChan chan struct{}
}

// NewProducer constructs a Producer with exactly-once semantics.
func NewProducer(brokers []string) (*Producer, error) {
	return NewProducerWithTransactionalID(brokers, "payload-sanitizer-producer")
}

// NewProducerWithTransactionalID constructs a Producer with a custom
// transactional ID. Tests use this to avoid conflicts between producers.
func NewProducerWithTransactionalID(brokers []string, transactionalID string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}

	ctx := context.Background()
	if err := createTopicIfNotExists(ctx, client, TopicSanitize, 1, 1); err != nil {
		// The topic may already exist; the broker rejects duplicates.
		slog.Warn("topic creation skipped",
			slog.String("topic", TopicSanitize),
			slog.Any("error", err))
	}

	slog.Info("redpanda producer created", slog.Any("brokers", brokers), slog.String("transactional_id", transactionalID))
	return &Producer{
		client:          client,
		transactionChan: make(chan struct{}, 1),
	}, nil
}

// EnqueueSanitize enqueues a batch sanitization task with exactly-once semantics.
func (p *Producer) EnqueueSanitize(ctx domain.Context, payload domain.SanitizeTaskPayload) (string, error) {
	return p.EnqueueSanitizeToTopic(ctx, payload, TopicSanitize)
}

// EnqueueSanitizeToTopic enqueues a sanitization task to a specific topic.
// Tests use unique topics for isolation.
func (p *Producer) EnqueueSanitizeToTopic(ctx domain.Context, payload domain.SanitizeTaskPayload, topic string) (string, error) {
	select {
	case p.transactionChan <- struct{}{}:
		defer func() { <-p.transactionChan }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if err := p.client.BeginTransaction(); err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			slog.Error("failed to abort transaction", slog.Any("error", abortErr))
		}
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		// Batch id as key keeps per-batch ordering.
		Key:   []byte(payload.BatchID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "batch_id", Value: []byte(payload.BatchID)},
		},
	}

	e := kgo.AbortingFirstErrPromise(p.client)
	p.client.Produce(ctx, record, e.Promise())
	if err := e.Err(); err != nil {
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			slog.Error("failed to abort transaction", slog.Any("error", abortErr))
		}
		return "", fmt.Errorf("produce: %w", err)
	}

	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}

	observability.EnqueueBatch()
	slog.Info("sanitize task enqueued", slog.String("topic", topic), slog.String("batch_id", payload.BatchID))
	return payload.BatchID, nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	if p.transactionChan != nil {
		select {
		case <-p.transactionChan:
		default:
			close(p.transactionChan)
		}
	}
	return nil
}
