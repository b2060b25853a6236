package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/payload-sanitizer/internal/domain"
)

// BatchProcessor runs the sanitization pipeline for a queued batch.
type BatchProcessor interface {
	Process(ctx domain.Context, batchID string) error
}

// Consumer wraps a Kafka consumer group session with exactly-once
// processing semantics and a bounded worker pool.
type Consumer struct {
	session   *kgo.GroupTransactSession
	processor BatchProcessor

	groupID    string
	topic      string
	maxWorkers int
	jobQueue   chan *kgo.Record
	shutdown   chan struct{}
}

// NewConsumer constructs a Consumer with exactly-once semantics.
func NewConsumer(brokers []string, groupID string, processor BatchProcessor, maxWorkers int) (*Consumer, error) {
	return NewConsumerWithTopic(brokers, groupID, "payload-sanitizer-consumer", processor, maxWorkers, TopicSanitize)
}

// NewConsumerWithTopic constructs a Consumer on a custom topic and
// transactional ID. Tests use unique topics for isolation.
func NewConsumerWithTopic(brokers []string, groupID, transactionalID string, processor BatchProcessor, maxWorkers int, topic string) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	ctx := context.Background()
	tempClient, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("temp client: %w", err)
	}
	defer tempClient.Close()

	if err := createTopicIfNotExists(ctx, tempClient, topic, 8, 1); err != nil {
		slog.Warn("topic creation skipped",
			slog.String("topic", topic),
			slog.Any("error", err))
	}

	kotelTracer := kotel.NewTracer(
		kotel.TracerProvider(otel.GetTracerProvider()),
	)
	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotelTracer),
	)

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.RequireStableFetchOffsets(),

		kgo.WithHooks(kotelService.Hooks()...),

		kgo.DialTimeout(10 * time.Second),
		kgo.SessionTimeout(30 * time.Second),
		kgo.HeartbeatInterval(3 * time.Second),
		kgo.RebalanceTimeout(10 * time.Second),

		kgo.FetchMaxBytes(10 * 1024 * 1024),
		kgo.FetchMaxWait(5 * time.Second),

		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(1 * time.Second),
	}

	session, err := kgo.NewGroupTransactSession(opts...)
	if err != nil {
		return nil, fmt.Errorf("redpanda transactional session: %w", err)
	}

	slog.Info("redpanda consumer created",
		slog.String("group_id", groupID),
		slog.String("topic", topic),
		slog.Int("max_workers", maxWorkers))
	return &Consumer{
		session:    session,
		processor:  processor,
		groupID:    groupID,
		topic:      topic,
		maxWorkers: maxWorkers,
		jobQueue:   make(chan *kgo.Record, maxWorkers*2),
		shutdown:   make(chan struct{}),
	}, nil
}

// Start begins consuming until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("starting redpanda consumer",
		slog.String("group_id", c.groupID),
		slog.String("topic", c.topic),
		slog.Int("workers", c.maxWorkers))

	for i := 0; i < c.maxWorkers; i++ {
		go c.worker(ctx, i)
	}
	go c.fetchLoop(ctx)

	<-ctx.Done()
	slog.Info("redpanda consumer shutting down")
	close(c.shutdown)
	return ctx.Err()
}

func (c *Consumer) fetchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		default:
		}

		fetches := c.session.PollFetches(ctx)
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, err := range errs {
				slog.Error("fetch error",
					slog.String("topic", err.Topic),
					slog.Int("partition", int(err.Partition)),
					slog.Any("error", err.Err))
			}
			time.Sleep(2 * time.Second)
			continue
		}

		fetches.EachRecord(func(record *kgo.Record) {
			select {
			case c.jobQueue <- record:
			case <-ctx.Done():
			}
		})
	}
}

func (c *Consumer) worker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case record := <-c.jobQueue:
			if record == nil {
				return
			}
			if err := c.processRecord(ctx, record); err != nil {
				slog.Error("failed to process record",
					slog.Int("worker_id", workerID),
					slog.Int64("offset", record.Offset),
					slog.Int("partition", int(record.Partition)),
					slog.Any("error", err))
			}
		}
	}
}

// processRecord decodes a queued task and runs the batch pipeline.
func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) error {
	tracer := otel.Tracer("queue.consumer")
	ctx, span := tracer.Start(ctx, "ProcessSanitizeBatch")
	defer span.End()

	var payload domain.SanitizeTaskPayload
	if err := json.Unmarshal(record.Value, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.BatchID == "" {
		return fmt.Errorf("empty batch id in record at offset %d", record.Offset)
	}

	lg := slog.With(slog.String("batch_id", payload.BatchID))
	lg.Info("processing sanitize task")
	if err := c.processor.Process(ctx, payload.BatchID); err != nil {
		return fmt.Errorf("process batch: %w", err)
	}
	lg.Info("sanitize task completed")
	return nil
}

// Close closes the consumer session.
func (c *Consumer) Close() error {
	if c.session != nil {
		c.session.Close()
	}
	if c.shutdown != nil {
		select {
		case <-c.shutdown:
		default:
			close(c.shutdown)
		}
	}
	return nil
}
