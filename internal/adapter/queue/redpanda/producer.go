// Package redpanda provides the Redpanda/Kafka transport for agent tasks.
//
// The API server publishes AgentTaskPayload records to the task topic; worker
// processes consume them through a consumer group with a bounded, dynamically
// sized worker pool. Delivery is at-least-once: agents own their retries and
// replace their outputs idempotently, so the consumer always advances offsets
// instead of redelivering poisoned records.
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

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

const (
	// TopicTasks carries one record per submitted agent task.
	TopicTasks = "paper-agent-tasks"

	// Partitions bound how many consumers can share the task stream.
	taskPartitions  = int32(8)
	taskReplication = int16(1)
)

// Producer wraps a franz-go client and implements domain.Queue.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer constructs a Producer for the standard task topic.
func NewProducer(brokers []string) (*Producer, error) {
	return NewProducerWithTopic(brokers, TopicTasks)
}

// NewProducerWithTopic constructs a Producer for a specific topic. Tests use
// unique topics for isolation.
func NewProducerWithTopic(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic name cannot be empty")
	}

	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))),
	)
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := createTopicIfNotExists(ctx, client, topic, taskPartitions, taskReplication); err != nil {
		// The broker may simply not be reachable yet; produce retries and the
		// topic usually exists already.
		slog.Warn("ensure task topic", slog.String("topic", topic), slog.Any("error", err))
	}

	return &Producer{client: client, topic: topic}, nil
}

// EnqueueTask publishes the payload keyed by task id and returns the task id.
// Keying by task id keeps redeliveries of one task on one partition.
func (p *Producer) EnqueueTask(ctx domain.Context, payload domain.AgentTaskPayload) (string, error) {
	if payload.TaskID == "" {
		return "", fmt.Errorf("enqueue task: %w: missing task id", domain.ErrInvalidInput)
	}
	if payload.RequestID == "" {
		payload.RequestID = observability.RequestIDFromContext(ctx)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal task payload: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(payload.TaskID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "task_kind", Value: []byte(payload.Kind)},
			{Key: "request_id", Value: []byte(payload.RequestID)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return "", fmt.Errorf("produce task: %w", err)
	}

	observability.EnqueueTask(string(payload.Kind))
	observability.LoggerFromContext(ctx).Info("task enqueued",
		slog.String("task_id", payload.TaskID),
		slog.String("kind", string(payload.Kind)),
		slog.String("topic", p.topic))
	return payload.TaskID, nil
}

// Ping checks broker reachability; readiness probes use it.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close closes the underlying client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
