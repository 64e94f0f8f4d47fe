package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// Handler processes one dequeued task payload. Returned errors are logged;
// they never block the offset from advancing.
type Handler interface {
	Handle(ctx context.Context, payload domain.AgentTaskPayload) error
}

// Consumer pulls task records from the topic and dispatches them to a
// bounded worker pool. The pool scales between minWorkers and maxWorkers
// based on the backlog; polling slows down adaptively when the topic is
// quiet or the brokers are unhappy.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	groupID string
	topic   string

	minWorkers    int
	maxWorkers    int
	activeWorkers int
	workerMu      sync.RWMutex
	taskQueue     chan *kgo.Record

	poller    *AdaptivePoller
	shutdown  chan struct{}
	closeOnce sync.Once
}

// NewConsumer constructs a Consumer for the standard task topic.
func NewConsumer(brokers []string, groupID string, handler Handler, minWorkers, maxWorkers int) (*Consumer, error) {
	return NewConsumerWithTopic(brokers, groupID, handler, minWorkers, maxWorkers, TopicTasks)
}

// NewConsumerWithTopic constructs a Consumer for a specific topic. Tests use
// unique topics for isolation.
func NewConsumerWithTopic(brokers []string, groupID string, handler Handler, minWorkers, maxWorkers int, topic string) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}
	if handler == nil {
		return nil, fmt.Errorf("missing task handler")
	}
	if minWorkers <= 0 {
		minWorkers = 2
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}

	// Ensure the topic with a throwaway client before the group client joins.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	tempClient, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("temp client: %w", err)
	}
	defer tempClient.Close()
	if err := createTopicIfNotExists(ctx, tempClient, topic, taskPartitions, taskReplication); err != nil {
		slog.Warn("ensure task topic", slog.String("topic", topic), slog.Any("error", err))
	}

	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))),
	)
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.WithHooks(kotelService.Hooks()...),

		kgo.DialTimeout(10*time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.RebalanceTimeout(10*time.Second),

		kgo.FetchMaxBytes(10*1024*1024),
		kgo.FetchMaxWait(5*time.Second),
		kgo.FetchMinBytes(512),

		// Only records we explicitly mark get committed, so a crash mid-batch
		// redelivers the unprocessed tail instead of losing it.
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda consumer client: %w", err)
	}

	slog.Info("redpanda consumer created",
		slog.String("group_id", groupID),
		slog.String("topic", topic),
		slog.Int("min_workers", minWorkers),
		slog.Int("max_workers", maxWorkers))
	return &Consumer{
		client:        client,
		handler:       handler,
		groupID:       groupID,
		topic:         topic,
		minWorkers:    minWorkers,
		maxWorkers:    maxWorkers,
		activeWorkers: minWorkers,
		taskQueue:     make(chan *kgo.Record, maxWorkers*2),
		poller:        NewAdaptivePoller(100 * time.Millisecond),
		shutdown:      make(chan struct{}),
	}, nil
}

// Start runs the fetch loop, the worker pool and its scaler until ctx ends.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("starting task consumer",
		slog.String("group_id", c.groupID),
		slog.String("topic", c.topic),
		slog.Int("min_workers", c.minWorkers),
		slog.Int("max_workers", c.maxWorkers))

	for i := 0; i < c.minWorkers; i++ {
		go c.worker(ctx, i)
	}
	go c.scaleLoop(ctx)
	c.fetchLoop(ctx)

	c.signalShutdown()
	return ctx.Err()
}

// fetchLoop polls the brokers and feeds the worker queue.
func (c *Consumer) fetchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			slog.Info("consumer client closed, stopping fetch loop")
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			fatal := false
			for _, fe := range errs {
				if errors.Is(fe.Err, context.Canceled) {
					fatal = true
					continue
				}
				slog.Error("fetch error",
					slog.String("topic", fe.Topic),
					slog.Int("partition", int(fe.Partition)),
					slog.Any("error", fe.Err))
			}
			if fatal {
				return
			}
			c.poller.RecordFailure()
			c.sleep(ctx, c.poller.GetNextInterval())
			continue
		}

		if fetches.NumRecords() == 0 {
			c.poller.RecordSuccess()
			c.sleep(ctx, c.poller.GetNextInterval())
			continue
		}
		c.poller.RecordSuccess()

		fetches.EachRecord(func(record *kgo.Record) {
			select {
			case c.taskQueue <- record:
			default:
				// Queue full: process inline so polling backpressures
				// instead of buffering unbounded work.
				c.processRecord(ctx, record)
			}
		})
	}
}

// worker drains the task queue. Workers beyond the minimum exit once the
// backlog no longer justifies them.
func (c *Consumer) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case record := <-c.taskQueue:
			if record == nil {
				return
			}
			c.processRecord(ctx, record)

			if c.getActiveWorkers() > c.minWorkers && len(c.taskQueue) < c.getActiveWorkers() {
				c.decrementActiveWorkers()
				slog.Debug("worker exiting, backlog drained",
					slog.Int("worker_id", id),
					slog.Int("active_workers", c.getActiveWorkers()))
				return
			}
		}
	}
}

// scaleLoop grows the pool toward maxWorkers while a backlog exists.
func (c *Consumer) scaleLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			backlog := len(c.taskQueue)
			active := c.getActiveWorkers()
			if backlog == 0 || active >= c.maxWorkers {
				continue
			}
			add := backlog
			if active+add > c.maxWorkers {
				add = c.maxWorkers - active
			}
			for i := 0; i < add; i++ {
				c.incrementActiveWorkers()
				go c.worker(ctx, active+i)
			}
			slog.Info("scaled up workers",
				slog.Int("added", add),
				slog.Int("backlog", backlog),
				slog.Int("active_workers", c.getActiveWorkers()))
		}
	}
}

// processRecord runs one record through the handler. The offset is marked
// regardless of the outcome: agent failures land on the task row, not back
// on the topic.
func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) {
	defer c.client.MarkCommitRecords(record)
	c.handleRecord(ctx, record)
}

// handleRecord decodes the payload, enriches the context for log
// correlation and dispatches to the handler.
func (c *Consumer) handleRecord(ctx context.Context, record *kgo.Record) {
	tracer := otel.Tracer("queue.consumer")
	ctx, span := tracer.Start(ctx, "ProcessAgentTask")
	defer span.End()

	var payload domain.AgentTaskPayload
	if err := json.Unmarshal(record.Value, &payload); err != nil {
		slog.Error("dropping malformed task record",
			slog.String("topic", record.Topic),
			slog.Int("partition", int(record.Partition)),
			slog.Int64("offset", record.Offset),
			slog.Any("error", err))
		return
	}

	// Correlate downstream logs (including provider calls) with the original
	// HTTP request and the task.
	if payload.RequestID != "" {
		ctx = observability.ContextWithRequestID(ctx, payload.RequestID)
	}
	ctx = observability.ContextWithTaskID(ctx, payload.TaskID)
	lg := observability.LoggerFromContext(ctx).With(
		slog.String("task_id", payload.TaskID),
		slog.String("kind", string(payload.Kind)))
	if payload.RequestID != "" {
		lg = lg.With(slog.String("request_id", payload.RequestID))
	}
	ctx = observability.ContextWithLogger(ctx, lg)

	if err := c.handler.Handle(ctx, payload); err != nil {
		lg.Error("task handling failed", slog.Any("error", err))
		return
	}
}

// Close stops the loops and closes the client.
func (c *Consumer) Close() error {
	c.signalShutdown()
	if c.client != nil {
		c.client.Close()
	}
	return nil
}

func (c *Consumer) signalShutdown() {
	c.closeOnce.Do(func() { close(c.shutdown) })
}

// IsHealthy reports whether recent polls have been succeeding.
func (c *Consumer) IsHealthy() bool { return c.poller.IsHealthy() }

// Stats describes the pool for operator surfaces.
func (c *Consumer) Stats() map[string]any {
	return map[string]any{
		"group_id":       c.groupID,
		"topic":          c.topic,
		"active_workers": c.getActiveWorkers(),
		"min_workers":    c.minWorkers,
		"max_workers":    c.maxWorkers,
		"backlog":        len(c.taskQueue),
		"healthy":        c.poller.IsHealthy(),
	}
}

func (c *Consumer) getActiveWorkers() int {
	c.workerMu.RLock()
	defer c.workerMu.RUnlock()
	return c.activeWorkers
}

func (c *Consumer) incrementActiveWorkers() {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()
	c.activeWorkers++
}

func (c *Consumer) decrementActiveWorkers() {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()
	if c.activeWorkers > 0 {
		c.activeWorkers--
	}
}

// sleep waits for d unless the consumer is shutting down.
func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-c.shutdown:
	case <-t.C:
	}
}
