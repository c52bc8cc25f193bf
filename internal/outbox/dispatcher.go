// Package outbox delivers activity events recorded in the Postgres outbox to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type batchStore interface {
	Claim(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

// backlogReporter is implemented by stores that can count unpublished rows.
type backlogReporter interface {
	Backlog(ctx context.Context) (int, error)
}

type deadLetterWriter interface {
	Write(ctx context.Context, msg Message, reason string) error
}

// Dispatcher drains the outbox table and delivers events to Kafka.
type Dispatcher struct {
	store            batchStore
	producer         messageWriter
	dlq              deadLetterWriter
	pollInterval     time.Duration
	batchSize        int
	logger           *zap.Logger
	now              func() time.Time
	shutdownComplete chan struct{}
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store batchStore, producer messageWriter, dlq deadLetterWriter, pollInterval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	d := &Dispatcher{
		store:            store,
		producer:         producer,
		dlq:              dlq,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		logger:           zap.NewNop(),
		now:              time.Now,
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox dispatch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.store.Claim(ctx, d.batchSize)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.deliver(ctx, messages); err != nil {
		d.logger.Warn("outbox delivery failed, routing batch to dlq",
			zap.Int("messages", len(messages)),
			zap.Error(err))
		failedCounter.Add(float64(len(messages)))
		if dlqErr := d.moveToDLQ(ctx, messages, err.Error()); dlqErr != nil {
			return dlqErr
		}
		return d.store.MarkPublished(ctx, eventIDs(messages))
	}

	for _, msg := range messages {
		deliveredCounter.WithLabelValues(msg.EventType).Inc()
	}
	if err := d.store.MarkPublished(ctx, eventIDs(messages)); err != nil {
		return err
	}
	d.reportBacklog(ctx)
	return nil
}

func (d *Dispatcher) reportBacklog(ctx context.Context) {
	reporter, ok := d.store.(backlogReporter)
	if !ok {
		return
	}
	n, err := reporter.Backlog(ctx)
	if err != nil {
		d.logger.Debug("outbox backlog unavailable", zap.Error(err))
		return
	}
	pendingGauge.Set(float64(n))
}

func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	batches := make(map[string][]kafka.Message)
	topics := make([]string, 0)

	for _, msg := range messages {
		if msg.Topic == "" {
			return fmt.Errorf("no topic for event_type=%s", msg.EventType)
		}
		if !json.Valid(msg.Payload) {
			return fmt.Errorf("event %d has malformed payload", msg.EventID)
		}

		record := kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: []byte(msg.Payload),
			Time:  d.now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.EventType)},
				{Key: "chat_id", Value: []byte(strconv.FormatInt(msg.ChatID, 10))},
			},
		}

		if _, exists := batches[msg.Topic]; !exists {
			topics = append(topics, msg.Topic)
		}
		batches[msg.Topic] = append(batches[msg.Topic], record)
	}

	for _, topic := range topics {
		if err := d.producer.WriteMessages(ctx, topic, batches[topic]...); err != nil {
			return err
		}
	}

	return nil
}

func (d *Dispatcher) moveToDLQ(ctx context.Context, messages []Message, reason string) error {
	for _, msg := range messages {
		entryReason := fmt.Sprintf("%s (topic=%s)", reason, msg.Topic)
		if err := d.dlq.Write(ctx, msg, entryReason); err != nil {
			return err
		}
		recordDLQ(outcomeRouted, msg)
	}
	return nil
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.EventID)
	}
	return ids
}

// Message represents a row fetched from outbox.
type Message struct {
	EventID      int64
	AggregateID  string
	EventType    string
	Topic        string
	ChatID       int64
	PartitionKey string
	Payload      json.RawMessage
}
