// Package kafka feeds market-cap ticks from a Kafka topic into the tick
// queue, and publishes ticks for load generation.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/internal/domain/types"
	"github.com/okian/capboard/pkg/logger"
	"github.com/okian/capboard/pkg/metrics"
)

const (
	defaultRetryInterval = 50 * time.Millisecond
	defaultMaxBytes      = 10e6
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Intake accepts ticks: deduplication by tick id and a bounded queue.
type Intake interface {
	SeenAndRecord(ctx context.Context, id string) bool
	Unrecord(ctx context.Context, id string)
	Enqueue(ctx context.Context, t model.Tick) bool
}

// Option applies a configuration option to the Consumer.
type Option func(*Consumer)

// WithLogger sets the consumer logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetryInterval sets the pause between enqueue attempts while the
// queue is full.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.retryInterval = d
		}
	}
}

// Consumer reads JSON ticks from Kafka. A message is committed only after
// its tick was queued, dropped as a duplicate, or rejected as malformed, so
// a crash redelivers whatever was not yet accepted.
type Consumer struct {
	reader        MessageReader
	intake        Intake
	retryInterval time.Duration
	logger        logger.Logger
	now           func() time.Time
}

// NewReader builds a consumer-group reader for topic.
func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: defaultMaxBytes,
	})
}

// NewConsumer creates a consumer over reader.
func NewConsumer(reader MessageReader, intake Intake, opts ...Option) *Consumer {
	c := &Consumer{
		reader:        reader,
		intake:        intake,
		retryInterval: defaultRetryInterval,
		logger:        logger.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is done or the reader is closed. It returns nil on
// a clean stop.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "kafka consumer started")
	defer c.logger.Info(ctx, "kafka consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// handle returns an error only when the tick could not be queued before ctx
// ended; the message is then left uncommitted.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var m types.TickMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		metrics.RecordKafkaMessage("invalid")
		c.logger.Warn(ctx, "skipping undecodable tick",
			logger.Int("partition", msg.Partition), logger.Any("offset", msg.Offset), logger.Error(err))
		return nil
	}
	t, err := m.Tick(c.now())
	if err != nil {
		metrics.RecordKafkaMessage("invalid")
		c.logger.Warn(ctx, "skipping invalid tick", logger.Any("offset", msg.Offset), logger.Error(err))
		return nil
	}

	if c.intake.SeenAndRecord(ctx, t.TickID) {
		metrics.RecordKafkaMessage("duplicate")
		return nil
	}

	for !c.intake.Enqueue(ctx, t) {
		select {
		case <-ctx.Done():
			c.intake.Unrecord(context.Background(), t.TickID)
			return ctx.Err()
		case <-time.After(c.retryInterval):
		}
	}
	metrics.RecordKafkaMessage("accepted")
	return nil
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
