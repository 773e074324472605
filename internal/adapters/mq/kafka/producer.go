package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/internal/domain/types"
)

// Producer publishes ticks to a topic, keyed by symbol so that ticks of one
// company stay ordered within a partition.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a synchronous producer.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish writes ticks in one batch.
func (p *Producer) Publish(ctx context.Context, ticks ...model.Tick) error {
	msgs := make([]kafka.Message, 0, len(ticks))
	for _, t := range ticks {
		b, err := json.Marshal(types.NewTickMessage(t))
		if err != nil {
			return fmt.Errorf("encode tick %s: %w", t.TickID, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(t.Symbol), Value: b})
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
