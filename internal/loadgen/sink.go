package loadgen

import (
	"context"

	"github.com/okian/capboard/internal/adapters/mq/kafka"
	"github.com/okian/capboard/internal/domain/model"
)

// TickSink delivers ticks to the service.
type TickSink interface {
	Submit(ctx context.Context, t model.Tick) (Outcome, error)
	Close() error
}

type httpSink struct{ client *Client }

func (s httpSink) Submit(ctx context.Context, t model.Tick) (Outcome, error) {
	return s.client.SubmitTick(ctx, t)
}

func (httpSink) Close() error { return nil }

// kafkaSink publishes to the tick topic. Deduplication happens on the
// consumer side, so every published tick counts as accepted.
type kafkaSink struct{ producer *kafka.Producer }

func (s kafkaSink) Submit(ctx context.Context, t model.Tick) (Outcome, error) {
	if err := s.producer.Publish(ctx, t); err != nil {
		return Rejected, err
	}
	return Accepted, nil
}

func (s kafkaSink) Close() error { return s.producer.Close() }

func newSink(cfg *Config, client *Client) TickSink {
	if cfg.Transport == TransportKafka {
		return kafkaSink{producer: kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)}
	}
	return httpSink{client: client}
}
