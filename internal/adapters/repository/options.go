package repository

import (
	"time"

	"github.com/okian/capboard/pkg/logger"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithFlushInterval sets how often dirty records are written to the journal.
func WithFlushInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.flushInterval = interval
		}
	}
}

// WithJournal makes the store durable: it restores from j on start and
// flushes changed records to it periodically and on Close.
func WithJournal(j Journal) Option {
	return func(s *MemoryStore) {
		s.journal = j
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *MemoryStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// RedisOption applies a configuration option to the RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix, "capboard" by default.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxRetries bounds the optimistic retries of IncrementScore.
func WithMaxRetries(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithRedisLogger sets the store logger.
func WithRedisLogger(l logger.Logger) RedisOption {
	return func(s *RedisStore) {
		if l != nil {
			s.logger = l
		}
	}
}
