// Package loadgen drives a running capboard instance: it creates companies,
// fires ticks at them concurrently and verifies the resulting leaderboard.
package loadgen

import (
	"errors"
	"time"
)

// Transports for tick submission.
const (
	TransportHTTP  = "http"
	TransportKafka = "kafka"
)

// ErrVerification is returned when the leaderboard does not match what the
// run submitted.
var ErrVerification = errors.New("leaderboard verification failed")

// Config holds configuration for a load run.
type Config struct {
	BaseURL   string        // base URL of the service
	Companies int           // number of companies to create
	Ticks     int           // number of ticks to submit
	Workers   int           // concurrent submitters
	Timeout   time.Duration // per-request timeout
	Settle    time.Duration // how long to wait for ticks to be applied
	Transport string        // http or kafka

	KafkaBrokers []string
	KafkaTopic   string

	Verbose bool
}

// Stats holds run statistics.
type Stats struct {
	CompaniesCreated int
	TicksSubmitted   int
	TicksAccepted    int
	TicksDuplicate   int
	TicksFailed      int
	StartTime        time.Time
	Duration         time.Duration
}
