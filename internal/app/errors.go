package service

import "errors"

var (
	// ErrInvalidSymbol is returned for an empty symbol.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrNotStarted is returned when the service is used before Start.
	ErrNotStarted = errors.New("service not started")
)
