package types

import "errors"

// Sentinel kinds for request validation.
var (
	ErrInvalidTick    = errors.New("invalid tick")
	ErrInvalidCompany = errors.New("invalid company")
)
