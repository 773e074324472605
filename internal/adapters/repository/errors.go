package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound           = errors.New("company not found")
	ErrBackendUnavailable = errors.New("leaderboard backend unavailable")
	ErrClosed             = errors.New("store closed")
)
