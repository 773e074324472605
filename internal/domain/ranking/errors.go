package ranking

import "errors"

// Sentinel kinds for ranking errors.
var (
	ErrInvalidMode  = errors.New("invalid ranking mode")
	ErrInvalidLimit = errors.New("invalid ranking limit")
)
