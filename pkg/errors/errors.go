package apperrors

import "errors"

// Standardized exchange and transport errors
var (
	ErrOrderRejected         = errors.New("order rejected")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrNetwork               = errors.New("network error")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrOrderNotFound         = errors.New("order not found")
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
)

// Engine and loop lifecycle errors
var (
	ErrNotConnected = errors.New("book not synchronized")
	ErrStopped      = errors.New("stopped")
)
