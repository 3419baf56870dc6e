// Package core defines the shared interfaces and value types for the bot
package core

import (
	"context"
)

// IExchange is the order-entry boundary. Implementations submit and cancel
// orders against the exchange's REST API; every failure is surfaced to the
// caller, never retried past the transport layer's own resilience policies.
type IExchange interface {
	// CreateLimitOrderGTC submits a good-till-cancelled limit order and
	// returns the exchange-assigned order id.
	CreateLimitOrderGTC(ctx context.Context, req *LimitOrderRequest) (string, error)

	// CancelOrders cancels the given order ids in a single batched request.
	CancelOrders(ctx context.Context, orderIDs []string) error
}

// IBookSource is the read side of the order-book engine as consumed by the
// quoting loop.
type IBookSource interface {
	// IsConnected reports whether the book view is synchronized with the
	// feed and safe to trade on.
	IsConnected() bool

	// BestBidOffer returns the top of the book, or {nil, nil} when the
	// view is not synchronized or either side is empty.
	BestBidOffer() BestBidOffer
}

// ISigner produces short-lived bearer tokens. Tokens must be requested
// fresh for every signed operation; they are never cached.
type ISigner interface {
	// SignRequest signs a REST request descriptor (e.g. "POST api.coinbase.com/api/v3/brokerage/orders").
	SignRequest(method, host, path string) (string, error)

	// SignWebsocket signs a streaming subscribe/unsubscribe.
	SignWebsocket() (string, error)
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
