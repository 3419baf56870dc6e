package core

import (
	"github.com/shopspring/decimal"
)

// Side identifies which half of the book a price level belongs to.
// The values mirror the feed's wire encoding.
type Side string

const (
	SideBid   Side = "bid"
	SideOffer Side = "offer"
)

// OrderSide identifies the direction of a submitted order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// PriceLevel is an aggregated resting quantity at one price point on one
// side of the book. Identity is (Side, Price); a later update for the same
// price replaces Size in place.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
	Side  Side
}

// BestBidOffer is the top of the book as seen by the engine. Both fields
// are nil whenever the view is not safe to trade on.
type BestBidOffer struct {
	Bid   *PriceLevel
	Offer *PriceLevel
}

// LimitOrderRequest describes a GTC limit order submission.
type LimitOrderRequest struct {
	ClientOrderID string
	Side          OrderSide
	BaseSize      decimal.Decimal
	LimitPrice    decimal.Decimal
}
