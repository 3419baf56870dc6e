package mock

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/avii-ahuja/coinbase-trading-bot/internal/core"
)

// Book is a scripted core.IBookSource with a Stop method matching the
// engine's shutdown surface.
type Book struct {
	mu        sync.Mutex
	connected bool
	bid       *core.PriceLevel
	offer     *core.PriceLevel
	stopped   bool
}

// SetTop sets the book to connected with the given top of book.
func (b *Book) SetTop(bidPrice, offerPrice string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	b.bid = &core.PriceLevel{Price: decimal.RequireFromString(bidPrice), Size: decimal.RequireFromString("1"), Side: core.SideBid}
	b.offer = &core.PriceLevel{Price: decimal.RequireFromString(offerPrice), Size: decimal.RequireFromString("1"), Side: core.SideOffer}
}

// SetDisconnected drops the connection; the top of book becomes invisible.
func (b *Book) SetDisconnected() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

func (b *Book) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Book) BestBidOffer() core.BestBidOffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected || b.bid == nil || b.offer == nil {
		return core.BestBidOffer{}
	}
	return core.BestBidOffer{Bid: b.bid, Offer: b.offer}
}

func (b *Book) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.connected = false
}

// Stopped reports whether Stop was called.
func (b *Book) Stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}
