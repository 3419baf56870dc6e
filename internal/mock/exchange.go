// Package mock provides scripted collaborators for unit tests.
package mock

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/avii-ahuja/coinbase-trading-bot/internal/core"
)

var errScripted = errors.New("scripted failure")

// Exchange is a scripted core.IExchange. Submissions and cancellations are
// recorded; failures are injected per side or for cancels.
type Exchange struct {
	mu sync.Mutex

	nextOrderID  int
	Placed       []*core.LimitOrderRequest
	Cancelled    [][]string
	FailBuys     int
	FailSells    int
	FailCancels  int
	PlaceErr     error
	CancelErr    error
	OnPlace      func(req *core.LimitOrderRequest)
}

func (m *Exchange) CreateLimitOrderGTC(ctx context.Context, req *core.LimitOrderRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.OnPlace != nil {
		m.OnPlace(req)
	}

	if req.Side == core.OrderSideBuy && m.FailBuys > 0 {
		m.FailBuys--
		return "", m.placeErr()
	}
	if req.Side == core.OrderSideSell && m.FailSells > 0 {
		m.FailSells--
		return "", m.placeErr()
	}

	m.nextOrderID++
	m.Placed = append(m.Placed, req)
	if req.Side == core.OrderSideBuy {
		return orderID("buy", m.nextOrderID), nil
	}
	return orderID("sell", m.nextOrderID), nil
}

func (m *Exchange) CancelOrders(ctx context.Context, orderIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCancels > 0 {
		m.FailCancels--
		return m.cancelErr()
	}

	ids := make([]string, len(orderIDs))
	copy(ids, orderIDs)
	m.Cancelled = append(m.Cancelled, ids)
	return nil
}

// PlacedCount returns how many orders were accepted.
func (m *Exchange) PlacedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Placed)
}

// CancelledBatches returns a copy of every accepted cancel request.
func (m *Exchange) CancelledBatches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.Cancelled))
	copy(out, m.Cancelled)
	return out
}

func (m *Exchange) placeErr() error {
	if m.PlaceErr != nil {
		return m.PlaceErr
	}
	return errScripted
}

func (m *Exchange) cancelErr() error {
	if m.CancelErr != nil {
		return m.CancelErr
	}
	return errScripted
}

func orderID(prefix string, n int) string {
	return prefix + "-" + strconv.Itoa(n)
}
