// Package quoter drives the place/hold/cancel quoting cycle around the
// observed spread.
package quoter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"

	"github.com/avii-ahuja/coinbase-trading-bot/internal/config"
	"github.com/avii-ahuja/coinbase-trading-bot/internal/core"
	apperrors "github.com/avii-ahuja/coinbase-trading-bot/pkg/errors"
	"github.com/avii-ahuja/coinbase-trading-bot/pkg/retry"
	"github.com/avii-ahuja/coinbase-trading-bot/pkg/telemetry"
)

// State tracks where the quoting loop is in its cycle.
type State int32

const (
	StateIdle State = iota
	StatePlacing
	StateHolding
	StateCancelling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlacing:
		return "placing"
	case StateHolding:
		return "holding"
	case StateCancelling:
		return "cancelling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// holdTick is how often the hold interval checks for a stop request, so a
// shutdown interrupts the hold promptly instead of waiting it out.
const holdTick = 50 * time.Millisecond

// Quote is the pair of resting order ids for the current cycle. Empty
// strings mean no order. It never outlives a single placement-to-
// cancellation round trip.
type Quote struct {
	BuyOrderID  string
	SellOrderID string
}

// Book is the order-book engine surface the quoter depends on.
type Book interface {
	core.IBookSource
	Stop()
}

// Journal records confirmed resting order ids so a crashed run can be
// swept on the next boot. A nil Journal disables journaling.
type Journal interface {
	Record(ctx context.Context, orderID, side string) error
	Clear(ctx context.Context, orderIDs []string) error
	List(ctx context.Context) ([]string, error)
}

// Config holds the quoting parameters. RetryInterval and PollInterval
// default to one second; they are injectable so tests run without real
// waits.
type Config struct {
	Depth         decimal.Decimal
	OrderSize     decimal.Decimal
	HoldInterval  time.Duration
	RetryInterval time.Duration
	PollInterval  time.Duration
}

// Quoter owns the quoting cycle and the bookkeeping for its own resting
// orders.
type Quoter struct {
	cfg      Config
	exchange core.IExchange
	book     Book
	journal  Journal
	logger   core.ILogger

	mu    sync.Mutex
	quote Quote
	state State

	stopCh   chan struct{}
	stopOnce sync.Once

	cycleCounter  metric.Int64Counter
	placedCounter metric.Int64Counter
	cancelCounter metric.Int64Counter
}

// New validates the configuration and returns a ready quoter.
// Invalid depth or a hold interval below the rate-limit floor is fatal
// here, before anything starts.
func New(cfg Config, exchange core.IExchange, book Book, journal Journal, logger core.ILogger) (*Quoter, error) {
	if cfg.Depth.IsNegative() {
		return nil, fmt.Errorf("invalid depth %s: cannot be less than 0", cfg.Depth)
	}
	if !cfg.OrderSize.IsPositive() {
		return nil, fmt.Errorf("invalid order size %s: must be positive", cfg.OrderSize)
	}
	if cfg.HoldInterval < config.MinHoldInterval {
		return nil, fmt.Errorf("invalid hold interval %s: below the %s floor", cfg.HoldInterval, config.MinHoldInterval)
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}

	meter := telemetry.GetMeter("quoter")
	cycleCounter, _ := meter.Int64Counter("quote_cycles_total",
		metric.WithDescription("Total number of completed quote cycles"))
	placedCounter, _ := meter.Int64Counter("orders_placed_total",
		metric.WithDescription("Total number of orders confirmed created"))
	cancelCounter, _ := meter.Int64Counter("orders_cancelled_total",
		metric.WithDescription("Total number of confirmed cancel batches"))

	return &Quoter{
		cfg:           cfg,
		exchange:      exchange,
		book:          book,
		journal:       journal,
		logger:        logger.WithField("component", "quoter"),
		state:         StateIdle,
		stopCh:        make(chan struct{}),
		cycleCounter:  cycleCounter,
		placedCounter: placedCounter,
		cancelCounter: cancelCounter,
	}, nil
}

// State returns the loop's current state.
func (q *Quoter) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// RestingQuote returns a copy of the current quote bookkeeping.
func (q *Quoter) RestingQuote() Quote {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.quote
}

// Run executes the quoting cycle until Stop is called or ctx is
// cancelled. Placement and cancellation retry indefinitely at the fixed
// retry interval; only a stop request breaks the loop. Run performs no
// final cancellation of its own; that is Stop's job.
func (q *Quoter) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-q.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	policy := retry.Policy{Interval: q.cfg.RetryInterval}

	for {
		q.setState(StatePlacing)
		if err := retry.Do(runCtx, policy, func() error {
			return q.placeOrders(runCtx)
		}); err != nil {
			break
		}

		q.setState(StateHolding)
		if !q.hold(runCtx) {
			break
		}

		q.setState(StateCancelling)
		if err := retry.Do(runCtx, policy, func() error {
			return q.cancelOrders(runCtx)
		}); err != nil {
			break
		}

		q.cycleCounter.Add(runCtx, 1)
	}

	q.setState(StateStopped)
	q.logger.Info("quoting loop exited")
	return nil
}

// Stop shuts the system down: the engine stops reconnecting, the run loop
// exits at its next stop check, and the single authoritative final
// cancellation runs here, retrying until success or until the operator
// cancels ctx to force termination.
func (q *Quoter) Stop(ctx context.Context) error {
	q.book.Stop()
	q.stopOnce.Do(func() { close(q.stopCh) })

	err := retry.Do(ctx, retry.Policy{Interval: q.cfg.RetryInterval}, func() error {
		return q.cancelOrders(ctx)
	})
	if err != nil {
		q.logger.Error("final cancellation abandoned", "error", err)
		return err
	}
	return nil
}

// SweepOrphans cancels any resting orders journaled by a previous run that
// exited without cancelling. Called once before the loop starts.
func (q *Quoter) SweepOrphans(ctx context.Context) error {
	if q.journal == nil {
		return nil
	}

	ids, err := q.journal.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list journaled orders: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	q.logger.Warn("cancelling orphaned orders from a previous run", "order_ids", ids)
	if err := q.exchange.CancelOrders(ctx, ids); err != nil {
		return fmt.Errorf("failed to cancel orphaned orders: %w", err)
	}
	return q.journal.Clear(ctx, ids)
}

// placeOrders blocks until the book is synchronized with a full top of
// book, then submits the quote pair. The buy goes first; the sell is
// attempted only after the buy is confirmed. Either submission failing is
// returned to the caller, which retries the whole operation.
func (q *Quoter) placeOrders(ctx context.Context) error {
	bid, offer, err := q.awaitTopOfBook(ctx)
	if err != nil {
		return err
	}

	// fresh cycle, fresh bookkeeping
	q.setQuote(Quote{})

	buyPrice := offer.Price.Sub(q.cfg.Depth)
	sellPrice := bid.Price.Add(q.cfg.Depth)

	buyID, err := q.exchange.CreateLimitOrderGTC(ctx, &core.LimitOrderRequest{
		ClientOrderID: uuid.NewString(),
		Side:          core.OrderSideBuy,
		BaseSize:      q.cfg.OrderSize,
		LimitPrice:    buyPrice,
	})
	if err != nil {
		q.logger.Error("could not create buy order", "error", err)
		return err
	}
	q.setBuyOrderID(buyID)
	q.placedCounter.Add(ctx, 1)
	q.journalRecord(ctx, buyID, string(core.OrderSideBuy))

	sellID, err := q.exchange.CreateLimitOrderGTC(ctx, &core.LimitOrderRequest{
		ClientOrderID: uuid.NewString(),
		Side:          core.OrderSideSell,
		BaseSize:      q.cfg.OrderSize,
		LimitPrice:    sellPrice,
	})
	if err != nil {
		q.logger.Error("could not create sell order", "error", err)
		return err
	}
	q.setSellOrderID(sellID)
	q.placedCounter.Add(ctx, 1)
	q.journalRecord(ctx, sellID, string(core.OrderSideSell))

	q.logger.Info("quote placed",
		"buy_order_id", buyID,
		"buy_price", buyPrice.String(),
		"sell_order_id", sellID,
		"sell_price", sellPrice.String(),
	)
	return nil
}

// cancelOrders cancels whichever resting ids are present as one batched
// request. The ids are cleared only on success, so a retry resends the
// same ids; cancellation is idempotent at the exchange.
func (q *Quoter) cancelOrders(ctx context.Context) error {
	ids := q.restingIDs()
	if len(ids) == 0 {
		return nil
	}

	if err := q.exchange.CancelOrders(ctx, ids); err != nil {
		q.logger.Error("could not cancel orders", "order_ids", ids, "error", err)
		return err
	}

	q.cancelCounter.Add(ctx, 1)
	q.journalClear(ctx, ids)
	q.setQuote(Quote{})
	return nil
}

// awaitTopOfBook polls until the engine is synchronized and both sides of
// the top of book are present, or a stop request is observed.
func (q *Quoter) awaitTopOfBook(ctx context.Context) (bid, offer *core.PriceLevel, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, apperrors.ErrStopped
		}

		if q.book.IsConnected() {
			bbo := q.book.BestBidOffer()
			if bbo.Bid != nil && bbo.Offer != nil {
				return bbo.Bid, bbo.Offer, nil
			}
		}

		q.logger.Info("waiting for best bid and offer")
		select {
		case <-ctx.Done():
			return nil, nil, apperrors.ErrStopped
		case <-time.After(q.cfg.PollInterval):
		}
	}
}

// hold waits out the configured interval in small increments; false means
// a stop request interrupted it.
func (q *Quoter) hold(ctx context.Context) bool {
	for elapsed := time.Duration(0); elapsed < q.cfg.HoldInterval; elapsed += holdTick {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(holdTick):
		}
	}
	return true
}

func (q *Quoter) restingIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ids []string
	if q.quote.BuyOrderID != "" {
		ids = append(ids, q.quote.BuyOrderID)
	}
	if q.quote.SellOrderID != "" {
		ids = append(ids, q.quote.SellOrderID)
	}
	return ids
}

func (q *Quoter) setQuote(quote Quote) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.quote = quote
}

func (q *Quoter) setBuyOrderID(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.quote.BuyOrderID = id
}

func (q *Quoter) setSellOrderID(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.quote.SellOrderID = id
}

func (q *Quoter) setState(s State) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state = s
}

func (q *Quoter) journalRecord(ctx context.Context, orderID, side string) {
	if q.journal == nil {
		return
	}
	if err := q.journal.Record(ctx, orderID, side); err != nil {
		q.logger.Warn("failed to journal order", "order_id", orderID, "error", err)
	}
}

func (q *Quoter) journalClear(ctx context.Context, ids []string) {
	if q.journal == nil {
		return
	}
	if err := q.journal.Clear(ctx, ids); err != nil {
		q.logger.Warn("failed to clear journal entries", "order_ids", ids, "error", err)
	}
}
