// Package book maintains a synchronized view of the exchange's aggregated
// price-level liquidity from the streaming feed.
package book

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"

	"github.com/avii-ahuja/coinbase-trading-bot/internal/core"
	"github.com/avii-ahuja/coinbase-trading-bot/internal/ws"
	apperrors "github.com/avii-ahuja/coinbase-trading-bot/pkg/errors"
	"github.com/avii-ahuja/coinbase-trading-bot/pkg/telemetry"
)

// ConnectionState tracks where the engine is in its connect/subscribe
// lifecycle. Stopped is terminal and only reachable through Stop.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateSubscribed
	StateSynchronized
	StateStopped
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateSynchronized:
		return "synchronized"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Engine owns one streaming connection and the two per-side stores. All
// store mutation happens on the run goroutine; readers go through the
// mutex.
type Engine struct {
	productID      string
	url            string
	signer         core.ISigner
	dialer         ws.Dialer
	reconnectDelay time.Duration
	logger         core.ILogger

	mu    sync.Mutex
	state ConnectionState
	conn  ws.Conn
	bids  *Store
	asks  *Store

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	msgCounter    metric.Int64Counter
	connCounter   metric.Int64Counter
	updateCounter metric.Int64Counter
}

// NewEngine creates an engine for one product. The dialer and reconnect
// delay are injectable for tests.
func NewEngine(productID, url string, signer core.ISigner, dialer ws.Dialer, reconnectDelay time.Duration, logger core.ILogger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	meter := telemetry.GetMeter("book-engine")
	msgCounter, _ := meter.Int64Counter("book_messages_total",
		metric.WithDescription("Total number of streaming messages received"))
	connCounter, _ := meter.Int64Counter("book_connections_total",
		metric.WithDescription("Total number of streaming connections initiated"))
	updateCounter, _ := meter.Int64Counter("book_level_updates_total",
		metric.WithDescription("Total number of price-level updates applied"))

	return &Engine{
		productID:      productID,
		url:            url,
		signer:         signer,
		dialer:         dialer,
		reconnectDelay: reconnectDelay,
		logger:         logger.WithField("component", "book_engine"),
		state:          StateDisconnected,
		bids:           NewStore(core.SideBid),
		asks:           NewStore(core.SideOffer),
		ctx:            ctx,
		cancel:         cancel,
		msgCounter:     msgCounter,
		connCounter:    connCounter,
		updateCounter:  updateCounter,
	}
}

// Start opens the streaming connection and begins the sync loop. Calling
// Start on a running engine is a no-op; calling it after Stop returns
// ErrStopped.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateStopped {
		return apperrors.ErrStopped
	}
	if e.started {
		return nil
	}
	e.started = true

	e.wg.Add(1)
	go e.run()
	return nil
}

// IsConnected reports whether the book view is synchronized with the feed.
func (e *Engine) IsConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateSynchronized
}

// State returns the current connection state.
func (e *Engine) State() ConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// BestBidOffer returns the top of the book. The pair is {nil, nil}
// whenever the engine is not synchronized, even if stale levels remain in
// the stores, and whenever either side is empty.
func (e *Engine) BestBidOffer() core.BestBidOffer {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateSynchronized {
		return core.BestBidOffer{}
	}

	bid := e.bids.Best()
	offer := e.asks.Best()
	if bid == nil || offer == nil {
		return core.BestBidOffer{}
	}

	midMarket := bid.Price.Add(offer.Price).Div(decimal.NewFromInt(2))
	e.logger.Debug("top of book",
		"best_bid", bid.Price.String(),
		"best_offer", offer.Price.String(),
		"mid_market", midMarket.String(),
	)

	return core.BestBidOffer{Bid: bid, Offer: offer}
}

// Stop transitions to the terminal Stopped state, closes the transport and
// suppresses any further reconnects.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	e.state = StateStopped
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()

	e.cancel()
	if conn != nil {
		conn.Close()
	}
	e.wg.Wait()
	e.logger.Info("book engine stopped")
}

func (e *Engine) run() {
	defer e.wg.Done()

	for {
		if e.stopped() {
			return
		}
		e.setState(StateConnecting)
		e.connCounter.Add(e.ctx, 1)

		conn, err := e.dialer.Dial(e.ctx, e.url)
		if err != nil {
			e.logger.Warn("connect failed, reattempting", "error", err, "delay", e.reconnectDelay)
			e.setState(StateDisconnected)
			if !e.sleep(e.reconnectDelay) {
				return
			}
			continue
		}

		// A session starts from a clean slate: the feed is incremental
		// with no snapshot replay, so levels from a previous connection
		// must not survive the gap.
		e.mu.Lock()
		if e.state == StateStopped {
			e.mu.Unlock()
			conn.Close()
			return
		}
		e.bids.Clear()
		e.asks.Clear()
		e.conn = conn
		e.state = StateSubscribed
		e.mu.Unlock()

		if err := e.subscribe(conn); err != nil {
			e.logger.Warn("subscribe failed, reattempting", "error", err)
			e.dropConn(conn)
			if !e.sleep(e.reconnectDelay) {
				return
			}
			continue
		}

		e.setState(StateSynchronized)
		e.logger.Info("connected", "product_id", e.productID)

		e.readLoop(conn)
		e.dropConn(conn)

		if e.stopped() {
			return
		}
		e.logger.Info("disconnected, reattempting", "delay", e.reconnectDelay)
		if !e.sleep(e.reconnectDelay) {
			return
		}
	}
}

// subscribe issues the keep-alive and price-level subscriptions. Each send
// carries a freshly signed token; tokens are short-lived and never cached.
func (e *Engine) subscribe(conn ws.Conn) error {
	for _, channel := range []string{channelHeartbeats, channelLevel2} {
		token, err := e.signer.SignWebsocket()
		if err != nil {
			return err
		}
		msg := subscribeMessage{
			Type:       "subscribe",
			Channel:    channel,
			ProductIDs: []string{e.productID},
			JWT:        token,
			Timestamp:  strconv.FormatInt(time.Now().Unix(), 10),
		}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) readLoop(conn ws.Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		e.msgCounter.Add(e.ctx, 1)
		e.handleMessage(data)
	}
}

// handleMessage applies one inbound envelope. Malformed payloads are
// dropped without affecting connection state.
func (e *Engine) handleMessage(data []byte) {
	var msg channelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		e.logger.Debug("dropping malformed payload", "error", err)
		return
	}

	if msg.Channel != channelL2Data {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, event := range msg.Events {
		for _, update := range event.Updates {
			price, err := decimal.NewFromString(update.PriceLevel)
			if err != nil {
				e.logger.Debug("dropping update with bad price", "price_level", update.PriceLevel)
				continue
			}
			size, err := decimal.NewFromString(update.NewQuantity)
			if err != nil {
				e.logger.Debug("dropping update with bad quantity", "new_quantity", update.NewQuantity)
				continue
			}

			if core.Side(update.Side) == core.SideBid {
				e.bids.Upsert(price, size)
			} else {
				e.asks.Upsert(price, size)
			}
			e.updateCounter.Add(e.ctx, 1)
		}
	}
}

func (e *Engine) setState(s ConnectionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStopped {
		return
	}
	e.state = s
}

func (e *Engine) stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateStopped
}

func (e *Engine) dropConn(conn ws.Conn) {
	conn.Close()
	e.mu.Lock()
	if e.conn == conn {
		e.conn = nil
	}
	if e.state != StateStopped {
		e.state = StateDisconnected
	}
	e.mu.Unlock()
}

// sleep waits out the reconnect delay; false means stop was requested.
func (e *Engine) sleep(d time.Duration) bool {
	select {
	case <-e.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
