package book

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avii-ahuja/coinbase-trading-bot/internal/ws"
	apperrors "github.com/avii-ahuja/coinbase-trading-bot/pkg/errors"
	"github.com/avii-ahuja/coinbase-trading-bot/pkg/logging"
)

type fakeConn struct {
	mu        sync.Mutex
	sent      []subscribeMessage
	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg subscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-c.incoming:
		return m, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sentMessages() []subscribeMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]subscribeMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (ws.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

type fakeSigner struct {
	mu    sync.Mutex
	count int
}

func (s *fakeSigner) SignRequest(method, host, path string) (string, error) {
	return s.next(), nil
}

func (s *fakeSigner) SignWebsocket() (string, error) {
	return s.next(), nil
}

func (s *fakeSigner) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return fmt.Sprintf("token-%d", s.count)
}

func newTestEngine(t *testing.T) (*Engine, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{}
	e := NewEngine("BTC-USD", "wss://test", &fakeSigner{}, dialer, time.Millisecond, logging.NewNop())
	t.Cleanup(e.Stop)
	return e, dialer
}

func l2Payload(t *testing.T, updates []levelUpdate) []byte {
	t.Helper()
	data, err := json.Marshal(channelMessage{
		Channel: channelL2Data,
		Events:  []channelEvent{{Type: "update", ProductID: "BTC-USD", Updates: updates}},
	})
	require.NoError(t, err)
	return data
}

func TestEngine_SubscribesOnOpenWithFreshTokens(t *testing.T) {
	e, dialer := newTestEngine(t)
	require.NoError(t, e.Start())

	assert.Eventually(t, e.IsConnected, time.Second, 5*time.Millisecond)

	sent := dialer.conn(0).sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "subscribe", sent[0].Type)
	assert.Equal(t, channelHeartbeats, sent[0].Channel)
	assert.Equal(t, channelLevel2, sent[1].Channel)
	assert.Equal(t, []string{"BTC-USD"}, sent[0].ProductIDs)
	assert.NotEmpty(t, sent[0].JWT)
	assert.NotEmpty(t, sent[0].Timestamp)
	// one token per send, never reused
	assert.NotEqual(t, sent[0].JWT, sent[1].JWT)
}

func TestEngine_AppliesLevel2UpdatesInArrivalOrder(t *testing.T) {
	e, dialer := newTestEngine(t)
	require.NoError(t, e.Start())
	require.Eventually(t, e.IsConnected, time.Second, 5*time.Millisecond)

	dialer.conn(0).incoming <- l2Payload(t, []levelUpdate{
		{Side: "bid", PriceLevel: "100", NewQuantity: "1"},
		{Side: "bid", PriceLevel: "105", NewQuantity: "1"},
		{Side: "bid", PriceLevel: "98", NewQuantity: "1"},
		{Side: "offer", PriceLevel: "110", NewQuantity: "1"},
		{Side: "offer", PriceLevel: "108", NewQuantity: "1"},
		{Side: "offer", PriceLevel: "112", NewQuantity: "1"},
	})

	assert.Eventually(t, func() bool {
		bbo := e.BestBidOffer()
		return bbo.Bid != nil && bbo.Bid.Price.Equal(dec("105")) &&
			bbo.Offer != nil && bbo.Offer.Price.Equal(dec("108"))
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_BestBidOfferNilUnlessBothSidesPresent(t *testing.T) {
	e, dialer := newTestEngine(t)
	require.NoError(t, e.Start())
	require.Eventually(t, e.IsConnected, time.Second, 5*time.Millisecond)

	dialer.conn(0).incoming <- l2Payload(t, []levelUpdate{
		{Side: "bid", PriceLevel: "100", NewQuantity: "1"},
	})

	// bid-only book never yields a tradable pair
	time.Sleep(20 * time.Millisecond)
	bbo := e.BestBidOffer()
	assert.Nil(t, bbo.Bid)
	assert.Nil(t, bbo.Offer)
}

func TestEngine_IgnoresOtherChannelsAndMalformedPayloads(t *testing.T) {
	e, dialer := newTestEngine(t)
	require.NoError(t, e.Start())
	require.Eventually(t, e.IsConnected, time.Second, 5*time.Millisecond)

	conn := dialer.conn(0)
	conn.incoming <- []byte(`{"channel":"heartbeats","events":[{"type":"heartbeat"}]}`)
	conn.incoming <- []byte(`this is not json`)
	conn.incoming <- l2Payload(t, []levelUpdate{
		{Side: "bid", PriceLevel: "100", NewQuantity: "1"},
		{Side: "offer", PriceLevel: "101", NewQuantity: "1"},
	})

	assert.Eventually(t, func() bool {
		bbo := e.BestBidOffer()
		return bbo.Bid != nil && bbo.Offer != nil
	}, time.Second, 5*time.Millisecond)
	assert.True(t, e.IsConnected(), "malformed payloads must not affect connection state")
}

func TestEngine_ReconnectClearsStores(t *testing.T) {
	e, dialer := newTestEngine(t)
	require.NoError(t, e.Start())
	require.Eventually(t, e.IsConnected, time.Second, 5*time.Millisecond)

	dialer.conn(0).incoming <- l2Payload(t, []levelUpdate{
		{Side: "bid", PriceLevel: "100", NewQuantity: "1"},
		{Side: "offer", PriceLevel: "101", NewQuantity: "1"},
	})
	require.Eventually(t, func() bool {
		return e.BestBidOffer().Bid != nil
	}, time.Second, 5*time.Millisecond)

	// transport failure
	dialer.conn(0).Close()

	require.Eventually(t, func() bool {
		return dialer.dialCount() == 2 && e.IsConnected()
	}, time.Second, 5*time.Millisecond)

	// prior session's levels must not survive the gap
	bbo := e.BestBidOffer()
	assert.Nil(t, bbo.Bid)
	assert.Nil(t, bbo.Offer)

	// and the new session resubscribed with fresh tokens
	sent := dialer.conn(1).sentMessages()
	require.Len(t, sent, 2)
	assert.NotEqual(t, dialer.conn(0).sentMessages()[0].JWT, sent[0].JWT)
}

func TestEngine_NotConnectedUntilSubscribed(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.False(t, e.IsConnected())
	bbo := e.BestBidOffer()
	assert.Nil(t, bbo.Bid)
	assert.Nil(t, bbo.Offer)
}

func TestEngine_StopIsTerminal(t *testing.T) {
	e, dialer := newTestEngine(t)
	require.NoError(t, e.Start())
	require.Eventually(t, e.IsConnected, time.Second, 5*time.Millisecond)

	e.Stop()
	assert.Equal(t, StateStopped, e.State())
	assert.False(t, e.IsConnected())

	dials := dialer.dialCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, dials, dialer.dialCount(), "no reconnect after Stop")

	assert.ErrorIs(t, e.Start(), apperrors.ErrStopped)
}

func TestEngine_StartAfterStartIsNoop(t *testing.T) {
	e, dialer := newTestEngine(t)
	require.NoError(t, e.Start())
	require.NoError(t, e.Start())
	require.Eventually(t, e.IsConnected, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
}
