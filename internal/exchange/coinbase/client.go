// Package coinbase implements the Advanced Trade order-entry client.
package coinbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/avii-ahuja/coinbase-trading-bot/internal/core"
	apperrors "github.com/avii-ahuja/coinbase-trading-bot/pkg/errors"
	"github.com/avii-ahuja/coinbase-trading-bot/pkg/httpclient"
)

const (
	ordersPath      = "/api/v3/brokerage/orders"
	batchCancelPath = "/api/v3/brokerage/orders/batch_cancel"

	requestTimeout = 10 * time.Second

	// Advanced Trade allows ~30 private requests per second; stay under it.
	requestsPerSecond = 25
)

// Client talks to the Advanced Trade REST API for one product.
type Client struct {
	productID string
	http      *httpclient.Client
	limiter   *rate.Limiter
	logger    core.ILogger
}

// bearerSigner adapts the credential signer to the HTTP client's signing
// hook. A fresh token is minted for every outgoing request.
type bearerSigner struct {
	signer core.ISigner
	host   string
}

func (b *bearerSigner) SignRequest(req *http.Request) error {
	token, err := b.signer.SignRequest(req.Method, b.host, req.URL.Path)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// NewClient creates an order-entry client. baseURL includes the scheme
// (e.g. "https://api.coinbase.com"); the signing host is derived from it.
func NewClient(productID, baseURL string, signer core.ISigner, logger core.ILogger) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	return &Client{
		productID: productID,
		http:      httpclient.NewClient(baseURL, requestTimeout, &bearerSigner{signer: signer, host: parsed.Host}),
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		logger:    logger.WithField("component", "coinbase_client"),
	}, nil
}

type limitLimitGTC struct {
	BaseSize   string `json:"base_size"`
	LimitPrice string `json:"limit_price"`
}

type orderConfiguration struct {
	LimitLimitGTC limitLimitGTC `json:"limit_limit_gtc"`
}

type createOrderRequest struct {
	ClientOrderID      string             `json:"client_order_id"`
	ProductID          string             `json:"product_id"`
	Side               string             `json:"side"`
	OrderConfiguration orderConfiguration `json:"order_configuration"`
}

type createOrderResponse struct {
	OrderID string `json:"order_id"`
	Success bool   `json:"success"`
}

type batchCancelRequest struct {
	OrderIDs []string `json:"order_ids"`
}

// CreateLimitOrderGTC submits a good-till-cancelled limit order and
// returns the exchange-assigned order id.
func (c *Client) CreateLimitOrderGTC(ctx context.Context, req *core.LimitOrderRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body := createOrderRequest{
		ClientOrderID: req.ClientOrderID,
		ProductID:     c.productID,
		Side:          string(req.Side),
		OrderConfiguration: orderConfiguration{
			LimitLimitGTC: limitLimitGTC{
				BaseSize:   req.BaseSize.String(),
				LimitPrice: req.LimitPrice.String(),
			},
		},
	}

	respBody, err := c.http.Post(ctx, ordersPath, body)
	if err != nil {
		return "", fmt.Errorf("cannot create %s order: %w", req.Side, c.classify(err))
	}

	var resp createOrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("cannot parse order response: %w", err)
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("cannot create %s order: %w", req.Side, apperrors.ErrOrderRejected)
	}

	c.logger.Debug("order created",
		"order_id", resp.OrderID,
		"side", req.Side,
		"limit_price", req.LimitPrice.String(),
		"base_size", req.BaseSize.String(),
	)
	return resp.OrderID, nil
}

// CancelOrders cancels the given order ids in one batched request.
// Cancelling an empty set is a no-op.
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if _, err := c.http.Post(ctx, batchCancelPath, batchCancelRequest{OrderIDs: orderIDs}); err != nil {
		return fmt.Errorf("cannot cancel orders: %w", c.classify(err))
	}

	c.logger.Debug("orders cancelled", "order_ids", orderIDs)
	return nil
}

// classify maps transport failures onto the standard error taxonomy while
// keeping the original error in the chain.
func (c *Client) classify(err error) error {
	var apiErr *httpclient.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}

	switch {
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %v", apperrors.ErrAuthenticationFailed, err)
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", apperrors.ErrRateLimitExceeded, err)
	case apiErr.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %v", apperrors.ErrOrderNotFound, err)
	case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return fmt.Errorf("%w: %v", apperrors.ErrOrderRejected, err)
	default:
		return fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}
}
