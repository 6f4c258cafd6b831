// Package coinbase implements the Coinbase adapter. Order management runs
// over signed REST; market data streaming is not wired for this venue and is
// reported as unimplemented instead of returning a stream that never emits.
package coinbase

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/crosstide/connector/errs"
	"github.com/crosstide/connector/internal/config"
	"github.com/crosstide/connector/internal/exchange"
	"github.com/crosstide/connector/internal/schema"
	"github.com/crosstide/connector/internal/sign"
	"github.com/crosstide/connector/internal/stream"
	"github.com/crosstide/connector/internal/telemetry"
)

const (
	exchangeName = "coinbase"
	ordersPath   = "/orders"
	maxBodyBytes = 1 << 20
)

// Adapter talks to Coinbase's order endpoints.
type Adapter struct {
	cfg    config.ExchangeSettings
	client *http.Client
	clock  func() time.Time
}

// Option customises an Adapter, mainly for tests.
type Option func(*Adapter)

// WithHTTPClient overrides the REST transport.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) { a.client = client }
}

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(a *Adapter) { a.clock = clock }
}

// New constructs the Coinbase adapter from immutable settings.
func New(cfg config.ExchangeSettings, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Name returns the exchange identifier.
func (a *Adapter) Name() string { return exchangeName }

type orderBody struct {
	ClientOrderID string  `json:"client_order_id"`
	ProductID     string  `json:"product_id"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Size          string  `json:"size"`
	Price         *string `json:"price,omitempty"`
}

type orderResponse struct {
	OrderID string `json:"order_id"`
}

// PlaceOrder submits the canonical request as a JSON body signed per
// Coinbase's timestamp+method+path+body scheme.
func (a *Adapter) PlaceOrder(ctx context.Context, req schema.OrderRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", errs.New(exchangeName, errs.CodeInvalid, errs.WithCause(err))
	}

	clientOrderID := strings.TrimSpace(req.ClientOrderID)
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}
	body := orderBody{
		ClientOrderID: clientOrderID,
		ProductID:     strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:          string(req.Side),
		Type:          string(req.Type),
		Size:          req.Quantity.String(),
	}
	if req.Type == schema.OrderTypeLimit {
		price := req.Price.String()
		body.Price = &price
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", errs.New(exchangeName, errs.CodeInvalid, errs.WithCause(err))
	}

	respBody, status, err := a.send(ctx, http.MethodPost, ordersPath, payload)
	if err != nil {
		return "", err
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		telemetry.RecordOrderRejected(ctx, exchangeName)
		return "", errs.RemoteRejected(exchangeName, status, string(respBody))
	}

	telemetry.RecordOrderSubmitted(ctx, exchangeName)
	var parsed orderResponse
	if jerr := json.Unmarshal(respBody, &parsed); jerr == nil && parsed.OrderID != "" {
		return parsed.OrderID, nil
	}
	return clientOrderID, nil
}

// CancelOrder deletes the order by id. Unknown ids surface the venue's
// rejection; cancellation never reports success it cannot confirm.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, errs.New(exchangeName, errs.CodeInvalid, errs.WithMessage("order id required"))
	}

	body, status, err := a.send(ctx, http.MethodDelete, ordersPath+"/"+orderID, nil)
	if err != nil {
		return false, err
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return false, errs.RemoteRejected(exchangeName, status, string(body))
	}
	return true, nil
}

// send issues one signed request and returns the response body and status.
func (a *Adapter) send(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	timestamp := strconv.FormatInt(a.clock().UTC().Unix(), 10)
	signature, err := sign.Sign(timestamp+method+path+string(payload), a.cfg.Credentials.APISecret)
	if err != nil {
		return nil, 0, err
	}

	endpoint := strings.TrimRight(a.cfg.RESTBaseURL, "/") + path
	var reader io.Reader
	if len(payload) > 0 {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, errs.Transport(exchangeName, err)
	}
	httpReq.Header.Set("CB-ACCESS-KEY", a.cfg.Credentials.APIKey)
	httpReq.Header.Set("CB-ACCESS-SIGN", signature)
	httpReq.Header.Set("CB-ACCESS-TIMESTAMP", timestamp)
	if len(payload) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, 0, errs.Transport(exchangeName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, errs.Transport(exchangeName, err)
	}
	return body, resp.StatusCode, nil
}

// StreamTrades has no market data feed wired for Coinbase.
func (a *Adapter) StreamTrades(context.Context, string, exchange.TradeHandler, exchange.ErrorHandler) (*stream.Subscription, error) {
	return nil, errs.NotImplemented(exchangeName, "trade streaming is not wired for Coinbase")
}

// StreamOrders has no order update feed wired for Coinbase.
func (a *Adapter) StreamOrders(context.Context, string, exchange.OrderHandler, exchange.ErrorHandler) (*stream.Subscription, error) {
	return nil, errs.NotImplemented(exchangeName, "order update streaming is not wired for Coinbase")
}
