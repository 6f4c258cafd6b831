// Package binance implements the Binance spot adapter.
package binance

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/crosstide/connector/errs"
	"github.com/crosstide/connector/internal/config"
	"github.com/crosstide/connector/internal/exchange"
	"github.com/crosstide/connector/internal/schema"
	"github.com/crosstide/connector/internal/sign"
	"github.com/crosstide/connector/internal/stream"
	"github.com/crosstide/connector/internal/telemetry"
)

const (
	exchangeName  = "binance"
	orderPath     = "/api/v3/order"
	maxBodyBytes  = 1 << 20
	orderThrottle = 10 // orders per second
)

// Adapter talks to Binance: signed REST for order management, websocket
// streams for trades and order updates.
type Adapter struct {
	cfg     config.ExchangeSettings
	client  *http.Client
	limiter *rate.Limiter
	clock   func() time.Time
	dial    stream.Dialer
	policy  stream.RetryPolicy
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

// WithDialer overrides the stream dialer.
func WithDialer(dial stream.Dialer) Option {
	return func(a *Adapter) { a.dial = dial }
}

// WithRetryPolicy overrides the stream reconnect policy.
func WithRetryPolicy(policy stream.RetryPolicy) Option {
	return func(a *Adapter) { a.policy = policy }
}

// New constructs the Binance adapter from immutable settings.
func New(cfg config.ExchangeSettings, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout()},
		limiter: rate.NewLimiter(rate.Limit(orderThrottle), 1),
		clock:   time.Now,
		policy:  stream.DefaultRetryPolicy(),
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

// PlaceOrder signs the canonical request into Binance's query-string scheme
// and submits it. Rejections surface as errs.CodeRejected with the venue's
// message; there is no automatic retry and no fabricated fallback value.
func (a *Adapter) PlaceOrder(ctx context.Context, req schema.OrderRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", errs.New(exchangeName, errs.CodeInvalid, errs.WithCause(err))
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return "", errs.Transport(exchangeName, err)
	}

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(strings.TrimSpace(req.Symbol)))
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", req.Quantity.String())
	if req.Type == schema.OrderTypeLimit {
		params.Set("price", req.Price.String())
		params.Set("timeInForce", "GTC")
	}
	clientOrderID := strings.TrimSpace(req.ClientOrderID)
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}
	params.Set("newClientOrderId", clientOrderID)
	timestamp := req.Timestamp
	if timestamp <= 0 {
		timestamp = a.clock().UTC().UnixMilli()
	}
	params.Set("timestamp", strconv.FormatInt(timestamp, 10))

	payload := params.Encode()
	signature, err := sign.Sign(payload, a.cfg.Credentials.APISecret)
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(a.cfg.RESTBaseURL, "/") + orderPath + "?" + payload + "&signature=" + signature
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", errs.Transport(exchangeName, err)
	}
	httpReq.Header.Set("X-MBX-APIKEY", a.cfg.Credentials.APIKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", errs.Transport(exchangeName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", errs.Transport(exchangeName, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		telemetry.RecordOrderRejected(ctx, exchangeName)
		return "", errs.RemoteRejected(exchangeName, resp.StatusCode, string(body))
	}

	telemetry.RecordOrderSubmitted(ctx, exchangeName)
	return orderIDFromResponse(body), nil
}

type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
}

func orderIDFromResponse(body []byte) string {
	var parsed orderResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.OrderID > 0 {
		return strconv.FormatInt(parsed.OrderID, 10)
	}
	return strings.TrimSpace(string(body))
}

// CancelOrder issues a signed cancel and reports whether Binance accepted
// it. Cancelling an unknown order yields errs.CodeRejected, never a silent
// success.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, errs.New(exchangeName, errs.CodeInvalid, errs.WithMessage("order id required"))
	}

	params := url.Values{}
	params.Set("orderId", orderID)
	params.Set("timestamp", strconv.FormatInt(a.clock().UTC().UnixMilli(), 10))
	payload := params.Encode()
	signature, err := sign.Sign(payload, a.cfg.Credentials.APISecret)
	if err != nil {
		return false, err
	}

	endpoint := strings.TrimRight(a.cfg.RESTBaseURL, "/") + orderPath + "?" + payload + "&signature=" + signature
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return false, errs.Transport(exchangeName, err)
	}
	httpReq.Header.Set("X-MBX-APIKEY", a.cfg.Credentials.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return false, errs.Transport(exchangeName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return false, errs.RemoteRejected(exchangeName, resp.StatusCode, string(body))
	}
	return true, nil
}

// StreamTrades subscribes to the <symbol>@trade feed and maps each compact
// frame into a canonical trade tick.
func (a *Adapter) StreamTrades(ctx context.Context, symbol string, onUpdate exchange.TradeHandler, onError exchange.ErrorHandler) (*stream.Subscription, error) {
	return stream.Subscribe(ctx, stream.Options[schema.TradeUpdate]{
		Exchange: exchangeName,
		URL:      a.streamURL(symbol, "trade"),
		Decode:   decodeTrade,
		OnMessage: func(_ context.Context, _ stream.Conn, update schema.TradeUpdate) error {
			onUpdate(update)
			return nil
		},
		OnError: onError,
		Policy:  a.policy,
		Dial:    a.dial,
	})
}

// StreamOrders subscribes to the symbol's order-update feed.
func (a *Adapter) StreamOrders(ctx context.Context, symbol string, onUpdate exchange.OrderHandler, onError exchange.ErrorHandler) (*stream.Subscription, error) {
	return stream.Subscribe(ctx, stream.Options[schema.OrderUpdate]{
		Exchange: exchangeName,
		URL:      a.streamURL(symbol, "order"),
		Decode:   decodeOrder,
		OnMessage: func(_ context.Context, _ stream.Conn, update schema.OrderUpdate) error {
			onUpdate(update)
			return nil
		},
		OnError: onError,
		Policy:  a.policy,
		Dial:    a.dial,
	})
}

func (a *Adapter) streamURL(symbol, kind string) string {
	return strings.TrimRight(a.cfg.WSBaseURL, "/") + "/" + strings.ToLower(strings.TrimSpace(symbol)) + "@" + kind
}
