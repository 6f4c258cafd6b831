// Package bybit implements the Bybit adapter. Only the private execution
// stream is live; order management over REST is not wired to the venue yet
// and reports itself as unimplemented rather than pretending to succeed.
package bybit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/crosstide/connector/errs"
	"github.com/crosstide/connector/internal/config"
	"github.com/crosstide/connector/internal/exchange"
	"github.com/crosstide/connector/internal/schema"
	"github.com/crosstide/connector/internal/sign"
	"github.com/crosstide/connector/internal/stream"
)

const (
	exchangeName   = "bybit"
	authWindow     = 10 * time.Second
	executionTopic = "execution.spot"
)

// Adapter holds Bybit settings and stream plumbing.
type Adapter struct {
	cfg    config.ExchangeSettings
	clock  func() time.Time
	dial   stream.Dialer
	policy stream.RetryPolicy
}

// Option customises an Adapter, mainly for tests.
type Option func(*Adapter)

// WithClock overrides the timestamp source used for auth expiry.
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

// New constructs the Bybit adapter from immutable settings.
func New(cfg config.ExchangeSettings, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:    cfg,
		clock:  time.Now,
		policy: stream.DefaultRetryPolicy(),
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

// PlaceOrder is not wired to Bybit's REST API.
func (a *Adapter) PlaceOrder(context.Context, schema.OrderRequest) (string, error) {
	return "", errs.NotImplemented(exchangeName, "order placement is not wired to the Bybit REST API")
}

// CancelOrder is not wired to Bybit's REST API.
func (a *Adapter) CancelOrder(context.Context, string) (bool, error) {
	return false, errs.NotImplemented(exchangeName, "order cancellation is not wired to the Bybit REST API")
}

// wsFrame is the envelope shared by control acks and topic pushes on the
// private websocket.
type wsFrame struct {
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Topic   string          `json:"topic"`
	Data    json.RawMessage `json:"data"`
}

type execution struct {
	Symbol    string          `json:"symbol"`
	ExecPrice decimal.Decimal `json:"execPrice"`
	OrderQty  decimal.Decimal `json:"orderQty"`
}

type authRequest struct {
	Op   string `json:"op"`
	Args []any  `json:"args"`
}

type subscribeRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

func decodeFrame(data []byte) (wsFrame, error) {
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return wsFrame{}, err
	}
	return frame, nil
}

// StreamTrades opens the private stream and runs the handshake: an auth
// frame on connect, then one subscribe to the execution topic after the ack.
// A rejected auth is fatal; the client must not burn reconnect attempts on
// credentials the venue already refused.
func (a *Adapter) StreamTrades(ctx context.Context, symbol string, onUpdate exchange.TradeHandler, onError exchange.ErrorHandler) (*stream.Subscription, error) {
	if a.cfg.Credentials.APIKey == "" || a.cfg.Credentials.APISecret == "" {
		return nil, errs.New(exchangeName, errs.CodeSigning, errs.WithMessage("credentials required for the private stream"))
	}
	wantSymbol := strings.ToUpper(strings.TrimSpace(symbol))

	return stream.Subscribe(ctx, stream.Options[wsFrame]{
		Exchange: exchangeName,
		URL:      a.cfg.WSBaseURL,
		Decode:   decodeFrame,
		OnOpen:   a.sendAuth,
		OnMessage: func(msgCtx context.Context, conn stream.Conn, frame wsFrame) error {
			switch {
			case frame.Op == "auth":
				if frame.Success == nil || !*frame.Success {
					return stream.Fatal(errs.AuthenticationFailed(exchangeName, frame.RetMsg))
				}
				return subscribe(msgCtx, conn, executionTopic)
			case frame.Op == "subscribe":
				if frame.Success != nil && !*frame.Success {
					return errs.New(exchangeName, errs.CodeTransport, errs.WithMessage("subscribe rejected"), errs.WithRawMessage(frame.RetMsg))
				}
				return nil
			case strings.HasPrefix(frame.Topic, "execution"):
				updates, err := executionUpdates(frame.Data)
				if err != nil {
					return errs.Decode(exchangeName, err)
				}
				for _, update := range updates {
					if wantSymbol != "" && !strings.EqualFold(update.Symbol, wantSymbol) {
						continue
					}
					onUpdate(update)
				}
				return nil
			default:
				// Heartbeats and unknown control frames are ignored.
				return nil
			}
		},
		OnError: onError,
		Policy:  a.policy,
		Dial:    a.dial,
	})
}

// StreamOrders has no private order topic wired yet.
func (a *Adapter) StreamOrders(context.Context, string, exchange.OrderHandler, exchange.ErrorHandler) (*stream.Subscription, error) {
	return nil, errs.NotImplemented(exchangeName, "order update streaming is not wired for Bybit")
}

// sendAuth writes the handshake frame. The signed payload is the literal
// request line "GET/realtime" concatenated with the expiry in epoch millis.
func (a *Adapter) sendAuth(ctx context.Context, conn stream.Conn) error {
	expires := a.clock().Add(authWindow).UnixMilli()
	signature, err := sign.Sign("GET/realtime"+strconv.FormatInt(expires, 10), a.cfg.Credentials.APISecret)
	if err != nil {
		return stream.Fatal(err)
	}
	frame, err := json.Marshal(authRequest{
		Op:   "auth",
		Args: []any{a.cfg.Credentials.APIKey, expires, signature},
	})
	if err != nil {
		return stream.Fatal(err)
	}
	return conn.Write(ctx, frame)
}

func subscribe(ctx context.Context, conn stream.Conn, topic string) error {
	frame, err := json.Marshal(subscribeRequest{Op: "subscribe", Args: []string{topic}})
	if err != nil {
		return err
	}
	return conn.Write(ctx, frame)
}

func executionUpdates(data json.RawMessage) ([]schema.TradeUpdate, error) {
	var fills []execution
	if err := json.Unmarshal(data, &fills); err != nil {
		return nil, err
	}
	updates := make([]schema.TradeUpdate, 0, len(fills))
	for _, fill := range fills {
		if fill.Symbol == "" {
			continue
		}
		updates = append(updates, schema.TradeUpdate{
			Symbol:   fill.Symbol,
			Price:    fill.ExecPrice,
			Quantity: fill.OrderQty,
		})
	}
	return updates, nil
}
