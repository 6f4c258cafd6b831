package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/shopspring/decimal"

	"github.com/crosstide/connector/errs"
	"github.com/crosstide/connector/internal/config"
	"github.com/crosstide/connector/internal/schema"
	"github.com/crosstide/connector/internal/sign"
	"github.com/crosstide/connector/internal/stream"
)

func testSettings(restURL string) config.ExchangeSettings {
	return config.ExchangeSettings{
		RESTBaseURL: restURL,
		WSBaseURL:   "wss://stream.example.com/ws",
		Credentials: config.Credentials{APIKey: "test-key", APISecret: "test-secret"},
	}
}

func TestDecodeTradeFrame(t *testing.T) {
	frame := `{"e":"trade","s":"BTCUSDT","t":1,"p":"50000.00","q":"0.01","T":1690000000000,"m":true,"M":true}`
	update, err := decodeTrade([]byte(frame))
	if err != nil {
		t.Fatalf("decodeTrade returned error: %v", err)
	}
	if update.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected symbol %q", update.Symbol)
	}
	if !update.Price.Equal(decimal.RequireFromString("50000.00")) {
		t.Fatalf("unexpected price %s", update.Price)
	}
	if !update.Quantity.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("unexpected quantity %s", update.Quantity)
	}
}

func TestDecodeTradeRejectsMalformed(t *testing.T) {
	if _, err := decodeTrade([]byte(`{"e":"depthUpdate","s":"BTCUSDT"}`)); err == nil {
		t.Fatal("non-trade event must fail decoding")
	}
	if _, err := decodeTrade([]byte(`not json`)); err == nil {
		t.Fatal("malformed frame must fail decoding")
	}
}

func TestDecodeOrderFrame(t *testing.T) {
	frame := `{"e":"executionReport","s":"BTCUSDT","i":42,"p":"50000.00","q":"0.01","z":"0.005","X":"PARTIALLY_FILLED"}`
	update, err := decodeOrder([]byte(frame))
	if err != nil {
		t.Fatalf("decodeOrder returned error: %v", err)
	}
	if update.OrderID != "42" {
		t.Fatalf("unexpected order id %q", update.OrderID)
	}
	if update.Status != "PARTIALLY_FILLED" {
		t.Fatalf("unexpected status %q", update.Status)
	}
	if !update.FilledQuantity.Equal(decimal.RequireFromString("0.005")) {
		t.Fatalf("unexpected filled quantity %s", update.FilledQuantity)
	}
}

func TestPlaceOrderSignsQuery(t *testing.T) {
	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orderId":12345,"clientOrderId":"abc"}`))
	}))
	defer server.Close()

	adapter := New(testSettings(server.URL), WithClock(func() time.Time {
		return time.UnixMilli(1690000000000).UTC()
	}))
	orderID, err := adapter.PlaceOrder(context.Background(), schema.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     schema.SideBuy,
		Type:     schema.OrderTypeMarket,
		Quantity: decimal.RequireFromString("0.01"),
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if orderID != "12345" {
		t.Fatalf("unexpected order id %q", orderID)
	}

	if captured == nil {
		t.Fatal("no request captured")
	}
	if captured.Method != http.MethodPost {
		t.Fatalf("unexpected method %s", captured.Method)
	}
	if got := captured.Header.Get("X-MBX-APIKEY"); got != "test-key" {
		t.Fatalf("unexpected api key header %q", got)
	}

	query := captured.URL.Query()
	for key, want := range map[string]string{
		"symbol":    "BTCUSDT",
		"side":      "BUY",
		"type":      "MARKET",
		"quantity":  "0.01",
		"timestamp": "1690000000000",
	} {
		if got := query.Get(key); got != want {
			t.Fatalf("query %s = %q, want %q", key, got, want)
		}
	}

	// The signature must cover exactly the query string minus itself.
	values, err := url.ParseQuery(captured.URL.RawQuery)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	gotSig := values.Get("signature")
	values.Del("signature")
	wantSig, err := sign.Sign(values.Encode(), "test-secret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if gotSig != wantSig {
		t.Fatalf("signature mismatch: got %s want %s", gotSig, wantSig)
	}
}

func TestPlaceOrderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer server.Close()

	adapter := New(testSettings(server.URL))
	_, err := adapter.PlaceOrder(context.Background(), schema.OrderRequest{
		Symbol:   "NOPEUSDT",
		Side:     schema.SideSell,
		Type:     schema.OrderTypeMarket,
		Quantity: decimal.RequireFromString("1"),
	})
	if errs.CodeOf(err) != errs.CodeRejected {
		t.Fatalf("expected rejected code, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid symbol") {
		t.Fatalf("rejection lost the venue message: %v", err)
	}
}

func TestPlaceOrderMissingSecret(t *testing.T) {
	settings := testSettings("https://api.example.com")
	settings.Credentials.APISecret = ""
	adapter := New(settings)
	_, err := adapter.PlaceOrder(context.Background(), schema.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     schema.SideBuy,
		Type:     schema.OrderTypeMarket,
		Quantity: decimal.RequireFromString("0.01"),
	})
	if errs.CodeOf(err) != errs.CodeSigning {
		t.Fatalf("expected signing code, got %v", err)
	}
}

func TestCancelOrderUnknownID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":-2011,"msg":"Unknown order sent."}`))
	}))
	defer server.Close()

	adapter := New(testSettings(server.URL))
	ok, err := adapter.CancelOrder(context.Background(), "999999")
	if ok {
		t.Fatal("cancel of unknown order must not report success")
	}
	if errs.CodeOf(err) != errs.CodeRejected {
		t.Fatalf("expected rejected code, got %v", err)
	}
}

func TestCancelOrderSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.URL.Query().Get("orderId") != "12345" {
			t.Errorf("unexpected order id %q", r.URL.Query().Get("orderId"))
		}
		_, _ = w.Write([]byte(`{"status":"CANCELED"}`))
	}))
	defer server.Close()

	adapter := New(testSettings(server.URL))
	ok, err := adapter.CancelOrder(context.Background(), "12345")
	if err != nil {
		t.Fatalf("CancelOrder returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected cancellation to succeed")
	}
}

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if len(c.frames) > 0 {
		frame := c.frames[0]
		c.frames = c.frames[1:]
		c.mu.Unlock()
		return frame, nil
	}
	c.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeConn) Write(context.Context, []byte) error { return nil }
func (c *fakeConn) Close(websocket.StatusCode, string) error { return nil }

func TestStreamTradesEndToEnd(t *testing.T) {
	conn := &fakeConn{frames: [][]byte{
		[]byte(`{"e":"trade","s":"BTCUSDT","t":1,"p":"50000.00","q":"0.01","T":1690000000000,"m":true,"M":true}`),
		[]byte(`garbage`),
		[]byte(`{"e":"trade","s":"BTCUSDT","t":2,"p":"50001.00","q":"0.02","T":1690000000001,"m":false,"M":true}`),
	}}
	var dialedURL string
	updates := make(chan schema.TradeUpdate, 4)
	streamErrs := make(chan error, 4)

	adapter := New(testSettings("https://api.example.com"), WithDialer(func(_ context.Context, url string) (stream.Conn, error) {
		dialedURL = url
		return conn, nil
	}))
	sub, err := adapter.StreamTrades(context.Background(), "BTCUSDT",
		func(update schema.TradeUpdate) { updates <- update },
		func(err error) { streamErrs <- err })
	if err != nil {
		t.Fatalf("StreamTrades returned error: %v", err)
	}
	defer sub.Close()

	for i, wantPrice := range []string{"50000.00", "50001.00"} {
		select {
		case update := <-updates:
			if !update.Price.Equal(decimal.RequireFromString(wantPrice)) {
				t.Fatalf("update %d price = %s, want %s", i, update.Price, wantPrice)
			}
		case <-time.After(time.Second):
			t.Fatalf("update %d not delivered", i)
		}
	}

	// Receiving an update guarantees the dial already happened, so checking
	// the URL here is race-free.
	if want := "wss://stream.example.com/ws/btcusdt@trade"; dialedURL != want {
		t.Fatalf("dialed %q, want %q", dialedURL, want)
	}
	select {
	case err := <-streamErrs:
		if errs.CodeOf(err) != errs.CodeDecode {
			t.Fatalf("expected decode error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("malformed frame not reported")
	}
}
