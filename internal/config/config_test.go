package config

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
environment: dev
listenAddr: ":9090"
telemetry:
  otlpEndpoint: "http://localhost:4318"
  serviceName: connector
exchanges:
  binance:
    restBaseURL: https://api.binance.com
    wsBaseURL: wss://stream.binance.com:9443/ws
    credentials:
      apiKey: key-from-file
      apiSecret: secret-from-file
    httpTimeout: 5s
    watchSymbols: [BTCUSDT, ETHUSDT]
  bybit:
    restBaseURL: https://api.bybit.com
    wsBaseURL: wss://stream.bybit.com/v5/private
`

func TestParseSample(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
	binance, ok := cfg.Exchanges["binance"]
	if !ok {
		t.Fatal("binance settings missing")
	}
	if binance.Timeout() != 5*time.Second {
		t.Fatalf("unexpected timeout %v", binance.Timeout())
	}
	if len(binance.WatchSymbols) != 2 || binance.WatchSymbols[0] != "BTCUSDT" {
		t.Fatalf("unexpected watch symbols %v", binance.WatchSymbols)
	}
	bybit := cfg.Exchanges["bybit"]
	if bybit.Timeout() != defaultHTTPTimeout {
		t.Fatalf("expected default timeout, got %v", bybit.Timeout())
	}
}

func TestEnvOverridesCredentials(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	env := map[string]string{
		"CONNECTOR_BINANCE_API_KEY":    "key-from-env",
		"CONNECTOR_BINANCE_API_SECRET": "secret-from-env",
	}
	cfg.applyEnv(func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	})
	creds := cfg.Exchanges["binance"].Credentials
	if creds.APIKey != "key-from-env" || creds.APISecret != "secret-from-env" {
		t.Fatalf("environment override not applied: %+v", creds.APIKey)
	}
}

func TestValidateRejectsDuplicateBinding(t *testing.T) {
	cfg := Config{Exchanges: map[string]ExchangeSettings{
		"binance": {RESTBaseURL: "https://api.binance.com"},
		"Binance": {RESTBaseURL: "https://api.binance.us"},
	}}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("duplicate exchange binding must fail validation")
	}
	if !strings.Contains(err.Error(), "same adapter") {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateRequiresRESTBaseURL(t *testing.T) {
	cfg := Config{Exchanges: map[string]ExchangeSettings{
		"binance": {WSBaseURL: "wss://stream.binance.com"},
	}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing restBaseURL must fail validation")
	}
}

func TestValidateRequiresExchanges(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatal("empty exchange set must fail validation")
	}
}

func TestCredentialsRedacted(t *testing.T) {
	creds := Credentials{APIKey: "public-key", APISecret: "super-secret"}
	for _, rendered := range []string{
		creds.String(),
		creds.GoString(),
		fmt.Sprintf("%v", creds),
		fmt.Sprintf("%+v", creds),
		fmt.Sprintf("%#v", creds),
		fmt.Sprintf("%s", creds),
	} {
		if strings.Contains(rendered, "super-secret") {
			t.Fatalf("secret leaked into %q", rendered)
		}
	}
}

func TestDurationUnmarshal(t *testing.T) {
	var cfg Config
	raw := strings.ReplaceAll(sampleYAML, "5s", "1500ms")
	parsed, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	cfg = parsed
	if cfg.Exchanges["binance"].Timeout() != 1500*time.Millisecond {
		t.Fatalf("unexpected duration %v", cfg.Exchanges["binance"].Timeout())
	}
}
