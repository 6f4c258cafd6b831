package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New("binance", CodeRejected,
		WithHTTP(400),
		WithMessage("order rejected"),
		WithRawMessage(`{"code":-1121,"msg":"Invalid symbol."}`))
	text := err.Error()
	for _, want := range []string{"exchange=binance", "code=rejected", "http=400", "Invalid symbol"} {
		if !strings.Contains(text, want) {
			t.Fatalf("error text missing %q: %s", want, text)
		}
	}
}

func TestErrorNil(t *testing.T) {
	var e *E
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("nil error text = %q", got)
	}
}

func TestCodeOfUnwraps(t *testing.T) {
	inner := AuthenticationFailed("bybit", "invalid api key")
	wrapped := fmt.Errorf("stream terminated: %w", inner)
	if CodeOf(wrapped) != CodeAuth {
		t.Fatalf("expected auth code, got %q", CodeOf(wrapped))
	}
	if !Is(wrapped, CodeAuth) {
		t.Fatal("Is(wrapped, CodeAuth) = false")
	}
	if Is(errors.New("plain"), CodeAuth) {
		t.Fatal("plain error should not match a taxonomy code")
	}
}

func TestUnwrapCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transport("binance", cause)
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
	if err.Code != CodeTransport {
		t.Fatalf("unexpected code %q", err.Code)
	}
}

func TestHelpers(t *testing.T) {
	cases := []struct {
		err  *E
		code Code
	}{
		{RemoteRejected("binance", 404, "Unknown order sent."), CodeRejected},
		{NotImplemented("coinbase", "trade streaming not integrated"), CodeNotImplemented},
		{NotFound("kraken"), CodeNotFound},
		{Decode("bybit", errors.New("unexpected end of JSON input")), CodeDecode},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Fatalf("expected code %q, got %q", tc.code, tc.err.Code)
		}
	}
}
