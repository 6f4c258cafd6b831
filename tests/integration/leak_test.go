package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/coder/websocket"
	"go.uber.org/goleak"

	"github.com/crosstide/connector/internal/schema"
	"github.com/crosstide/connector/internal/stream"
)

type blockingConn struct{}

func (blockingConn) Read(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingConn) Write(context.Context, []byte) error      { return nil }
func (blockingConn) Close(websocket.StatusCode, string) error { return nil }

// TestSubscriptionCloseLeavesNoGoroutines churns subscription open/close
// cycles and verifies every handler loop exits.
func TestSubscriptionCloseLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	const cycles = 1000
	for i := 0; i < cycles; i++ {
		sub, err := stream.Subscribe(context.Background(), stream.Options[schema.TradeUpdate]{
			Exchange: "test",
			URL:      "wss://example.com/ws",
			Decode: func([]byte) (schema.TradeUpdate, error) {
				return schema.TradeUpdate{}, nil
			},
			Dial: func(context.Context, string) (stream.Conn, error) {
				return blockingConn{}, nil
			},
		})
		if err != nil {
			t.Fatalf("cycle %d: Subscribe returned error: %v", i, err)
		}
		sub.Close()
		select {
		case <-sub.Done():
		default:
			t.Fatalf("cycle %d: Close returned before the loop exited", i)
		}
	}
}

// TestTerminatedStreamLeavesNoGoroutines exhausts the retry budget and
// checks the loop goroutine unwinds on its own.
func TestTerminatedStreamLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	terminal := make(chan error, 1)
	sub, err := stream.Subscribe(context.Background(), stream.Options[schema.TradeUpdate]{
		Exchange: "test",
		URL:      "wss://example.com/ws",
		Decode: func([]byte) (schema.TradeUpdate, error) {
			return schema.TradeUpdate{}, nil
		},
		OnError: func(err error) { terminal <- err },
		Policy:  stream.RetryPolicy{MaxAttempts: 2, Delay: 1},
		Dial: func(context.Context, string) (stream.Conn, error) {
			return nil, errors.New("refused")
		},
	})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	<-sub.Done()
	if len(terminal) != 1 {
		t.Fatalf("expected exactly one terminal error, got %d", len(terminal))
	}
	sub.Close()
}
