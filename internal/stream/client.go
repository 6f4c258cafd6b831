// Package stream provides a generic reconnecting push-stream client. Every
// adapter maintains its long-lived exchange connections through Subscribe.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/crosstide/connector/errs"
	"github.com/crosstide/connector/internal/observability"
	"github.com/crosstide/connector/internal/telemetry"
)

const defaultReadLimit = 2 * 1024 * 1024

// RetryPolicy bounds reconnection after transport failures: MaxAttempts
// reconnects, each separated by a fixed Delay. The budget covers the whole
// subscription lifetime; once spent, the subscription terminates.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy mirrors the connector-wide default of three attempts
// five seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Delay <= 0 {
		p.Delay = 5 * time.Second
	}
	return p
}

// Conn is the minimal transport surface the client needs from a websocket.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens a transport connection to url.
type Dialer func(ctx context.Context, url string) (Conn, error)

// Options parameterizes a subscription over its message type.
type Options[T any] struct {
	// Exchange labels log lines and metrics.
	Exchange string
	// URL of the stream endpoint.
	URL string
	// Decode converts a raw frame into T. A decode failure is reported
	// through OnError and the frame is dropped; the connection stays up.
	Decode func(data []byte) (T, error)
	// OnOpen runs once per successful connect, including reconnects. The
	// connection is retried on error unless the error is Fatal.
	OnOpen func(ctx context.Context, conn Conn) error
	// OnMessage handles each decoded frame in wire order. Returning a Fatal
	// error terminates the subscription without touching the retry budget;
	// any other error is reported through OnError and the stream continues.
	OnMessage func(ctx context.Context, conn Conn, msg T) error
	// OnError receives non-fatal decode errors and the single terminal error.
	OnError func(err error)
	// Policy bounds reconnection. Zero values fall back to the default.
	Policy RetryPolicy
	// Dial overrides the websocket dialer, mainly for tests.
	Dial Dialer
}

// Subscribe opens the stream and processes frames until the context is
// cancelled, the handle is closed, a fatal error occurs, or the retry budget
// is exhausted. The returned handle owns the connection lifecycle.
func Subscribe[T any](ctx context.Context, opts Options[T]) (*Subscription, error) {
	if opts.URL == "" {
		return nil, errs.New(opts.Exchange, errs.CodeInvalid, errs.WithMessage("stream url required"))
	}
	if opts.Decode == nil {
		return nil, errs.New(opts.Exchange, errs.CodeInvalid, errs.WithMessage("stream decoder required"))
	}
	dial := opts.Dial
	if dial == nil {
		dial = dialWebsocket
	}
	policy := opts.Policy.normalized()

	sub := newSubscription(ctx)
	go func() {
		defer close(sub.done)
		runLoop(sub.ctx, sub, dial, policy, opts)
	}()
	return sub, nil
}

// runLoop drives connect attempts against the retry budget.
func runLoop[T any](ctx context.Context, sub *Subscription, dial Dialer, policy RetryPolicy, opts Options[T]) {
	delay := backoff.NewConstantBackOff(policy.Delay)
	attempts := 0
	for {
		err := runConnection(ctx, sub, dial, opts)
		if err == nil || ctx.Err() != nil {
			// Normal closure or caller cancellation.
			return
		}
		if IsFatal(err) {
			reportTerminal(opts, errors.Unwrap(err))
			return
		}
		if attempts >= policy.MaxAttempts {
			reportTerminal(opts, errs.Transport(opts.Exchange, fmt.Errorf("retry budget exhausted after %d attempts: %w", attempts, err)))
			return
		}
		attempts++
		telemetry.RecordReconnect(ctx, opts.Exchange)
		observability.Log().Info("stream reconnecting",
			observability.F("exchange", opts.Exchange),
			observability.F("attempt", attempts),
			observability.F("cause", err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay.NextBackOff()):
		}
	}
}

// runConnection performs one full open sequence: dial, OnOpen, read loop.
// A nil return means the connection ended cleanly.
func runConnection[T any](ctx context.Context, sub *Subscription, dial Dialer, opts Options[T]) error {
	conn, err := dial(ctx, opts.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errs.Transport(opts.Exchange, err)
	}
	sub.setConn(conn)
	defer sub.clearConn()

	if opts.OnOpen != nil {
		if err := opts.OnOpen(ctx, conn); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "open handshake failed")
			if IsFatal(err) {
				return err
			}
			return errs.Transport(opts.Exchange, err)
		}
	}

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || isNormalClosure(err) {
				return nil
			}
			return errs.Transport(opts.Exchange, err)
		}

		msg, derr := opts.Decode(data)
		if derr != nil {
			telemetry.RecordDecodeFailure(ctx, opts.Exchange)
			reportNonFatal(opts, errs.Decode(opts.Exchange, derr))
			continue
		}
		telemetry.RecordFrame(ctx, opts.Exchange)

		if opts.OnMessage == nil {
			continue
		}
		if err := opts.OnMessage(ctx, conn, msg); err != nil {
			if IsFatal(err) {
				_ = conn.Close(websocket.StatusNormalClosure, "terminal handler error")
				return err
			}
			reportNonFatal(opts, err)
		}
	}
}

func reportNonFatal[T any](opts Options[T], err error) {
	if opts.OnError != nil {
		opts.OnError(err)
		return
	}
	observability.Log().Error("stream error",
		observability.F("exchange", opts.Exchange),
		observability.F("error", err))
}

func reportTerminal[T any](opts Options[T], err error) {
	observability.Log().Error("stream terminated",
		observability.F("exchange", opts.Exchange),
		observability.F("error", err))
	if opts.OnError != nil {
		opts.OnError(err)
	}
}

func isNormalClosure(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

type wsConn struct {
	conn *websocket.Conn
}

func (c wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c wsConn) Close(code websocket.StatusCode, reason string) error {
	return c.conn.Close(code, reason)
}

func dialWebsocket(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(defaultReadLimit)
	return wsConn{conn: conn}, nil
}
