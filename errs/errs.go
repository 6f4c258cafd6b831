// Package errs provides structured error types shared across the connector.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies a failure category in the connector error taxonomy.
type Code string

const (
	// CodeAuth indicates the exchange rejected the credentials or handshake.
	CodeAuth Code = "auth"
	// CodeTransport indicates a network or connection-level failure.
	CodeTransport Code = "transport"
	// CodeDecode indicates a malformed frame or response body. Per-frame
	// decode failures are non-fatal and never tear down a stream.
	CodeDecode Code = "decode"
	// CodeSigning indicates the request signer could not be initialised.
	// This is a configuration fault and is never retried.
	CodeSigning Code = "signing"
	// CodeRejected indicates the exchange refused the request.
	CodeRejected Code = "rejected"
	// CodeNotFound indicates an unknown exchange or resource.
	CodeNotFound Code = "not_found"
	// CodeNotImplemented indicates the adapter lacks the requested capability.
	CodeNotImplemented Code = "not_implemented"
	// CodeInvalid indicates invalid input or configuration supplied by the caller.
	CodeInvalid Code = "invalid"
)

// E captures structured error information produced across the connector stack.
type E struct {
	Exchange string
	Code     Code
	HTTP     int
	RawMsg   string
	Message  string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the exchange and error code.
func New(exchange string, code Code, opts ...Option) *E {
	e := &E{
		Exchange: strings.TrimSpace(exchange),
		Code:     code,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithRawMessage captures the raw exchange error payload.
func WithRawMessage(msg string) Option {
	return func(e *E) {
		e.RawMsg = msg
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	exchange := strings.TrimSpace(e.Exchange)
	if exchange == "" {
		exchange = "unknown"
	}
	parts = append(parts, "exchange="+exchange)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.RawMsg != "" {
		parts = append(parts, "raw_msg="+strconv.Quote(e.RawMsg))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the taxonomy code from err, unwrapping as needed.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return Code("")
}

// Is reports whether err carries the given taxonomy code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// AuthenticationFailed returns a terminal credential error for the exchange.
func AuthenticationFailed(exchange, msg string) *E {
	return New(exchange, CodeAuth, WithMessage("authentication failed"), WithRawMessage(msg))
}

// RemoteRejected wraps a non-success exchange response.
func RemoteRejected(exchange string, status int, body string) *E {
	return New(exchange, CodeRejected, WithHTTP(status), WithRawMessage(strings.TrimSpace(body)))
}

// Transport wraps a network-level failure.
func Transport(exchange string, cause error) *E {
	return New(exchange, CodeTransport, WithCause(cause))
}

// Decode wraps a malformed frame or response body.
func Decode(exchange string, cause error) *E {
	return New(exchange, CodeDecode, WithCause(cause))
}

// NotImplemented returns a standardized error for unsupported capabilities.
func NotImplemented(exchange, msg string) *E {
	return New(exchange, CodeNotImplemented, WithMessage(strings.TrimSpace(msg)))
}

// NotFound reports an unknown exchange name.
func NotFound(name string) *E {
	return New(name, CodeNotFound, WithMessage("exchange not registered"))
}
