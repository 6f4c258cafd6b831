// Package exchange declares the adapter contract every venue implements.
package exchange

import (
	"context"

	"github.com/crosstide/connector/internal/schema"
	"github.com/crosstide/connector/internal/stream"
)

// TradeHandler receives canonical trade ticks.
type TradeHandler func(schema.TradeUpdate)

// OrderHandler receives canonical order updates.
type OrderHandler func(schema.OrderUpdate)

// ErrorHandler receives stream errors: non-fatal decode failures while the
// stream is healthy, and exactly one terminal error when it is not.
type ErrorHandler func(error)

// Exchange is the uniform adapter surface. Each implementation translates
// canonical operations into one venue's wire protocol; adapters stay flat so
// signing and mapping logic is independently testable.
type Exchange interface {
	// Name returns the lowercase exchange identifier.
	Name() string

	// PlaceOrder submits req and returns the venue's order identifier.
	// A rejected or non-2xx response yields errs.CodeRejected and is not
	// retried here; retrying is the caller's decision.
	PlaceOrder(ctx context.Context, req schema.OrderRequest) (string, error)

	// CancelOrder cancels the order and reports whether the venue accepted
	// the cancellation. An unknown order yields errs.CodeRejected, never a
	// silent true.
	CancelOrder(ctx context.Context, orderID string) (bool, error)

	// StreamTrades subscribes to the venue's trade feed for symbol.
	// Venues without a working integration return errs.CodeNotImplemented
	// instead of an empty-but-healthy stream.
	StreamTrades(ctx context.Context, symbol string, onUpdate TradeHandler, onError ErrorHandler) (*stream.Subscription, error)

	// StreamOrders subscribes to the venue's order-update feed for symbol.
	StreamOrders(ctx context.Context, symbol string, onUpdate OrderHandler, onError ErrorHandler) (*stream.Subscription, error)
}
