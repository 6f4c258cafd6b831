// Package schema defines the exchange-agnostic shapes used at the connector's
// public boundary. Adapters translate between these types and their venue's
// wire format; no exchange-specific field names appear here.
package schema

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side identifies the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType identifies the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// ParseSide normalises a side string into the canonical enum.
func ParseSide(input string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return Side(""), fmt.Errorf("unsupported order side %q", input)
	}
}

// ParseOrderType normalises an order type string into the canonical enum.
func ParseOrderType(input string) (OrderType, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "MARKET":
		return OrderTypeMarket, nil
	case "LIMIT":
		return OrderTypeLimit, nil
	default:
		return OrderType(""), fmt.Errorf("unsupported order type %q", input)
	}
}

// OrderRequest represents an order submission in canonical form. Every
// adapter accepts this shape regardless of its own wire schema.
type OrderRequest struct {
	ClientOrderID string           `json:"client_order_id,omitempty"`
	Symbol        string           `json:"symbol"`
	Side          Side             `json:"side"`
	Type          OrderType        `json:"type"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	Timestamp     int64            `json:"timestamp"` // epoch millis
}

// Validate checks the request for fields no adapter can do without.
func (r OrderRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("order request: symbol required")
	}
	if _, err := ParseSide(string(r.Side)); err != nil {
		return fmt.Errorf("order request: %w", err)
	}
	if _, err := ParseOrderType(string(r.Type)); err != nil {
		return fmt.Errorf("order request: %w", err)
	}
	if !r.Quantity.IsPositive() {
		return fmt.Errorf("order request: quantity must be positive")
	}
	if r.Type == OrderTypeLimit && (r.Price == nil || !r.Price.IsPositive()) {
		return fmt.Errorf("order request: limit order requires a positive price")
	}
	return nil
}

// OrderUpdate reports the state of an order as seen on an exchange feed.
// Prices and quantities keep the exact decimal representation reported by
// the venue; binary floats would lose precision on string-encoded values.
type OrderUpdate struct {
	Symbol         string          `json:"symbol"`
	OrderID        string          `json:"order_id"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	Status         string          `json:"status,omitempty"`
}
