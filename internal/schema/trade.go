package schema

import "github.com/shopspring/decimal"

// TradeUpdate is the minimal canonical trade tick emitted by every adapter.
type TradeUpdate struct {
	Symbol   string          `json:"symbol"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ErrorResponse carries a classified failure to stream consumers.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}
