// Package factory builds adapters from configuration by exchange name.
package factory

import (
	"strings"

	"github.com/crosstide/connector/errs"
	"github.com/crosstide/connector/internal/config"
	"github.com/crosstide/connector/internal/exchange"
	"github.com/crosstide/connector/internal/exchange/binance"
	"github.com/crosstide/connector/internal/exchange/bybit"
	"github.com/crosstide/connector/internal/exchange/coinbase"
)

// Build returns the adapter for name, or errs.CodeNotFound when no adapter
// exists for that exchange.
func Build(name string, cfg config.ExchangeSettings) (exchange.Exchange, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "binance":
		return binance.New(cfg), nil
	case "bybit":
		return bybit.New(cfg), nil
	case "coinbase":
		return coinbase.New(cfg), nil
	default:
		return nil, errs.NotFound(name)
	}
}
