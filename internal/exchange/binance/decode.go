package binance

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/crosstide/connector/internal/schema"
)

// tradeEvent mirrors Binance's compact single-letter trade frame.
type tradeEvent struct {
	EventType    string          `json:"e"`
	EventTime    int64           `json:"E"`
	Symbol       string          `json:"s"`
	TradeID      int64           `json:"t"`
	Price        decimal.Decimal `json:"p"`
	Quantity     decimal.Decimal `json:"q"`
	TradeTime    int64           `json:"T"`
	BuyerIsMaker bool            `json:"m"`
	Ignore       bool            `json:"M"`
}

func decodeTrade(data []byte) (schema.TradeUpdate, error) {
	var event tradeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return schema.TradeUpdate{}, err
	}
	if event.EventType != "trade" {
		return schema.TradeUpdate{}, fmt.Errorf("unexpected event type %q", event.EventType)
	}
	if event.Symbol == "" {
		return schema.TradeUpdate{}, fmt.Errorf("trade frame missing symbol")
	}
	return schema.TradeUpdate{
		Symbol:   event.Symbol,
		Price:    event.Price,
		Quantity: event.Quantity,
	}, nil
}

// orderEvent mirrors the execution-report frame on the order stream.
type orderEvent struct {
	EventType      string          `json:"e"`
	EventTime      int64           `json:"E"`
	Symbol         string          `json:"s"`
	OrderID        int64           `json:"i"`
	Price          decimal.Decimal `json:"p"`
	Quantity       decimal.Decimal `json:"q"`
	FilledQuantity decimal.Decimal `json:"z"`
	Status         string          `json:"X"`
}

func decodeOrder(data []byte) (schema.OrderUpdate, error) {
	var event orderEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return schema.OrderUpdate{}, err
	}
	if event.Symbol == "" || event.OrderID == 0 {
		return schema.OrderUpdate{}, fmt.Errorf("order frame missing symbol or order id")
	}
	return schema.OrderUpdate{
		Symbol:         event.Symbol,
		OrderID:        strconv.FormatInt(event.OrderID, 10),
		Price:          event.Price,
		Quantity:       event.Quantity,
		FilledQuantity: event.FilledQuantity,
		Status:         event.Status,
	}, nil
}
