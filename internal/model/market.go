package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is one (price, quantity) entry of an order book side.
type PriceLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// OrderBook is a symbol's order book snapshot. Bids are sorted descending
// by price, Asks ascending, matching every venue's wire convention.
type OrderBook struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestBid returns the highest bid, or a zero level if there are no bids.
func (ob *OrderBook) BestBid() PriceLevel {
	if len(ob.Bids) == 0 {
		return PriceLevel{}
	}
	return ob.Bids[0]
}

// BestAsk returns the lowest ask, or a zero level if there are no asks.
func (ob *OrderBook) BestAsk() PriceLevel {
	if len(ob.Asks) == 0 {
		return PriceLevel{}
	}
	return ob.Asks[0]
}

// SymbolInfo carries a venue's declared precision metadata for a symbol.
type SymbolInfo struct {
	Symbol             string
	PricePrecision     int32
	QuantityPrecision  int32
	MinOrderSize       decimal.Decimal
}

// MarketSnapshot is the ephemeral, per-call view handed to strategy
// evaluators: mid price (best-bid/ask midpoint when both sides present,
// else last trade — glossary), top-N depth, and the server-time offset
// observed at fetch time.
type MarketSnapshot struct {
	Symbol        string
	Mid           decimal.Decimal
	LastTrade     decimal.Decimal
	Book          OrderBook
	Info          SymbolInfo
	Timestamp     time.Time
	ServerOffsetMs int64
}
