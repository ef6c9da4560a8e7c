// Package snapshot implements the Market Snapshot Provider (spec.md
// §4.2): a per-call market view (mid price, top-N depth, server offset)
// shared across concurrent callers for the same symbol via singleflight,
// so a burst of strategy ticks in the same instant issues one exchange
// call instead of one per bot.
package snapshot

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"botsupervisor/internal/clock"
	"botsupervisor/internal/core"
	"botsupervisor/internal/model"
)

var decimalTwo = decimal.NewFromInt(2)

// Provider implements core.ISnapshotProvider over one venue's exchange
// client.
type Provider struct {
	client core.IExchangeClient
	clk    *clock.Clock
	group  singleflight.Group
}

// New builds a Provider backed by client.
func New(client core.IExchangeClient, clk *clock.Clock) *Provider {
	return &Provider{client: client, clk: clk}
}

// Snapshot fetches depth and the last-trade price for symbol, computing a
// mid price as the best-bid/ask midpoint when both sides are present, and
// falling back to the last trade price otherwise (spec.md Glossary:
// "mid price"). Concurrent callers for the same (symbol, depth) key share
// one in-flight fetch.
func (p *Provider) Snapshot(ctx context.Context, symbol string, depth int) (model.MarketSnapshot, error) {
	key := fmt.Sprintf("%s:%d", symbol, depth)

	result, err, _ := p.group.Do(key, func() (interface{}, error) {
		return p.fetch(ctx, symbol, depth)
	})
	if err != nil {
		return model.MarketSnapshot{}, err
	}
	return result.(model.MarketSnapshot), nil
}

func (p *Provider) fetch(ctx context.Context, symbol string, depth int) (model.MarketSnapshot, error) {
	book, err := p.client.Depth(ctx, symbol, depth)
	if err != nil {
		return model.MarketSnapshot{}, fmt.Errorf("snapshot: depth: %w", err)
	}
	lastTrade, err := p.client.Ticker(ctx, symbol)
	if err != nil {
		return model.MarketSnapshot{}, fmt.Errorf("snapshot: ticker: %w", err)
	}
	info, err := p.client.SymbolInfo(ctx, symbol)
	if err != nil {
		return model.MarketSnapshot{}, fmt.Errorf("snapshot: symbol info: %w", err)
	}

	mid := lastTrade
	bestBid := book.BestBid()
	bestAsk := book.BestAsk()
	if !bestBid.Price.IsZero() && !bestAsk.Price.IsZero() {
		mid = bestBid.Price.Add(bestAsk.Price).Div(decimalTwo)
	}

	return model.MarketSnapshot{
		Symbol:         symbol,
		Mid:            mid,
		LastTrade:      lastTrade,
		Book:           book,
		Info:           info,
		Timestamp:      p.clk.Now(),
		ServerOffsetMs: p.clk.Offset().Milliseconds(),
	}, nil
}

var _ core.ISnapshotProvider = (*Provider)(nil)
