// Package liquidity implements the Sell-Liquidity Analyzer + Maintainer
// (spec.md §4.12). This file holds the state-free analyzer: it turns an
// order book snapshot into depth/gap/order-count metrics and ok-flags.
package liquidity

import (
	"github.com/shopspring/decimal"

	"botsupervisor/internal/model"
)

var (
	hundred       = decimal.NewFromInt(100)
	depth2Band    = decimal.NewFromFloat(1.02) // bestAsk * 1.02, upper bound of the 2%-band
	staleFloor    = decimal.NewFromFloat(0.98)
	staleCeil     = decimal.NewFromFloat(1.25)
	repositionLo  = decimal.NewFromFloat(1.02)
	repositionHi  = decimal.NewFromFloat(1.10)
	depthOverflow = decimal.NewFromFloat(1.5)
)

// Config is the analyzer/planner's threshold configuration, mirroring
// model.LiquidityParams without the runtime fields.
type Config struct {
	ScaleFactor        decimal.Decimal
	MinDepth2Percent   decimal.Decimal
	MinDepthTop20      decimal.Decimal
	MinOrderCount      int
	MaxOrderGapPercent decimal.Decimal
}

func configFromParams(p *model.LiquidityParams) Config {
	sf := p.ScaleFactor
	if sf.IsZero() {
		sf = decimal.NewFromInt(1)
	}
	return Config{
		ScaleFactor:        sf,
		MinDepth2Percent:   p.MinDepth2Percent,
		MinDepthTop20:      p.MinDepthTop20,
		MinOrderCount:      p.MinOrderCount,
		MaxOrderGapPercent: p.MaxOrderGapPercent,
	}
}

// Analysis is the sell-side depth/gap/order-count report for one order
// book snapshot, independent of any bot state.
type Analysis struct {
	SellDepth2Pct  decimal.Decimal
	SellDepthTop20 decimal.Decimal
	SellOrderCount int
	SellGapsOk     bool
	Depth2PctOk    bool
	DepthTop20Ok   bool
	OrderCountOk   bool
	AllOk          bool
}

// Analyze computes the sell-side liquidity metrics for asks (already
// sorted ascending by price) against cfg's thresholds.
func Analyze(asks []model.PriceLevel, cfg Config) Analysis {
	var a Analysis
	a.SellOrderCount = len(asks)

	if len(asks) == 0 {
		a.SellGapsOk = true
		a.OrderCountOk = a.SellOrderCount >= cfg.MinOrderCount
		a.Depth2PctOk = false
		a.DepthTop20Ok = false
		return a
	}

	bestAsk := asks[0].Price
	upper := bestAsk.Mul(depth2Band)

	for _, lvl := range asks {
		if lvl.Price.GreaterThanOrEqual(bestAsk) && lvl.Price.LessThan(upper) {
			a.SellDepth2Pct = a.SellDepth2Pct.Add(lvl.Price.Mul(lvl.Qty))
		}
	}

	top20 := asks
	if len(top20) > 20 {
		top20 = top20[:20]
	}
	for _, lvl := range top20 {
		a.SellDepthTop20 = a.SellDepthTop20.Add(lvl.Price.Mul(lvl.Qty))
	}

	a.SellGapsOk = true
	limit := len(asks) - 2
	if limit > 19 {
		limit = 19
	}
	for i := 0; i <= limit && i+1 < len(asks); i++ {
		gapPct := asks[i+1].Price.Sub(asks[i].Price).Div(asks[i].Price).Mul(hundred)
		if gapPct.GreaterThan(cfg.MaxOrderGapPercent) {
			a.SellGapsOk = false
			break
		}
	}

	d2Threshold := cfg.MinDepth2Percent.Mul(cfg.ScaleFactor)
	d20Threshold := cfg.MinDepthTop20.Mul(cfg.ScaleFactor)

	a.Depth2PctOk = a.SellDepth2Pct.GreaterThanOrEqual(d2Threshold)
	a.DepthTop20Ok = a.SellDepthTop20.GreaterThanOrEqual(d20Threshold)
	a.OrderCountOk = a.SellOrderCount >= cfg.MinOrderCount

	a.AllOk = a.Depth2PctOk && a.DepthTop20Ok && a.OrderCountOk && a.SellGapsOk
	return a
}
