// Package maker implements the oscillating Market-Maker strategy (spec.md
// §4.9): a resting buy/sell pair around a target price whose size
// oscillates between 100% and 40% of its initial value, stopped once the
// market crosses a floor or ceiling bound.
package maker

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"botsupervisor/internal/core"
	"botsupervisor/internal/engine"
	"botsupervisor/internal/model"
)

var (
	two        = decimal.NewFromInt(2)
	hundred    = decimal.NewFromInt(100)
	minFactor  = decimal.NewFromFloat(0.4)
)

// Evaluator implements engine.Evaluator for the oscillating market-maker.
type Evaluator struct{}

// New builds a market-maker Evaluator.
func New() *Evaluator { return &Evaluator{} }

func (e *Evaluator) Kind() model.StrategyKind              { return model.StrategyMaker }
func (e *Evaluator) TickInterval() time.Duration           { return 30 * time.Second }
func (e *Evaluator) Cooldown(bot *model.BotSpec) time.Duration { return 0 }

// Execute implements spec scenario §4.9: check the floor/ceiling stop
// condition, replace the resting pair, then step the oscillating size.
func (e *Evaluator) Execute(ctx context.Context, env engine.Env, bot *model.BotSpec) (engine.ExecResult, error) {
	p := bot.Maker
	if p == nil {
		return engine.ExecResult{}, fmt.Errorf("maker: bot %s missing params", bot.ID)
	}

	if p.TargetReached {
		return engine.ExecResult{Outcome: core.Skipped("target bound reached")}, nil
	}

	snap, err := env.Snapshot.Snapshot(ctx, bot.Symbol, 5)
	if err != nil {
		return engine.ExecResult{}, fmt.Errorf("maker: snapshot: %w", err)
	}
	market := snap.Mid

	if p.BullishBias && !p.PriceCeil.IsZero() && market.GreaterThan(p.PriceCeil) {
		p.TargetReached = true
		return engine.ExecResult{Outcome: core.Skipped("price crossed ceiling, stopping")}, nil
	}
	if !p.BullishBias && !p.PriceFloor.IsZero() && market.LessThan(p.PriceFloor) {
		p.TargetReached = true
		return engine.ExecResult{Outcome: core.Skipped("price crossed floor, stopping")}, nil
	}

	if p.CurrentSize.IsZero() {
		p.CurrentSize = p.InitialSize
		p.IsDecreasing = true
	}

	halfSpread := p.TargetPrice.Mul(p.SpreadPercent).Div(hundred).Div(two)
	buyPrice := p.TargetPrice.Sub(halfSpread)
	sellPrice := p.TargetPrice.Add(halfSpread)
	buyQty := p.CurrentSize.Div(buyPrice)
	sellQty := p.CurrentSize.Div(sellPrice)

	if p.BuyOrderID != "" {
		_ = env.Exchange.CancelOrder(ctx, env.Creds, bot.Symbol, p.BuyOrderID)
	}
	if p.SellOrderID != "" {
		_ = env.Exchange.CancelOrder(ctx, env.Creds, bot.Symbol, p.SellOrderID)
	}

	var trades []model.TradeRecord
	var refs []core.OrderRef
	var failed []core.OrderRef
	var errs []error

	buyRef, err := env.Exchange.PlaceOrder(ctx, env.Creds, core.OrderRequest{
		Symbol: bot.Symbol, Side: model.SideBuy, Type: model.OrderTypeLimit, Price: buyPrice, Qty: buyQty,
	})
	trades = append(trades, legTrade(bot, model.SideBuy, buyPrice, buyQty, buyRef, err))
	if err != nil {
		errs = append(errs, err)
	} else {
		p.BuyOrderID = buyRef.OrderID
		refs = append(refs, buyRef)
	}

	sellRef, err := env.Exchange.PlaceOrder(ctx, env.Creds, core.OrderRequest{
		Symbol: bot.Symbol, Side: model.SideSell, Type: model.OrderTypeLimit, Price: sellPrice, Qty: sellQty,
	})
	trades = append(trades, legTrade(bot, model.SideSell, sellPrice, sellQty, sellRef, err))
	if err != nil {
		errs = append(errs, err)
	} else {
		p.SellOrderID = sellRef.OrderID
		refs = append(refs, sellRef)
	}

	stepSize(p)

	outcome := core.Submitted(refs...)
	switch {
	case len(refs) == 0:
		outcome = core.Failed(errs[0].Error(), "")
	case len(errs) > 0:
		outcome = core.Partial(refs, failed)
	}

	return engine.ExecResult{
		Outcome: outcome,
		Trades:  trades,
		Activities: []model.ActivityLog{{
			BotID: bot.ID, Strategy: e.Kind(), Severity: model.SeverityTrade,
			Message: fmt.Sprintf("maker refreshed pair buy=%s sell=%s size=%s", buyPrice, sellPrice, p.CurrentSize),
		}},
	}, nil
}

// stepSize advances CurrentSize by IncrementStep, flipping direction at the
// 40%/100% bounds of InitialSize.
func stepSize(p *model.MakerParams) {
	minSize := p.InitialSize.Mul(minFactor)
	if p.IsDecreasing {
		p.CurrentSize = p.CurrentSize.Sub(p.IncrementStep)
		if p.CurrentSize.LessThanOrEqual(minSize) {
			p.CurrentSize = minSize
			p.IsDecreasing = false
		}
		return
	}
	p.CurrentSize = p.CurrentSize.Add(p.IncrementStep)
	if p.CurrentSize.GreaterThanOrEqual(p.InitialSize) {
		p.CurrentSize = p.InitialSize
		p.IsDecreasing = true
	}
}

func legTrade(bot *model.BotSpec, side model.OrderSide, price, qty decimal.Decimal, ref core.OrderRef, err error) model.TradeRecord {
	t := model.TradeRecord{
		BotID: bot.ID, UserID: bot.UserID, Symbol: bot.Symbol,
		Side: side, Type: model.OrderTypeLimit, Price: price, RequestedSize: qty,
	}
	if err != nil {
		t.Status = model.TradeStatusFailed
		t.Error = err.Error()
		return t
	}
	t.Status = model.TradeStatusPlaced
	t.VenueOrderID = ref.OrderID
	return t
}

// Persist saves the mutated Maker params.
func (e *Evaluator) Persist(ctx context.Context, repo core.IBotRepository, botID string, bot *model.BotSpec) error {
	return repo.UpdateMaker(ctx, botID, *bot.Maker)
}

var _ engine.Evaluator = (*Evaluator)(nil)
