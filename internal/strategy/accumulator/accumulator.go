// Package accumulator implements the Scheduled Accumulator strategy
// (spec.md §4.7): spend a fixed total budget over a fixed duration in
// hourly slices, split half market and half limit-below-ask per slice.
package accumulator

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
	half    = decimal.NewFromFloat(0.5)
	hundred = decimal.NewFromInt(100)
)

// Evaluator implements engine.Evaluator for the scheduled accumulator.
type Evaluator struct{}

// New builds an accumulator Evaluator.
func New() *Evaluator { return &Evaluator{} }

func (e *Evaluator) Kind() model.StrategyKind              { return model.StrategyAccumulator }
func (e *Evaluator) TickInterval() time.Duration           { return 60 * time.Second }
func (e *Evaluator) Cooldown(bot *model.BotSpec) time.Duration { return time.Hour }

// Execute implements the S2 scenario: split one hourly slice U/H into a
// market-buy leg at the current ask and a limit-buy leg offset below it.
func (e *Evaluator) Execute(ctx context.Context, env engine.Env, bot *model.BotSpec) (engine.ExecResult, error) {
	p := bot.Accumulator
	if p == nil {
		return engine.ExecResult{}, fmt.Errorf("accumulator: bot %s missing params", bot.ID)
	}

	if p.Done() {
		return engine.ExecResult{Outcome: core.Skipped("schedule complete")}, nil
	}

	now := env.Clock.Now()
	if p.StartedAt.IsZero() {
		p.StartedAt = now
		p.NextBuyAt = now
	}
	if now.Before(p.NextBuyAt) {
		return engine.ExecResult{Outcome: core.Noop()}, nil
	}

	snap, err := env.Snapshot.Snapshot(ctx, bot.Symbol, 5)
	if err != nil {
		return engine.ExecResult{}, fmt.Errorf("accumulator: snapshot: %w", err)
	}
	ask := snap.Book.BestAsk().Price
	if ask.IsZero() {
		return engine.ExecResult{Outcome: core.Skipped("no ask liquidity")}, nil
	}

	slice := p.SliceAmount()
	marketQuote := slice.Mul(half)
	limitQuote := slice.Sub(marketQuote)
	limitPrice := ask.Mul(decimal.NewFromInt(1).Sub(p.BidOffsetPercent.Div(hundred)))

	var trades []model.TradeRecord
	var activities []model.ActivityLog
	var refs []core.OrderRef
	var firstErr error

	marketRef, err := env.Exchange.PlaceOrder(ctx, env.Creds, core.OrderRequest{
		Symbol: bot.Symbol, Side: model.SideBuy, Type: model.OrderTypeMarket, QuoteQty: marketQuote,
	})
	trades = append(trades, tradeFromResult(bot, model.OrderTypeMarket, marketQuote, marketRef, err))
	if err != nil {
		firstErr = err
	} else {
		refs = append(refs, marketRef)
		p.SpentUSDT = p.SpentUSDT.Add(marketQuote)
		p.AccumulatedBase = p.AccumulatedBase.Add(marketRef.ExecutedQty)
	}

	// §4.7: if the market leg fails, the limit leg is skipped rather than
	// placed — both outcomes are still recorded.
	if firstErr == nil {
		limitBaseQty := limitQuote.Div(limitPrice)
		limitRef, err := env.Exchange.PlaceOrder(ctx, env.Creds, core.OrderRequest{
			Symbol: bot.Symbol, Side: model.SideBuy, Type: model.OrderTypeLimit, Price: limitPrice, Qty: limitBaseQty,
		})
		trades = append(trades, tradeFromResult(bot, model.OrderTypeLimit, limitQuote, limitRef, err))
		if err != nil {
			firstErr = err
		} else {
			refs = append(refs, limitRef)
			p.SpentUSDT = p.SpentUSDT.Add(limitQuote)
		}
	} else {
		skipped := model.TradeRecord{
			BotID: bot.ID, UserID: bot.UserID, Symbol: bot.Symbol,
			Side: model.SideBuy, Type: model.OrderTypeLimit, RequestedSize: limitQuote,
			Status: model.TradeStatusSkipped, Error: "market leg failed, limit leg skipped",
		}
		trades = append(trades, skipped)
	}

	p.ExecutedBuys++
	p.NextBuyAt = p.StartedAt.Add(time.Duration(p.ExecutedBuys) * time.Hour)

	activities = append(activities, model.ActivityLog{
		BotID: bot.ID, Strategy: e.Kind(), Severity: model.SeverityTrade,
		Message: fmt.Sprintf("accumulator slice %d/%d: market %s, limit %s @ %s", p.ExecutedBuys, p.DurationHours, marketQuote, limitQuote, limitPrice),
	})

	outcome := core.Submitted(refs...)
	if firstErr != nil && len(refs) == 0 {
		outcome = core.Failed(firstErr.Error(), "")
	} else if firstErr != nil {
		outcome = core.Partial(refs, nil)
	}

	return engine.ExecResult{
		Outcome:    outcome,
		Trades:     trades,
		Activities: activities,
		NotifyTitle:   "Accumulator slice executed",
		NotifyMessage: fmt.Sprintf("Spent %s this slice on %s (%d/%d)", slice, bot.Symbol, p.ExecutedBuys, p.DurationHours),
	}, nil
}

// Persist saves the mutated Accumulator params.
func (e *Evaluator) Persist(ctx context.Context, repo core.IBotRepository, botID string, bot *model.BotSpec) error {
	return repo.UpdateAccumulator(ctx, botID, *bot.Accumulator)
}

func tradeFromResult(bot *model.BotSpec, typ model.OrderType, requested decimal.Decimal, ref core.OrderRef, err error) model.TradeRecord {
	t := model.TradeRecord{
		BotID: bot.ID, UserID: bot.UserID, Symbol: bot.Symbol,
		Side: model.SideBuy, Type: typ, RequestedSize: requested,
	}
	if err != nil {
		t.Status = model.TradeStatusFailed
		t.Error = err.Error()
		return t
	}
	t.Status = model.TradeStatusPlaced
	t.VenueOrderID = ref.OrderID
	t.Price = ref.Price
	t.ExecutedSize = ref.ExecutedQty
	return t
}

var _ engine.Evaluator = (*Evaluator)(nil)
