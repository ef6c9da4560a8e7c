// Package pricekeeper implements the Price-Keeper strategy (spec.md
// §4.11): nudge the last-trade price back toward the best ask with small
// market buys whenever the gap exceeds a relative tolerance.
package pricekeeper

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"botsupervisor/internal/core"
	"botsupervisor/internal/engine"
	"botsupervisor/internal/model"
)

// tolerance is the fraction of the best ask that the last-trade price may
// drift by before the keeper intervenes (spec.md §4.11 / scenario S5).
var tolerance = decimal.NewFromFloat(0.0001)

// Evaluator implements engine.Evaluator for the price-keeper strategy.
type Evaluator struct{}

// New builds a price-keeper Evaluator.
func New() *Evaluator { return &Evaluator{} }

func (e *Evaluator) Kind() model.StrategyKind    { return model.StrategyPriceKeeper }
func (e *Evaluator) TickInterval() time.Duration { return 3 * time.Second }

func (e *Evaluator) Cooldown(bot *model.BotSpec) time.Duration {
	if bot.PriceKeeper == nil || bot.PriceKeeper.CooldownSeconds <= 0 {
		return 0
	}
	return time.Duration(bot.PriceKeeper.CooldownSeconds) * time.Second
}

// Execute implements scenario S5: compare the last-trade price M against
// the best ask A; if M trails A by more than A*tolerance, buy a fixed
// quote amount at market to close the gap.
func (e *Evaluator) Execute(ctx context.Context, env engine.Env, bot *model.BotSpec) (engine.ExecResult, error) {
	p := bot.PriceKeeper
	if p == nil {
		return engine.ExecResult{}, fmt.Errorf("pricekeeper: bot %s missing params", bot.ID)
	}

	snap, err := env.Snapshot.Snapshot(ctx, bot.Symbol, 5)
	if err != nil {
		return engine.ExecResult{}, fmt.Errorf("pricekeeper: snapshot: %w", err)
	}

	market := snap.LastTrade
	ask := snap.Book.BestAsk().Price
	p.LastMarketPrice = market
	p.LastAskPrice = ask

	if ask.IsZero() {
		return engine.ExecResult{Outcome: core.Skipped("no ask liquidity")}, nil
	}

	gap := ask.Sub(market).Abs()
	allowed := ask.Mul(tolerance)

	if gap.LessThanOrEqual(allowed) || !market.LessThan(ask) {
		return engine.ExecResult{Outcome: core.Noop()}, nil
	}

	ref, err := env.Exchange.PlaceOrder(ctx, env.Creds, core.OrderRequest{
		Symbol: bot.Symbol, Side: model.SideBuy, Type: model.OrderTypeMarket, QuoteQty: p.OrderAmountQuote,
	})

	trade := model.TradeRecord{
		BotID: bot.ID, UserID: bot.UserID, Symbol: bot.Symbol,
		Side: model.SideBuy, Type: model.OrderTypeMarket, RequestedSize: p.OrderAmountQuote,
	}

	if err != nil {
		trade.Status = model.TradeStatusFailed
		trade.Error = err.Error()
		return engine.ExecResult{
			Outcome: core.Failed(err.Error(), ""),
			Trades:  []model.TradeRecord{trade},
			Activities: []model.ActivityLog{{
				BotID: bot.ID, Strategy: e.Kind(), Severity: model.SeverityError,
				Message: fmt.Sprintf("pricekeeper market buy failed: %v", err),
			}},
		}, nil
	}

	trade.Status = model.TradeStatusPlaced
	trade.VenueOrderID = ref.OrderID
	trade.Price = ref.Price
	trade.ExecutedSize = ref.ExecutedQty

	return engine.ExecResult{
		Outcome: core.Submitted(ref),
		Trades:  []model.TradeRecord{trade},
		Activities: []model.ActivityLog{{
			BotID: bot.ID, Strategy: e.Kind(), Severity: model.SeverityTrade,
			Message: fmt.Sprintf("pricekeeper closed gap: market %s ask %s", market, ask),
		}},
	}, nil
}

// Persist saves the mutated PriceKeeper params.
func (e *Evaluator) Persist(ctx context.Context, repo core.IBotRepository, botID string, bot *model.BotSpec) error {
	return repo.UpdatePriceKeeper(ctx, botID, *bot.PriceKeeper)
}

var _ engine.Evaluator = (*Evaluator)(nil)
