// Package stabilizer implements the Stabilizer strategy (spec.md §4.8):
// push the last-trade price toward a target via small, window-capped
// market buys.
package stabilizer

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"botsupervisor/internal/core"
	"botsupervisor/internal/engine"
	"botsupervisor/internal/model"
)

const defaultCooldown = 5 * time.Second

// Evaluator implements engine.Evaluator for the stabilizer strategy.
type Evaluator struct {
	Cooldown_ time.Duration // exported via method, zero means defaultCooldown
}

// New builds a stabilizer Evaluator.
func New() *Evaluator { return &Evaluator{} }

func (e *Evaluator) Kind() model.StrategyKind    { return model.StrategyStabilizer }
func (e *Evaluator) TickInterval() time.Duration { return 5 * time.Second }

func (e *Evaluator) Cooldown(bot *model.BotSpec) time.Duration {
	if e.Cooldown_ > 0 {
		return e.Cooldown_
	}
	return defaultCooldown
}

// Execute implements the S1 scenario: read market price via the declared
// PriceSource, and if below target and the window cap has room, place a
// MARKET BUY bounded by both the cap and available balance.
func (e *Evaluator) Execute(ctx context.Context, env engine.Env, bot *model.BotSpec) (engine.ExecResult, error) {
	p := bot.Stabilizer
	if p == nil {
		return engine.ExecResult{}, fmt.Errorf("stabilizer: bot %s missing params", bot.ID)
	}

	if p.ThresholdExceeded {
		return engine.ExecResult{Outcome: core.Skipped("window cap exhausted")}, nil
	}

	snap, err := env.Snapshot.Snapshot(ctx, bot.Symbol, 20)
	if err != nil {
		return engine.ExecResult{}, fmt.Errorf("stabilizer: snapshot: %w", err)
	}

	marketPrice := referencePrice(p.PriceSource, snap)
	p.LastMarketPrice = marketPrice

	if !marketPrice.LessThan(p.TargetPrice) {
		return engine.ExecResult{Outcome: core.Noop()}, nil
	}

	remaining := p.MaxBuyAmount.Sub(p.WindowSpent)
	if remaining.LessThanOrEqual(decimal.Zero) {
		p.ThresholdExceeded = true
		return engine.ExecResult{Outcome: core.Skipped("window cap reached")}, nil
	}

	balances, err := env.Exchange.Balances(ctx, env.Creds, quoteCurrencies(bot.Symbol))
	if err != nil {
		return engine.ExecResult{}, fmt.Errorf("stabilizer: balances: %w", err)
	}
	available := balances[quoteAsset(bot.Symbol)]
	quoteAmount := remaining
	if available.LessThan(quoteAmount) {
		quoteAmount = available
	}
	if quoteAmount.LessThanOrEqual(decimal.Zero) {
		return engine.ExecResult{Outcome: core.Skipped("insufficient balance")}, nil
	}

	ref, err := env.Exchange.PlaceOrder(ctx, env.Creds, core.OrderRequest{
		Symbol: bot.Symbol,
		Side:   model.SideBuy,
		Type:   model.OrderTypeMarket,
		QuoteQty: quoteAmount,
	})

	trade := model.TradeRecord{
		BotID: bot.ID, UserID: bot.UserID, Symbol: bot.Symbol,
		Side: model.SideBuy, Type: model.OrderTypeMarket,
		RequestedSize: quoteAmount,
	}

	if err != nil {
		trade.Status = model.TradeStatusFailed
		trade.Error = err.Error()
		return engine.ExecResult{
			Outcome: core.Failed(err.Error(), ""),
			Trades:  []model.TradeRecord{trade},
			Activities: []model.ActivityLog{{
				BotID: bot.ID, Strategy: e.Kind(), Severity: model.SeverityError,
				Message: fmt.Sprintf("stabilizer market buy failed: %v", err),
			}},
		}, nil
	}

	p.WindowSpent = p.WindowSpent.Add(quoteAmount)
	p.ExecutionCount++
	p.LastFinalPrice = ref.Price
	if p.WindowSpent.GreaterThanOrEqual(p.MaxBuyAmount) {
		p.ThresholdExceeded = true
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
			Message: fmt.Sprintf("stabilizer bought %s quote toward target %s", quoteAmount, p.TargetPrice),
		}},
		NotifyTitle:   "Stabilizer executed",
		NotifyMessage: fmt.Sprintf("Bought %s quote units on %s toward target %s", quoteAmount, bot.Symbol, p.TargetPrice),
	}, nil
}

// Persist saves the mutated Stabilizer params.
func (e *Evaluator) Persist(ctx context.Context, repo core.IBotRepository, botID string, bot *model.BotSpec) error {
	return repo.UpdateStabilizer(ctx, botID, *bot.Stabilizer)
}

func referencePrice(source model.PriceSource, snap model.MarketSnapshot) decimal.Decimal {
	switch source {
	case model.PriceBestAsk:
		return snap.Book.BestAsk().Price
	case model.PriceMid:
		return snap.Mid
	default:
		return snap.LastTrade
	}
}

// quoteAsset derives the quote currency from a "BASEQUOTE" symbol, e.g.
// "GCBUSDT" -> "USDT". This mirrors the venue's own symbol convention
// (spec.md glossary: GCB/USDT pair).
func quoteAsset(symbol string) string {
	if len(symbol) > 4 && symbol[len(symbol)-4:] == "USDT" {
		return "USDT"
	}
	return symbol
}

func quoteCurrencies(symbol string) []string {
	return []string{quoteAsset(symbol)}
}

var _ engine.Evaluator = (*Evaluator)(nil)
