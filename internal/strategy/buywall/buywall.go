// Package buywall implements the Buy-Wall strategy (spec.md §4.10): place
// a descending ladder of resting limit buys, and repost any rung whose
// order has disappeared from the open-orders set (filled or cancelled
// externally).
package buywall

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"botsupervisor/internal/core"
	"botsupervisor/internal/engine"
	"botsupervisor/internal/model"
)

// Evaluator implements engine.Evaluator for the buy-wall strategy.
type Evaluator struct{}

// New builds a buy-wall Evaluator.
func New() *Evaluator { return &Evaluator{} }

func (e *Evaluator) Kind() model.StrategyKind              { return model.StrategyBuyWall }
func (e *Evaluator) TickInterval() time.Duration           { return 10 * time.Second }
func (e *Evaluator) Cooldown(bot *model.BotSpec) time.Duration { return 0 }

// Execute places the rung ladder on first activation, and on every
// subsequent tick reposts any rung whose order id has disappeared from
// the venue's open orders.
func (e *Evaluator) Execute(ctx context.Context, env engine.Env, bot *model.BotSpec) (engine.ExecResult, error) {
	p := bot.BuyWall
	if p == nil {
		return engine.ExecResult{}, fmt.Errorf("buywall: bot %s missing params", bot.ID)
	}

	if !p.OrdersPlaced {
		return e.placeAll(ctx, env, bot, p)
	}
	return e.refreshRungs(ctx, env, bot, p)
}

func (e *Evaluator) placeAll(ctx context.Context, env engine.Env, bot *model.BotSpec, p *model.BuyWallParams) (engine.ExecResult, error) {
	var trades []model.TradeRecord
	var refs []core.OrderRef
	placedAny := false

	for i := range p.Rungs {
		if i > 0 {
			if err := env.Exchange.Pace(ctx); err != nil {
				return engine.ExecResult{}, fmt.Errorf("buywall: pace: %w", err)
			}
		}
		rung := &p.Rungs[i]
		qty := rung.QuoteAmount.Div(rung.Price)
		ref, err := env.Exchange.PlaceOrder(ctx, env.Creds, core.OrderRequest{
			Symbol: bot.Symbol, Side: model.SideBuy, Type: model.OrderTypeLimit, Price: rung.Price, Qty: qty,
		})
		trades = append(trades, rungTrade(bot, *rung, qty, ref, err))
		if err != nil {
			rung.Failed = true
			continue
		}
		rung.OrderID = ref.OrderID
		rung.Failed = false
		refs = append(refs, ref)
		placedAny = true
	}
	p.OrdersPlaced = true

	outcome := core.Failed("all rungs failed", "")
	if placedAny {
		outcome = core.Submitted(refs...)
	}

	return engine.ExecResult{
		Outcome: outcome,
		Trades:  trades,
		Activities: []model.ActivityLog{{
			BotID: bot.ID, Strategy: e.Kind(), Severity: model.SeverityTrade,
			Message: fmt.Sprintf("buywall placed %d rungs", len(refs)),
		}},
	}, nil
}

func (e *Evaluator) refreshRungs(ctx context.Context, env engine.Env, bot *model.BotSpec, p *model.BuyWallParams) (engine.ExecResult, error) {
	open, err := env.Exchange.OpenOrders(ctx, env.Creds, bot.Symbol, nil)
	if err != nil {
		return engine.ExecResult{}, fmt.Errorf("buywall: open orders: %w", err)
	}
	stillOpen := make(map[string]bool, len(open))
	for _, o := range open {
		stillOpen[o.OrderID] = true
	}

	var trades []model.TradeRecord
	var refs []core.OrderRef
	refilled := 0
	attempted := 0

	for i := range p.Rungs {
		rung := &p.Rungs[i]
		if rung.OrderID != "" && stillOpen[rung.OrderID] {
			continue
		}
		if attempted > 0 {
			if err := env.Exchange.Pace(ctx); err != nil {
				return engine.ExecResult{}, fmt.Errorf("buywall: pace: %w", err)
			}
		}
		attempted++
		qty := rung.QuoteAmount.Div(rung.Price)
		ref, err := env.Exchange.PlaceOrder(ctx, env.Creds, core.OrderRequest{
			Symbol: bot.Symbol, Side: model.SideBuy, Type: model.OrderTypeLimit, Price: rung.Price, Qty: qty,
		})
		trades = append(trades, rungTrade(bot, *rung, qty, ref, err))
		if err != nil {
			rung.Failed = true
			continue
		}
		rung.OrderID = ref.OrderID
		rung.Failed = false
		refs = append(refs, ref)
		refilled++
	}

	if refilled == 0 {
		return engine.ExecResult{Outcome: core.Noop()}, nil
	}

	p.TotalRefills += refilled

	return engine.ExecResult{
		Outcome: core.Submitted(refs...),
		Trades:  trades,
		Activities: []model.ActivityLog{{
			BotID: bot.ID, Strategy: e.Kind(), Severity: model.SeverityTrade,
			Message: fmt.Sprintf("buywall reposted %d filled/cancelled rungs", refilled),
		}},
	}, nil
}

func rungTrade(bot *model.BotSpec, rung model.BuyWallRung, qty decimal.Decimal, ref core.OrderRef, err error) model.TradeRecord {
	t := model.TradeRecord{
		BotID: bot.ID, UserID: bot.UserID, Symbol: bot.Symbol,
		Side: model.SideBuy, Type: model.OrderTypeLimit, Price: rung.Price, RequestedSize: qty,
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

// Persist saves the mutated BuyWall params.
func (e *Evaluator) Persist(ctx context.Context, repo core.IBotRepository, botID string, bot *model.BotSpec) error {
	return repo.UpdateBuyWall(ctx, botID, *bot.BuyWall)
}

var _ engine.Evaluator = (*Evaluator)(nil)
