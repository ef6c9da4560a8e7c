// Package conditional implements the Conditional Engine strategy (spec.md
// §4.6): a per-user set of price conditions, each independently gated by
// its own cooldown, evaluated and fired every tick.
package conditional

import (
	"context"
	"fmt"
	"time"

	"botsupervisor/internal/core"
	"botsupervisor/internal/engine"
	"botsupervisor/internal/model"
)

// Evaluator implements engine.Evaluator for the conditional strategy.
type Evaluator struct{}

// New builds a conditional Evaluator.
func New() *Evaluator { return &Evaluator{} }

func (e *Evaluator) Kind() model.StrategyKind    { return model.StrategyConditional }
func (e *Evaluator) TickInterval() time.Duration { return 10 * time.Second }

// Cooldown is a no-op at the engine level: each condition carries its own
// independent cooldown in CooldownMs, checked in Execute.
func (e *Evaluator) Cooldown(bot *model.BotSpec) time.Duration { return 0 }

// Execute evaluates every condition on the bot. Conditions are evaluated
// and fired sequentially within this one work unit, which already
// serializes them relative to each other and to any other work unit for
// this bot; multiple conditions may still fire independently in the same
// tick.
func (e *Evaluator) Execute(ctx context.Context, env engine.Env, bot *model.BotSpec) (engine.ExecResult, error) {
	p := bot.Conditional
	if p == nil {
		return engine.ExecResult{}, fmt.Errorf("conditional: bot %s missing params", bot.ID)
	}

	now := env.Clock.Now()

	var trades []model.TradeRecord
	var activities []model.ActivityLog
	var refs []core.OrderRef
	var failures int
	fired := false

	for i := range p.Conditions {
		cond := &p.Conditions[i]

		if !cond.LastTriggered.IsZero() {
			elapsed := now.Sub(cond.LastTriggered)
			if elapsed < time.Duration(cond.CooldownMs)*time.Millisecond {
				continue
			}
		}

		snap, err := env.Snapshot.Snapshot(ctx, cond.Symbol, 1)
		if err != nil {
			continue
		}
		price := snap.LastTrade
		if !cond.Operator.Evaluate(price, cond.Threshold) {
			continue
		}

		req := core.OrderRequest{Symbol: cond.Symbol, Side: cond.Side, Type: model.OrderTypeMarket}
		if cond.Side == model.SideBuy {
			req.QuoteQty = cond.Size
		} else {
			req.Qty = cond.Size
		}

		ref, err := env.Exchange.PlaceOrder(ctx, env.Creds, req)
		trade := model.TradeRecord{
			BotID: bot.ID, UserID: bot.UserID, Symbol: cond.Symbol,
			Side: cond.Side, Type: model.OrderTypeMarket, RequestedSize: cond.Size,
		}
		if err != nil {
			trade.Status = model.TradeStatusFailed
			trade.Error = err.Error()
			failures++
		} else {
			trade.Status = model.TradeStatusPlaced
			trade.VenueOrderID = ref.OrderID
			trade.Price = ref.Price
			trade.ExecutedSize = ref.ExecutedQty
			refs = append(refs, ref)
			cond.TriggerCount++
			cond.LastTriggered = now
			fired = true
		}
		trades = append(trades, trade)
		activities = append(activities, model.ActivityLog{
			BotID: bot.ID, Strategy: e.Kind(), Severity: model.SeverityTrade,
			Message: fmt.Sprintf("condition %s triggered: price %s %s %s", cond.ID, price, cond.Operator, cond.Threshold),
		})
	}

	if !fired && failures == 0 {
		return engine.ExecResult{Outcome: core.Noop()}, nil
	}

	outcome := core.Submitted(refs...)
	switch {
	case !fired && failures > 0:
		outcome = core.Failed("all triggered conditions failed to place", "")
	case fired && failures > 0:
		outcome = core.Partial(refs, nil)
	}

	return engine.ExecResult{
		Outcome:    outcome,
		Trades:     trades,
		Activities: activities,
	}, nil
}

// Persist saves the mutated Conditional params.
func (e *Evaluator) Persist(ctx context.Context, repo core.IBotRepository, botID string, bot *model.BotSpec) error {
	return repo.UpdateConditional(ctx, botID, *bot.Conditional)
}

var _ engine.Evaluator = (*Evaluator)(nil)
