package liquidity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"botsupervisor/internal/core"
	"botsupervisor/internal/engine"
	"botsupervisor/internal/model"
)

const batchSize = 10

// Evaluator implements engine.Evaluator for the sell-liquidity analyzer
// and maintainer.
type Evaluator struct{}

// New builds a liquidity Evaluator.
func New() *Evaluator { return &Evaluator{} }

func (e *Evaluator) Kind() model.StrategyKind { return model.StrategyLiquidity }
func (e *Evaluator) TickInterval() time.Duration { return 10 * time.Second }

func (e *Evaluator) Cooldown(bot *model.BotSpec) time.Duration {
	if bot.Liquidity == nil || bot.Liquidity.CheckIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(bot.Liquidity.CheckIntervalSeconds) * time.Second
}

// Execute runs one analyze-and-maintain pass: compute the analysis,
// persist its metrics, and if autoManage is set and the book is not ok,
// run the planner and place its orders.
func (e *Evaluator) Execute(ctx context.Context, env engine.Env, bot *model.BotSpec) (engine.ExecResult, error) {
	p := bot.Liquidity
	if p == nil {
		return engine.ExecResult{}, fmt.Errorf("liquidity: bot %s missing params", bot.ID)
	}

	snap, err := env.Snapshot.Snapshot(ctx, bot.Symbol, 20)
	if err != nil {
		return engine.ExecResult{}, fmt.Errorf("liquidity: snapshot: %w", err)
	}

	cfg := configFromParams(p)
	analysis := Analyze(snap.Book.Asks, cfg)

	p.LastDepth2Pct = analysis.SellDepth2Pct
	p.LastDepthTop20 = analysis.SellDepthTop20
	p.LastOrderCount = analysis.SellOrderCount
	p.LiquidityOK = analysis.AllOk
	p.BudgetRequired = cfg.MinDepthTop20.Mul(cfg.ScaleFactor)

	if analysis.AllOk || !p.AutoManage {
		return engine.ExecResult{
			Outcome: core.Noop(),
			Activities: []model.ActivityLog{{
				BotID: bot.ID, Strategy: e.Kind(), Severity: model.SeverityLiquidity,
				Message: fmt.Sprintf("liquidity check ok=%v depth2=%s depth20=%s orders=%d", analysis.AllOk, analysis.SellDepth2Pct, analysis.SellDepthTop20, analysis.SellOrderCount),
			}},
		}, nil
	}

	placed, failed, err := e.maintain(ctx, env, bot, p, snap, cfg)
	if err != nil {
		return engine.ExecResult{}, fmt.Errorf("liquidity: maintain: %w", err)
	}

	p.TotalOrdersPlaced += len(placed)
	p.TotalMaintenance++

	trades := make([]model.TradeRecord, 0, len(placed)+len(failed))
	for _, o := range placed {
		trades = append(trades, model.TradeRecord{
			BotID: bot.ID, UserID: bot.UserID, Symbol: bot.Symbol,
			Side: model.SideSell, Type: model.OrderTypeLimit, Price: o.Price,
			RequestedSize: o.Qty, Status: model.TradeStatusPlaced,
		})
	}
	for _, o := range failed {
		trades = append(trades, model.TradeRecord{
			BotID: bot.ID, UserID: bot.UserID, Symbol: bot.Symbol,
			Side: model.SideSell, Type: model.OrderTypeLimit, Price: o.Price,
			RequestedSize: o.Qty, Status: model.TradeStatusFailed,
		})
	}

	outcome := core.Failed("all maintenance orders failed", "")
	switch {
	case len(placed) > 0 && len(failed) == 0:
		outcome = core.Submitted()
	case len(placed) > 0 && len(failed) > 0:
		outcome = core.Partial(nil, nil)
	}

	return engine.ExecResult{
		Outcome: outcome,
		Trades:  trades,
		Activities: []model.ActivityLog{{
			BotID: bot.ID, Strategy: e.Kind(), Severity: model.SeverityLiquidity,
			Message: fmt.Sprintf("liquidity maintenance placed %d/%d orders", len(placed), len(placed)+len(failed)),
		}},
	}, nil
}

// maintain runs the full planner pipeline: stale sweep, reposition sweep,
// plan, dedupe against own resting orders, balance-bounded truncation,
// and batched execution.
func (e *Evaluator) maintain(ctx context.Context, env engine.Env, bot *model.BotSpec, p *model.LiquidityParams, snap model.MarketSnapshot, cfg Config) ([]PlannedOrder, []PlannedOrder, error) {
	sideSell := model.SideSell
	open, err := env.Exchange.OpenOrders(ctx, env.Creds, bot.Symbol, &sideSell)
	if err != nil {
		return nil, nil, fmt.Errorf("open orders: %w", err)
	}

	lo, hi := StaleOrderBounds(snap.Mid)
	var ownOrders []core.OrderRef
	var staleIDs []string
	for _, o := range open {
		if o.Price.LessThan(lo) || o.Price.GreaterThan(hi) {
			staleIDs = append(staleIDs, o.OrderID)
			continue
		}
		ownOrders = append(ownOrders, o)
	}
	if len(staleIDs) > 0 {
		env.Exchange.CancelBatch(ctx, env.Creds, bot.Symbol, staleIDs)
	}

	info, err := env.Exchange.SymbolInfo(ctx, bot.Symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("symbol info: %w", err)
	}

	effectiveD20 := cfg.MinDepthTop20.Mul(cfg.ScaleFactor)
	currentDepth := decimal.Zero
	for _, lvl := range ownOrders {
		currentDepth = currentDepth.Add(lvl.Price.Mul(lvl.OrigQty))
	}
	if NeedsRepositioning(currentDepth, effectiveD20, len(ownOrders)) {
		repoLo, repoHi := RepositionZone(snap.Mid)
		var candidates []core.OrderRef
		for _, o := range ownOrders {
			if o.Price.GreaterThan(repoLo) && o.Price.LessThanOrEqual(repoHi) {
				candidates = append(candidates, o)
			}
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Price.GreaterThan(candidates[j].Price) })
		cancelCount := len(candidates) * 3 / 10
		ids := make([]string, 0, cancelCount)
		for i := 0; i < cancelCount && i < len(candidates); i++ {
			ids = append(ids, candidates[i].OrderID)
		}
		if len(ids) > 0 {
			env.Exchange.CancelBatch(ctx, env.Creds, bot.Symbol, ids)
		}
	}

	existing := make(map[string]bool, len(ownOrders))
	for _, o := range ownOrders {
		existing[o.Price.Truncate(info.PricePrecision).String()] = true
	}

	planned := Plan(snap.Book.Asks, snap.Mid, cfg, existing, info.PricePrecision)
	planned = boundByBalance(ctx, env, planned, info)

	var placed, failed []PlannedOrder
	for start := 0; start < len(planned); start += batchSize {
		end := start + batchSize
		if end > len(planned) {
			end = len(planned)
		}
		batch := planned[start:end]

		reqs := make([]core.OrderRequest, len(batch))
		for i, o := range batch {
			reqs[i] = core.OrderRequest{Symbol: bot.Symbol, Side: model.SideSell, Type: model.OrderTypeLimit, Price: o.Price, Qty: o.Qty}
		}
		batchID := fmt.Sprintf("liq_%s_%d", bot.ID, start)
		_, errs := env.Exchange.PlaceBatch(ctx, env.Creds, batchID, reqs)
		for i, err := range errs {
			if err != nil {
				failed = append(failed, batch[i])
			} else {
				placed = append(placed, batch[i])
			}
		}

		if end < len(planned) {
			if err := env.Exchange.Pace(ctx); err != nil {
				return placed, failed, err
			}
		}
	}

	return placed, failed, nil
}

// boundByBalance greedily truncates planned to fit available base balance,
// enforcing the venue's declared minimum order size (spec.md §4.12 step 6).
func boundByBalance(ctx context.Context, env engine.Env, planned []PlannedOrder, info model.SymbolInfo) []PlannedOrder {
	balances, err := env.Exchange.Balances(ctx, env.Creds, []string{baseAsset(info.Symbol)})
	if err != nil {
		return planned
	}
	available := balances[baseAsset(info.Symbol)]

	var out []PlannedOrder
	spent := decimal.Zero
	for _, o := range planned {
		if o.Qty.LessThan(info.MinOrderSize) {
			continue
		}
		if spent.Add(o.Qty).GreaterThan(available) {
			continue
		}
		spent = spent.Add(o.Qty)
		out = append(out, o)
	}
	return out
}

func baseAsset(symbol string) string {
	if len(symbol) > 4 && symbol[len(symbol)-4:] == "USDT" {
		return symbol[:len(symbol)-4]
	}
	return symbol
}

// Persist saves the mutated Liquidity params.
func (e *Evaluator) Persist(ctx context.Context, repo core.IBotRepository, botID string, bot *model.BotSpec) error {
	return repo.UpdateLiquidity(ctx, botID, *bot.Liquidity)
}

var _ engine.Evaluator = (*Evaluator)(nil)
