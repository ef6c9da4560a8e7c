package liquidity

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"botsupervisor/internal/clock"
	"botsupervisor/internal/core"
	"botsupervisor/internal/engine"
	"botsupervisor/internal/model"
)

type fakeExchange struct {
	core.IExchangeClient
	balance decimal.Decimal
	placed  int
}

func (f *fakeExchange) OpenOrders(ctx context.Context, creds core.Credentials, symbol string, side *model.OrderSide) ([]core.OrderRef, error) {
	return nil, nil
}

func (f *fakeExchange) CancelBatch(ctx context.Context, creds core.Credentials, symbol string, orderIDs []string) error {
	return nil
}

func (f *fakeExchange) Pace(ctx context.Context) error { return nil }

func (f *fakeExchange) SymbolInfo(ctx context.Context, symbol string) (model.SymbolInfo, error) {
	return model.SymbolInfo{Symbol: symbol, PricePrecision: 4, QuantityPrecision: 4, MinOrderSize: decimal.NewFromFloat(0.01)}, nil
}

func (f *fakeExchange) Balances(ctx context.Context, creds core.Credentials, currencies []string) (map[string]decimal.Decimal, error) {
	return map[string]decimal.Decimal{"GCB": f.balance}, nil
}

func (f *fakeExchange) PlaceBatch(ctx context.Context, creds core.Credentials, clientBatchID string, reqs []core.OrderRequest) ([]core.OrderRef, []error) {
	refs := make([]core.OrderRef, len(reqs))
	errs := make([]error, len(reqs))
	for i, r := range reqs {
		refs[i] = core.OrderRef{OrderID: "o", Price: r.Price, OrigQty: r.Qty}
		f.placed++
	}
	return refs, errs
}

type fakeSnapshot struct{ snap model.MarketSnapshot }

func (f *fakeSnapshot) Snapshot(ctx context.Context, symbol string, depth int) (model.MarketSnapshot, error) {
	return f.snap, nil
}

func testClock() *clock.Clock {
	return clock.New(func(ctx context.Context) (time.Time, error) { return time.Now(), nil })
}

func TestExecuteRunsPlannerWhenAutoManageAndNotOk(t *testing.T) {
	bot := &model.BotSpec{
		ID: "b1", UserID: "u1", Symbol: "GCBUSDT", Kind: model.StrategyLiquidity,
		Liquidity: &model.LiquidityParams{
			ScaleFactor: decimal.NewFromInt(1), MinDepth2Percent: decimal.NewFromInt(500),
			MinDepthTop20: decimal.NewFromInt(1000), MinOrderCount: 30,
			MaxOrderGapPercent: decimal.NewFromInt(1), AutoManage: true,
		},
	}

	ex := &fakeExchange{balance: decimal.NewFromInt(100000)}
	snap := &fakeSnapshot{snap: model.MarketSnapshot{
		Mid: decimal.NewFromFloat(0.998),
		Book: model.OrderBook{Asks: []model.PriceLevel{
			{Price: decimal.NewFromFloat(1.000), Qty: decimal.NewFromInt(100)},
			{Price: decimal.NewFromFloat(1.005), Qty: decimal.NewFromInt(50)},
			{Price: decimal.NewFromFloat(1.020), Qty: decimal.NewFromInt(200)},
		}},
	}}

	ev := New()
	env := engine.Env{Exchange: ex, Snapshot: snap, Clock: testClock()}

	result, err := ev.Execute(context.Background(), env, bot)
	require.NoError(t, err)
	require.NotEqual(t, core.OutcomeNoop, result.Outcome.Kind)
	require.Greater(t, ex.placed, 0)
	require.False(t, bot.Liquidity.LiquidityOK)
	require.Equal(t, 1, bot.Liquidity.TotalMaintenance)
}

func TestExecuteSkipsMaintenanceWhenBookOk(t *testing.T) {
	bot := &model.BotSpec{
		ID: "b1", UserID: "u1", Symbol: "GCBUSDT", Kind: model.StrategyLiquidity,
		Liquidity: &model.LiquidityParams{
			ScaleFactor: decimal.NewFromInt(1), MinDepth2Percent: decimal.NewFromInt(1),
			MinDepthTop20: decimal.NewFromInt(1), MinOrderCount: 1,
			MaxOrderGapPercent: decimal.NewFromInt(100), AutoManage: true,
		},
	}

	ex := &fakeExchange{}
	snap := &fakeSnapshot{snap: model.MarketSnapshot{
		Mid: decimal.NewFromFloat(0.998),
		Book: model.OrderBook{Asks: []model.PriceLevel{
			{Price: decimal.NewFromFloat(1.000), Qty: decimal.NewFromInt(100)},
		}},
	}}

	ev := New()
	env := engine.Env{Exchange: ex, Snapshot: snap, Clock: testClock()}

	result, err := ev.Execute(context.Background(), env, bot)
	require.NoError(t, err)
	require.Equal(t, core.OutcomeNoop, result.Outcome.Kind)
	require.Equal(t, 0, ex.placed)
	require.True(t, bot.Liquidity.LiquidityOK)
}
