package pricekeeper

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
	placed []core.OrderRequest
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, creds core.Credentials, req core.OrderRequest) (core.OrderRef, error) {
	f.placed = append(f.placed, req)
	return core.OrderRef{OrderID: "1"}, nil
}

type fakeSnapshot struct{ snap model.MarketSnapshot }

func (f *fakeSnapshot) Snapshot(ctx context.Context, symbol string, depth int) (model.MarketSnapshot, error) {
	return f.snap, nil
}

func testClock() *clock.Clock {
	return clock.New(func(ctx context.Context) (time.Time, error) { return time.Now(), nil })
}

func newBot() *model.BotSpec {
	return &model.BotSpec{
		ID: "b1", UserID: "u1", Symbol: "GCBUSDT", Kind: model.StrategyPriceKeeper,
		PriceKeeper: &model.PriceKeeperParams{
			OrderAmountQuote: decimal.NewFromInt(5),
			CooldownSeconds:  10,
		},
	}
}

// TestScenarioS5NoAction reproduces the first half of spec scenario S5:
// market 1.000000, best ask 1.000050 -> gap 0.00005 is within tolerance
// (ask*0.0001 = 0.000100005), so no order is placed.
func TestScenarioS5NoAction(t *testing.T) {
	bot := newBot()
	ex := &fakeExchange{}
	snap := &fakeSnapshot{snap: model.MarketSnapshot{
		LastTrade: decimal.NewFromFloat(1.0),
		Book:      model.OrderBook{Asks: []model.PriceLevel{{Price: decimal.NewFromFloat(1.00005)}}},
	}}

	ev := New()
	env := engine.Env{Exchange: ex, Snapshot: snap, Clock: testClock()}

	result, err := ev.Execute(context.Background(), env, bot)
	require.NoError(t, err)
	require.Equal(t, core.OutcomeNoop, result.Outcome.Kind)
	require.Empty(t, ex.placed)
}

// TestScenarioS5Action reproduces the second half of spec scenario S5:
// market 1.000000, best ask 1.000200 -> gap 0.0002 exceeds tolerance
// (0.00010002), triggering a MARKET BUY of orderAmountQuote.
func TestScenarioS5Action(t *testing.T) {
	bot := newBot()
	ex := &fakeExchange{}
	snap := &fakeSnapshot{snap: model.MarketSnapshot{
		LastTrade: decimal.NewFromFloat(1.0),
		Book:      model.OrderBook{Asks: []model.PriceLevel{{Price: decimal.NewFromFloat(1.0002)}}},
	}}

	ev := New()
	env := engine.Env{Exchange: ex, Snapshot: snap, Clock: testClock()}

	result, err := ev.Execute(context.Background(), env, bot)
	require.NoError(t, err)
	require.Equal(t, core.OutcomeSubmitted, result.Outcome.Kind)
	require.Len(t, ex.placed, 1)
	require.Equal(t, model.OrderTypeMarket, ex.placed[0].Type)
	require.True(t, ex.placed[0].QuoteQty.Equal(decimal.NewFromInt(5)))
}
