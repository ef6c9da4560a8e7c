package accumulator

import (
	"context"
	"errors"
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
	ask    decimal.Decimal
	placed []core.OrderRequest
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, creds core.Credentials, req core.OrderRequest) (core.OrderRef, error) {
	f.placed = append(f.placed, req)
	ref := core.OrderRef{OrderID: "1", Price: req.Price}
	if req.Type == model.OrderTypeMarket {
		ref.Price = f.ask
		ref.ExecutedQty = req.QuoteQty.Div(f.ask)
	} else {
		ref.ExecutedQty = req.Qty
	}
	return ref, nil
}

type fakeSnapshot struct{ snap model.MarketSnapshot }

func (f *fakeSnapshot) Snapshot(ctx context.Context, symbol string, depth int) (model.MarketSnapshot, error) {
	return f.snap, nil
}

func testClock() *clock.Clock {
	return clock.New(func(ctx context.Context) (time.Time, error) { return time.Now(), nil })
}

// TestScenarioS2 reproduces spec scenario S2: totalBudget 240 over 24
// hours (slice 10), bidOffsetPercent 0.5, best ask 1.000 -> market buy
// quote 5, limit buy price 0.995 quote 5 (base qty 5/0.995).
func TestScenarioS2(t *testing.T) {
	bot := &model.BotSpec{
		ID: "b1", UserID: "u1", Symbol: "GCBUSDT", Kind: model.StrategyAccumulator,
		Accumulator: &model.AccumulatorParams{
			TotalBudget:      decimal.NewFromInt(240),
			DurationHours:    24,
			BidOffsetPercent: decimal.NewFromFloat(0.5),
		},
	}

	ask := decimal.NewFromInt(1)
	ex := &fakeExchange{ask: ask}
	snap := &fakeSnapshot{snap: model.MarketSnapshot{
		Book: model.OrderBook{Asks: []model.PriceLevel{{Price: ask, Qty: decimal.NewFromInt(1000)}}},
	}}

	ev := New()
	env := engine.Env{Exchange: ex, Snapshot: snap, Clock: testClock()}

	result, err := ev.Execute(context.Background(), env, bot)
	require.NoError(t, err)
	require.Equal(t, core.OutcomeSubmitted, result.Outcome.Kind)
	require.Len(t, ex.placed, 2)

	market := ex.placed[0]
	require.Equal(t, model.OrderTypeMarket, market.Type)
	require.True(t, market.QuoteQty.Equal(decimal.NewFromInt(5)), "market quote = %s", market.QuoteQty)

	limit := ex.placed[1]
	require.Equal(t, model.OrderTypeLimit, limit.Type)
	require.True(t, limit.Price.Equal(decimal.NewFromFloat(0.995)), "limit price = %s", limit.Price)
	wantQty := decimal.NewFromInt(5).Div(decimal.NewFromFloat(0.995))
	require.True(t, limit.Qty.Equal(wantQty), "limit qty = %s want %s", limit.Qty, wantQty)

	require.True(t, bot.Accumulator.SpentUSDT.Equal(decimal.NewFromInt(10)))
	require.Equal(t, 1, bot.Accumulator.ExecutedBuys)
	require.Equal(t, bot.Accumulator.StartedAt.Add(time.Hour), bot.Accumulator.NextBuyAt)
}

type failingMarketExchange struct {
	core.IExchangeClient
	placed []core.OrderRequest
}

func (f *failingMarketExchange) PlaceOrder(ctx context.Context, creds core.Credentials, req core.OrderRequest) (core.OrderRef, error) {
	f.placed = append(f.placed, req)
	if req.Type == model.OrderTypeMarket {
		return core.OrderRef{}, errors.New("insufficient funds")
	}
	return core.OrderRef{OrderID: "1", ExecutedQty: req.Qty}, nil
}

// TestMarketLegFailureSkipsLimitLeg reproduces spec §4.7: if the market
// leg fails, the limit leg must be skipped rather than placed.
func TestMarketLegFailureSkipsLimitLeg(t *testing.T) {
	bot := &model.BotSpec{
		ID: "b1", UserID: "u1", Symbol: "GCBUSDT", Kind: model.StrategyAccumulator,
		Accumulator: &model.AccumulatorParams{
			TotalBudget:      decimal.NewFromInt(240),
			DurationHours:    24,
			BidOffsetPercent: decimal.NewFromFloat(0.5),
		},
	}

	ask := decimal.NewFromInt(1)
	ex := &failingMarketExchange{}
	snap := &fakeSnapshot{snap: model.MarketSnapshot{
		Book: model.OrderBook{Asks: []model.PriceLevel{{Price: ask, Qty: decimal.NewFromInt(1000)}}},
	}}

	ev := New()
	env := engine.Env{Exchange: ex, Snapshot: snap, Clock: testClock()}

	result, err := ev.Execute(context.Background(), env, bot)
	require.NoError(t, err)
	require.Equal(t, core.OutcomeFailed, result.Outcome.Kind)
	require.Len(t, ex.placed, 1, "the limit leg must never reach the exchange")
	require.Equal(t, model.OrderTypeMarket, ex.placed[0].Type)

	require.Len(t, result.Trades, 2)
	require.Equal(t, model.TradeStatusFailed, result.Trades[0].Status)
	require.Equal(t, model.TradeStatusSkipped, result.Trades[1].Status)
	require.True(t, bot.Accumulator.SpentUSDT.IsZero())
}
