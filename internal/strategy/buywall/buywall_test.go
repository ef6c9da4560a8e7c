package buywall

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"botsupervisor/internal/core"
	"botsupervisor/internal/engine"
	"botsupervisor/internal/model"
)

type fakeExchange struct {
	core.IExchangeClient
	placed int
	open   []core.OrderRef
	nextID int
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, creds core.Credentials, req core.OrderRequest) (core.OrderRef, error) {
	f.placed++
	f.nextID++
	return core.OrderRef{OrderID: fmt.Sprintf("rung-%d", f.nextID)}, nil
}

func (f *fakeExchange) OpenOrders(ctx context.Context, creds core.Credentials, symbol string, side *model.OrderSide) ([]core.OrderRef, error) {
	return f.open, nil
}

func (f *fakeExchange) Pace(ctx context.Context) error { return nil }

func baseBot() *model.BotSpec {
	return &model.BotSpec{
		ID: "b1", UserID: "u1", Symbol: "GCBUSDT", Kind: model.StrategyBuyWall,
		BuyWall: &model.BuyWallParams{
			Rungs: []model.BuyWallRung{
				{Price: decimal.NewFromFloat(0.009), QuoteAmount: decimal.NewFromInt(10)},
				{Price: decimal.NewFromFloat(0.0085), QuoteAmount: decimal.NewFromInt(10)},
				{Price: decimal.NewFromFloat(0.008), QuoteAmount: decimal.NewFromInt(10)},
			},
		},
	}
}

func TestFirstActivationPlacesEveryRung(t *testing.T) {
	bot := baseBot()
	ex := &fakeExchange{}
	ev := New()
	env := engine.Env{Exchange: ex}

	result, err := ev.Execute(context.Background(), env, bot)
	require.NoError(t, err)
	require.Equal(t, core.OutcomeSubmitted, result.Outcome.Kind)
	require.Equal(t, 3, ex.placed)
	require.True(t, bot.BuyWall.OrdersPlaced)
	for _, rung := range bot.BuyWall.Rungs {
		require.NotEmpty(t, rung.OrderID)
		require.False(t, rung.Failed)
	}
}

func TestRefreshRepostsOnlyMissingRungs(t *testing.T) {
	bot := baseBot()
	ex := &fakeExchange{}
	ev := New()
	env := engine.Env{Exchange: ex}

	_, err := ev.Execute(context.Background(), env, bot)
	require.NoError(t, err)
	require.Equal(t, 3, ex.placed)

	// Simulate rungs 0 and 1 still resting on the venue; rung 2 filled/cancelled.
	ex.open = []core.OrderRef{
		{OrderID: bot.BuyWall.Rungs[0].OrderID},
		{OrderID: bot.BuyWall.Rungs[1].OrderID},
	}

	result, err := ev.Execute(context.Background(), env, bot)
	require.NoError(t, err)
	require.Equal(t, core.OutcomeSubmitted, result.Outcome.Kind)
	require.Equal(t, 4, ex.placed, "only the missing rung is reposted")
	require.Equal(t, 1, bot.BuyWall.TotalRefills)
}

func TestRefreshIsNoopWhenEveryRungStillOpen(t *testing.T) {
	bot := baseBot()
	ex := &fakeExchange{}
	ev := New()
	env := engine.Env{Exchange: ex}

	_, err := ev.Execute(context.Background(), env, bot)
	require.NoError(t, err)

	ex.open = []core.OrderRef{
		{OrderID: bot.BuyWall.Rungs[0].OrderID},
		{OrderID: bot.BuyWall.Rungs[1].OrderID},
		{OrderID: bot.BuyWall.Rungs[2].OrderID},
	}

	result, err := ev.Execute(context.Background(), env, bot)
	require.NoError(t, err)
	require.Equal(t, core.OutcomeNoop, result.Outcome.Kind)
	require.Equal(t, 3, ex.placed)
	require.Equal(t, 0, bot.BuyWall.TotalRefills)
}
