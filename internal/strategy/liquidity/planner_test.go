package liquidity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// TestScenarioS4 reproduces spec scenario S4: d20=1000, s=1 -> a 1000
// budget split 20/80 into gap-fill (200) and depth-fill (800), with the
// depth-fill bucket generating the documented weighted quote values.
func TestScenarioS4(t *testing.T) {
	cfg := Config{
		ScaleFactor:   decimal.NewFromInt(1),
		MinDepthTop20: decimal.NewFromInt(1000),
	}

	budget := cfg.MinDepthTop20.Mul(cfg.ScaleFactor)
	require.True(t, budget.Equal(decimal.NewFromInt(1000)))

	gapBudget := budget.Mul(gapBudgetShare)
	depthBudget := budget.Mul(depthBudgetShare)
	require.True(t, gapBudget.Equal(decimal.NewFromInt(200)))
	require.True(t, depthBudget.Equal(decimal.NewFromInt(800)))

	mid := decimal.NewFromInt(1)
	existing := map[string]bool{}
	orders := depthFillOrders(nil, mid, depthBudget, existing, 4)
	require.Len(t, orders, 10)

	want := []string{"40", "40", "40", "40", "80", "80", "80", "120", "120", "160"}
	for i, o := range orders {
		got := o.Price.Mul(o.Qty).Round(2).String()
		require.Equal(t, want[i], got, "order %d quote value", i)
		require.True(t, o.Price.GreaterThan(mid), "order %d price %s must exceed mid %s", i, o.Price, mid)
	}
}
