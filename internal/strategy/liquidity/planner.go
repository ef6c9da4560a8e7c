package liquidity

import (
	"fmt"

	"github.com/shopspring/decimal"

	"botsupervisor/internal/model"
)

// depthFillWeights is the weighted share of the 80% depth-fill bucket
// across its 10 generated orders (spec.md §4.12 step 2/4, scenario S4).
var depthFillWeights = []decimal.Decimal{
	decimal.NewFromFloat(5), decimal.NewFromFloat(5), decimal.NewFromFloat(5), decimal.NewFromFloat(5),
	decimal.NewFromFloat(10), decimal.NewFromFloat(10), decimal.NewFromFloat(10),
	decimal.NewFromFloat(15), decimal.NewFromFloat(15), decimal.NewFromFloat(20),
}

var (
	gapBudgetShare   = decimal.NewFromFloat(0.2)
	depthBudgetShare = decimal.NewFromFloat(0.8)
	depthStep        = decimal.NewFromFloat(1.005) // +0.5% per depth-fill order
	midStartOffset   = decimal.NewFromFloat(1.005)
	gapFirstAskBand  = decimal.NewFromFloat(1.01) // ~1% above mid*1.005
)

// PlannedOrder is one sell order the planner proposes to place.
type PlannedOrder struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// Plan builds the set of maintenance orders for one planning pass: a
// gap-fill bucket (20% of budget) over gaps in the top 10 asks, and a
// depth-fill bucket (80% of budget) stepping out from the 10th ask.
// existingPrices holds this bot's own resting ask prices at symbol price
// precision, used for deduplication (step 5).
func Plan(asks []model.PriceLevel, mid decimal.Decimal, cfg Config, existingPrices map[string]bool, pricePrecision int32) []PlannedOrder {
	budget := cfg.MinDepthTop20.Mul(cfg.ScaleFactor)
	gapBudget := budget.Mul(gapBudgetShare)
	depthBudget := budget.Mul(depthBudgetShare)

	var orders []PlannedOrder
	orders = append(orders, gapFillOrders(asks, mid, cfg, gapBudget, existingPrices, pricePrecision)...)
	orders = append(orders, depthFillOrders(asks, mid, depthBudget, existingPrices, pricePrecision)...)
	return orders
}

func gapFillOrders(asks []model.PriceLevel, mid decimal.Decimal, cfg Config, budget decimal.Decimal, existing map[string]bool, precision int32) []PlannedOrder {
	top10 := asks
	if len(top10) > 10 {
		top10 = top10[:10]
	}

	var gaps []int
	for i := 0; i+1 < len(top10); i++ {
		gapPct := top10[i+1].Price.Sub(top10[i].Price).Div(top10[i].Price).Mul(hundred)
		if gapPct.GreaterThan(cfg.MaxOrderGapPercent) {
			gaps = append(gaps, i)
		}
	}

	anchor := mid.Mul(midStartOffset)
	needsAnchor := len(asks) == 0 || asks[0].Price.GreaterThan(anchor.Mul(gapFirstAskBand))

	slots := len(gaps)
	if needsAnchor {
		slots++
	}
	if slots == 0 {
		return nil
	}

	perOrderBudget := budget.Div(decimal.NewFromInt(int64(slots)))

	var out []PlannedOrder
	half := decimal.NewFromInt(2)
	for _, i := range gaps {
		gapHalf := cfg.MaxOrderGapPercent.Div(hundred).Div(half)
		price := top10[i].Price.Mul(decimal.NewFromInt(1).Add(gapHalf))
		out = append(out, dedupedOrder(price, perOrderBudget, existing, precision)...)
	}
	if needsAnchor {
		out = append(out, dedupedOrder(anchor, perOrderBudget, existing, precision)...)
	}
	return out
}

func depthFillOrders(asks []model.PriceLevel, mid decimal.Decimal, budget decimal.Decimal, existing map[string]bool, precision int32) []PlannedOrder {
	var start decimal.Decimal
	if len(asks) >= 10 {
		start = asks[9].Price
	} else {
		start = mid.Mul(midStartOffset)
	}

	var out []PlannedOrder
	price := start
	for i, w := range depthFillWeights {
		if i > 0 {
			price = price.Mul(depthStep)
		}
		quote := budget.Mul(w).Div(hundred)
		out = append(out, dedupedOrder(price, quote, existing, precision)...)
	}
	return out
}

func dedupedOrder(price, quote decimal.Decimal, existing map[string]bool, precision int32) []PlannedOrder {
	key := price.Truncate(precision).String()
	if existing[key] {
		return nil
	}
	existing[key] = true
	if quote.LessThanOrEqual(decimal.Zero) || price.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	return []PlannedOrder{{Price: price, Qty: quote.Div(price)}}
}

// QuoteValues reports the quote-value of each planned order, useful for
// verifying the weighted depth-fill split against a fixed budget.
func QuoteValues(orders []PlannedOrder) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = fmt.Sprintf("%s", o.Price.Mul(o.Qty).Round(2))
	}
	return out
}

// NeedsRepositioning implements step 7: when current top-20 depth
// overshoots 1.5x the effective threshold and we hold more than 5 resting
// orders, report true so the caller can cancel high-priced orders in the
// (mid*1.02, mid*1.10] zone.
func NeedsRepositioning(currentTop20Depth, effectiveD20 decimal.Decimal, ownOrderCount int) bool {
	return currentTop20Depth.GreaterThan(effectiveD20.Mul(depthOverflow)) && ownOrderCount > 5
}

// RepositionZone returns the (lo, hi] price band step 7 cancels from.
func RepositionZone(mid decimal.Decimal) (lo, hi decimal.Decimal) {
	return mid.Mul(repositionLo), mid.Mul(repositionHi)
}

// StaleOrderBounds returns the [lo, hi] band within which our own resting
// ask orders are kept; anything outside is swept (step 1).
func StaleOrderBounds(mid decimal.Decimal) (lo, hi decimal.Decimal) {
	return mid.Mul(staleFloor), mid.Mul(staleCeil)
}
