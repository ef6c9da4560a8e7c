package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BotSpec is the tagged-variant document owning one strategy instance for
// one user. Exactly one of the Params fields is populated, selected by
// Kind. Intent fields (IsActive, the Params the frontend writes) are
// co-owned with the engine's runtime fields (IsRunning, the per-strategy
// *State, LastCheckedAt) — both sides must use field-scoped updates so
// neither clobbers the other (spec.md §3 Ownership).
type BotSpec struct {
	ID     string
	UserID string
	Name   string
	Symbol string
	Kind   StrategyKind

	IsActive  bool // user intent
	IsRunning bool // engine-set, reflects admission

	CreatedAt time.Time
	UpdatedAt time.Time

	LastCheckedAt  time.Time
	LastExecutedAt time.Time

	Conditional *ConditionalParams
	Accumulator *AccumulatorParams
	Stabilizer  *StabilizerParams
	Maker       *MakerParams
	BuyWall     *BuyWallParams
	PriceKeeper *PriceKeeperParams
	Liquidity   *LiquidityParams
}

// CooldownElapsed reports whether at least cooldown has passed since
// LastExecutedAt, evaluated against now. A zero LastExecutedAt (never
// executed) always elapses.
func (b *BotSpec) CooldownElapsed(now time.Time, cooldown time.Duration) bool {
	if b.LastExecutedAt.IsZero() {
		return true
	}
	return now.Sub(b.LastExecutedAt) >= cooldown
}

// ConditionOperator is the comparison operator of a conditional-bot price
// condition.
type ConditionOperator string

const (
	OpLess           ConditionOperator = "<"
	OpGreater        ConditionOperator = ">"
	OpLessOrEqual    ConditionOperator = "<="
	OpGreaterOrEqual ConditionOperator = ">="
)

// Evaluate reports whether price satisfies op against threshold.
func (op ConditionOperator) Evaluate(price, threshold decimal.Decimal) bool {
	switch op {
	case OpLess:
		return price.LessThan(threshold)
	case OpGreater:
		return price.GreaterThan(threshold)
	case OpLessOrEqual:
		return price.LessThanOrEqual(threshold)
	case OpGreaterOrEqual:
		return price.GreaterThanOrEqual(threshold)
	default:
		return false
	}
}

// OrderSide is a normalized buy/sell side, shared by every strategy and by
// the exchange client's PlaceOrder contract.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType is a normalized order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// PriceCondition is one entry of a conditional bot's trigger set.
type PriceCondition struct {
	ID           string
	Symbol       string
	Operator     ConditionOperator
	Threshold    decimal.Decimal
	Side         OrderSide
	Size         decimal.Decimal
	CooldownMs   int64
	LastTriggered time.Time
	TriggerCount int
}

// ConditionalParams holds a conditional bot's configured triggers and
// runtime counters.
type ConditionalParams struct {
	Conditions []PriceCondition
}

// AccumulatorParams holds a scheduled accumulator's budget/schedule
// parameters and runtime counters (spec.md §3, §4.7).
type AccumulatorParams struct {
	TotalBudget      decimal.Decimal
	DurationHours    int
	BidOffsetPercent decimal.Decimal

	SpentUSDT       decimal.Decimal
	AccumulatedBase decimal.Decimal
	ExecutedBuys    int
	NextBuyAt       time.Time
	StartedAt       time.Time
}

// SliceAmount returns U/H, the per-hour budget slice.
func (a *AccumulatorParams) SliceAmount() decimal.Decimal {
	if a.DurationHours <= 0 {
		return decimal.Zero
	}
	return a.TotalBudget.Div(decimal.NewFromInt(int64(a.DurationHours)))
}

// Done reports whether the accumulator has used up its scheduled buys.
func (a *AccumulatorParams) Done() bool {
	return a.ExecutedBuys >= a.DurationHours
}

// StabilizerParams holds the stabilizer's target and window-cap state
// (spec.md §3, §4.8).
type StabilizerParams struct {
	TargetPrice       decimal.Decimal
	MaxBuyAmount       decimal.Decimal
	ThresholdExceeded  bool
	ExecutionCount     int
	LastExecutedAt     time.Time
	LastMarketPrice    decimal.Decimal
	LastFinalPrice     decimal.Decimal
	WindowSpent        decimal.Decimal
	PriceSource        PriceSource
}

// MakerParams holds the oscillating market-maker's ladder/oscillation
// state (spec.md §3, §4.9).
type MakerParams struct {
	TargetPrice    decimal.Decimal
	SpreadPercent  decimal.Decimal
	InitialSize    decimal.Decimal
	CurrentSize    decimal.Decimal
	IsDecreasing   bool
	PriceFloor     decimal.Decimal
	PriceCeil      decimal.Decimal
	IncrementStep  decimal.Decimal
	TargetReached  bool
	BullishBias    bool
	BuyOrderID     string
	SellOrderID    string
}

// BuyWallRung is one (price, quote-amount) entry of a buy-wall ladder.
type BuyWallRung struct {
	Price      decimal.Decimal
	QuoteAmount decimal.Decimal
	OrderID    string
	Failed     bool
}

// BuyWallParams holds the buy-wall's rung ladder and placement state
// (spec.md §3, §4.10).
type BuyWallParams struct {
	TargetPrice  decimal.Decimal
	Rungs        []BuyWallRung
	OrdersPlaced bool
	TotalRefills int
}

// PriceKeeperParams holds the price-keeper's micro-order configuration
// (spec.md §3, §4.11).
type PriceKeeperParams struct {
	OrderAmountQuote decimal.Decimal
	CooldownSeconds  int
	LastMarketPrice  decimal.Decimal
	LastAskPrice     decimal.Decimal
}

// LiquidityParams holds the sell-liquidity analyzer/maintainer's
// thresholds and last-observed metrics (spec.md §3, §4.12).
type LiquidityParams struct {
	ScaleFactor          decimal.Decimal
	MinDepth2Percent     decimal.Decimal
	MinDepthTop20        decimal.Decimal
	MinOrderCount        int
	MaxOrderGapPercent   decimal.Decimal
	CheckIntervalSeconds int
	AutoManage           bool

	LastDepth2Pct   decimal.Decimal
	LastDepthTop20  decimal.Decimal
	LastOrderCount  int
	LiquidityOK     bool
	BudgetRequired  decimal.Decimal
	TotalOrdersPlaced int
	TotalMaintenance  int
}
