package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus is the outcome state of one trade record. Trade records are
// append-only: once inserted they are never mutated (spec.md §3).
type TradeStatus string

const (
	TradeStatusPlaced    TradeStatus = "placed"
	TradeStatusFilled    TradeStatus = "filled"
	TradeStatusFailed    TradeStatus = "failed"
	TradeStatusCancelled TradeStatus = "cancelled"
	TradeStatusSkipped   TradeStatus = "skipped"
)

// TradeRecord is the durable, append-only record of one order submission
// attempt, successful or not.
type TradeRecord struct {
	ID        string
	BotID     string
	UserID    string
	Symbol    string
	Side      OrderSide
	Type      OrderType
	RequestedSize decimal.Decimal
	ExecutedSize  decimal.Decimal
	Price         decimal.Decimal
	VenueOrderID  string
	Status        TradeStatus
	Error         string
	RawResponse   string
	CreatedAt     time.Time
}

// ActivitySeverity classifies an activity log entry.
type ActivitySeverity string

const (
	SeverityInfo      ActivitySeverity = "info"
	SeveritySuccess   ActivitySeverity = "success"
	SeverityWarn      ActivitySeverity = "warn"
	SeverityError     ActivitySeverity = "error"
	SeverityTrade     ActivitySeverity = "trade"
	SeverityLiquidity ActivitySeverity = "liquidity"
)

// ActivityLog is one entry of the durable, append-only activity log.
// BotID is empty for supervisor-wide entries.
type ActivityLog struct {
	ID        string
	BotID     string
	Strategy  StrategyKind
	Severity  ActivitySeverity
	Message   string
	Payload   map[string]string
	CreatedAt time.Time
}
