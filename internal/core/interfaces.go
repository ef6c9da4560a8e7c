package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"botsupervisor/internal/model"
)

// IClock exposes the process-wide exchange/local clock offset described in
// spec.md §5 ("Shared resources"). A single writer resyncs at need; many
// readers read the current offset without blocking.
type IClock interface {
	// Now returns the local clock adjusted by the last-known server offset.
	Now() time.Time
	// Offset returns the current server-minus-local offset.
	Offset() time.Duration
	// Resync forces a fresh server-time fetch and updates the offset.
	Resync(ctx context.Context) error
	// StaleSince reports how long it has been since the last successful resync.
	StaleSince() time.Duration
}

// OrderRequest is the normalized request shape for placing one order,
// independent of venue wire format.
type OrderRequest struct {
	Symbol        string
	Side          model.OrderSide
	Type          model.OrderType
	Qty           decimal.Decimal
	QuoteQty      decimal.Decimal // set instead of Qty for quote-denominated market buys
	Price         decimal.Decimal // required for LIMIT
	ClientOrderID string
}

// OrderRef is a normalized response to placing or querying one order. The
// exchange client normalizes both `orderId` and `orderIdString` venue
// response shapes into this single field (spec.md Open Question #3).
type OrderRef struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          model.OrderSide
	Status        string
	Price         decimal.Decimal
	OrigQty       decimal.Decimal
	ExecutedQty   decimal.Decimal
}

// Credentials is the per-user API key/secret pair resolved by the
// Credential Store for the duration of one work unit. Never cached across
// tick boundaries, never logged.
type Credentials struct {
	APIKey    string
	APISecret string
}

// IExchangeClient is the signed-REST contract consumed by every strategy.
// Implementations classify and retry time-drift auth errors internally
// (spec.md §4.1); all other errors surface to the caller.
type IExchangeClient interface {
	ServerTime(ctx context.Context) (time.Time, error)

	PlaceOrder(ctx context.Context, creds Credentials, req OrderRequest) (OrderRef, error)
	PlaceBatch(ctx context.Context, creds Credentials, clientBatchID string, reqs []OrderRequest) ([]OrderRef, []error)
	CancelOrder(ctx context.Context, creds Credentials, symbol, orderID string) error
	CancelBatch(ctx context.Context, creds Credentials, symbol string, orderIDs []string) error
	CancelAllOpen(ctx context.Context, creds Credentials, symbol string, side *model.OrderSide) error

	OpenOrders(ctx context.Context, creds Credentials, symbol string, side *model.OrderSide) ([]OrderRef, error)
	Balances(ctx context.Context, creds Credentials, currencies []string) (map[string]decimal.Decimal, error)
	Depth(ctx context.Context, symbol string, limit int) (model.OrderBook, error)
	Ticker(ctx context.Context, symbol string) (decimal.Decimal, error)
	SymbolInfo(ctx context.Context, symbol string) (model.SymbolInfo, error)

	// Pace blocks until the shared inter-order/inter-batch rate limiter
	// admits the next call (spec.md §5). Strategies that place multiple
	// orders in a non-batch loop must call this between placements.
	Pace(ctx context.Context) error
}

// ISnapshotProvider resolves a fresh market snapshot per call, sharing an
// in-flight fetch across concurrent callers for the same symbol
// (spec.md §4.2).
type ISnapshotProvider interface {
	Snapshot(ctx context.Context, symbol string, depth int) (model.MarketSnapshot, error)
}

// ICredentialStore resolves a user's exchange credentials, hiding the
// storage schema (spec.md §4.3).
type ICredentialStore interface {
	Resolve(ctx context.Context, userID string) (Credentials, *model.User, error)
	// SetBotEnabled flips a user's bot-enabled intent flag, the single path
	// through which EnableForUser/DisableForUser reach every engine
	// (spec.md §9 design note).
	SetBotEnabled(ctx context.Context, userID string, enabled bool) error
}

// BotFilter scopes a Bot Repository query.
type BotFilter struct {
	Strategy      model.StrategyKind
	UserID        string
	OnlyDueActive bool // isActive ∧ isRunning ∧ owned by enabled user
}

// IBotRepository is the lifecycle-aware, field-scoped CRUD contract over
// persisted bot documents (spec.md §4.3). Update methods must never
// overwrite fields outside the ones named.
type IBotRepository interface {
	DueBots(ctx context.Context, filter BotFilter) ([]*model.BotSpec, error)
	Get(ctx context.Context, botID string) (*model.BotSpec, error)
	CountActiveRunningForEnabledUsers(ctx context.Context, strategy model.StrategyKind) (int, error)

	SetRunning(ctx context.Context, botID string, running bool) error
	SetLastChecked(ctx context.Context, botID string, at time.Time) error
	SetLastExecuted(ctx context.Context, botID string, at time.Time) error
	UpdateAccumulator(ctx context.Context, botID string, p model.AccumulatorParams) error
	UpdateStabilizer(ctx context.Context, botID string, p model.StabilizerParams) error
	UpdateMaker(ctx context.Context, botID string, p model.MakerParams) error
	UpdateBuyWall(ctx context.Context, botID string, p model.BuyWallParams) error
	UpdatePriceKeeper(ctx context.Context, botID string, p model.PriceKeeperParams) error
	UpdateLiquidity(ctx context.Context, botID string, p model.LiquidityParams) error
	UpdateConditional(ctx context.Context, botID string, p model.ConditionalParams) error

	InsertTrade(ctx context.Context, t model.TradeRecord) error
	InsertActivity(ctx context.Context, a model.ActivityLog) error
	RecentActivity(ctx context.Context, strategy model.StrategyKind, limit int) ([]model.ActivityLog, error)
}

// INotifier delivers user-facing notifications (spec.md's Telegram
// channel). Injected so tests can substitute a recorder (Design Note:
// "shared service as module-level singleton").
type INotifier interface {
	Notify(ctx context.Context, userID, title, message string) error
}
