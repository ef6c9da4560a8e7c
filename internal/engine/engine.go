// Package engine implements the generic Strategy Engine frame (spec.md
// §4.5): one long-lived per-strategy scheduler that dispatches a work
// unit per candidate bot on every tick, serialized per bot by an
// in-flight lock, gated by cooldown and credential resolution. Grounded
// on the teacher's internal/risk.RiskMonitor ticker-loop idiom
// (ctx/cancel/WaitGroup, ticker.C select loop, WithField-scoped logger).
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"botsupervisor/internal/activitylog"
	"botsupervisor/internal/clock"
	"botsupervisor/internal/core"
	"botsupervisor/internal/model"
	"botsupervisor/internal/telemetry"
	"botsupervisor/pkg/apperrors"
)

// Env bundles the dependencies a strategy evaluator needs to perform
// exchange calls for one work unit. Credentials are resolved fresh per
// work unit and never retained past it (spec.md §5).
type Env struct {
	Exchange core.IExchangeClient
	Snapshot core.ISnapshotProvider
	Clock    *clock.Clock
	Logger   core.ILogger
	Creds    core.Credentials
}

// ExecResult is what a strategy evaluator hands back to the generic
// engine: the classified outcome, the trade/activity records to persist,
// and an optional notification. Param persistence is the evaluator's own
// responsibility via Persist, since only it knows which BotSpec.*Params
// field it owns.
type ExecResult struct {
	Outcome       core.Outcome
	Trades        []model.TradeRecord
	Activities    []model.ActivityLog
	NotifyTitle   string
	NotifyMessage string // empty means no notification
}

// Evaluator is the strategy-specific contract the generic engine drives.
type Evaluator interface {
	Kind() model.StrategyKind
	TickInterval() time.Duration
	// Cooldown returns the minimum spacing between executions for bot,
	// read from its own Params (spec.md §4.5.3.c).
	Cooldown(bot *model.BotSpec) time.Duration
	// Execute evaluates bot's strategy-specific condition and performs any
	// resulting exchange calls. bot's Params fields may be mutated in
	// place; Persist is called afterward to save them.
	Execute(ctx context.Context, env Env, bot *model.BotSpec) (ExecResult, error)
	// Persist writes bot's strategy-specific Params back to the repository.
	Persist(ctx context.Context, repo core.IBotRepository, botID string, bot *model.BotSpec) error
}

// Engine runs one strategy's scheduler loop.
type Engine struct {
	evaluator Evaluator
	repo      core.IBotRepository
	creds     core.ICredentialStore
	exchange  core.IExchangeClient
	snapshot  core.ISnapshotProvider
	clock     *clock.Clock
	logger    core.ILogger
	notifier  core.INotifier
	ring      *activitylog.Ring

	inFlight sync.Map // botID -> struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Engine for one strategy.
func New(
	evaluator Evaluator,
	repo core.IBotRepository,
	creds core.ICredentialStore,
	exchange core.IExchangeClient,
	snapshot core.ISnapshotProvider,
	clk *clock.Clock,
	logger core.ILogger,
	notifier core.INotifier,
) *Engine {
	return &Engine{
		evaluator: evaluator,
		repo:      repo,
		creds:     creds,
		exchange:  exchange,
		snapshot:  snapshot,
		clock:     clk,
		logger:    logger.WithField("strategy", string(evaluator.Kind())),
		notifier:  notifier,
		ring:      activitylog.NewRing(),
	}
}

// Start launches the tick loop in the background.
func (e *Engine) Start(parent context.Context) {
	e.ctx, e.cancel = context.WithCancel(parent)
	e.wg.Add(1)
	go e.loop()
}

// Stop cancels the tick loop and waits up to deadline for in-flight work
// units to drain (spec.md §4.4 shutdown).
func (e *Engine) Stop(deadline time.Duration) {
	if e.cancel == nil {
		return
	}
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deadline):
		e.logger.Warn("engine shutdown deadline exceeded, work units may still be in flight")
	}
}

// RecentActivity returns the engine's bounded in-memory activity log.
func (e *Engine) RecentActivity(limit int) []model.ActivityLog {
	return e.ring.Recent(limit)
}

func (e *Engine) loop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.evaluator.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick dispatches one work unit per candidate bot, concurrently. A
// work unit that panics is recovered so it can never take down the tick
// loop or any sibling unit (spec.md §4.5 failure semantics).
func (e *Engine) tick() {
	bots, err := e.repo.DueBots(e.ctx, core.BotFilter{Strategy: e.evaluator.Kind(), OnlyDueActive: true})
	if err != nil {
		e.logger.Error("due bots query failed", "error", err)
		return
	}
	tickStart := time.Now()
	defer func() {
		telemetry.RecordTick(e.ctx, string(e.evaluator.Kind()), time.Since(tickStart).Seconds())
	}()

	var wg sync.WaitGroup
	for _, bot := range bots {
		bot := bot
		wg.Add(1)
		e.wg.Add(1)
		go func() {
			defer wg.Done()
			defer e.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("work unit panicked", "bot_id", bot.ID, "panic", r)
				}
			}()
			e.runWorkUnit(bot.ID)
		}()
	}
	wg.Wait()
}

func (e *Engine) runWorkUnit(botID string) {
	if _, loaded := e.inFlight.LoadOrStore(botID, struct{}{}); loaded {
		return // already in flight, no queueing (spec.md §4.5.3.a)
	}
	defer e.inFlight.Delete(botID)

	ctx := e.ctx
	now := e.clock.Now()

	bot, err := e.repo.Get(ctx, botID)
	if err != nil {
		e.logger.Warn("refetch bot failed", "bot_id", botID, "error", err)
		return
	}
	if !bot.IsActive || !bot.IsRunning {
		return
	}

	cooldown := e.evaluator.Cooldown(bot)
	if !bot.CooldownElapsed(now, cooldown) {
		return
	}

	creds, user, err := e.creds.Resolve(ctx, bot.UserID)
	if err != nil {
		e.logger.Warn("credential resolution failed", "bot_id", botID, "user_id", bot.UserID, "error", err)
		return
	}
	if !model.Admitted(user, bot) {
		e.logger.Warn("bot not admitted despite passing repository filter", "bot_id", botID)
		return
	}

	env := Env{
		Exchange: e.exchange,
		Snapshot: e.snapshot,
		Clock:    e.clock,
		Logger:   e.logger.WithField("bot_id", botID),
		Creds:    creds,
	}

	result, execErr := e.evaluator.Execute(ctx, env, bot)
	if execErr != nil {
		e.recordFailure(ctx, bot, execErr)
		_ = e.repo.SetLastChecked(ctx, botID, now)
		return
	}

	for _, t := range result.Trades {
		if err := e.repo.InsertTrade(ctx, t); err != nil {
			e.logger.Error("insert trade failed", "bot_id", botID, "error", err)
		}
	}
	for _, a := range result.Activities {
		e.ring.Push(a)
		if err := e.repo.InsertActivity(ctx, a); err != nil {
			e.logger.Error("insert activity failed", "bot_id", botID, "error", err)
		}
	}

	if result.Outcome.Kind == core.OutcomeSubmitted {
		telemetry.RecordOrderPlaced(ctx, string(e.evaluator.Kind()))
	} else if result.Outcome.Kind == core.OutcomeFailed {
		telemetry.RecordOrderFailed(ctx, string(e.evaluator.Kind()))
	}

	if result.Outcome.Kind == core.OutcomeNoop || result.Outcome.Kind == core.OutcomeSkipped {
		// A no-action pass can still change runtime params (last observed
		// metrics, a maker's TargetReached stop), so they are saved too.
		if err := e.evaluator.Persist(ctx, e.repo, botID, bot); err != nil {
			e.logger.Warn("persist strategy params failed", "bot_id", botID, "error", err)
		}
		_ = e.repo.SetLastChecked(ctx, botID, now)
		return
	}

	// Counter-mutating path: a failure here means budget/window counters or
	// last-executed timestamps did not durably persist, so it must not be
	// swallowed the way SetLastChecked's bookkeeping-only write is below —
	// left unaddressed it reopens the bot's cooldown and lets it
	// re-execute and overspend its budget next tick.
	if err := e.evaluator.Persist(ctx, e.repo, botID, bot); err != nil {
		e.logger.Error("persist strategy params failed, counters may re-execute next tick", "bot_id", botID, "error", err)
	}
	if result.Outcome.MutatesCounters() {
		if err := e.repo.SetLastExecuted(ctx, botID, now); err != nil {
			e.logger.Error("persist last-executed timestamp failed, cooldown may not hold", "bot_id", botID, "error", err)
		}
	}
	_ = e.repo.SetLastChecked(ctx, botID, now)

	if result.NotifyMessage != "" {
		if err := e.notifier.Notify(ctx, bot.UserID, result.NotifyTitle, result.NotifyMessage); err != nil {
			e.logger.Warn("notify failed", "bot_id", botID, "error", err)
		}
	}
}

func (e *Engine) recordFailure(ctx context.Context, bot *model.BotSpec, execErr error) {
	reason := execErr.Error()
	activity := model.ActivityLog{
		BotID:     bot.ID,
		Strategy:  e.evaluator.Kind(),
		Severity:  model.SeverityError,
		Message:   fmt.Sprintf("work unit failed: %s", reason),
		CreatedAt: e.clock.Now(),
	}
	e.ring.Push(activity)
	if err := e.repo.InsertActivity(ctx, activity); err != nil {
		e.logger.Error("insert failure activity failed", "bot_id", bot.ID, "error", err)
	}

	trade := model.TradeRecord{
		BotID:     bot.ID,
		UserID:    bot.UserID,
		Symbol:    bot.Symbol,
		Status:    model.TradeStatusFailed,
		Error:     reason,
		CreatedAt: e.clock.Now(),
	}
	if err := e.repo.InsertTrade(ctx, trade); err != nil {
		e.logger.Error("insert failure trade failed", "bot_id", bot.ID, "error", err)
	}

	telemetry.RecordOrderFailed(ctx, string(e.evaluator.Kind()))

	if apperrors.IsAuthFailure(execErr) {
		e.logger.Warn("authentication failure in work unit", "bot_id", bot.ID)
	}
}
