// Package supervisor implements the top-level Supervisor (spec.md §4.4):
// owns one generic engine per strategy kind, exposes the admission
// control surface (EnableForUser/DisableForUser), and coordinates
// graceful shutdown across every engine. Grounded on the teacher's
// internal/bootstrap.App lifecycle idiom (signal-driven context,
// errgroup-style fan-out, bounded shutdown).
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"botsupervisor/internal/clock"
	"botsupervisor/internal/core"
	"botsupervisor/internal/engine"
	"botsupervisor/internal/model"
)

// Evaluators bundles one engine.Evaluator per strategy kind, built by the
// caller (cmd/supervisor/main.go) so this package stays free of concrete
// strategy imports.
type Evaluators map[model.StrategyKind]engine.Evaluator

// AlwaysOn strategies self-idle rather than waiting on a live-bot count
// before starting (spec.md §4.4): liquidity has no per-bot trigger to wait
// on, and conditional bots may be created after boot.
var AlwaysOn = map[model.StrategyKind]bool{
	model.StrategyLiquidity:    true,
	model.StrategyConditional: true,
}

// StrategyStatus reports one strategy engine's boot state.
type StrategyStatus struct {
	Running      bool
	LiveBotCount int
}

// Status is the supervisor-wide snapshot returned by Status().
type Status struct {
	PerStrategy map[model.StrategyKind]StrategyStatus
}

// ForceAdjustResult reports the outcome of one ad hoc liquidity pass.
type ForceAdjustResult struct {
	Placed int
	Failed int
}

// Supervisor owns one Engine per strategy kind.
type Supervisor struct {
	mu      sync.RWMutex
	engines map[model.StrategyKind]*engine.Engine

	evaluators Evaluators
	repo       core.IBotRepository
	creds      core.ICredentialStore
	exchange   core.IExchangeClient
	snapshot   core.ISnapshotProvider
	clock      *clock.Clock
	logger     core.ILogger
	notifier   core.INotifier

	shutdownDeadline time.Duration
}

// New builds a Supervisor with one Engine constructed per evaluator.
func New(
	evaluators Evaluators,
	repo core.IBotRepository,
	creds core.ICredentialStore,
	exchange core.IExchangeClient,
	snapshot core.ISnapshotProvider,
	clk *clock.Clock,
	logger core.ILogger,
	notifier core.INotifier,
	shutdownDeadline time.Duration,
) *Supervisor {
	s := &Supervisor{
		engines:          make(map[model.StrategyKind]*engine.Engine, len(evaluators)),
		evaluators:       evaluators,
		repo:             repo,
		creds:            creds,
		exchange:         exchange,
		snapshot:         snapshot,
		clock:            clk,
		logger:           logger,
		notifier:         notifier,
		shutdownDeadline: shutdownDeadline,
	}
	for kind, ev := range evaluators {
		s.engines[kind] = engine.New(ev, repo, creds, exchange, snapshot, clk, logger, notifier)
	}
	return s
}

// Start boots every engine whose strategy has at least one admitted bot,
// plus every AlwaysOn strategy regardless of count (spec.md §4.4).
func (s *Supervisor) Start(ctx context.Context) error {
	for kind := range s.evaluators {
		if !AlwaysOn[kind] {
			count, err := s.repo.CountActiveRunningForEnabledUsers(ctx, kind)
			if err != nil {
				return fmt.Errorf("supervisor: count bots for %s: %w", kind, err)
			}
			if count == 0 {
				s.logger.Info("skipping engine boot, no admitted bots", "strategy", string(kind))
				continue
			}
		}
		s.logger.Info("starting engine", "strategy", string(kind))
		s.engines[kind].Start(ctx)
	}
	return nil
}

// StartStrategy boots a single strategy's engine on demand, regardless of
// its current live-bot count.
func (s *Supervisor) StartStrategy(ctx context.Context, kind model.StrategyKind) error {
	s.mu.RLock()
	eng, ok := s.engines[kind]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("supervisor: unknown strategy %s", kind)
	}
	eng.Start(ctx)
	return nil
}

// StopStrategy stops a single strategy's engine, draining within the
// supervisor's configured shutdown deadline.
func (s *Supervisor) StopStrategy(kind model.StrategyKind) error {
	s.mu.RLock()
	eng, ok := s.engines[kind]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("supervisor: unknown strategy %s", kind)
	}
	eng.Stop(s.shutdownDeadline)
	return nil
}

// Shutdown stops every engine, bounded by the supervisor's shutdown
// deadline (spec.md §4.4/§5). Engines drain concurrently so one slow
// engine does not extend another's wait.
func (s *Supervisor) Shutdown() {
	var wg sync.WaitGroup
	for kind, eng := range s.engines {
		kind, eng := kind, eng
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("stopping engine", "strategy", string(kind))
			eng.Stop(s.shutdownDeadline)
		}()
	}
	wg.Wait()
}

// EnableForUser flips a user's bot-enabled intent flag on. Every engine
// re-derives admission on its next tick (spec.md §9).
func (s *Supervisor) EnableForUser(ctx context.Context, userID string) error {
	return s.creds.SetBotEnabled(ctx, userID, true)
}

// DisableForUser flips a user's bot-enabled intent flag off. Per spec.md
// §4.4, this causes every engine to skip the user's bots within one tick;
// it never cancels already-open orders (scenario S6).
func (s *Supervisor) DisableForUser(ctx context.Context, userID string) error {
	return s.creds.SetBotEnabled(ctx, userID, false)
}

// Status reports each strategy's running state and live admitted bot
// count.
func (s *Supervisor) Status(ctx context.Context) (Status, error) {
	report := Status{PerStrategy: make(map[model.StrategyKind]StrategyStatus, len(s.evaluators))}
	for kind := range s.evaluators {
		count, err := s.repo.CountActiveRunningForEnabledUsers(ctx, kind)
		if err != nil {
			return Status{}, fmt.Errorf("supervisor: status count for %s: %w", kind, err)
		}
		report.PerStrategy[kind] = StrategyStatus{
			Running:      true, // engines that were never started still accept GetLogs/ForceAdjust calls
			LiveBotCount: count,
		}
	}
	return report, nil
}

// GetLogs returns the given strategy's recent in-memory activity log.
func (s *Supervisor) GetLogs(strategy model.StrategyKind, limit int) []model.ActivityLog {
	s.mu.RLock()
	eng, ok := s.engines[strategy]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return eng.RecentActivity(limit)
}

// ForceAdjustLiquidity runs one immediate liquidity maintenance pass for
// botID, bypassing the cooldown and tick-due gates (an operator-triggered
// escape hatch, spec.md §6).
func (s *Supervisor) ForceAdjustLiquidity(ctx context.Context, botID string) (ForceAdjustResult, error) {
	ev, ok := s.evaluators[model.StrategyLiquidity]
	if !ok {
		return ForceAdjustResult{}, fmt.Errorf("supervisor: liquidity strategy not configured")
	}

	bot, err := s.repo.Get(ctx, botID)
	if err != nil {
		return ForceAdjustResult{}, fmt.Errorf("supervisor: get bot %s: %w", botID, err)
	}

	creds, user, err := s.creds.Resolve(ctx, bot.UserID)
	if err != nil {
		return ForceAdjustResult{}, fmt.Errorf("supervisor: resolve credentials: %w", err)
	}
	if !model.Admitted(user, bot) {
		return ForceAdjustResult{}, fmt.Errorf("supervisor: bot %s not admitted", botID)
	}

	env := engine.Env{
		Exchange: s.exchange,
		Snapshot: s.snapshot,
		Clock:    s.clock,
		Logger:   s.logger.WithField("bot_id", botID),
		Creds:    creds,
	}

	result, err := ev.Execute(ctx, env, bot)
	if err != nil {
		return ForceAdjustResult{}, fmt.Errorf("supervisor: execute liquidity pass: %w", err)
	}
	if err := ev.Persist(ctx, s.repo, botID, bot); err != nil {
		s.logger.Error("persist liquidity params after force-adjust failed", "bot_id", botID, "error", err)
	}
	for _, t := range result.Trades {
		_ = s.repo.InsertTrade(ctx, t)
	}
	for _, a := range result.Activities {
		_ = s.repo.InsertActivity(ctx, a)
	}

	out := ForceAdjustResult{}
	for _, t := range result.Trades {
		if t.Status == model.TradeStatusPlaced {
			out.Placed++
		} else if t.Status == model.TradeStatusFailed {
			out.Failed++
		}
	}
	return out, nil
}
