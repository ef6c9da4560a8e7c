package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botsupervisor/internal/clock"
	"botsupervisor/internal/core"
	"botsupervisor/internal/model"
	"botsupervisor/internal/notify"
)

type fakeLogger struct{}

func (fakeLogger) Debug(string, ...interface{})                     {}
func (fakeLogger) Info(string, ...interface{})                      {}
func (fakeLogger) Warn(string, ...interface{})                      {}
func (fakeLogger) Error(string, ...interface{})                     {}
func (fakeLogger) Fatal(string, ...interface{})                     {}
func (f fakeLogger) WithField(string, interface{}) core.ILogger     { return f }
func (f fakeLogger) WithFields(map[string]interface{}) core.ILogger { return f }

type fakeRepo struct {
	mu   sync.Mutex
	bots map[string]*model.BotSpec
}

func newFakeRepo(bots ...*model.BotSpec) *fakeRepo {
	r := &fakeRepo{bots: map[string]*model.BotSpec{}}
	for _, b := range bots {
		r.bots[b.ID] = b
	}
	return r
}

func (r *fakeRepo) DueBots(ctx context.Context, filter core.BotFilter) ([]*model.BotSpec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.BotSpec
	for _, b := range r.bots {
		if b.Kind == filter.Strategy && b.IsActive && b.IsRunning {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) Get(ctx context.Context, botID string) (*model.BotSpec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[botID]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	cp := *b
	return &cp, nil
}

func (r *fakeRepo) CountActiveRunningForEnabledUsers(ctx context.Context, strategy model.StrategyKind) (int, error) {
	return 0, nil
}

func (r *fakeRepo) SetRunning(ctx context.Context, botID string, running bool) error { return nil }

func (r *fakeRepo) SetLastChecked(ctx context.Context, botID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bots[botID]; ok {
		b.LastCheckedAt = at
	}
	return nil
}

func (r *fakeRepo) SetLastExecuted(ctx context.Context, botID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bots[botID]; ok {
		b.LastExecutedAt = at
	}
	return nil
}

func (r *fakeRepo) UpdateAccumulator(ctx context.Context, botID string, p model.AccumulatorParams) error {
	return nil
}
func (r *fakeRepo) UpdateStabilizer(ctx context.Context, botID string, p model.StabilizerParams) error {
	return nil
}
func (r *fakeRepo) UpdateMaker(ctx context.Context, botID string, p model.MakerParams) error {
	return nil
}
func (r *fakeRepo) UpdateBuyWall(ctx context.Context, botID string, p model.BuyWallParams) error {
	return nil
}
func (r *fakeRepo) UpdatePriceKeeper(ctx context.Context, botID string, p model.PriceKeeperParams) error {
	return nil
}
func (r *fakeRepo) UpdateLiquidity(ctx context.Context, botID string, p model.LiquidityParams) error {
	return nil
}
func (r *fakeRepo) UpdateConditional(ctx context.Context, botID string, p model.ConditionalParams) error {
	return nil
}

func (r *fakeRepo) InsertTrade(ctx context.Context, t model.TradeRecord) error    { return nil }
func (r *fakeRepo) InsertActivity(ctx context.Context, a model.ActivityLog) error { return nil }
func (r *fakeRepo) RecentActivity(ctx context.Context, strategy model.StrategyKind, limit int) ([]model.ActivityLog, error) {
	return nil, nil
}

type fakeCreds struct{}

func (fakeCreds) Resolve(ctx context.Context, userID string) (core.Credentials, *model.User, error) {
	return core.Credentials{APIKey: "k", APISecret: "s"}, &model.User{ID: userID, BotEnabled: true, APIKey: "k", APISecret: "s"}, nil
}

func (fakeCreds) SetBotEnabled(ctx context.Context, userID string, enabled bool) error { return nil }

type countingEvaluator struct {
	kind      model.StrategyKind
	execCount int32
	blockCh   chan struct{}
	cooldown  time.Duration
}

func (e *countingEvaluator) Kind() model.StrategyKind    { return e.kind }
func (e *countingEvaluator) TickInterval() time.Duration { return 10 * time.Millisecond }
func (e *countingEvaluator) Cooldown(*model.BotSpec) time.Duration { return e.cooldown }

func (e *countingEvaluator) Execute(ctx context.Context, env Env, bot *model.BotSpec) (ExecResult, error) {
	atomic.AddInt32(&e.execCount, 1)
	if e.blockCh != nil {
		<-e.blockCh
	}
	return ExecResult{Outcome: core.Noop()}, nil
}

func (e *countingEvaluator) Persist(ctx context.Context, repo core.IBotRepository, botID string, bot *model.BotSpec) error {
	return nil
}

func testClock() *clock.Clock {
	return clock.New(func(ctx context.Context) (time.Time, error) { return time.Now(), nil })
}

func TestInFlightLockPreventsOverlappingWorkUnits(t *testing.T) {
	bot := &model.BotSpec{ID: "b1", UserID: "u1", Kind: model.StrategyStabilizer, IsActive: true, IsRunning: true}
	repo := newFakeRepo(bot)
	ev := &countingEvaluator{kind: model.StrategyStabilizer, blockCh: make(chan struct{})}

	eng := New(ev, repo, fakeCreds{}, nil, nil, testClock(), fakeLogger{}, notify.NoopNotifier{})
	eng.ctx = context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); eng.runWorkUnit("b1") }()
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		eng.runWorkUnit("b1") // should abort immediately, lock held
	}()

	time.Sleep(10 * time.Millisecond)
	close(ev.blockCh)
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&ev.execCount))
}

func TestCooldownGateSkipsExecution(t *testing.T) {
	bot := &model.BotSpec{
		ID: "b1", UserID: "u1", Kind: model.StrategyStabilizer,
		IsActive: true, IsRunning: true, LastExecutedAt: time.Now(),
	}
	repo := newFakeRepo(bot)
	ev := &countingEvaluator{kind: model.StrategyStabilizer, cooldown: time.Hour}

	eng := New(ev, repo, fakeCreds{}, nil, nil, testClock(), fakeLogger{}, notify.NoopNotifier{})
	eng.ctx = context.Background()

	eng.runWorkUnit("b1")
	require.EqualValues(t, 0, atomic.LoadInt32(&ev.execCount))
}

func TestCooldownElapsedAllowsExecution(t *testing.T) {
	bot := &model.BotSpec{
		ID: "b1", UserID: "u1", Kind: model.StrategyStabilizer,
		IsActive: true, IsRunning: true, LastExecutedAt: time.Now().Add(-2 * time.Hour),
	}
	repo := newFakeRepo(bot)
	ev := &countingEvaluator{kind: model.StrategyStabilizer, cooldown: time.Hour}

	eng := New(ev, repo, fakeCreds{}, nil, nil, testClock(), fakeLogger{}, notify.NoopNotifier{})
	eng.ctx = context.Background()

	eng.runWorkUnit("b1")
	require.EqualValues(t, 1, atomic.LoadInt32(&ev.execCount))
}
