package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botsupervisor/internal/clock"
	"botsupervisor/internal/core"
	"botsupervisor/internal/engine"
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
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.bots {
		if b.Kind == strategy && b.IsActive && b.IsRunning {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) SetRunning(ctx context.Context, botID string, running bool) error { return nil }
func (r *fakeRepo) SetLastChecked(ctx context.Context, botID string, at time.Time) error {
	return nil
}
func (r *fakeRepo) SetLastExecuted(ctx context.Context, botID string, at time.Time) error {
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

// fakeCreds lets a test flip a user's bot-enabled flag live, exercising
// the same admission re-derivation path the engine uses every tick.
type fakeCreds struct {
	mu      sync.Mutex
	enabled map[string]bool
}

func newFakeCreds(userID string) *fakeCreds {
	return &fakeCreds{enabled: map[string]bool{userID: true}}
}

func (f *fakeCreds) Resolve(ctx context.Context, userID string) (core.Credentials, *model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return core.Credentials{APIKey: "k", APISecret: "s"}, &model.User{
		ID: userID, BotEnabled: f.enabled[userID], APIKey: "k", APISecret: "s",
	}, nil
}

func (f *fakeCreds) SetBotEnabled(ctx context.Context, userID string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled[userID] = enabled
	return nil
}

type countingEvaluator struct {
	kind      model.StrategyKind
	execCount int32
}

func (e *countingEvaluator) Kind() model.StrategyKind              { return e.kind }
func (e *countingEvaluator) TickInterval() time.Duration           { return 10 * time.Millisecond }
func (e *countingEvaluator) Cooldown(*model.BotSpec) time.Duration { return 0 }

func (e *countingEvaluator) Execute(ctx context.Context, env engine.Env, bot *model.BotSpec) (engine.ExecResult, error) {
	atomic.AddInt32(&e.execCount, 1)
	return engine.ExecResult{Outcome: core.Noop()}, nil
}

func (e *countingEvaluator) Persist(ctx context.Context, repo core.IBotRepository, botID string, bot *model.BotSpec) error {
	return nil
}

func testClock() *clock.Clock {
	return clock.New(func(ctx context.Context) (time.Time, error) { return time.Now(), nil })
}

// TestScenarioS6 reproduces spec scenario S6: a running stabilizer stops
// issuing orders within one tick of DisableForUser, without this package
// ever touching existing open orders (it only flips the credential
// store's intent flag).
func TestScenarioS6(t *testing.T) {
	bot := &model.BotSpec{ID: "b1", UserID: "u1", Kind: model.StrategyStabilizer, IsActive: true, IsRunning: true}
	repo := newFakeRepo(bot)
	creds := newFakeCreds("u1")
	ev := &countingEvaluator{kind: model.StrategyStabilizer}

	sup := New(Evaluators{model.StrategyStabilizer: ev}, repo, creds, nil, nil, testClock(), fakeLogger{}, notify.NoopNotifier{}, time.Second)

	require.NoError(t, sup.Start(context.Background()))
	time.Sleep(35 * time.Millisecond)

	require.NoError(t, sup.DisableForUser(context.Background(), "u1"))
	countAtDisable := atomic.LoadInt32(&ev.execCount)

	time.Sleep(35 * time.Millisecond)
	sup.Shutdown()

	finalCount := atomic.LoadInt32(&ev.execCount)
	require.LessOrEqual(t, finalCount, countAtDisable+1, "engine must stop issuing new orders within one tick of disable")
}
