// Command supervisor boots the bot supervisor: loads configuration, wires
// the exchange clients, persistence, and one engine per strategy, then
// runs until a termination signal arrives. Grounded on the teacher's
// internal/bootstrap.App lifecycle (signal.NotifyContext + errgroup fan-out).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"botsupervisor/internal/clock"
	"botsupervisor/internal/config"
	"botsupervisor/internal/core"
	"botsupervisor/internal/creds"
	"botsupervisor/internal/exchange"
	"botsupervisor/internal/exchange/base"
	"botsupervisor/internal/exchange/venuea"
	"botsupervisor/internal/exchange/venueb"
	"botsupervisor/internal/logging"
	"botsupervisor/internal/model"
	"botsupervisor/internal/notify"
	"botsupervisor/internal/repo"
	"botsupervisor/internal/snapshot"
	"botsupervisor/internal/strategy/accumulator"
	"botsupervisor/internal/strategy/buywall"
	"botsupervisor/internal/strategy/conditional"
	"botsupervisor/internal/strategy/liquidity"
	"botsupervisor/internal/strategy/maker"
	"botsupervisor/internal/strategy/pricekeeper"
	"botsupervisor/internal/strategy/stabilizer"
	"botsupervisor/internal/supervisor"
	"botsupervisor/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.System.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if cfg.Telemetry.EnableMetrics {
		tel, err := telemetry.Setup("botsupervisor")
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer tel.Shutdown(context.Background())

		metricsServer := telemetry.NewMetricsServer(cfg.Telemetry.MetricsPort, logger)
		metricsServer.Start()
		defer metricsServer.Stop(context.Background())
	}

	credStore, err := creds.NewStore(cfg.App.StorageDSN)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer credStore.Close()

	botRepo, err := repo.NewStore(cfg.App.StorageDSN)
	if err != nil {
		return fmt.Errorf("open bot repository: %w", err)
	}
	defer botRepo.Close()

	primary, ok := cfg.Exchanges[cfg.App.PrimaryExchange]
	if !ok {
		return fmt.Errorf("primary exchange %q not found in configuration", cfg.App.PrimaryExchange)
	}
	exchangeClient, clk, err := buildExchangeClient(cfg.App.PrimaryExchange, primary, logger)
	if err != nil {
		return fmt.Errorf("build exchange client: %w", err)
	}
	if err := clk.Resync(context.Background()); err != nil {
		logger.Warn("initial clock resync failed, proceeding with zero offset", "error", err)
	}

	snapshotProvider := snapshot.New(exchangeClient, clk)

	var notifier core.INotifier = notify.NoopNotifier{}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		notifier = notify.NewTelegramNotifier(token, os.Getenv("TELEGRAM_CHAT_ID"), logger)
	}

	evaluators := supervisor.Evaluators{
		model.StrategyConditional: conditional.New(),
		model.StrategyAccumulator: accumulator.New(),
		model.StrategyStabilizer:  stabilizer.New(),
		model.StrategyMaker:       maker.New(),
		model.StrategyBuyWall:     buywall.New(),
		model.StrategyPriceKeeper: pricekeeper.New(),
		model.StrategyLiquidity:   liquidity.New(),
	}

	sup := supervisor.New(
		evaluators, botRepo, credStore, exchangeClient, snapshotProvider,
		clk, logger, notifier, cfg.Supervisor.ShutdownDeadline,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, draining engines")
		sup.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("supervisor shut down cleanly")
	return nil
}

// buildExchangeClient wires one venue's signer variant, resilient
// transport, and clock into an exchange.Client.
func buildExchangeClient(venueName string, cfg config.ExchangeConfig, logger core.ILogger) (*exchange.Client, *clock.Clock, error) {
	var signer exchange.Signer
	switch cfg.Variant {
	case "a":
		signer = venuea.New()
	case "b":
		signer = venueb.New()
	default:
		return nil, nil, fmt.Errorf("unknown signer variant %q for exchange %s", cfg.Variant, venueName)
	}

	transport := base.NewTransport(10*time.Second, logger)

	var client *exchange.Client
	clk := clock.New(func(ctx context.Context) (time.Time, error) {
		return client.ServerTime(ctx)
	})
	client = exchange.New(venueName, cfg.BaseURL, signer, transport, clk, logger)
	return client, clk, nil
}
