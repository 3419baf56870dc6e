// Package bootstrap wires the application together and owns its lifecycle.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avii-ahuja/coinbase-trading-bot/internal/auth"
	"github.com/avii-ahuja/coinbase-trading-bot/internal/book"
	"github.com/avii-ahuja/coinbase-trading-bot/internal/config"
	"github.com/avii-ahuja/coinbase-trading-bot/internal/exchange/coinbase"
	"github.com/avii-ahuja/coinbase-trading-bot/internal/infrastructure/metrics"
	"github.com/avii-ahuja/coinbase-trading-bot/internal/journal"
	"github.com/avii-ahuja/coinbase-trading-bot/internal/trading/quoter"
	"github.com/avii-ahuja/coinbase-trading-bot/internal/ws"
	"github.com/avii-ahuja/coinbase-trading-bot/pkg/logging"
	"github.com/avii-ahuja/coinbase-trading-bot/pkg/telemetry"
)

const (
	serviceName     = "coinbase-trading-bot"
	shutdownTimeout = 10 * time.Second
)

// App holds the wired application components.
type App struct {
	Cfg    *config.Config
	Logger *logging.ZapLogger

	telemetry *telemetry.Telemetry
	engine    *book.Engine
	quoter    *quoter.Quoter
	journal   *journal.Store
	metrics   *metrics.Server
}

// NewApp loads configuration and constructs every component. Nothing is
// started here; Run owns the lifecycle.
func NewApp(configPath string) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	tel, err := telemetry.Setup(serviceName)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	signer, err := auth.NewSigner(cfg.Credentials.KeyName, cfg.Credentials.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}

	engine := book.NewEngine(cfg.App.ProductID, cfg.App.WsURL, signer, ws.NewGorillaDialer(), cfg.ReconnectDelay(), logger)

	exch, err := coinbase.NewClient(cfg.App.ProductID, cfg.App.APIURL, signer, logger)
	if err != nil {
		return nil, fmt.Errorf("exchange client: %w", err)
	}

	store, err := journal.Open(cfg.App.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("order journal: %w", err)
	}

	q, err := quoter.New(quoter.Config{
		Depth:         cfg.Depth(),
		OrderSize:     cfg.OrderSize(),
		HoldInterval:  cfg.HoldInterval(),
		RetryInterval: cfg.OrderRetryDelay(),
		PollInterval:  cfg.BookPollInterval(),
	}, exch, engine, store, logger)
	if err != nil {
		return nil, fmt.Errorf("quoter: %w", err)
	}

	app := &App{
		Cfg:       cfg,
		Logger:    logger,
		telemetry: tel,
		engine:    engine,
		quoter:    q,
		journal:   store,
	}
	if cfg.Telemetry.EnableMetrics {
		app.metrics = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
	}
	return app, nil
}

// Run starts everything and blocks until the quoting loop has fully wound
// down. The first SIGINT or SIGTERM triggers an orderly shutdown whose
// final cancellation retries indefinitely; a second signal abandons it.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Logger.Info("starting application",
		"product_id", a.Cfg.App.ProductID,
		"depth", a.Cfg.Trading.Depth,
		"hold_interval", a.Cfg.HoldInterval().String(),
	)

	if a.Cfg.System.CancelOrphansOnBoot {
		if err := a.quoter.SweepOrphans(ctx); err != nil {
			a.shutdown()
			return fmt.Errorf("orphan sweep: %w", err)
		}
	}

	if a.metrics != nil {
		a.metrics.Start()
	}

	if err := a.engine.Start(); err != nil {
		a.shutdown()
		return fmt.Errorf("book engine: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.quoter.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutdown requested, cancelling resting orders")
		stopCtx, stopCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stopCancel()
		return a.quoter.Stop(stopCtx)
	})

	err := g.Wait()
	a.shutdown()

	if err != nil {
		a.Logger.Error("application stopped with resting orders possibly live", "error", err)
		return err
	}
	a.Logger.Info("application shut down gracefully")
	return nil
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.metrics != nil {
		if err := a.metrics.Stop(ctx); err != nil {
			a.Logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	if err := a.journal.Close(); err != nil {
		a.Logger.Warn("journal close failed", "error", err)
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.Logger.Warn("telemetry shutdown failed", "error", err)
	}
	_ = a.Logger.Sync()
}
