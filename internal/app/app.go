// Package app wires configuration, storage, the exchange gateway, the
// guardrails and the admin API into one runnable engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ballast/internal/config"
	"ballast/internal/gateway/binance"
	"ballast/internal/gateway/exchange"
	"ballast/internal/guard"
	"ballast/internal/logger"
	"ballast/internal/monitor"
	"ballast/internal/pkg/circuit"
	"ballast/internal/position"
	"ballast/internal/store/tradelog"
	"ballast/internal/trader"
	adminhttp "ballast/internal/transport/http"
)

// App holds every built component. Construction does not start anything;
// Run does.
type App struct {
	cfg     *config.Config
	cfgPath string

	ledger   *position.Ledger
	pipeline *guard.Pipeline
	executor *trader.Executor
	monitor  *monitor.Monitor
	audit    *tradelog.Store
	server   *adminhttp.Server
}

// New builds the application from a validated config. cfgPath enables hot
// reload of risk limits; pass "" to disable watching.
func New(cfg *config.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	exec, feed, err := buildExchange(cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("building exchange gateway: %w", err)
	}

	store, err := position.NewFileStore(cfg.App.StatePath)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}
	ledger, err := position.NewLedger(cfg, store, exec)
	if err != nil {
		return nil, fmt.Errorf("building ledger: %w", err)
	}

	audit, err := tradelog.New(cfg.App.TradeLogPath)
	if err != nil {
		return nil, fmt.Errorf("opening trade log: %w", err)
	}

	freq := guard.NewFrequencyWindow(cfg.Risk.MaxTradesPerHour, time.Hour)
	pipeline := guard.NewPipeline(cfg.Risk, freq)
	executor := trader.NewExecutor(ledger, pipeline, freq, feed, audit)
	mon := monitor.New(ledger, feed, audit, cfg.Monitor, cfg.Risk)

	server, err := adminhttp.NewServer(adminhttp.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		Ledger:   ledger,
		Executor: executor,
		Monitor:  mon,
		Audit:    audit,
	})
	if err != nil {
		return nil, fmt.Errorf("building admin http server: %w", err)
	}

	return &App{
		cfg:      cfg,
		cfgPath:  cfgPath,
		ledger:   ledger,
		pipeline: pipeline,
		executor: executor,
		monitor:  mon,
		audit:    audit,
		server:   server,
	}, nil
}

func buildExchange(cfg config.ExchangeConfig) (exchange.ExecutionClient, exchange.PriceFeed, error) {
	switch cfg.Driver {
	case "sim", "":
		sim := exchange.NewSimulator(cfg.SimPrice)
		return sim, sim, nil
	case "binance":
		client, err := binance.New(binance.Config{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			Symbol:    cfg.Symbol,
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		guarded := exchange.NewGuardedClient(client, client,
			circuit.NewBreaker("binance", 5, 2*time.Minute))
		return guarded, guarded, nil
	default:
		return nil, nil, fmt.Errorf("unknown exchange driver %q", cfg.Driver)
	}
}

// Ledger exposes the position ledger, mainly for tests and replay tooling.
func (a *App) Ledger() *position.Ledger {
	return a.ledger
}

// Executor exposes the trade executor.
func (a *App) Executor() *trader.Executor {
	return a.executor
}

// Run starts the admin API, the monitoring loop and the config watcher, and
// blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.audit.Close()

	logger.Infof("ballast starting: http=%s state=%s exchange=%s",
		a.server.Addr(), a.cfg.App.StatePath, a.cfg.Exchange.Driver)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("admin http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		a.monitor.Run(ctx)
		return nil
	})

	if a.cfgPath != "" {
		group.Go(func() error {
			err := config.Watch(ctx, a.cfgPath, a.applyReload)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return group.Wait()
}

// applyReload pushes reloaded limits into the running components. Only
// thresholds change live; stores, the exchange driver and listen addresses
// keep their startup values.
func (a *App) applyReload(cfg *config.Config) {
	a.ledger.ApplyConfig(cfg)
	a.pipeline.ApplyConfig(cfg.Risk)
	a.monitor.ApplyConfig(cfg.Monitor, cfg.Risk)
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("configuration reloaded: risk and strategy limits applied")
}
