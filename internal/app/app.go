// internal/app/app.go
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fossr-labs/fossr/internal/chain"
	"github.com/fossr-labs/fossr/internal/config"
	"github.com/fossr-labs/fossr/internal/events"
	"github.com/fossr-labs/fossr/internal/notify"
	"github.com/fossr-labs/fossr/internal/scheduler"
	"github.com/fossr-labs/fossr/internal/shutdown"
	"github.com/fossr-labs/fossr/internal/storage/gormstore"
	"github.com/fossr-labs/fossr/internal/utils/logger"
	"github.com/fossr-labs/fossr/internal/utils/metrics"
	"github.com/fossr-labs/fossr/internal/wallet"
)

const busBufferSize = 256

// App holds the process-wide services shared by the binaries.
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Collector
	Bus     *events.Bus
	// Store is nil without database_dsn.
	Store *gormstore.Store

	closer *shutdown.Handler
}

// New builds the services cfg asks for. Close releases them.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	a := &App{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.NewCollector(),
		closer:  shutdown.NewHandler(log.Logger, shutdown.DefaultTimeout),
	}
	a.closer.AddFunc("logger", log.Sync)

	if cfg.DatabaseDSN != "" {
		store, err := gormstore.Open(cfg.DatabaseDSN, log.WithComponent("storage"))
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closer.Add("storage", store)
		if err := store.RunMigrations(); err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Store = store
	}

	var pub notify.Publisher
	if cfg.NATSURL != "" {
		p, err := notify.NewPublisher(cfg.NATSURL, log.Logger)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closer.Add("nats", p)
		pub = p
	}

	a.Bus = events.NewBus(log.Logger, busBufferSize)
	a.closer.AddFunc("event_bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Bus.Shutdown(ctx)
	})
	if pub != nil {
		notify.Forward(a.Bus, pub, a.Metrics, log.Logger)
	}
	return a, nil
}

// Close shuts services down in reverse order of creation.
func (a *App) Close() error {
	return a.closer.Shutdown(context.Background())
}

// RPCService binds to the program deployed behind rpc_url.
func (a *App) RPCService() (*chain.Service, error) {
	if err := a.Config.RequireRPC(); err != nil {
		return nil, err
	}
	client := chain.NewRPC(a.Config.RPCURL, a.Logger.Logger)
	return chain.NewService(client, a.Config.ProgramKey(), a.Config.ProgramParams(), a.Logger.Logger,
		chain.WithMetrics(a.Metrics))
}

// Scheduler builds the airdrop runner with the app's history, metrics and bus.
func (a *App) Scheduler(ledger scheduler.Ledger, authority *wallet.Wallet) (*scheduler.Scheduler, error) {
	opts := []scheduler.Option{
		scheduler.WithMetrics(a.Metrics),
		scheduler.WithBus(a.Bus),
	}
	if a.Store != nil {
		opts = append(opts, scheduler.WithHistory(a.Store))
	}
	return scheduler.New(ledger, authority, a.Config.SchedulerConfig(), a.Logger.Logger, opts...)
}

// ServeMetrics serves /metrics and /healthz on metrics_addr until ctx is
// done. Without an address it only waits.
func (a *App) ServeMetrics(ctx context.Context) error {
	addr := a.Config.MetricsAddr
	if addr == "" {
		<-ctx.Done()
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"bus":    a.Bus.Stats(),
		})
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	a.Logger.Info("Metrics server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
