// Package server wires the relay together: account store, handshake
// manager, presence registry, dispatcher, WebSocket transport, metrics and
// the gRPC health service, and runs them until a termination signal.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gophrelay/internal/cryptox"
	"github.com/dmitrijs2005/gophrelay/internal/filex"
	"github.com/dmitrijs2005/gophrelay/internal/logging"
	"github.com/dmitrijs2005/gophrelay/internal/server/accounts"
	"github.com/dmitrijs2005/gophrelay/internal/server/config"
	"github.com/dmitrijs2005/gophrelay/internal/server/dispatcher"
	"github.com/dmitrijs2005/gophrelay/internal/server/handshake"
	"github.com/dmitrijs2005/gophrelay/internal/server/metrics"
	"github.com/dmitrijs2005/gophrelay/internal/server/presence"
	"github.com/dmitrijs2005/gophrelay/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophrelay/internal/server/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/dmitrijs2005/gophrelay/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	wsServer *ws.Server
	health   *gs.HealthServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics init error: %w", err)
	}

	store, db, err := openStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	policy, err := dispatcher.ParsePolicy(c.DuplicateSessionPolicy)
	if err != nil {
		return nil, err
	}

	registry := presence.NewRegistry(m)
	notifier := presence.NewNotifier(registry, store, logger, m)
	d := dispatcher.New(store, handshake.NewManager(cryptox.ServerGroup, nil), registry, notifier, dispatcher.Options{
		SecretKey:       []byte(c.SecretKey),
		TicketValidity:  c.TicketValidityDuration,
		DuplicatePolicy: policy,
	}, logger, m)

	wsServer := ws.NewServer(c.ListenAddr, d, metrics.Handler(reg), ws.Options{
		MaxFrameBytes:          c.MaxFrameBytes,
		WriteTimeout:           c.WriteTimeout,
		UnauthenticatedTimeout: c.UnauthenticatedTimeout,
	}, logger)

	var check gs.Check
	if db != nil {
		check = db.PingContext
	}
	health := gs.NewHealthServer(c.HealthAddrGRPC, logger, check, 0)

	return &App{config: c, logger: logger, db: db, wsServer: wsServer, health: health}, nil
}

// openStore returns the configured account store. db is nil for the
// in-memory store.
func openStore(ctx context.Context, c *config.Config) (accounts.Store, *sql.DB, error) {
	if c.StoreKind == config.StoreMemory {
		return accounts.NewMemory(c.PasswordIterations), nil, nil
	}

	driver, err := repomanager.DriverName(c.StoreKind)
	if err != nil {
		return nil, nil, err
	}
	rm, err := repomanager.NewRepositoryManager(c.StoreKind)
	if err != nil {
		return nil, nil, err
	}

	if c.StoreKind == config.StoreSQLite && filex.IsFilePath(c.DatabaseDSN) {
		if err := filex.EnsureParentDir(c.DatabaseDSN); err != nil {
			return nil, nil, err
		}
	}

	db, err := sql.Open(driver, c.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return accounts.NewService(db, rm, c.PasswordIterations), db, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startWSServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.wsServer.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHealthServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.health.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled, a signal arrives or a server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "store", app.config.StoreKind)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startWSServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHealthServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close", "error", err)
		}
	}
	app.logger.Info(ctx, "App stopped")
}
