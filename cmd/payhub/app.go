package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ndmitriev/payhub/internal/broadcast"
	"github.com/ndmitriev/payhub/internal/db"
	"github.com/ndmitriev/payhub/internal/handlers"
	"github.com/ndmitriev/payhub/internal/logger"
	"github.com/ndmitriev/payhub/internal/repository/postgres"
	"github.com/ndmitriev/payhub/internal/service/auth"
	"github.com/ndmitriev/payhub/internal/service/balance"
	"github.com/ndmitriev/payhub/internal/service/dispatcher"
	"github.com/ndmitriev/payhub/internal/service/ledger"
	"github.com/ndmitriev/payhub/internal/service/payroll"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	minAmount, err := c.MinAmount()
	if err != nil {
		return nil, fmt.Errorf("invalid minimum withdrawal amount: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	verifier, err := auth.New(auth.Config{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token verifier. Err: %w", err)
	}

	broadcaster := broadcast.New(logger)
	ledgerService := ledger.New(storage, broadcaster)
	balanceService := balance.NewService(storage.Withdrawals())
	providerSource := balance.NewEarningsSource(storage.Earnings())
	staffSource := payroll.NewClient(c.PayrollAddr, logger)

	dispatcherService := dispatcher.New(
		dispatcher.Config{MinAmount: minAmount},
		storage,
		ledgerService,
		balanceService,
		providerSource,
		staffSource,
	)

	mux := handlers.NewRouter(
		verifier,
		dispatcherService,
		broadcaster,
		logger,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server")
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
