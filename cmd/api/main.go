// Package main is the entry point of the exam bridge HTTP API.
//
// The api serves the action pipeline used by the frontend: content upload,
// exam catalog and fetch, submissions with reward settlement, accounts and
// the leaderboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/config"
	"github.com/vstep-dao/vstep-hub/internal/app"
	"github.com/vstep-dao/vstep-hub/internal/application/command"
	"github.com/vstep-dao/vstep-hub/internal/application/query"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/messaging"
	httpapi "github.com/vstep-dao/vstep-hub/internal/interface/http"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) (err error) {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := app.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	log = log.With(logger.Component("api"))
	defer func() { _ = log.Sync() }()

	log.Info("starting vstep-hub api", zap.String("addr", cfg.HTTP.Addr))

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Infrastructure
	// ─────────────────────────────────────────────────────────────────────────
	c, err := app.New(ctx, cfg, log, cfg.Ledger.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to initialize infrastructure: %w", err)
	}

	payouts := messaging.NewPayoutQueue(c.Ledger, messaging.PayoutQueueConfig{
		Workers:      cfg.Settlement.PayoutWorkers,
		QueueSize:    cfg.Settlement.PayoutQueueSize,
		MaxRetryTime: cfg.Settlement.PayoutMaxRetry,
		Logger:       log,
		Metrics:      c.Metrics,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Application handlers
	// ─────────────────────────────────────────────────────────────────────────
	deps := httpapi.Dependencies{
		UploadContent: command.NewUploadContentHandler(c.Content, log),
		FetchExam:     query.NewFetchExamHandler(c.Exams, c.Content, log),
		ListExams:     query.NewListApprovedExamsHandler(c.Exams, c.Catalog, log),
		SubmitExam: command.NewSubmitExamHandler(
			c.Accounts,
			c.Exams,
			c.Ledger,
			payouts,
			c.Leaderboard,
			c.Metrics,
			log,
			command.SubmitExamHandlerConfig{RewardTimeout: cfg.Settlement.RewardTimeout},
		),
		RegisterOrLog:  command.NewRegisterOrLoginHandler(c.Accounts, log),
		GetProfile:     query.NewGetProfileHandler(c.Accounts),
		GrantAttempts:  command.NewGrantAttemptsHandler(c.Accounts, c.Leaderboard, log),
		GetLeaderboard: query.NewGetLeaderboardHandler(c.Accounts, c.Leaderboard, log),
		GetAdminStats:  query.NewGetAdminStatsHandler(c.Accounts, c.Exams),
		Readiness:      c.Readiness,
		Gatherer:       c.Registry,
		Metrics:        c.Metrics,
		Logger:         log,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpapi.DefaultConfig()
	serverCfg.Addr = cfg.HTTP.Addr
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.PurchaseSize = cfg.Settlement.PurchaseSize
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins

	server := httpapi.NewServer(serverCfg, deps)
	serverErr := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Wait for shutdown
	// ─────────────────────────────────────────────────────────────────────────
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		log.Info("received shutdown signal")
	case serveErr, ok := <-serverErr:
		if ok && serveErr != nil {
			log.Error("http server stopped", zap.Error(serveErr))
			err = serveErr
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting graceful shutdown", zap.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	var result *multierror.Error
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		result = multierror.Append(result, fmt.Errorf("http server: %w", shutdownErr))
	}
	if closeErr := payouts.Close(shutdownCtx); closeErr != nil && !errors.Is(closeErr, context.DeadlineExceeded) {
		result = multierror.Append(result, fmt.Errorf("payout queue: %w", closeErr))
	} else if closeErr != nil {
		log.Warn("payout queue did not drain before the deadline", zap.Int("pending", payouts.Len()))
	}
	if closeErr := c.Close(); closeErr != nil {
		result = multierror.Append(result, closeErr)
	}

	if shutdownErr := result.ErrorOrNil(); shutdownErr != nil {
		log.Error("shutdown completed with errors", zap.Error(shutdownErr))
		if err == nil {
			err = shutdownErr
		}
		return err
	}

	log.Info("shutdown completed successfully")
	return err
}
