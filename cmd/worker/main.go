// Package main is the entry point of the approval worker.
//
// The worker keeps the exam catalog in step with the governance ledger: a
// live subscription reconciles each approval as it is emitted, and a periodic
// catch-up job rescans recent blocks for anything the subscription missed.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/config"
	"github.com/vstep-dao/vstep-hub/internal/app"
	"github.com/vstep-dao/vstep-hub/internal/application/command"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/chainwatch"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/scheduler"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/scheduler/jobs"
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

func run(ctx context.Context) error {
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
	log = log.With(logger.Component("worker"))
	defer func() { _ = log.Sync() }()

	log.Info("starting vstep-hub worker",
		zap.Uint64("catch_up_window", cfg.Watcher.CatchUpWindow),
		zap.Duration("catch_up_interval", cfg.Watcher.CatchUpInterval),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Infrastructure
	// ─────────────────────────────────────────────────────────────────────────
	c, err := app.New(ctx, cfg, log, cfg.Ledger.WSURL)
	if err != nil {
		return fmt.Errorf("failed to initialize infrastructure: %w", err)
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			log.Error("failed to release resources", zap.Error(closeErr))
		}
	}()

	reconciler := command.NewReconcileApprovalHandler(c.Exams, c.Ledger, c.Content, c.Catalog, c.Metrics, log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Live subscription
	// ─────────────────────────────────────────────────────────────────────────
	watcher := chainwatch.New(c.Ledger, reconciler.ForSource("subscription"), chainwatch.Config{
		HandleTimeout: cfg.Watcher.HandleTimeout,
		MaxBackoff:    cfg.Watcher.ReconnectMax,
		Logger:        log,
		Metrics:       c.Metrics,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watcher.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("watcher exited", zap.Error(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Catch-up scheduling
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{Logger: log})

	catchUp := jobs.NewCatchUpApprovalsJob(c.Ledger, reconciler.ForSource("catch_up"), c.Metrics, log, jobs.CatchUpApprovalsConfig{
		Window:        cfg.Watcher.CatchUpWindow,
		Timeout:       cfg.Watcher.CatchUpTimeout,
		HandleTimeout: cfg.Watcher.HandleTimeout,
	})
	if err := sched.Register(catchUp, scheduler.Every(cfg.Watcher.CatchUpInterval)); err != nil {
		return fmt.Errorf("failed to register %s: %w", catchUp.Name(), err)
	}

	// One pass before the first tick so approvals emitted while the worker
	// was down are picked up immediately.
	if res, err := sched.RunNow(runCtx, jobs.CatchUpApprovalsJobName); err != nil {
		log.Warn("initial catch-up could not run", zap.Error(err))
	} else if !res.Success {
		log.Warn("initial catch-up finished with errors", zap.Error(res.Error))
	}

	if err := sched.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Wait for shutdown
	// ─────────────────────────────────────────────────────────────────────────
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("vstep-hub worker is running")
	<-sigCtx.Done()
	log.Info("received shutdown signal", zap.Duration("timeout", cfg.App.ShutdownTimeout))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		log.Warn("failed to stop scheduler", zap.Error(err))
	}
	cancel()
	wg.Wait()

	log.Info("shutdown completed successfully")
	return nil
}
