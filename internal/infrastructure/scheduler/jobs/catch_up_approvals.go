// Package jobs contains the scheduled jobs run by the worker process.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/domain/chain"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/metrics"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATCH-UP APPROVALS JOB
// ══════════════════════════════════════════════════════════════════════════════

// CatchUpApprovalsJobName is the scheduler name of the job.
const CatchUpApprovalsJobName = "catch_up_approvals"

// CatchUpApprovalsJob rescans the most recent blocks for approval events and
// hands each one to the reconciler. Events older than the window are not
// recovered.
type CatchUpApprovalsJob struct {
	ledger  chain.Reader
	handler chain.ApprovalHandler
	metrics *metrics.Metrics
	logger  *zap.Logger

	config CatchUpApprovalsConfig

	lastStats atomic.Value // *CatchUpStats
}

// CatchUpApprovalsConfig contains configuration for the job.
type CatchUpApprovalsConfig struct {
	// Window is the number of blocks scanned, ending at the latest block.
	Window uint64

	// Timeout bounds one whole scan.
	Timeout time.Duration

	// HandleTimeout bounds the handling of one event.
	HandleTimeout time.Duration
}

// DefaultCatchUpApprovalsConfig returns sensible defaults.
func DefaultCatchUpApprovalsConfig() CatchUpApprovalsConfig {
	return CatchUpApprovalsConfig{
		Window:        10,
		Timeout:       time.Minute,
		HandleTimeout: 30 * time.Second,
	}
}

// CatchUpStats describes one scan.
type CatchUpStats struct {
	FromBlock uint64
	ToBlock   uint64
	Found     int
	Failed    int
	Duration  time.Duration
}

// NewCatchUpApprovalsJob creates the job.
func NewCatchUpApprovalsJob(
	ledger chain.Reader,
	handler chain.ApprovalHandler,
	m *metrics.Metrics,
	log *zap.Logger,
	config CatchUpApprovalsConfig,
) *CatchUpApprovalsJob {
	defaults := DefaultCatchUpApprovalsConfig()
	if config.Window == 0 {
		config.Window = defaults.Window
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.HandleTimeout <= 0 {
		config.HandleTimeout = defaults.HandleTimeout
	}

	return &CatchUpApprovalsJob{
		ledger:  ledger,
		handler: handler,
		metrics: m,
		logger:  logger.OrNop(log).Named("catch_up"),
		config:  config,
	}
}

// Name implements scheduler.Job.
func (j *CatchUpApprovalsJob) Name() string {
	return CatchUpApprovalsJobName
}

// Description implements scheduler.Job.
func (j *CatchUpApprovalsJob) Description() string {
	return fmt.Sprintf("reconcile approvals from the last %d blocks", j.config.Window)
}

// Run scans [latest-(Window-1), latest]. A failed ledger read aborts the scan;
// failed events are collected and returned together once every event was tried.
func (j *CatchUpApprovalsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	started := time.Now()

	latest, err := j.ledger.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("catch_up: latest block: %w", err)
	}
	from := ScanStart(latest, j.config.Window)

	events, err := j.ledger.QueryApprovals(ctx, from, latest)
	if err != nil {
		return fmt.Errorf("catch_up: query approvals [%d, %d]: %w", from, latest, err)
	}

	var result *multierror.Error
	for _, ev := range events {
		if err := j.handle(ctx, ev); err != nil {
			result = multierror.Append(result, fmt.Errorf("proposal %d: %w", ev.ProposalID, err))
		}
	}

	stats := &CatchUpStats{
		FromBlock: from,
		ToBlock:   latest,
		Found:     len(events),
		Duration:  time.Since(started),
	}
	if result != nil {
		stats.Failed = result.Len()
	}
	j.lastStats.Store(stats)
	j.metrics.CaughtUp(len(events))

	j.logger.Info("catch-up scan finished",
		zap.Uint64("from_block", from),
		zap.Uint64("to_block", latest),
		zap.Int("found", stats.Found),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", stats.Duration),
	)

	return result.ErrorOrNil()
}

func (j *CatchUpApprovalsJob) handle(ctx context.Context, ev chain.ApprovalEvent) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.HandleTimeout)
	defer cancel()
	return j.handler.HandleApproval(ctx, ev)
}

// LastStats returns the stats of the most recent completed scan, or nil.
func (j *CatchUpApprovalsJob) LastStats() *CatchUpStats {
	stats, _ := j.lastStats.Load().(*CatchUpStats)
	return stats
}

// ScanStart returns the first block of a window ending at latest, floored at 0.
func ScanStart(latest, window uint64) uint64 {
	if window == 0 {
		window = 1
	}
	if latest < window-1 {
		return 0
	}
	return latest - (window - 1)
}
