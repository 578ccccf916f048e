// Package messaging runs detached reward payouts on a bounded worker pool,
// decoupled from the request that earned them.
package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/domain/chain"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/metrics"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

var (
	// ErrQueueFull is returned by Enqueue when every slot is taken.
	ErrQueueFull = errors.New("payout queue is full")

	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("payout queue is closed")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// PayoutQueueConfig contains configuration for the payout queue.
type PayoutQueueConfig struct {
	// Workers is the number of concurrent payouts.
	Workers int

	// QueueSize bounds the number of waiting payouts.
	QueueSize int

	// AttemptTimeout bounds one issue-and-confirm attempt.
	AttemptTimeout time.Duration

	// MaxRetryTime is how long a payout is retried before it is given up.
	MaxRetryTime time.Duration

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// DefaultPayoutQueueConfig returns sensible defaults.
func DefaultPayoutQueueConfig() PayoutQueueConfig {
	return PayoutQueueConfig{
		Workers:        2,
		QueueSize:      256,
		AttemptTimeout: 90 * time.Second,
		MaxRetryTime:   10 * time.Minute,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     time.Minute,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYOUT QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// PayoutQueue delivers payouts in the background with exponential backoff.
// Failures are logged and counted, never returned to whoever enqueued.
type PayoutQueue struct {
	config   PayoutQueueConfig
	rewarder chain.Rewarder
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	jobs   chan chain.Payout

	// ctx outlives every request; it is cancelled only if Close gives up draining.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPayoutQueue creates the queue and starts its workers.
func NewPayoutQueue(rewarder chain.Rewarder, config PayoutQueueConfig) *PayoutQueue {
	defaults := DefaultPayoutQueueConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = defaults.AttemptTimeout
	}
	if config.MaxRetryTime <= 0 {
		config.MaxRetryTime = defaults.MaxRetryTime
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &PayoutQueue{
		config:   config,
		rewarder: rewarder,
		logger:   logger.OrNop(config.Logger).Named("payouts"),
		metrics:  config.Metrics,
		jobs:     make(chan chain.Payout, config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	return q
}

// Enqueue hands a payout to the workers without blocking.
func (q *PayoutQueue) Enqueue(p chain.Payout) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- p:
		q.metrics.QueueDepth(len(q.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of waiting payouts.
func (q *PayoutQueue) Len() int {
	return len(q.jobs)
}

// Close stops accepting payouts and waits for queued ones to finish. If ctx
// expires first, in-flight retries are abandoned.
func (q *PayoutQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("payout queue drained")
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		q.logger.Warn("payout queue closed before draining")
		return ctx.Err()
	}
}

func (q *PayoutQueue) worker() {
	defer q.wg.Done()

	for p := range q.jobs {
		q.metrics.QueueDepth(len(q.jobs))
		q.deliver(p)
	}
}

// deliver retries one payout until it is confirmed, permanently rejected, or
// out of retry time. A transaction that was issued is only awaited on retry,
// never re-issued, unless it reverted. A payout handed over with Issued set
// is never re-issued at all.
func (q *PayoutQueue) deliver(p chain.Payout) {
	log := q.logger.With(
		zap.String("kind", string(p.Kind)),
		zap.String("to", p.To),
		logger.RewardUnits(p.Units),
		zap.String("reference", p.Reference),
	)

	var (
		tx       chain.TxHandle
		attempts int
	)
	if p.Issued != nil {
		tx = *p.Issued
		log = log.With(logger.TxHash(tx.Hash))
	}

	operation := func() error {
		attempts++
		ctx, cancel := context.WithTimeout(q.ctx, q.config.AttemptTimeout)
		defer cancel()

		if tx.Hash == "" {
			issued, err := q.rewarder.IssueReward(ctx, p.To, p.Units)
			if err != nil {
				if shared.IsValidation(err) {
					return backoff.Permanent(err)
				}
				return err
			}
			tx = issued
		}

		err := q.rewarder.AwaitConfirmation(ctx, tx)
		if errors.Is(err, shared.ErrRewardReverted) {
			if p.Issued != nil {
				return backoff.Permanent(err)
			}
			tx = chain.TxHandle{}
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.config.InitialBackoff
	b.MaxInterval = q.config.MaxBackoff
	b.MaxElapsedTime = q.config.MaxRetryTime

	notify := func(err error, wait time.Duration) {
		log.Warn("payout attempt failed, retrying",
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, q.ctx), notify); err != nil {
		log.Error("payout abandoned", zap.Int("attempts", attempts), zap.Error(err))
		q.metrics.Payout(string(p.Kind), "abandoned")
		return
	}

	log.Info("payout confirmed", logger.TxHash(tx.Hash), zap.Int("attempts", attempts))
	q.metrics.Payout(string(p.Kind), "confirmed")

	for _, follow := range p.Then {
		if err := q.Enqueue(follow); err != nil {
			log.Error("follow-up payout dropped",
				zap.String("follow_kind", string(follow.Kind)),
				zap.String("follow_to", follow.To),
				zap.Error(err),
			)
			q.metrics.Payout(string(follow.Kind), "dropped")
		}
	}
}
