// Package chainwatch keeps a live subscription to ledger approvals and
// forwards every event to a handler. It does not deduplicate; the handler
// must be idempotent.
package chainwatch

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/domain/chain"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/metrics"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// Config contains configuration for the watcher.
type Config struct {
	// HandleTimeout bounds the handling of one event.
	HandleTimeout time.Duration

	// InitialBackoff and MaxBackoff bound the reconnect delay.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandleTimeout:  30 * time.Second,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
	}
}

// Watcher owns the live approval subscription.
type Watcher struct {
	ledger  chain.Reader
	handler chain.ApprovalHandler
	config  Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a watcher.
func New(ledger chain.Reader, handler chain.ApprovalHandler, config Config) *Watcher {
	defaults := DefaultConfig()
	if config.HandleTimeout <= 0 {
		config.HandleTimeout = defaults.HandleTimeout
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}

	return &Watcher{
		ledger:  ledger,
		handler: handler,
		config:  config,
		logger:  logger.OrNop(config.Logger).Named("watcher"),
		metrics: config.Metrics,
	}
}

// errSubscriptionClosed is reported when the stream ends without an error.
var errSubscriptionClosed = errors.New("subscription closed")

// Run subscribes and forwards events until ctx is cancelled. Subscription
// failures are logged and the subscription is re-established with
// exponential backoff; Run only returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.config.InitialBackoff
	b.MaxInterval = w.config.MaxBackoff
	b.MaxElapsedTime = 0 // retry forever

	first := true
	for {
		if !first {
			w.metrics.Reconnected()
		}
		first = false

		delivered, err := w.consume(ctx)
		if ctx.Err() != nil {
			w.logger.Info("watcher stopped")
			return ctx.Err()
		}
		if delivered > 0 {
			b.Reset()
		}

		wait := b.NextBackOff()
		w.logger.Warn("approval subscription lost, reconnecting",
			zap.Error(err),
			zap.Int("delivered", delivered),
			zap.Duration("backoff", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("watcher stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// consume runs one subscription to its end and returns how many events it
// delivered.
func (w *Watcher) consume(ctx context.Context) (int, error) {
	sub, err := w.ledger.SubscribeApprovals(ctx)
	if err != nil {
		return 0, err
	}
	defer sub.Unsubscribe()

	w.logger.Info("approval subscription established")

	delivered := 0
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()

		case err := <-sub.Err():
			if err == nil {
				err = errSubscriptionClosed
			}
			delivered += w.drain(ctx, sub)
			return delivered, err

		case ev, ok := <-sub.Events():
			if !ok {
				// Events closes after Err is written; prefer the error.
				select {
				case err := <-sub.Err():
					if err != nil {
						return delivered, err
					}
				default:
				}
				return delivered, errSubscriptionClosed
			}
			delivered++
			w.dispatch(ctx, ev)
		}
	}
}

// drain forwards events that were buffered before the stream failed.
func (w *Watcher) drain(ctx context.Context, sub chain.Subscription) int {
	n := 0
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return n
			}
			n++
			w.dispatch(ctx, ev)
		default:
			return n
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, ev chain.ApprovalEvent) {
	ctx, cancel := context.WithTimeout(ctx, w.config.HandleTimeout)
	defer cancel()

	if err := w.handler.HandleApproval(ctx, ev); err != nil {
		// The reconciler wrote nothing; the next catch-up scan redelivers.
		w.logger.Warn("approval not reconciled",
			logger.ProposalID(ev.ProposalID),
			logger.ContentHash(ev.ContentHash),
			logger.Block(ev.BlockNumber),
			zap.Error(err),
		)
	}
}
