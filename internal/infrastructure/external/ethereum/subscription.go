package ethereum

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/domain/chain"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// subscription adapts a log subscription to chain.Subscription.
type subscription struct {
	logs   chan types.Log
	events chan chain.ApprovalEvent
	errc   chan error
	stop   chan struct{}
	once   sync.Once
	unsub  func()
	logger *zap.Logger
}

// SubscribeApprovals opens a live TestApproved log subscription. The backend
// must support subscriptions (a ws:// or ipc endpoint).
func (c *Client) SubscribeApprovals(ctx context.Context) (chain.Subscription, error) {
	s := &subscription{
		logs:   make(chan types.Log, 64),
		events: make(chan chain.ApprovalEvent, 64),
		errc:   make(chan error, 1),
		stop:   make(chan struct{}),
		logger: c.logger,
	}

	q := c.approvalsQuery(nil, nil)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, ledgerError("subscribe", err)
	}

	sub, err := c.backend.SubscribeFilterLogs(ctx, q, s.logs)
	if err != nil {
		return nil, ledgerError("subscribe", err)
	}
	s.unsub = sub.Unsubscribe

	go s.pump(sub.Err())
	return s, nil
}

func (s *subscription) pump(subErr <-chan error) {
	defer close(s.events)

	for {
		select {
		case <-s.stop:
			return

		case err, ok := <-subErr:
			if ok && err != nil {
				s.errc <- ledgerError("subscribe", err)
			}
			return

		case l := <-s.logs:
			if l.Removed {
				continue
			}
			ev, err := decodeApproval(l)
			if err != nil {
				s.logger.Warn("skipping undecodable approval log", zap.Error(err), logger.TxHash(l.TxHash.Hex()))
				continue
			}
			select {
			case s.events <- ev:
			case <-s.stop:
				return
			}
		}
	}
}

func (s *subscription) Events() <-chan chain.ApprovalEvent { return s.events }
func (s *subscription) Err() <-chan error                  { return s.errc }

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.stop)
		s.unsub()
	})
}
