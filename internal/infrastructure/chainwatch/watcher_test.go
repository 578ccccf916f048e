package chainwatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vstep-dao/vstep-hub/internal/domain/chain"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/metrics"
)

type fakeSub struct {
	events chan chain.ApprovalEvent
	errc   chan error
	once   sync.Once
}

func newFakeSub(events ...chain.ApprovalEvent) *fakeSub {
	s := &fakeSub{
		events: make(chan chain.ApprovalEvent, len(events)),
		errc:   make(chan error, 1),
	}
	for _, ev := range events {
		s.events <- ev
	}
	return s
}

func (s *fakeSub) Events() <-chan chain.ApprovalEvent { return s.events }
func (s *fakeSub) Err() <-chan error                  { return s.errc }
func (s *fakeSub) Unsubscribe()                       { s.once.Do(func() {}) }

// fail ends the stream the way the ledger adapter does.
func (s *fakeSub) fail(err error) {
	s.errc <- err
	close(s.events)
}

type scriptedLedger struct {
	mu    sync.Mutex
	steps []func() (chain.Subscription, error)
	calls int
}

func (l *scriptedLedger) SubscribeApprovals(context.Context) (chain.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if len(l.steps) == 0 {
		return newFakeSub(), nil // idle forever
	}
	step := l.steps[0]
	l.steps = l.steps[1:]
	return step()
}

func (l *scriptedLedger) GetProposal(context.Context, uint64) (*chain.Proposal, error) {
	return nil, errors.New("unused")
}
func (l *scriptedLedger) LatestBlock(context.Context) (uint64, error) { return 0, nil }
func (l *scriptedLedger) QueryApprovals(context.Context, uint64, uint64) ([]chain.ApprovalEvent, error) {
	return nil, nil
}

type recordingHandler struct {
	mu   sync.Mutex
	seen []uint64
	err  error
}

func (h *recordingHandler) HandleApproval(_ context.Context, ev chain.ApprovalEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, ev.ProposalID)
	return h.err
}

func (h *recordingHandler) ids() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint64(nil), h.seen...)
}

func TestWatcher_ReconnectsAndForwards(t *testing.T) {
	ledger := &scriptedLedger{steps: []func() (chain.Subscription, error){
		func() (chain.Subscription, error) { return nil, errors.New("dial ws: refused") },
		func() (chain.Subscription, error) {
			s := newFakeSub(chain.ApprovalEvent{ProposalID: 1}, chain.ApprovalEvent{ProposalID: 2})
			go s.fail(errors.New("connection reset"))
			return s, nil
		},
		func() (chain.Subscription, error) {
			// Replays an event already seen; the watcher forwards it again.
			return newFakeSub(chain.ApprovalEvent{ProposalID: 2}, chain.ApprovalEvent{ProposalID: 3}), nil
		},
	}}
	handler := &recordingHandler{err: errors.New("content unavailable")}
	m := metrics.New(prometheus.NewRegistry())

	w := New(ledger, handler, Config{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Metrics:        m,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(handler.ids()) >= 4 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}

	ids := handler.ids()
	assert.Contains(t, ids, uint64(1))
	assert.Contains(t, ids, uint64(3))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.Reconnects), 2.0)
}

func TestWatcher_StopsWhileWaitingToReconnect(t *testing.T) {
	ledger := &scriptedLedger{steps: []func() (chain.Subscription, error){
		func() (chain.Subscription, error) { return nil, errors.New("down") },
	}}
	w := New(ledger, &recordingHandler{}, Config{InitialBackoff: time.Hour, MaxBackoff: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, w.Run(ctx), context.DeadlineExceeded)
}
