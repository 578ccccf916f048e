package messaging

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
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/metrics"
)

type scriptedRewarder struct {
	mu        sync.Mutex
	issueErrs []error
	awaitErrs []error
	issued    int
	awaited   int
	gate      chan struct{}
}

func next(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (r *scriptedRewarder) IssueReward(ctx context.Context, addr string, units int64) (chain.TxHandle, error) {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return chain.TxHandle{}, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued++
	if err := next(&r.issueErrs); err != nil {
		return chain.TxHandle{}, err
	}
	return chain.TxHandle{Hash: "0xabc", To: addr, Units: units}, nil
}

func (r *scriptedRewarder) AwaitConfirmation(context.Context, chain.TxHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.awaited++
	return next(&r.awaitErrs)
}

func (r *scriptedRewarder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.issued, r.awaited
}

func fastConfig(m *metrics.Metrics) PayoutQueueConfig {
	return PayoutQueueConfig{
		Workers:        1,
		QueueSize:      4,
		AttemptTimeout: time.Second,
		MaxRetryTime:   2 * time.Second,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Metrics:        m,
	}
}

func bonus() chain.Payout {
	return chain.Payout{Kind: chain.PayoutBonus, To: "0x2222222222222222222222222222222222222222", Units: 2, Reference: "TEST_1"}
}

func TestPayoutQueue_RetriesUntilConfirmed(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := &scriptedRewarder{issueErrs: []error{errors.New("rpc down"), errors.New("rpc down")}}
	q := NewPayoutQueue(r, fastConfig(m))

	require.NoError(t, q.Enqueue(bonus()))
	require.NoError(t, q.Close(context.Background()))

	issued, awaited := r.counts()
	assert.Equal(t, 3, issued)
	assert.Equal(t, 1, awaited)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RewardPayouts.WithLabelValues("bonus", "confirmed")))
}

func TestPayoutQueue_IssuedTransactionIsNotReissued(t *testing.T) {
	r := &scriptedRewarder{awaitErrs: []error{shared.ErrLedgerTimeout, shared.ErrLedgerTimeout}}
	q := NewPayoutQueue(r, fastConfig(nil))

	require.NoError(t, q.Enqueue(bonus()))
	require.NoError(t, q.Close(context.Background()))

	issued, awaited := r.counts()
	assert.Equal(t, 1, issued)
	assert.Equal(t, 3, awaited)
}

func TestPayoutQueue_RevertedTransactionIsReissued(t *testing.T) {
	r := &scriptedRewarder{awaitErrs: []error{shared.ErrRewardReverted}}
	q := NewPayoutQueue(r, fastConfig(nil))

	require.NoError(t, q.Enqueue(bonus()))
	require.NoError(t, q.Close(context.Background()))

	issued, awaited := r.counts()
	assert.Equal(t, 2, issued)
	assert.Equal(t, 2, awaited)
}

func TestPayoutQueue_ValidationErrorIsPermanent(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := &scriptedRewarder{issueErrs: []error{shared.ErrInvalidWallet}}
	q := NewPayoutQueue(r, fastConfig(m))

	require.NoError(t, q.Enqueue(bonus()))
	require.NoError(t, q.Close(context.Background()))

	issued, _ := r.counts()
	assert.Equal(t, 1, issued)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RewardPayouts.WithLabelValues("bonus", "abandoned")))
}

func TestPayoutQueue_FullAndClosed(t *testing.T) {
	r := &scriptedRewarder{gate: make(chan struct{})}
	cfg := fastConfig(nil)
	cfg.QueueSize = 1
	q := NewPayoutQueue(r, cfg)

	// The worker picks up the first payout and blocks on the gate, so one
	// more fits in the buffer.
	require.NoError(t, q.Enqueue(bonus()))
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(bonus()))
	assert.ErrorIs(t, q.Enqueue(bonus()), ErrQueueFull)

	close(r.gate)
	require.NoError(t, q.Close(context.Background()))
	assert.ErrorIs(t, q.Enqueue(bonus()), ErrQueueClosed)
	assert.NoError(t, q.Close(context.Background()))

	issued, _ := r.counts()
	assert.Equal(t, 2, issued)
}

func TestPayoutQueue_CloseDeadlineAbandonsRetries(t *testing.T) {
	r := &scriptedRewarder{gate: make(chan struct{})}
	q := NewPayoutQueue(r, fastConfig(nil))
	require.NoError(t, q.Enqueue(bonus()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)
}

func TestPayoutQueue_SentTransactionIsOnlyAwaited(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := &scriptedRewarder{awaitErrs: []error{shared.ErrLedgerTimeout}}
	q := NewPayoutQueue(r, fastConfig(m))

	sent := chain.TxHandle{Hash: "0xsent", To: "0x1111111111111111111111111111111111111111", Units: 10}
	require.NoError(t, q.Enqueue(chain.Payout{
		Kind:      chain.PayoutPrimary,
		To:        sent.To,
		Units:     sent.Units,
		Reference: "TEST_1",
		Issued:    &sent,
		Then:      []chain.Payout{bonus()},
	}))

	// The follow-up is enqueued by the worker, so wait for it before closing.
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RewardPayouts.WithLabelValues("bonus", "confirmed")) == 1
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, q.Close(context.Background()))

	issued, awaited := r.counts()
	assert.Equal(t, 1, issued, "only the follow-up is issued")
	assert.Equal(t, 3, awaited)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RewardPayouts.WithLabelValues("primary", "confirmed")))
}

func TestPayoutQueue_SentTransactionRevertIsFinal(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := &scriptedRewarder{awaitErrs: []error{shared.ErrRewardReverted}}
	q := NewPayoutQueue(r, fastConfig(m))

	sent := chain.TxHandle{Hash: "0xsent", To: "0x1111111111111111111111111111111111111111", Units: 10}
	require.NoError(t, q.Enqueue(chain.Payout{
		Kind:   chain.PayoutPrimary,
		To:     sent.To,
		Units:  sent.Units,
		Issued: &sent,
		Then:   []chain.Payout{bonus()},
	}))
	require.NoError(t, q.Close(context.Background()))

	issued, awaited := r.counts()
	assert.Zero(t, issued)
	assert.Equal(t, 1, awaited)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RewardPayouts.WithLabelValues("primary", "abandoned")))
	assert.Zero(t, testutil.ToFloat64(m.RewardPayouts.WithLabelValues("bonus", "confirmed")))
}
