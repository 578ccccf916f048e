package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/domain/account"
	"github.com/vstep-dao/vstep-hub/internal/domain/chain"
	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/metrics"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT EXAM COMMAND
// Settlement: Validating → Grading → QuotaConsumed → (Rewarding) → Completed.
// The attempt is consumed before any reward is attempted and is never given
// back, even if the reward cannot be delivered.
// ══════════════════════════════════════════════════════════════════════════════

// RewardNotDelivered is the reward description when the primary payout failed.
const RewardNotDelivered = "network error, not delivered"

// SubmitExamCommand contains one submission.
type SubmitExamCommand struct {
	UserID string

	// TestRef is either the raw proposal id ("42") or the exam id ("TEST_42").
	TestRef string

	Answers []string
}

// SubmissionOutcome is the result of a settled submission.
type SubmissionOutcome struct {
	ExamID                 exam.ID `json:"testId"`
	ScorePercent           float64 `json:"score"`
	CorrectCount           int     `json:"correctCount"`
	TotalQuestions         int     `json:"totalQuestions"`
	IsPass                 bool    `json:"isPass"`
	RewardUnits            int64   `json:"rewardUnits"`
	RewardDelivered        bool    `json:"rewardDelivered"`
	RewardDescription      string  `json:"reward"`
	RewardTxHash           string  `json:"txHash,omitempty"`
	RemainingAttemptsAfter int     `json:"remainingAttempts"`
}

// PayoutScheduler hands a payout to a background worker. Enqueue must not
// block on the ledger.
type PayoutScheduler interface {
	Enqueue(p chain.Payout) error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SubmitExamHandlerConfig contains configuration for the handler.
type SubmitExamHandlerConfig struct {
	// RewardTimeout bounds issuing and confirming the primary reward.
	RewardTimeout time.Duration
}

// DefaultSubmitExamHandlerConfig returns default configuration.
func DefaultSubmitExamHandlerConfig() SubmitExamHandlerConfig {
	return SubmitExamHandlerConfig{
		RewardTimeout: 90 * time.Second,
	}
}

// SubmitExamHandler handles SubmitExamCommand.
type SubmitExamHandler struct {
	accounts    account.Repository
	exams       exam.Repository
	rewarder    chain.Rewarder
	payouts     PayoutScheduler
	leaderboard account.LeaderboardCache
	metrics     *metrics.Metrics
	logger      *zap.Logger
	config      SubmitExamHandlerConfig
}

// NewSubmitExamHandler creates a new SubmitExamHandler. leaderboard and m
// may be nil.
func NewSubmitExamHandler(
	accounts account.Repository,
	exams exam.Repository,
	rewarder chain.Rewarder,
	payouts PayoutScheduler,
	leaderboard account.LeaderboardCache,
	m *metrics.Metrics,
	log *zap.Logger,
	config SubmitExamHandlerConfig,
) *SubmitExamHandler {
	if config.RewardTimeout <= 0 {
		config = DefaultSubmitExamHandlerConfig()
	}

	return &SubmitExamHandler{
		accounts:    accounts,
		exams:       exams,
		rewarder:    rewarder,
		payouts:     payouts,
		leaderboard: leaderboard,
		metrics:     m,
		logger:      logger.OrNop(log).Named("settlement"),
		config:      config,
	}
}

// Handle settles one submission. Errors are returned only for rejected
// submissions, which never change state.
func (h *SubmitExamHandler) Handle(ctx context.Context, cmd SubmitExamCommand) (*SubmissionOutcome, error) {
	// ─────────────────────────────────────────────────────────────────────────
	// Validating
	// ─────────────────────────────────────────────────────────────────────────

	userID, err := account.NormalizeUserID(cmd.UserID)
	if err != nil {
		h.metrics.Submitted("rejected")
		return nil, err
	}

	acct, err := h.accounts.GetByUserID(ctx, userID)
	if err != nil {
		h.metrics.Submitted("rejected")
		return nil, fmt.Errorf("submit_exam: %w", err)
	}
	if !acct.HasAttempts() {
		h.metrics.Submitted("rejected")
		return nil, shared.ErrNoAttemptsLeft
	}

	examID, err := exam.NormalizeRef(cmd.TestRef)
	if err != nil {
		h.metrics.Submitted("rejected")
		return nil, err
	}

	record, err := h.exams.GetByID(ctx, examID)
	if err != nil {
		h.metrics.Submitted("rejected")
		return nil, fmt.Errorf("submit_exam: %w", err)
	}

	log := h.logger.With(logger.UserID(userID), logger.ExamID(examID.String()))

	// ─────────────────────────────────────────────────────────────────────────
	// Grading
	// ─────────────────────────────────────────────────────────────────────────

	grade := exam.GradeAnswers(record.Questions, cmd.Answers)

	// ─────────────────────────────────────────────────────────────────────────
	// QuotaConsumed
	// ─────────────────────────────────────────────────────────────────────────

	remaining, err := h.accounts.ConsumeAttempt(ctx, userID)
	if err != nil {
		h.metrics.Submitted("rejected")
		return nil, fmt.Errorf("submit_exam: %w", err)
	}
	h.invalidateLeaderboard(ctx, log)

	outcome := &SubmissionOutcome{
		ExamID:                 examID,
		ScorePercent:           grade.ScorePercent,
		CorrectCount:           grade.CorrectCount,
		TotalQuestions:         grade.TotalQuestions,
		IsPass:                 grade.IsPass,
		RewardDescription:      describeUnits(0),
		RemainingAttemptsAfter: remaining,
	}

	if !grade.IsPass {
		log.Info("submission graded", zap.Float64("score", grade.ScorePercent), zap.Bool("pass", false))
		h.metrics.Submitted("failed")
		return outcome, nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Rewarding
	// ─────────────────────────────────────────────────────────────────────────

	units := record.Reward()
	outcome.RewardUnits = units

	tx, err := h.payPrimary(ctx, userID, units)
	if err != nil {
		log.Warn("primary reward not delivered",
			logger.RewardUnits(units),
			logger.TxHash(tx.Hash),
			zap.Error(err),
		)
		h.metrics.Payout(string(chain.PayoutPrimary), "failed")
		h.metrics.Submitted("passed_undelivered")

		outcome.RewardDescription = RewardNotDelivered
		outcome.RewardTxHash = tx.Hash
		if tx.Hash != "" && !errors.Is(err, shared.ErrRewardReverted) {
			h.trackPrimary(record, userID, tx, log)
		}
		return outcome, nil
	}

	h.metrics.Payout(string(chain.PayoutPrimary), "confirmed")
	outcome.RewardDelivered = true
	outcome.RewardDescription = describeUnits(units)
	outcome.RewardTxHash = tx.Hash

	log.Info("submission rewarded",
		zap.Float64("score", grade.ScorePercent),
		logger.RewardUnits(units),
		logger.TxHash(tx.Hash),
	)

	h.scheduleBonus(record, userID, log)
	h.metrics.Submitted("passed")

	return outcome, nil
}

// payPrimary issues the reward and waits for it to be mined, all under
// RewardTimeout. A timeout is a delivery failure, not a submission failure.
func (h *SubmitExamHandler) payPrimary(ctx context.Context, to string, units int64) (chain.TxHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.RewardTimeout)
	defer cancel()

	tx, err := h.rewarder.IssueReward(ctx, to, units)
	if err != nil {
		return chain.TxHandle{}, err
	}
	if err := h.rewarder.AwaitConfirmation(ctx, tx); err != nil {
		return tx, err
	}
	return tx, nil
}

// scheduleBonus hands the authorship bonus to the payout worker. Its outcome
// is never reported to the submitter.
func (h *SubmitExamHandler) scheduleBonus(record *exam.Exam, submitter string, log *zap.Logger) {
	if h.payouts == nil {
		return
	}
	bonus, ok := bonusPayout(record, submitter)
	if !ok {
		return
	}

	if err := h.payouts.Enqueue(bonus); err != nil {
		log.Error("author bonus dropped",
			zap.String("proposer", record.ProposerAddress),
			logger.RewardUnits(exam.AuthorBonusUnits),
			zap.Error(err),
		)
		h.metrics.Payout(string(chain.PayoutBonus), "dropped")
	}
}

// trackPrimary hands a primary reward that was sent but not confirmed in
// time to the payout worker. The worker only awaits it; the bonus follows
// if it is mined.
func (h *SubmitExamHandler) trackPrimary(record *exam.Exam, submitter string, tx chain.TxHandle, log *zap.Logger) {
	if h.payouts == nil {
		return
	}

	primary := chain.Payout{
		Kind:      chain.PayoutPrimary,
		To:        tx.To,
		Units:     tx.Units,
		Reference: record.ID.String() + ":" + submitter,
		Issued:    &tx,
	}
	if bonus, ok := bonusPayout(record, submitter); ok {
		primary.Then = []chain.Payout{bonus}
	}

	if err := h.payouts.Enqueue(primary); err != nil {
		log.Error("unconfirmed reward not tracked", logger.TxHash(tx.Hash), zap.Error(err))
		h.metrics.Payout(string(chain.PayoutPrimary), "dropped")
	}
}

func bonusPayout(record *exam.Exam, submitter string) (chain.Payout, bool) {
	if record.ProposerAddress == "" || record.AuthoredBy(submitter) {
		return chain.Payout{}, false
	}
	return chain.Payout{
		Kind:      chain.PayoutBonus,
		To:        record.ProposerAddress,
		Units:     exam.AuthorBonusUnits,
		Reference: record.ID.String() + ":" + submitter,
	}, true
}

func (h *SubmitExamHandler) invalidateLeaderboard(ctx context.Context, log *zap.Logger) {
	if h.leaderboard == nil {
		return
	}
	if err := h.leaderboard.InvalidateTop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("leaderboard cache invalidation failed", zap.Error(err))
	}
}

func describeUnits(units int64) string {
	return strconv.FormatInt(units, 10) + " units"
}
