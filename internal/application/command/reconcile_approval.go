// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/domain/chain"
	"github.com/vstep-dao/vstep-hub/internal/domain/content"
	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
	"github.com/vstep-dao/vstep-hub/internal/infrastructure/metrics"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE APPROVAL COMMAND
// Turns a ledger approval event into a catalog record. Safe to run repeatedly
// and concurrently for the same proposal: the first successful run writes the
// record, every other run is a no-op.
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileApprovalCommand carries one approval event.
type ReconcileApprovalCommand struct {
	ProposalID  uint64
	ContentHash string

	// Source names the delivery path ("subscription", "catch_up") for logs.
	Source string
}

// ReconcileOutcome describes what a reconciliation did.
type ReconcileOutcome string

const (
	ReconcileCreated  ReconcileOutcome = "created"
	ReconcileExisting ReconcileOutcome = "existing"
	// ReconcileLostRace means a concurrent run inserted first.
	ReconcileLostRace ReconcileOutcome = "lost_race"
	// ReconcileDeferred means nothing was written; a redelivery will retry.
	ReconcileDeferred ReconcileOutcome = "deferred"
)

// ReconcileApprovalResult is the result of a reconciliation.
type ReconcileApprovalResult struct {
	ExamID  exam.ID
	Outcome ReconcileOutcome
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileApprovalHandler handles ReconcileApprovalCommand.
type ReconcileApprovalHandler struct {
	exams   exam.Repository
	ledger  chain.Reader
	content content.Store
	catalog exam.CatalogCache
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewReconcileApprovalHandler creates a new ReconcileApprovalHandler.
// catalog and m may be nil.
func NewReconcileApprovalHandler(
	exams exam.Repository,
	ledger chain.Reader,
	store content.Store,
	catalog exam.CatalogCache,
	m *metrics.Metrics,
	log *zap.Logger,
) *ReconcileApprovalHandler {
	return &ReconcileApprovalHandler{
		exams:   exams,
		ledger:  ledger,
		content: store,
		catalog: catalog,
		metrics: m,
		logger:  logger.OrNop(log).Named("reconciler"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Handle reconciles one approval. A non-nil error means nothing was written
// and the event should be retried on its next delivery.
func (h *ReconcileApprovalHandler) Handle(ctx context.Context, cmd ReconcileApprovalCommand) (*ReconcileApprovalResult, error) {
	id := exam.IDFromProposal(cmd.ProposalID)
	log := h.logger.With(
		logger.ProposalID(cmd.ProposalID),
		logger.ExamID(id.String()),
		zap.String("source", cmd.Source),
	)

	// Step 1: existing record short-circuits.
	exists, err := h.exams.Exists(ctx, id)
	if err != nil {
		h.metrics.Reconciled("error")
		return nil, fmt.Errorf("reconcile_approval: existence check: %w", err)
	}
	if exists {
		h.metrics.Reconciled(string(ReconcileExisting))
		return &ReconcileApprovalResult{ExamID: id, Outcome: ReconcileExisting}, nil
	}

	// Step 2: authorship comes from ledger state, never from the event.
	proposal, err := h.ledger.GetProposal(ctx, cmd.ProposalID)
	if err != nil {
		log.Warn("proposal read failed, deferring", zap.Error(err))
		h.metrics.Reconciled(string(ReconcileDeferred))
		return nil, fmt.Errorf("reconcile_approval: read proposal %d: %w", cmd.ProposalID, err)
	}

	hash := strings.TrimSpace(cmd.ContentHash)
	if hash == "" {
		hash = proposal.ContentHash
	}
	log = log.With(logger.ContentHash(hash))

	// Step 3: content must be fetchable and well formed before anything is written.
	blob, err := h.content.Get(ctx, hash)
	if err != nil {
		log.Warn("content fetch failed, deferring", zap.Error(err))
		h.metrics.Reconciled(string(ReconcileDeferred))
		return nil, fmt.Errorf("reconcile_approval: fetch content: %w", err)
	}

	parsed, err := exam.ParseContent(blob, cmd.ProposalID)
	if err != nil {
		log.Warn("content is malformed, deferring", zap.Error(err))
		h.metrics.Reconciled(string(ReconcileDeferred))
		return nil, fmt.Errorf("reconcile_approval: parse content: %w", err)
	}

	record, err := exam.NewExam(exam.NewExamParams{
		ProposalID:      cmd.ProposalID,
		ContentHash:     hash,
		ProposerAddress: proposal.ProposerAddress,
		Content:         parsed,
		CreatedAt:       h.now(),
	})
	if err != nil {
		h.metrics.Reconciled(string(ReconcileDeferred))
		return nil, fmt.Errorf("reconcile_approval: build record: %w", err)
	}

	// Step 4: the primary key is the final arbiter between concurrent runs.
	if err := h.exams.Create(ctx, record); err != nil {
		if shared.IsDuplicate(err) {
			log.Debug("record inserted concurrently")
			h.metrics.Reconciled(string(ReconcileLostRace))
			return &ReconcileApprovalResult{ExamID: id, Outcome: ReconcileLostRace}, nil
		}
		h.metrics.Reconciled("error")
		return nil, fmt.Errorf("reconcile_approval: persist: %w", err)
	}

	if h.catalog != nil {
		if err := h.catalog.InvalidateApproved(ctx); err != nil {
			log.Warn("catalog cache invalidation failed", zap.Error(err))
		}
	}

	log.Info("exam materialized",
		zap.String("title", record.Title),
		zap.String("level", string(record.Level)),
		zap.Int("questions", len(record.Questions)),
	)
	h.metrics.Reconciled(string(ReconcileCreated))

	return &ReconcileApprovalResult{ExamID: id, Outcome: ReconcileCreated}, nil
}

// ForSource adapts the handler to one delivery path.
func (h *ReconcileApprovalHandler) ForSource(source string) chain.ApprovalHandler {
	return chain.ApprovalHandlerFunc(func(ctx context.Context, ev chain.ApprovalEvent) error {
		_, err := h.Handle(ctx, ReconcileApprovalCommand{
			ProposalID:  ev.ProposalID,
			ContentHash: ev.ContentHash,
			Source:      source,
		})
		return err
	})
}
