// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST APPROVED EXAMS QUERY
// The public catalog, newest first, read through the cache.
// ══════════════════════════════════════════════════════════════════════════════

// ListApprovedExamsHandler handles the catalog listing.
type ListApprovedExamsHandler struct {
	exams  exam.Repository
	cache  exam.CatalogCache
	logger *zap.Logger
}

// NewListApprovedExamsHandler creates a new handler. cache may be nil.
func NewListApprovedExamsHandler(exams exam.Repository, cache exam.CatalogCache, log *zap.Logger) *ListApprovedExamsHandler {
	return &ListApprovedExamsHandler{
		exams:  exams,
		cache:  cache,
		logger: logger.OrNop(log).Named("catalog"),
	}
}

// Handle returns every approved exam.
func (h *ListApprovedExamsHandler) Handle(ctx context.Context) ([]exam.Summary, error) {
	if h.cache != nil {
		rows, ok, err := h.cache.GetApproved(ctx)
		if err != nil {
			h.logger.Warn("catalog cache read failed", zap.Error(err))
		} else if ok {
			return rows, nil
		}
	}

	records, err := h.exams.ListByStatus(ctx, exam.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("list_approved_exams: %w", err)
	}

	rows := make([]exam.Summary, 0, len(records))
	for _, e := range records {
		rows = append(rows, exam.Summarize(e))
	}

	if h.cache != nil {
		if err := h.cache.SetApproved(ctx, rows); err != nil {
			h.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}

	return rows, nil
}
