package query

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/domain/content"
	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FETCH EXAM FOR TAKING QUERY
// Looks the hash up in the catalog first and then in the content store, so
// content can be previewed before its proposal is approved. Correct answers
// are always stripped.
// ══════════════════════════════════════════════════════════════════════════════

// FetchExamResult is the exam-taking view.
type FetchExamResult struct {
	Content *exam.PublicContent
	// ExamID is empty when the content is not in the catalog yet.
	ExamID exam.ID
}

// FetchExamHandler handles FetchExamForTaking.
type FetchExamHandler struct {
	exams  exam.Repository
	store  content.Store
	logger *zap.Logger
}

// NewFetchExamHandler creates a new handler. store may be nil, which
// disables the fallback.
func NewFetchExamHandler(exams exam.Repository, store content.Store, log *zap.Logger) *FetchExamHandler {
	return &FetchExamHandler{
		exams:  exams,
		store:  store,
		logger: logger.OrNop(log).Named("fetch"),
	}
}

// Handle returns the sanitized content for a hash.
func (h *FetchExamHandler) Handle(ctx context.Context, contentHash string) (*FetchExamResult, error) {
	contentHash = strings.TrimSpace(contentHash)
	if contentHash == "" {
		return nil, shared.NewDomainError("exam", "Fetch", shared.ErrValidation, "content hash is required")
	}

	record, err := h.exams.GetByContentHash(ctx, contentHash)
	switch {
	case err == nil:
		return &FetchExamResult{Content: exam.Sanitize(exam.ContentOf(record)), ExamID: record.ID}, nil
	case !shared.IsNotFound(err):
		return nil, fmt.Errorf("fetch_exam: catalog lookup: %w", err)
	case h.store == nil:
		return nil, err
	}

	h.logger.Debug("hash not in catalog, falling back to content store", logger.ContentHash(contentHash))

	blob, err := h.store.Get(ctx, contentHash)
	if err != nil {
		return nil, err
	}
	parsed, err := exam.ParseContent(blob, 0)
	if err != nil {
		return nil, err
	}

	return &FetchExamResult{Content: exam.Sanitize(parsed)}, nil
}
