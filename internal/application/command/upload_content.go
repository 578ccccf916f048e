package command

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/domain/content"
	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// UploadContentCommand carries an exam document to be proposed.
type UploadContentCommand struct {
	Content exam.Content
}

// UploadContentResult carries the content hash to put in the proposal.
type UploadContentResult struct {
	ContentHash string `json:"ipfs_hash"`
	Name        string `json:"name"`
}

// UploadContentHandler validates exam content and puts it in the content store.
type UploadContentHandler struct {
	store  content.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewUploadContentHandler creates a new UploadContentHandler.
func NewUploadContentHandler(store content.Store, log *zap.Logger) *UploadContentHandler {
	return &UploadContentHandler{
		store:  store,
		logger: logger.OrNop(log).Named("upload"),
		now:    time.Now,
	}
}

// Handle stores the document. Content the reconciler would reject is rejected
// here as a validation error.
func (h *UploadContentHandler) Handle(ctx context.Context, cmd UploadContentCommand) (*UploadContentResult, error) {
	doc := cmd.Content
	if doc.Type == "" {
		doc.Type = exam.SkillReading
	}
	if doc.Level == "" {
		doc.Level = exam.LevelB1
	}
	if err := doc.Validate(); err != nil {
		return nil, shared.NewDomainError("exam", "Upload", shared.ErrValidation, shared.Message(err))
	}

	blob, err := doc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("upload_content: encode: %w", err)
	}

	name := "VSTEP_" + strconv.FormatInt(h.now().UnixMilli(), 10)
	hash, err := h.store.Put(ctx, name, blob)
	if err != nil {
		return nil, err
	}

	h.logger.Info("content uploaded", logger.ContentHash(hash), zap.String("name", name))
	return &UploadContentResult{ContentHash: hash, Name: name}, nil
}
