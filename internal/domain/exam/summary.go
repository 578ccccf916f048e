package exam

import (
	"context"
	"time"
)

// Summary is the catalog listing row. It never carries questions.
type Summary struct {
	ID              ID        `json:"test_id"`
	Title           string    `json:"title"`
	SkillType       SkillType `json:"test_type"`
	Level           Level     `json:"level"`
	ContentHash     string    `json:"ipfsHash"`
	Reward          int64     `json:"reward"`
	ProposerAddress string    `json:"proposer_address"`
	CreatedAt       time.Time `json:"created_at"`
}

// Summarize builds the listing row for an exam.
func Summarize(e *Exam) Summary {
	return Summary{
		ID:              e.ID,
		Title:           e.Title,
		SkillType:       e.SkillType,
		Level:           e.Level,
		ContentHash:     e.ContentHash,
		Reward:          e.Reward(),
		ProposerAddress: e.ProposerAddress,
		CreatedAt:       e.CreatedAt,
	}
}

// CatalogCache caches the approved listing. Implementations live in
// infrastructure/persistence/redis.
type CatalogCache interface {
	// GetApproved returns false when nothing is cached.
	GetApproved(ctx context.Context) ([]Summary, bool, error)
	SetApproved(ctx context.Context, rows []Summary) error
	InvalidateApproved(ctx context.Context) error
}
