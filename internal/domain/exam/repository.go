package exam

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository is the catalog store.
type Repository interface {
	// Create persists a new record.
	// Returns shared.ErrExamAlreadyExists if the exam id is taken; the store
	// enforces this with a unique constraint.
	Create(ctx context.Context, e *Exam) error

	// Exists reports whether a record with the id exists.
	Exists(ctx context.Context, id ID) (bool, error)

	// GetByID returns shared.ErrExamNotFound if absent.
	GetByID(ctx context.Context, id ID) (*Exam, error)

	// GetByContentHash returns shared.ErrExamNotFound if absent.
	GetByContentHash(ctx context.Context, hash string) (*Exam, error)

	// ListByStatus returns records newest first.
	ListByStatus(ctx context.Context, status Status) ([]*Exam, error)

	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context, status Status) (int, error)

	// CountCreatedPerDay returns per-day creation counts since the given time,
	// oldest day first. Days with no records are omitted.
	CountCreatedPerDay(ctx context.Context, since time.Time) ([]DailyCount, error)
}

// DailyCount is the number of records created on one UTC day.
type DailyCount struct {
	Day   string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}
