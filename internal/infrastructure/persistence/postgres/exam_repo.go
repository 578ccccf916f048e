package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXAM REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ExamRepository implements exam.Repository for PostgreSQL.
type ExamRepository struct {
	conn *Connection
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(conn *Connection) *ExamRepository {
	return &ExamRepository{conn: conn}
}

const examColumns = `
	exam_id, content_hash, title, skill_type, level, questions,
	proposal_id, proposer_address, status, created_at
`

// Create inserts a record. The primary key on exam_id (and the unique key on
// proposal_id) is the last guard against concurrent reconciliation.
func (r *ExamRepository) Create(ctx context.Context, e *exam.Exam) error {
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO exams (`+examColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		string(e.ID),
		e.ContentHash,
		e.Title,
		string(e.SkillType),
		string(e.Level),
		questions,
		int64(e.ProposalID),
		e.ProposerAddress,
		string(e.Status),
		e.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("exam", "Create", shared.ErrDuplicate,
				fmt.Sprintf("exam %s already exists", e.ID), err)
		}
		return fmt.Errorf("failed to create exam: %w", err)
	}

	return nil
}

// Exists reports whether a record with the id exists.
func (r *ExamRepository) Exists(ctx context.Context, id exam.ID) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM exams WHERE exam_id = $1)`, string(id)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check exam existence: %w", err)
	}
	return exists, nil
}

// GetByID returns an exam by id.
func (r *ExamRepository) GetByID(ctx context.Context, id exam.ID) (*exam.Exam, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE exam_id = $1`, string(id))
	return r.scanExam(row)
}

// GetByContentHash returns the oldest exam carrying the hash.
func (r *ExamRepository) GetByContentHash(ctx context.Context, hash string) (*exam.Exam, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+examColumns+` FROM exams
		WHERE content_hash = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, hash)
	return r.scanExam(row)
}

// ListByStatus returns exams newest first.
func (r *ExamRepository) ListByStatus(ctx context.Context, status exam.Status) ([]*exam.Exam, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+examColumns+` FROM exams
		WHERE status = $1
		ORDER BY created_at DESC, proposal_id DESC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}
	defer rows.Close()

	var exams []*exam.Exam
	for rows.Next() {
		e, err := r.scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}

	return exams, rows.Err()
}

// Count returns the total number of exams.
func (r *ExamRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM exams`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count exams: %w", err)
	}
	return n, nil
}

// CountByStatus returns the number of exams with the status.
func (r *ExamRepository) CountByStatus(ctx context.Context, status exam.Status) (int, error) {
	var n int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM exams WHERE status = $1`, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count exams by status: %w", err)
	}
	return n, nil
}

// CountCreatedPerDay groups exams created since the given time by UTC day.
func (r *ExamRepository) CountCreatedPerDay(ctx context.Context, since time.Time) ([]exam.DailyCount, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM exams
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count exams per day: %w", err)
	}
	defer rows.Close()

	var out []exam.DailyCount
	for rows.Next() {
		var dc exam.DailyCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily count: %w", err)
		}
		out = append(out, dc)
	}

	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *ExamRepository) scanExam(row pgx.Row) (*exam.Exam, error) {
	var (
		e          exam.Exam
		id         string
		skillType  string
		level      string
		status     string
		questions  []byte
		proposalID int64
	)

	err := row.Scan(
		&id,
		&e.ContentHash,
		&e.Title,
		&skillType,
		&level,
		&questions,
		&proposalID,
		&e.ProposerAddress,
		&status,
		&e.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to scan exam: %w", err)
	}

	if err := json.Unmarshal(questions, &e.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions of %s: %w", id, err)
	}

	e.ID = exam.ID(id)
	e.SkillType = exam.SkillType(skillType)
	e.Level = exam.Level(level)
	e.Status = exam.Status(status)
	e.ProposalID = uint64(proposalID)

	return &e, nil
}
