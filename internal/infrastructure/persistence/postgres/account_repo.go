package postgres

import (
	"context"
	"fmt"

	"github.com/vstep-dao/vstep-hub/internal/domain/account"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AccountRepository implements account.Repository for PostgreSQL.
type AccountRepository struct {
	conn *Connection
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(conn *Connection) *AccountRepository {
	return &AccountRepository{conn: conn}
}

const accountColumns = `
	user_id, hashed_student_id, card_id, remaining_attempts, status, created_at, updated_at
`

// Create inserts an account, telling a taken wallet apart from a taken
// student credential by the violated constraint.
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		a.UserID,
		a.HashedStudentID,
		a.CardID,
		a.RemainingAttempts,
		string(a.Status),
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			if ViolatedConstraint(err) == constraintHashedStudentID {
				return shared.ErrStudentAlreadyLinked
			}
			return shared.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByUserID returns an account by wallet address.
func (r *AccountRepository) GetByUserID(ctx context.Context, userID string) (*account.Account, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
	return r.scanAccount(row)
}

// ExistsByHashedStudentID reports whether a credential is already linked.
func (r *AccountRepository) ExistsByHashedStudentID(ctx context.Context, hashed string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE hashed_student_id = $1)`, hashed,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check student credential: %w", err)
	}
	return exists, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Quota Operations
// ─────────────────────────────────────────────────────────────────────────────

// ConsumeAttempt decrements the quota in one conditional statement. Two
// concurrent calls on an account with one attempt left cannot both succeed.
func (r *AccountRepository) ConsumeAttempt(ctx context.Context, userID string) (int, error) {
	var remaining int
	err := r.conn.QueryRow(ctx, `
		UPDATE accounts
		SET remaining_attempts = remaining_attempts - 1, updated_at = NOW()
		WHERE user_id = $1 AND remaining_attempts > 0
		RETURNING remaining_attempts
	`, userID).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !IsNoRows(err) {
		return 0, fmt.Errorf("failed to consume attempt: %w", err)
	}

	// Nothing updated: either the account is gone or the quota is spent.
	var exists bool
	if err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id = $1)`, userID,
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return 0, shared.ErrAccountNotFound
	}
	return 0, shared.ErrNoAttemptsLeft
}

// GrantAttempts adds n attempts in one statement.
func (r *AccountRepository) GrantAttempts(ctx context.Context, userID string, n int) (int, error) {
	if n <= 0 {
		return 0, shared.ErrInvalidGrant
	}

	var remaining int
	err := r.conn.QueryRow(ctx, `
		UPDATE accounts
		SET remaining_attempts = remaining_attempts + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING remaining_attempts
	`, userID, n).Scan(&remaining)
	if err != nil {
		if IsNoRows(err) {
			return 0, shared.ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to grant attempts: %w", err)
	}

	return remaining, nil
}

// TopByRemainingAttempts returns accounts with the most attempts left.
func (r *AccountRepository) TopByRemainingAttempts(ctx context.Context, limit int) ([]*account.Account, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		ORDER BY remaining_attempts DESC, created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		a, err := r.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

// Count returns the total number of accounts.
func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}

func (r *AccountRepository) scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		a      account.Account
		status string
	)

	err := row.Scan(
		&a.UserID,
		&a.HashedStudentID,
		&a.CardID,
		&a.RemainingAttempts,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	a.Status = account.Status(status)
	return &a, nil
}
