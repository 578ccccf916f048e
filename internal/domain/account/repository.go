package account

import "context"

// Repository is the account store.
type Repository interface {
	// Create persists a new account. Returns shared.ErrAccountAlreadyExists
	// when the user id is taken and shared.ErrStudentAlreadyLinked when the
	// hashed student id is.
	Create(ctx context.Context, a *Account) error

	// GetByUserID returns shared.ErrAccountNotFound if absent.
	GetByUserID(ctx context.Context, userID string) (*Account, error)

	ExistsByHashedStudentID(ctx context.Context, hashed string) (bool, error)

	// ConsumeAttempt atomically decrements the quota if it is positive and
	// returns the remaining count. Returns shared.ErrNoAttemptsLeft if the
	// quota was already zero and shared.ErrAccountNotFound if the account
	// does not exist. Never a read-modify-write.
	ConsumeAttempt(ctx context.Context, userID string) (int, error)

	// GrantAttempts atomically adds n attempts and returns the new count.
	GrantAttempts(ctx context.Context, userID string, n int) (int, error)

	// TopByRemainingAttempts returns up to limit accounts, most attempts first.
	TopByRemainingAttempts(ctx context.Context, limit int) ([]*Account, error)

	Count(ctx context.Context) (int, error)
}
