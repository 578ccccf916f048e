// Package account contains the per-user account model: the wallet identity,
// the hashed student credential it is linked to, and the attempt quota.
package account

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
)

// InitialAttempts is granted to every new account.
const InitialAttempts = 2

// Status of an account.
type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
)

// Account is one wallet linked to one student credential.
type Account struct {
	UserID            string // wallet address, unique
	HashedStudentID   string // hex sha256 of the student credential, unique
	CardID            string
	RemainingAttempts int
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasAttempts reports whether the account can submit another exam.
func (a *Account) HasAttempts() bool {
	return a.RemainingAttempts > 0
}

// HashStudentID returns the hex-encoded sha256 of a student credential.
// Raw credentials are never stored.
func HashStudentID(studentID string) string {
	sum := sha256.Sum256([]byte(studentID))
	return hex.EncodeToString(sum[:])
}

// NewAccountParams holds the inputs for NewAccount.
type NewAccountParams struct {
	UserID    string
	StudentID string
	CardID    string
	Now       time.Time
}

// NewAccount validates the inputs and builds an active account with the
// initial free attempts.
func NewAccount(p NewAccountParams) (*Account, error) {
	userID, err := NormalizeUserID(p.UserID)
	if err != nil {
		return nil, err
	}

	studentID := strings.TrimSpace(p.StudentID)
	if studentID == "" {
		return nil, shared.ErrInvalidStudentID
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return &Account{
		UserID:            userID,
		HashedStudentID:   HashStudentID(studentID),
		CardID:            p.CardID,
		RemainingAttempts: InitialAttempts,
		Status:            StatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}
