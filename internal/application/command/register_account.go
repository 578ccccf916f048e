package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/domain/account"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER OR LOGIN COMMAND
// A wallet that already has an account logs in. A new wallet is linked to a
// student credential that no other wallet holds, and starts with the free
// attempts.
// ══════════════════════════════════════════════════════════════════════════════

// CardIDPrefix is prepended to generated student card ids.
const CardIDPrefix = "STU_"

// RegisterOrLoginCommand contains the credentials.
type RegisterOrLoginCommand struct {
	UserID    string
	StudentID string
}

// RegisterOrLoginResult contains the account and what happened.
type RegisterOrLoginResult struct {
	Account *account.Account
	// Action is "login" or "register".
	Action string
}

const (
	ActionLogin    = "login"
	ActionRegister = "register"
)

// RegisterOrLoginHandler handles RegisterOrLoginCommand.
type RegisterOrLoginHandler struct {
	accounts account.Repository
	logger   *zap.Logger
	newCard  func() string
	now      func() time.Time
}

// NewRegisterOrLoginHandler creates a new RegisterOrLoginHandler.
func NewRegisterOrLoginHandler(accounts account.Repository, log *zap.Logger) *RegisterOrLoginHandler {
	return &RegisterOrLoginHandler{
		accounts: accounts,
		logger:   logger.OrNop(log).Named("accounts"),
		newCard:  func() string { return CardIDPrefix + uuid.NewString() },
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle logs in or registers.
func (h *RegisterOrLoginHandler) Handle(ctx context.Context, cmd RegisterOrLoginCommand) (*RegisterOrLoginResult, error) {
	userID, err := account.NormalizeUserID(cmd.UserID)
	if err != nil {
		return nil, err
	}

	existing, err := h.accounts.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		return &RegisterOrLoginResult{Account: existing, Action: ActionLogin}, nil
	case !shared.IsNotFound(err):
		return nil, fmt.Errorf("register_or_login: lookup: %w", err)
	}

	acct, err := account.NewAccount(account.NewAccountParams{
		UserID:    userID,
		StudentID: cmd.StudentID,
		CardID:    h.newCard(),
		Now:       h.now(),
	})
	if err != nil {
		return nil, err
	}

	linked, err := h.accounts.ExistsByHashedStudentID(ctx, acct.HashedStudentID)
	if err != nil {
		return nil, fmt.Errorf("register_or_login: credential check: %w", err)
	}
	if linked {
		return nil, shared.ErrStudentAlreadyLinked
	}

	// The unique constraints settle concurrent registrations.
	if err := h.accounts.Create(ctx, acct); err != nil {
		if shared.IsDuplicate(err) {
			if existing, getErr := h.accounts.GetByUserID(ctx, userID); getErr == nil {
				return &RegisterOrLoginResult{Account: existing, Action: ActionLogin}, nil
			}
		}
		return nil, err
	}

	h.logger.Info("account registered", logger.UserID(userID), zap.String("card_id", acct.CardID))
	return &RegisterOrLoginResult{Account: acct, Action: ActionRegister}, nil
}
