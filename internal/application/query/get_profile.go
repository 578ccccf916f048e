package query

import (
	"context"
	"time"

	"github.com/vstep-dao/vstep-hub/internal/domain/account"
)

// ProfileView is the public projection of an account. The hashed student
// credential is never exposed.
type ProfileView struct {
	UserID            string `json:"user_id"`
	CardID            string `json:"card_id"`
	RemainingAttempts int    `json:"remaining_attempts"`
	Status            string `json:"status"`
	CreatedAt         string `json:"created_at"`
}

// GetProfileHandler handles GetProfile.
type GetProfileHandler struct {
	accounts account.Repository
}

// NewGetProfileHandler creates a new handler.
func NewGetProfileHandler(accounts account.Repository) *GetProfileHandler {
	return &GetProfileHandler{accounts: accounts}
}

// Handle returns the profile, or an error matching shared.ErrNotFound.
func (h *GetProfileHandler) Handle(ctx context.Context, userID string) (*ProfileView, error) {
	userID, err := account.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}

	a, err := h.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return ToProfileView(a), nil
}

// ToProfileView projects an account.
func ToProfileView(a *account.Account) *ProfileView {
	return &ProfileView{
		UserID:            a.UserID,
		CardID:            a.CardID,
		RemainingAttempts: a.RemainingAttempts,
		Status:            string(a.Status),
		CreatedAt:         a.CreatedAt.UTC().Format(time.RFC3339),
	}
}
