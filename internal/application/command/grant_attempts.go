package command

import (
	"context"

	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/domain/account"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// GrantAttemptsCommand adds attempts to an account.
type GrantAttemptsCommand struct {
	UserID string
	Count  int
}

// GrantAttemptsResult carries the new quota.
type GrantAttemptsResult struct {
	UserID            string `json:"user_id"`
	Granted           int    `json:"granted"`
	RemainingAttempts int    `json:"remaining_attempts"`
}

// GrantAttemptsHandler handles GrantAttemptsCommand.
type GrantAttemptsHandler struct {
	accounts    account.Repository
	leaderboard account.LeaderboardCache
	logger      *zap.Logger
}

// NewGrantAttemptsHandler creates a new GrantAttemptsHandler. leaderboard may be nil.
func NewGrantAttemptsHandler(accounts account.Repository, leaderboard account.LeaderboardCache, log *zap.Logger) *GrantAttemptsHandler {
	return &GrantAttemptsHandler{
		accounts:    accounts,
		leaderboard: leaderboard,
		logger:      logger.OrNop(log).Named("accounts"),
	}
}

// Handle grants the attempts atomically.
func (h *GrantAttemptsHandler) Handle(ctx context.Context, cmd GrantAttemptsCommand) (*GrantAttemptsResult, error) {
	userID, err := account.NormalizeUserID(cmd.UserID)
	if err != nil {
		return nil, err
	}
	if cmd.Count <= 0 {
		return nil, shared.ErrInvalidGrant
	}

	remaining, err := h.accounts.GrantAttempts(ctx, userID, cmd.Count)
	if err != nil {
		return nil, err
	}

	if h.leaderboard != nil {
		if err := h.leaderboard.InvalidateTop(ctx); err != nil {
			h.logger.Warn("leaderboard cache invalidation failed", zap.Error(err))
		}
	}

	h.logger.Info("attempts granted",
		logger.UserID(userID),
		zap.Int("granted", cmd.Count),
		zap.Int("remaining", remaining),
	)

	return &GrantAttemptsResult{UserID: userID, Granted: cmd.Count, RemainingAttempts: remaining}, nil
}
