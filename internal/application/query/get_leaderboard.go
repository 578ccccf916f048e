package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/domain/account"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Accounts ranked by remaining attempts.
// ══════════════════════════════════════════════════════════════════════════════

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// GetLeaderboardQuery contains the page size.
type GetLeaderboardQuery struct {
	// Limit defaults to 10 and is capped at 100.
	Limit int
}

// Validate checks and normalizes the query.
func (q *GetLeaderboardQuery) Validate() error {
	if q.Limit < 0 {
		return shared.NewDomainError("query", "GetLeaderboard", shared.ErrValidation, "limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = DefaultLeaderboardLimit
	}
	if q.Limit > MaxLeaderboardLimit {
		q.Limit = MaxLeaderboardLimit
	}
	return nil
}

// GetLeaderboardHandler handles leaderboard reads.
type GetLeaderboardHandler struct {
	accounts account.Repository
	cache    account.LeaderboardCache
	logger   *zap.Logger
}

// NewGetLeaderboardHandler creates a new handler. cache may be nil.
func NewGetLeaderboardHandler(accounts account.Repository, cache account.LeaderboardCache, log *zap.Logger) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{
		accounts: accounts,
		cache:    cache,
		logger:   logger.OrNop(log).Named("leaderboard"),
	}
}

// Handle returns the top accounts.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, query GetLeaderboardQuery) ([]account.Standing, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	if h.cache != nil {
		rows, ok, err := h.cache.GetTop(ctx, query.Limit)
		if err != nil {
			h.logger.Warn("leaderboard cache read failed", zap.Error(err))
		} else if ok {
			return rows, nil
		}
	}

	top, err := h.accounts.TopByRemainingAttempts(ctx, query.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}
	rows := account.Rank(top)

	if h.cache != nil {
		if err := h.cache.SetTop(ctx, query.Limit, rows); err != nil {
			h.logger.Warn("leaderboard cache write failed", zap.Error(err))
		}
	}

	return rows, nil
}
