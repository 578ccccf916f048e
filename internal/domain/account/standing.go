package account

import "context"

// Standing is one leaderboard row.
type Standing struct {
	Rank              int    `json:"rank"`
	UserID            string `json:"user_id"`
	CardID            string `json:"card_id"`
	RemainingAttempts int    `json:"remaining_attempts"`
}

// Rank turns accounts, already ordered best first, into leaderboard rows.
func Rank(accounts []*Account) []Standing {
	out := make([]Standing, 0, len(accounts))
	for i, a := range accounts {
		out = append(out, Standing{
			Rank:              i + 1,
			UserID:            a.UserID,
			CardID:            a.CardID,
			RemainingAttempts: a.RemainingAttempts,
		})
	}
	return out
}

// LeaderboardCache caches leaderboard pages by size.
type LeaderboardCache interface {
	// GetTop returns false when nothing is cached for limit.
	GetTop(ctx context.Context, limit int) ([]Standing, bool, error)
	SetTop(ctx context.Context, limit int, rows []Standing) error
	InvalidateTop(ctx context.Context) error
}
