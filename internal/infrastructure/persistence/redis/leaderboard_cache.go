package redis

import (
	"context"
	"errors"
	"time"

	"github.com/vstep-dao/vstep-hub/internal/domain/account"
	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
)

// ══════════════════════════════════════════════════════════════════════════════
// READ MODEL CACHES
// Short-lived copies of the listing and leaderboard. Writers invalidate; the
// next reader repopulates from Postgres.
// ══════════════════════════════════════════════════════════════════════════════

// CatalogCache implements exam.CatalogCache.
type CatalogCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewCatalogCache creates a catalog cache with the given TTL.
func NewCatalogCache(cache *Cache, ttl time.Duration) *CatalogCache {
	return &CatalogCache{cache: cache, ttl: ttl}
}

func (c *CatalogCache) GetApproved(ctx context.Context) ([]exam.Summary, bool, error) {
	var rows []exam.Summary
	if err := c.cache.GetJSON(ctx, KeyApprovedExams, &rows); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rows, true, nil
}

func (c *CatalogCache) SetApproved(ctx context.Context, rows []exam.Summary) error {
	return c.cache.SetJSON(ctx, KeyApprovedExams, rows, c.ttl)
}

func (c *CatalogCache) InvalidateApproved(ctx context.Context) error {
	return c.cache.Delete(ctx, KeyApprovedExams)
}

// LeaderboardCache implements account.LeaderboardCache. Pages of different
// sizes are cached separately and invalidated together.
type LeaderboardCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewLeaderboardCache creates a leaderboard cache with the given TTL.
func NewLeaderboardCache(cache *Cache, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{cache: cache, ttl: ttl}
}

func (c *LeaderboardCache) GetTop(ctx context.Context, limit int) ([]account.Standing, bool, error) {
	var rows []account.Standing
	if err := c.cache.GetJSON(ctx, KeyLeaderboard(limit), &rows); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rows, true, nil
}

func (c *LeaderboardCache) SetTop(ctx context.Context, limit int, rows []account.Standing) error {
	return c.cache.SetJSON(ctx, KeyLeaderboard(limit), rows, c.ttl)
}

func (c *LeaderboardCache) InvalidateTop(ctx context.Context) error {
	return c.cache.Delete(ctx, KeyLeaderboardPattern)
}

var (
	_ exam.CatalogCache        = (*CatalogCache)(nil)
	_ account.LeaderboardCache = (*LeaderboardCache)(nil)
)
