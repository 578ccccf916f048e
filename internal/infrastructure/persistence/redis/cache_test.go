package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "vstep:catalog:approved", KeyApprovedExams)
	assert.Equal(t, "vstep:leaderboard:10", KeyLeaderboard(10))
	assert.True(t, containsGlob(KeyLeaderboardPattern))
	assert.False(t, containsGlob(KeyLeaderboard(10)))
}

func TestCache_EmptyKeyRejectedBeforeNetwork(t *testing.T) {
	c := &Cache{}
	ctx := context.Background()

	var dst []string
	assert.ErrorIs(t, c.GetJSON(ctx, "", &dst), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.SetJSON(ctx, "", dst, 0), ErrCacheKeyEmpty)
	assert.NoError(t, c.Delete(ctx))
}
