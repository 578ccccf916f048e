package query

import (
	"context"
	"fmt"
	"time"

	"github.com/vstep-dao/vstep-hub/internal/domain/account"
	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
)

// StatsWindowDays is the length of the per-day chart.
const StatsWindowDays = 7

// AdminStats is the operator dashboard summary.
type AdminStats struct {
	TotalUsers    int               `json:"totalUsers"`
	TotalTests    int               `json:"totalTests"`
	ApprovedTests int               `json:"approvedTests"`
	PendingTests  int               `json:"pendingTests"`
	ChartData     []exam.DailyCount `json:"chartData"`
}

// GetAdminStatsHandler handles GetAdminStats.
type GetAdminStatsHandler struct {
	accounts account.Repository
	exams    exam.Repository
	now      func() time.Time
}

// NewGetAdminStatsHandler creates a new handler.
func NewGetAdminStatsHandler(accounts account.Repository, exams exam.Repository) *GetAdminStatsHandler {
	return &GetAdminStatsHandler{
		accounts: accounts,
		exams:    exams,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle collects the counters. The chart has one entry per day of the
// window, oldest first, zero-filled.
func (h *GetAdminStatsHandler) Handle(ctx context.Context) (*AdminStats, error) {
	var (
		stats AdminStats
		err   error
	)

	if stats.TotalUsers, err = h.accounts.Count(ctx); err != nil {
		return nil, fmt.Errorf("get_admin_stats: users: %w", err)
	}
	if stats.TotalTests, err = h.exams.Count(ctx); err != nil {
		return nil, fmt.Errorf("get_admin_stats: exams: %w", err)
	}
	if stats.ApprovedTests, err = h.exams.CountByStatus(ctx, exam.StatusApproved); err != nil {
		return nil, fmt.Errorf("get_admin_stats: approved: %w", err)
	}
	if stats.PendingTests, err = h.exams.CountByStatus(ctx, exam.StatusPending); err != nil {
		return nil, fmt.Errorf("get_admin_stats: pending: %w", err)
	}

	today := h.now().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(StatsWindowDays - 1))

	daily, err := h.exams.CountCreatedPerDay(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("get_admin_stats: chart: %w", err)
	}

	stats.ChartData = fillDays(since, daily)
	return &stats, nil
}

func fillDays(since time.Time, daily []exam.DailyCount) []exam.DailyCount {
	byDay := make(map[string]int, len(daily))
	for _, d := range daily {
		byDay[d.Day] = d.Count
	}

	out := make([]exam.DailyCount, StatsWindowDays)
	for i := range out {
		day := since.AddDate(0, 0, i).Format("2006-01-02")
		out[i] = exam.DailyCount{Day: day, Count: byDay[day]}
	}
	return out
}
