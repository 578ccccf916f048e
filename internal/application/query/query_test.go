package query

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vstep-dao/vstep-hub/internal/domain/account"
	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────────────────────────────────

type fakeExams struct {
	list     []*exam.Exam
	listHits int
	daily    []exam.DailyCount
	since    time.Time
}

func (f *fakeExams) Create(context.Context, *exam.Exam) error      { return nil }
func (f *fakeExams) Exists(context.Context, exam.ID) (bool, error) { return false, nil }
func (f *fakeExams) GetByID(context.Context, exam.ID) (*exam.Exam, error) {
	return nil, shared.ErrExamNotFound
}

func (f *fakeExams) GetByContentHash(_ context.Context, hash string) (*exam.Exam, error) {
	for _, e := range f.list {
		if e.ContentHash == hash {
			return e, nil
		}
	}
	return nil, shared.ErrExamNotFound
}

func (f *fakeExams) ListByStatus(context.Context, exam.Status) ([]*exam.Exam, error) {
	f.listHits++
	return f.list, nil
}

func (f *fakeExams) Count(context.Context) (int, error) { return len(f.list) + 1, nil }

func (f *fakeExams) CountByStatus(_ context.Context, s exam.Status) (int, error) {
	if s == exam.StatusApproved {
		return len(f.list), nil
	}
	return 1, nil
}

func (f *fakeExams) CountCreatedPerDay(_ context.Context, since time.Time) ([]exam.DailyCount, error) {
	f.since = since
	return f.daily, nil
}

type fakeAccounts struct {
	accounts []*account.Account
	lastTop  int
}

func (f *fakeAccounts) Create(context.Context, *account.Account) error { return nil }

func (f *fakeAccounts) GetByUserID(_ context.Context, userID string) (*account.Account, error) {
	for _, a := range f.accounts {
		if a.UserID == userID {
			return a, nil
		}
	}
	return nil, shared.ErrAccountNotFound
}

func (f *fakeAccounts) ExistsByHashedStudentID(context.Context, string) (bool, error) {
	return false, nil
}
func (f *fakeAccounts) ConsumeAttempt(context.Context, string) (int, error)     { return 0, nil }
func (f *fakeAccounts) GrantAttempts(context.Context, string, int) (int, error) { return 0, nil }

func (f *fakeAccounts) TopByRemainingAttempts(_ context.Context, limit int) ([]*account.Account, error) {
	f.lastTop = limit
	if limit < len(f.accounts) {
		return f.accounts[:limit], nil
	}
	return f.accounts, nil
}

func (f *fakeAccounts) Count(context.Context) (int, error) { return len(f.accounts), nil }

type memCatalogCache struct {
	rows []exam.Summary
	set  bool
}

func (c *memCatalogCache) GetApproved(context.Context) ([]exam.Summary, bool, error) {
	return c.rows, c.set, nil
}

func (c *memCatalogCache) SetApproved(_ context.Context, rows []exam.Summary) error {
	c.rows, c.set = rows, true
	return nil
}

func (c *memCatalogCache) InvalidateApproved(context.Context) error {
	c.rows, c.set = nil, false
	return nil
}

type memLeaderboardCache struct {
	pages map[int][]account.Standing
}

func (c *memLeaderboardCache) GetTop(_ context.Context, limit int) ([]account.Standing, bool, error) {
	rows, ok := c.pages[limit]
	return rows, ok, nil
}

func (c *memLeaderboardCache) SetTop(_ context.Context, limit int, rows []account.Standing) error {
	c.pages[limit] = rows
	return nil
}

func (c *memLeaderboardCache) InvalidateTop(context.Context) error {
	c.pages = map[int][]account.Standing{}
	return nil
}

type fakeStore struct {
	blobs map[string][]byte
}

func (f *fakeStore) Get(_ context.Context, hash string) ([]byte, error) {
	b, ok := f.blobs[hash]
	if !ok {
		return nil, shared.ErrContentNotFound
	}
	return b, nil
}

func (f *fakeStore) Put(context.Context, string, []byte) (string, error) { return "", nil }

func sampleExam(id uint64, hash string, level exam.Level) *exam.Exam {
	return &exam.Exam{
		ID:          exam.IDFromProposal(id),
		ContentHash: hash,
		Title:       "Sample",
		SkillType:   exam.SkillListening,
		Level:       level,
		Questions: []exam.Question{
			{Text: "Q1", Options: []string{"A", "B", "C", "D"}, CorrectAnswer: "D"},
		},
		ProposalID: id,
		Status:     exam.StatusApproved,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestListApprovedExams_ReadsThroughCache(t *testing.T) {
	repo := &fakeExams{list: []*exam.Exam{sampleExam(2, "QmB", exam.LevelC1), sampleExam(1, "QmA", exam.LevelB2)}}
	cache := &memCatalogCache{}
	h := NewListApprovedExamsHandler(repo, cache, nil)

	rows, err := h.Handle(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, exam.ID("TEST_2"), rows[0].ID)
	assert.Equal(t, int64(20), rows[0].Reward)
	assert.Equal(t, int64(15), rows[1].Reward)

	_, err = h.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listHits)
}

func TestFetchExam_StripsAnswers(t *testing.T) {
	repo := &fakeExams{list: []*exam.Exam{sampleExam(1, "QmA", exam.LevelB1)}}
	store := &fakeStore{blobs: map[string][]byte{
		"QmPending": []byte(`{"title":"Draft","questions":[{"question_text":"Q","options":["1","2","3","4"],"correct_answer":"2"}]}`),
	}}
	h := NewFetchExamHandler(repo, store, nil)

	for _, hash := range []string{"QmA", "QmPending"} {
		res, err := h.Handle(context.Background(), hash)
		require.NoError(t, err, hash)

		raw, err := json.Marshal(res.Content)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "correct_answer")
		assert.Len(t, res.Content.Questions, 1)
	}

	res, err := h.Handle(context.Background(), "QmA")
	require.NoError(t, err)
	assert.Equal(t, exam.ID("TEST_1"), res.ExamID)

	_, err = h.Handle(context.Background(), "QmNowhere")
	assert.True(t, shared.IsContentFetch(err))

	_, err = h.Handle(context.Background(), " ")
	assert.True(t, shared.IsValidation(err))
}

func TestGetProfile(t *testing.T) {
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	repo := &fakeAccounts{accounts: []*account.Account{{
		UserID:            "0x1111111111111111111111111111111111111111",
		HashedStudentID:   "secret",
		CardID:            "STU_1",
		RemainingAttempts: 3,
		Status:            account.StatusActive,
		CreatedAt:         created,
	}}}
	h := NewGetProfileHandler(repo)

	p, err := h.Handle(context.Background(), "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, 3, p.RemainingAttempts)
	assert.Equal(t, "2026-03-01T08:00:00Z", p.CreatedAt)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	_, err = h.Handle(context.Background(), "0x2222222222222222222222222222222222222222")
	assert.True(t, shared.IsNotFound(err))
}

func TestGetLeaderboard(t *testing.T) {
	var accts []*account.Account
	for i := 0; i < 15; i++ {
		accts = append(accts, &account.Account{UserID: "u", RemainingAttempts: 15 - i})
	}
	repo := &fakeAccounts{accounts: accts}
	cache := &memLeaderboardCache{pages: map[int][]account.Standing{}}
	h := NewGetLeaderboardHandler(repo, cache, nil)
	ctx := context.Background()

	rows, err := h.Handle(ctx, GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.Len(t, rows, 10)
	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, 15, rows[0].RemainingAttempts)
	assert.Contains(t, cache.pages, 10)

	_, err = h.Handle(ctx, GetLeaderboardQuery{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxLeaderboardLimit, repo.lastTop)

	_, err = h.Handle(ctx, GetLeaderboardQuery{Limit: -1})
	assert.True(t, shared.IsValidation(err))
}

func TestGetAdminStats(t *testing.T) {
	exams := &fakeExams{
		list: []*exam.Exam{sampleExam(1, "a", exam.LevelB1), sampleExam(2, "b", exam.LevelB1)},
		daily: []exam.DailyCount{
			{Day: "2026-10-10", Count: 1},
			{Day: "2026-10-14", Count: 2},
		},
	}
	accounts := &fakeAccounts{accounts: []*account.Account{{UserID: "a"}, {UserID: "b"}, {UserID: "c"}}}
	h := NewGetAdminStatsHandler(accounts, exams)
	h.now = func() time.Time { return time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC) }

	stats, err := h.Handle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalUsers)
	assert.Equal(t, 3, stats.TotalTests)
	assert.Equal(t, 2, stats.ApprovedTests)
	assert.Equal(t, 1, stats.PendingTests)
	assert.Equal(t, time.Date(2026, 10, 8, 0, 0, 0, 0, time.UTC), exams.since)

	require.Len(t, stats.ChartData, StatsWindowDays)
	assert.Equal(t, "2026-10-08", stats.ChartData[0].Day)
	assert.Equal(t, "2026-10-14", stats.ChartData[6].Day)
	assert.Equal(t, 1, stats.ChartData[2].Count)
	assert.Equal(t, 2, stats.ChartData[6].Count)
	assert.Zero(t, stats.ChartData[3].Count)
}
