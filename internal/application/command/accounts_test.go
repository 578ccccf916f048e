package command

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vstep-dao/vstep-hub/internal/domain/account"
	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
)

func TestRegisterOrLogin(t *testing.T) {
	repo := newFakeAccounts()
	h := NewRegisterOrLoginHandler(repo, nil)
	ctx := context.Background()

	res, err := h.Handle(ctx, RegisterOrLoginCommand{UserID: submitter, StudentID: "SV-001"})
	require.NoError(t, err)
	assert.Equal(t, ActionRegister, res.Action)
	assert.Equal(t, account.InitialAttempts, res.Account.RemainingAttempts)
	assert.True(t, strings.HasPrefix(res.Account.CardID, CardIDPrefix))
	assert.Equal(t, account.HashStudentID("SV-001"), res.Account.HashedStudentID)

	res, err = h.Handle(ctx, RegisterOrLoginCommand{UserID: submitter, StudentID: "anything"})
	require.NoError(t, err)
	assert.Equal(t, ActionLogin, res.Action)

	_, err = h.Handle(ctx, RegisterOrLoginCommand{UserID: proposer, StudentID: "SV-001"})
	assert.ErrorIs(t, err, shared.ErrStudentAlreadyLinked)
	assert.True(t, shared.IsDuplicate(err))

	_, err = h.Handle(ctx, RegisterOrLoginCommand{UserID: proposer, StudentID: "  "})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, RegisterOrLoginCommand{UserID: "0x123", StudentID: "SV-002"})
	assert.True(t, shared.IsValidation(err))
}

func TestGrantAttempts(t *testing.T) {
	repo := newFakeAccounts(seedAccount(submitter, 0))
	lb := &fakeLeaderboardCache{}
	h := NewGrantAttemptsHandler(repo, lb, nil)
	ctx := context.Background()

	res, err := h.Handle(ctx, GrantAttemptsCommand{UserID: submitter, Count: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, res.RemainingAttempts)
	assert.Equal(t, 1, lb.count)

	_, err = h.Handle(ctx, GrantAttemptsCommand{UserID: submitter, Count: 0})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, GrantAttemptsCommand{UserID: proposer, Count: 1})
	assert.True(t, shared.IsNotFound(err))
}

func TestUploadContent(t *testing.T) {
	store := newFakeStore()
	h := NewUploadContentHandler(store, nil)
	ctx := context.Background()

	res, err := h.Handle(ctx, UploadContentCommand{Content: exam.Content{
		Title:     "Listening 1",
		Questions: tenQuestions(),
	}})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ContentHash)
	assert.True(t, strings.HasPrefix(res.Name, "VSTEP_"))

	parsed, err := exam.ParseContent(store.blobs[res.ContentHash], 1)
	require.NoError(t, err)
	assert.Equal(t, exam.LevelB1, parsed.Level)
	assert.Len(t, parsed.Questions, 10)

	_, err = h.Handle(ctx, UploadContentCommand{Content: exam.Content{Title: "empty"}})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, UploadContentCommand{Content: exam.Content{Level: "A2", Questions: tenQuestions()}})
	assert.True(t, shared.IsValidation(err))
}

func TestRegisterOrLogin_AddressSpellingsShareOneAccount(t *testing.T) {
	const (
		lower       = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
		upper       = "0X5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED"
		checksummed = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	)
	repo := newFakeAccounts()
	h := NewRegisterOrLoginHandler(repo, nil)
	ctx := context.Background()

	res, err := h.Handle(ctx, RegisterOrLoginCommand{UserID: lower, StudentID: "SV-001"})
	require.NoError(t, err)
	assert.Equal(t, ActionRegister, res.Action)

	for _, spelling := range []string{upper, checksummed} {
		res, err := h.Handle(ctx, RegisterOrLoginCommand{UserID: spelling, StudentID: "SV-002"})
		require.NoError(t, err, spelling)
		assert.Equal(t, ActionLogin, res.Action, spelling)
		assert.Equal(t, lower, res.Account.UserID, spelling)
	}
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = repo.GrantAttempts(ctx, lower, 1)
	require.NoError(t, err)

	exams := newFakeExams()
	seedExam(exams, 42, exam.LevelB1, proposer)
	submit := NewSubmitExamHandler(
		repo, exams, newFakeLedger(), &fakePayouts{}, &fakeLeaderboardCache{}, nil, nil,
		SubmitExamHandlerConfig{RewardTimeout: 200 * time.Millisecond},
	)
	for i, spelling := range []string{lower, upper, checksummed} {
		out, err := submit.Handle(ctx, SubmitExamCommand{UserID: spelling, TestRef: "42", Answers: answersWithCorrect(7)})
		require.NoError(t, err, spelling)
		assert.Equal(t, account.InitialAttempts-i, out.RemainingAttemptsAfter, spelling)
	}
	assert.Zero(t, repo.remaining(lower))
}
