package command

import (
	"context"
	"sync"
	"time"

	"github.com/vstep-dao/vstep-hub/internal/domain/account"
	"github.com/vstep-dao/vstep-hub/internal/domain/chain"
	"github.com/vstep-dao/vstep-hub/internal/domain/exam"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
)

const (
	submitter = "0x1111111111111111111111111111111111111111"
	proposer  = "0x2222222222222222222222222222222222222222"
)

// ──────────────────────────────────────────────────────────────────────────────
// exam.Repository
// ──────────────────────────────────────────────────────────────────────────────

type fakeExams struct {
	mu      sync.Mutex
	records map[exam.ID]*exam.Exam
	creates int

	// forceDuplicate makes Create fail as if another writer won.
	forceDuplicate bool
}

func newFakeExams() *fakeExams {
	return &fakeExams{records: make(map[exam.ID]*exam.Exam)}
}

func (f *fakeExams) Create(_ context.Context, e *exam.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.forceDuplicate {
		return shared.WrapError("exam", "Create", shared.ErrDuplicate, "exam already exists", nil)
	}
	if _, ok := f.records[e.ID]; ok {
		return shared.ErrExamAlreadyExists
	}
	f.records[e.ID] = e
	return nil
}

func (f *fakeExams) Exists(_ context.Context, id exam.ID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[id]
	return ok, nil
}

func (f *fakeExams) GetByID(_ context.Context, id exam.ID) (*exam.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.records[id]
	if !ok {
		return nil, shared.ErrExamNotFound
	}
	return e, nil
}

func (f *fakeExams) GetByContentHash(_ context.Context, hash string) (*exam.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.records {
		if e.ContentHash == hash {
			return e, nil
		}
	}
	return nil, shared.ErrExamNotFound
}

func (f *fakeExams) ListByStatus(context.Context, exam.Status) ([]*exam.Exam, error) {
	return nil, nil
}
func (f *fakeExams) Count(context.Context) (int, error)                      { return len(f.records), nil }
func (f *fakeExams) CountByStatus(context.Context, exam.Status) (int, error) { return 0, nil }
func (f *fakeExams) CountCreatedPerDay(context.Context, time.Time) ([]exam.DailyCount, error) {
	return nil, nil
}

func (f *fakeExams) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// ──────────────────────────────────────────────────────────────────────────────
// account.Repository
// ──────────────────────────────────────────────────────────────────────────────

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]*account.Account
}

func newFakeAccounts(accts ...*account.Account) *fakeAccounts {
	f := &fakeAccounts{accounts: make(map[string]*account.Account)}
	for _, a := range accts {
		f.accounts[a.UserID] = a
	}
	return f
}

func (f *fakeAccounts) Create(_ context.Context, a *account.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[a.UserID]; ok {
		return shared.ErrAccountAlreadyExists
	}
	for _, other := range f.accounts {
		if other.HashedStudentID == a.HashedStudentID {
			return shared.ErrStudentAlreadyLinked
		}
	}
	cp := *a
	f.accounts[a.UserID] = &cp
	return nil
}

func (f *fakeAccounts) GetByUserID(_ context.Context, userID string) (*account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[userID]
	if !ok {
		return nil, shared.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) ExistsByHashedStudentID(_ context.Context, hashed string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.HashedStudentID == hashed {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccounts) ConsumeAttempt(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[userID]
	if !ok {
		return 0, shared.ErrAccountNotFound
	}
	if a.RemainingAttempts <= 0 {
		return 0, shared.ErrNoAttemptsLeft
	}
	a.RemainingAttempts--
	return a.RemainingAttempts, nil
}

func (f *fakeAccounts) GrantAttempts(_ context.Context, userID string, n int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= 0 {
		return 0, shared.ErrInvalidGrant
	}
	a, ok := f.accounts[userID]
	if !ok {
		return 0, shared.ErrAccountNotFound
	}
	a.RemainingAttempts += n
	return a.RemainingAttempts, nil
}

func (f *fakeAccounts) TopByRemainingAttempts(context.Context, int) ([]*account.Account, error) {
	return nil, nil
}

func (f *fakeAccounts) Count(context.Context) (int, error) { return len(f.accounts), nil }

func (f *fakeAccounts) remaining(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[userID].RemainingAttempts
}

// ──────────────────────────────────────────────────────────────────────────────
// chain.Ledger
// ──────────────────────────────────────────────────────────────────────────────

type fakeLedger struct {
	mu        sync.Mutex
	proposals map[uint64]*chain.Proposal
	rewards   []chain.TxHandle

	issueErr error
	awaitErr error
	// block makes AwaitConfirmation wait for the context.
	block bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{proposals: make(map[uint64]*chain.Proposal)}
}

func (f *fakeLedger) GetProposal(_ context.Context, id uint64) (*chain.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[id]
	if !ok {
		return nil, shared.ErrProposalNotFound
	}
	return p, nil
}

func (f *fakeLedger) LatestBlock(context.Context) (uint64, error) { return 0, nil }

func (f *fakeLedger) QueryApprovals(context.Context, uint64, uint64) ([]chain.ApprovalEvent, error) {
	return nil, nil
}

func (f *fakeLedger) SubscribeApprovals(context.Context) (chain.Subscription, error) {
	return nil, shared.ErrLedgerTimeout
}

func (f *fakeLedger) IssueReward(_ context.Context, addr string, units int64) (chain.TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.issueErr != nil {
		return chain.TxHandle{}, f.issueErr
	}
	tx := chain.TxHandle{Hash: "0xtx", To: addr, Units: units}
	f.rewards = append(f.rewards, tx)
	return tx, nil
}

func (f *fakeLedger) AwaitConfirmation(ctx context.Context, _ chain.TxHandle) error {
	if f.block {
		<-ctx.Done()
		return shared.ErrLedgerTimeout
	}
	return f.awaitErr
}

// ──────────────────────────────────────────────────────────────────────────────
// content.Store
// ──────────────────────────────────────────────────────────────────────────────

type fakeStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	gets  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: make(map[string][]byte)}
}

func (f *fakeStore) Get(_ context.Context, hash string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	b, ok := f.blobs[hash]
	if !ok {
		return nil, shared.ErrContentNotFound
	}
	return b, nil
}

func (f *fakeStore) Put(_ context.Context, _ string, blob []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash := "Qm" + time.Now().Format("150405.000000000")
	f.blobs[hash] = blob
	return hash, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Caches and payout queue
// ──────────────────────────────────────────────────────────────────────────────

type fakePayouts struct {
	mu      sync.Mutex
	payouts []chain.Payout
	err     error
}

func (f *fakePayouts) Enqueue(p chain.Payout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payouts = append(f.payouts, p)
	return nil
}

type fakeInvalidations struct {
	mu    sync.Mutex
	count int
}

func (f *fakeInvalidations) hit() {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
}

type fakeCatalogCache struct{ fakeInvalidations }

func (f *fakeCatalogCache) GetApproved(context.Context) ([]exam.Summary, bool, error) {
	return nil, false, nil
}
func (f *fakeCatalogCache) SetApproved(context.Context, []exam.Summary) error { return nil }
func (f *fakeCatalogCache) InvalidateApproved(context.Context) error {
	f.hit()
	return nil
}

type fakeLeaderboardCache struct{ fakeInvalidations }

func (f *fakeLeaderboardCache) GetTop(context.Context, int) ([]account.Standing, bool, error) {
	return nil, false, nil
}
func (f *fakeLeaderboardCache) SetTop(context.Context, int, []account.Standing) error { return nil }
func (f *fakeLeaderboardCache) InvalidateTop(context.Context) error {
	f.hit()
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────────────────────────────────

func tenQuestions() []exam.Question {
	qs := make([]exam.Question, 10)
	for i := range qs {
		qs[i] = exam.Question{
			Text:          "question",
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "B",
		}
	}
	return qs
}

// answersWithCorrect answers the first n of ten questions correctly.
func answersWithCorrect(n int) []string {
	out := make([]string, 10)
	for i := range out {
		if i < n {
			out[i] = " b "
		} else {
			out[i] = "A"
		}
	}
	return out
}

func seedExam(repo *fakeExams, proposalID uint64, level exam.Level, proposerAddr string) *exam.Exam {
	e := &exam.Exam{
		ID:              exam.IDFromProposal(proposalID),
		ContentHash:     "QmSeed",
		Title:           "Seed",
		SkillType:       exam.SkillReading,
		Level:           level,
		Questions:       tenQuestions(),
		ProposalID:      proposalID,
		ProposerAddress: proposerAddr,
		Status:          exam.StatusApproved,
	}
	repo.records[e.ID] = e
	return e
}

func seedAccount(userID string, attempts int) *account.Account {
	return &account.Account{
		UserID:            userID,
		HashedStudentID:   account.HashStudentID(userID),
		CardID:            "STU_test",
		RemainingAttempts: attempts,
		Status:            account.StatusActive,
	}
}
