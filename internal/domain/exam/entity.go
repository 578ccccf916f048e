// Package exam contains the catalog model: exam records materialized from
// approved governance proposals, their content, and the grading rules.
// No external dependencies beyond the JSON codec.
package exam

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// IDPrefix is prepended to the decimal proposal id to form an exam id.
const IDPrefix = "TEST_"

// ID is the catalog identifier of an exam, e.g. "TEST_42".
type ID string

// String returns the string representation.
func (id ID) String() string {
	return string(id)
}

// IDFromProposal derives the exam id for a proposal. One proposal maps to
// exactly one exam id.
func IDFromProposal(proposalID uint64) ID {
	return ID(IDPrefix + strconv.FormatUint(proposalID, 10))
}

// NormalizeRef accepts either a raw proposal reference ("42") or an already
// prefixed id ("TEST_42") and returns the canonical exam id.
func NormalizeRef(ref string) (ID, error) {
	ref = strings.TrimSpace(ref)
	raw := strings.TrimPrefix(ref, IDPrefix)
	if raw == "" {
		return "", shared.ErrInvalidExamRef
	}

	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return "", shared.WrapError("exam", "NormalizeRef", shared.ErrValidation,
			fmt.Sprintf("invalid exam reference %q", ref), err)
	}

	return IDFromProposal(n), nil
}

// Level is the CEFR tier of an exam.
type Level string

const (
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
)

// IsValid checks the level is one of the supported tiers.
func (l Level) IsValid() bool {
	switch l {
	case LevelB1, LevelB2, LevelC1:
		return true
	}
	return false
}

// SkillType is the skill an exam assesses.
type SkillType string

const (
	SkillReading   SkillType = "Reading"
	SkillListening SkillType = "Listening"
)

// IsValid checks the skill type is supported.
func (s SkillType) IsValid() bool {
	return s == SkillReading || s == SkillListening
}

// Status of a catalog record. Records created from ledger approvals are
// always approved; pending is reserved for records staged by operators.
type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// OptionsPerQuestion is the fixed number of answer options.
const OptionsPerQuestion = 4

// Question is a single multiple-choice item.
type Question struct {
	Text          string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// Exam is a catalog record. It is written once by reconciliation and never
// mutated afterwards.
type Exam struct {
	ID              ID
	ContentHash     string
	Title           string
	SkillType       SkillType
	Level           Level
	Questions       []Question
	ProposalID      uint64
	ProposerAddress string
	Status          Status
	CreatedAt       time.Time
}

// NewExamParams holds the inputs for NewExam.
type NewExamParams struct {
	ProposalID      uint64
	ContentHash     string
	ProposerAddress string
	Content         *Content
	CreatedAt       time.Time
}

// NewExam builds an approved exam record from a proposal and its parsed content.
func NewExam(p NewExamParams) (*Exam, error) {
	if p.Content == nil || len(p.Content.Questions) == 0 {
		return nil, shared.ErrMalformedContent
	}
	if strings.TrimSpace(p.ContentHash) == "" {
		return nil, shared.NewDomainError("exam", "New", shared.ErrValidation, "content hash is required")
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &Exam{
		ID:              IDFromProposal(p.ProposalID),
		ContentHash:     p.ContentHash,
		Title:           p.Content.Title,
		SkillType:       p.Content.Type,
		Level:           p.Content.Level,
		Questions:       p.Content.Questions,
		ProposalID:      p.ProposalID,
		ProposerAddress: p.ProposerAddress,
		Status:          StatusApproved,
		CreatedAt:       createdAt,
	}, nil
}

// Reward returns the primary reward for passing this exam.
func (e *Exam) Reward() int64 {
	return RewardFor(e.Level)
}

// AuthoredBy reports whether addr is the exam's proposer, ignoring case.
func (e *Exam) AuthoredBy(addr string) bool {
	return e.ProposerAddress != "" && strings.EqualFold(e.ProposerAddress, addr)
}
