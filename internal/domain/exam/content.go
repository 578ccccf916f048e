package exam

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
)

// Content is the document stored in the content store under its hash.
type Content struct {
	Title     string     `json:"title"`
	Type      SkillType  `json:"type"`
	Level     Level      `json:"level"`
	Questions []Question `json:"questions"`
}

// ParseContent decodes a content blob and fills defaults for the optional
// header fields. proposalID is only used for the default title.
//
// A blob without a well-formed question list is rejected with an error
// matching shared.ErrContentFetch.
func ParseContent(blob []byte, proposalID uint64) (*Content, error) {
	var c Content
	if err := json.Unmarshal(blob, &c); err != nil {
		return nil, shared.WrapError("exam", "ParseContent", shared.ErrContentFetch, "content is not valid JSON", err)
	}

	c.applyDefaults(proposalID)

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Content) applyDefaults(proposalID uint64) {
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		c.Title = fmt.Sprintf("Exam #%d", proposalID)
	}
	if c.Type == "" {
		c.Type = SkillReading
	}
	if c.Level == "" {
		c.Level = LevelB1
	}
}

// Validate checks the header fields and every question.
func (c *Content) Validate() error {
	if !c.Level.IsValid() {
		return malformed(fmt.Sprintf("unknown level %q", c.Level))
	}
	if !c.Type.IsValid() {
		return malformed(fmt.Sprintf("unknown skill type %q", c.Type))
	}
	if len(c.Questions) == 0 {
		return shared.ErrMalformedContent
	}

	for i, q := range c.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return malformed(fmt.Sprintf("question %d has no text", i+1))
		}
		if len(q.Options) != OptionsPerQuestion {
			return malformed(fmt.Sprintf("question %d has %d options, want %d", i+1, len(q.Options), OptionsPerQuestion))
		}
		if strings.TrimSpace(q.CorrectAnswer) == "" {
			return malformed(fmt.Sprintf("question %d has no correct answer", i+1))
		}
	}

	return nil
}

// Marshal encodes the content for the content store.
func (c *Content) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

func malformed(msg string) error {
	return shared.NewDomainError("exam", "ParseContent", shared.ErrContentFetch, msg)
}

// ══════════════════════════════════════════════════════════════════════════════
// SANITIZED VIEW
// ══════════════════════════════════════════════════════════════════════════════

// PublicQuestion is a question as shown to a test taker. It has no field
// for the correct answer, so one cannot leak through serialization.
type PublicQuestion struct {
	Text    string   `json:"question_text"`
	Options []string `json:"options"`
}

// PublicContent is the exam-taking view of a content document.
type PublicContent struct {
	Title     string           `json:"title"`
	Type      SkillType        `json:"type"`
	Level     Level            `json:"level"`
	Questions []PublicQuestion `json:"questions"`
}

// Sanitize strips correct answers from every question.
func Sanitize(c *Content) *PublicContent {
	out := &PublicContent{
		Title:     c.Title,
		Type:      c.Type,
		Level:     c.Level,
		Questions: make([]PublicQuestion, len(c.Questions)),
	}
	for i, q := range c.Questions {
		opts := make([]string, len(q.Options))
		copy(opts, q.Options)
		out.Questions[i] = PublicQuestion{Text: q.Text, Options: opts}
	}
	return out
}

// ContentOf rebuilds the content document of a stored exam.
func ContentOf(e *Exam) *Content {
	return &Content{
		Title:     e.Title,
		Type:      e.SkillType,
		Level:     e.Level,
		Questions: e.Questions,
	}
}
