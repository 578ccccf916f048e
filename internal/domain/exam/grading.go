package exam

import "strings"

// PassThreshold is the minimum score, in percent, that passes an exam.
const PassThreshold = 70.0

// Grade is the result of scoring one submission.
type Grade struct {
	CorrectCount   int
	TotalQuestions int
	ScorePercent   float64
	IsPass         bool
}

// GradeAnswers scores answers against questions. answers[i] is the answer to
// questions[i]; missing or extra answers are never an error.
func GradeAnswers(questions []Question, answers []string) Grade {
	correct := 0
	for i, q := range questions {
		var given string
		if i < len(answers) {
			given = answers[i]
		}
		if normalizeAnswer(given) == normalizeAnswer(q.CorrectAnswer) {
			correct++
		}
	}

	g := Grade{
		CorrectCount:   correct,
		TotalQuestions: len(questions),
	}
	if g.TotalQuestions > 0 {
		g.ScorePercent = float64(100*correct) / float64(g.TotalQuestions)
	}
	g.IsPass = Passed(g.ScorePercent)

	return g
}

// Passed reports whether a score meets the pass threshold (inclusive).
func Passed(scorePercent float64) bool {
	return scorePercent >= PassThreshold
}

func normalizeAnswer(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}
