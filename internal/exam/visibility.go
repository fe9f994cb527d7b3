package exam

import (
	"github.com/stemsi/exstem-session/internal/model"
)

// Visible returns the questions the student can currently navigate, in source
// order. A branch child is visible only once its parent's answer selects the
// child's branch key; before the branch is chosen neither branch shows up.
//
// Visible has no side effects and is cheap enough to call on every render.
func Visible(questions []model.Question, answers AnswerReader) []model.Question {
	out := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		if !Unlocked(q, answers) {
			continue
		}
		out = append(out, q)
	}
	return out
}

// Unlocked reports whether q is reachable under the current answers. Every
// question other than a branch child is always unlocked.
func Unlocked(q model.Question, answers AnswerReader) bool {
	if q.Type != model.QuestionTypeBranchChild {
		return true
	}
	if answers == nil {
		return false
	}
	parent, ok := answers.Answer(model.ParentKeyOf(q))
	if !ok || parent.SelectedAnswer == "" {
		return false
	}
	return parent.SelectedAnswer == q.BranchKey
}
