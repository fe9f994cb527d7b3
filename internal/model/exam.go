package model

import (
	"errors"
	"fmt"
)

// ErrInvalidQuestionSet is returned when a fetched paper breaks the branch structure.
var ErrInvalidQuestionSet = errors.New("invalid question set")

// ExamSummary is one entry of the student's exam catalog.
type ExamSummary struct {
	ExamCode         string   `json:"examCode"`
	Title            string   `json:"title"`
	TotalQuestions   int      `json:"totalQuestions"`
	TotalTimeMinutes int      `json:"totalTimeMinutes"`
	IsPaid           bool     `json:"isPaid"`
	IsEligible       bool     `json:"isEligible"`
	RequiresPayment  bool     `json:"requiresPayment"`
	MockTestCodes    []string `json:"mockTestCodes,omitempty"`
}

// CheckBranches verifies the decision-tree structure of the set: every branch
// child points at an existing branch parent and at one of its option keys, and
// no two questions share an answer key.
func (s *QuestionSet) CheckBranches() error {
	parents := make(map[int]Question)
	seen := make(map[AnswerKey]struct{}, len(s.Questions))

	for _, q := range s.Questions {
		key := KeyOf(q)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate question %d (%s/%s)", ErrInvalidQuestionSet, q.QuestionNumber, q.Type, key.Branch)
		}
		seen[key] = struct{}{}

		if q.Type == QuestionTypeBranchParent {
			parents[q.QuestionNumber] = q
		}
	}

	for _, q := range s.Questions {
		if q.Type != QuestionTypeBranchChild {
			continue
		}
		parent, ok := parents[q.ParentQuestion]
		if !ok {
			return fmt.Errorf("%w: question %d references missing branch parent %d", ErrInvalidQuestionSet, q.QuestionNumber, q.ParentQuestion)
		}
		if !parent.HasOption(q.BranchKey) {
			return fmt.Errorf("%w: question %d uses branch key %q not offered by question %d", ErrInvalidQuestionSet, q.QuestionNumber, q.BranchKey, q.ParentQuestion)
		}
	}
	return nil
}
