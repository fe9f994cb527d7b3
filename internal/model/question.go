package model

import (
	"sort"
)

// QuestionType is the closed set of question variants an exam can mix.
type QuestionType string

const (
	QuestionTypeSimple       QuestionType = "simple"
	QuestionTypeMultiple     QuestionType = "multiple"
	QuestionTypeConfidence   QuestionType = "confidence"
	QuestionTypeBranchParent QuestionType = "branch_parent"
	QuestionTypeBranchChild  QuestionType = "branch_child"
	QuestionTypeXOption      QuestionType = "x_option"
)

// Valid reports whether t is one of the known variants.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSimple, QuestionTypeMultiple, QuestionTypeConfidence,
		QuestionTypeBranchParent, QuestionTypeBranchChild, QuestionTypeXOption:
		return true
	}
	return false
}

// IsScored reports whether questions of this type count towards the
// attempted/skipped/correct/wrong denominators. The branch parent only picks a
// path and x_option is pure information.
func (t QuestionType) IsScored() bool {
	return t != QuestionTypeBranchParent && t != QuestionTypeXOption
}

// IsSingleAnswer reports whether the type stores its selection in SelectedAnswer.
func (t QuestionType) IsSingleAnswer() bool {
	switch t {
	case QuestionTypeSimple, QuestionTypeConfidence, QuestionTypeBranchParent, QuestionTypeBranchChild:
		return true
	}
	return false
}

// Option is a single selectable choice of a question.
type Option struct {
	Key  string `json:"key" validate:"required,len=1"`
	Text string `json:"text"`
}

// Question is immutable once fetched.
type Question struct {
	QuestionNumber int          `json:"questionNumber" validate:"min=1"`
	Type           QuestionType `json:"type" validate:"required,oneof=simple multiple confidence branch_parent branch_child x_option"`
	QuestionText   string       `json:"questionText"`
	Options        []Option     `json:"options" validate:"dive"`
	ParentQuestion int          `json:"parentQuestion,omitempty" validate:"required_if=Type branch_child"`
	BranchKey      string       `json:"branchKey,omitempty" validate:"required_if=Type branch_child,max=1"`
	MockTestCode   string       `json:"mockTestCode,omitempty"`
}

// HasOption reports whether key is one of the question's option keys.
func (q Question) HasOption(key string) bool {
	for _, o := range q.Options {
		if o.Key == key {
			return true
		}
	}
	return false
}

// ExamInfo is the exam header returned along with a question set.
type ExamInfo struct {
	ExamCode        string `json:"examCode" validate:"required"`
	Title           string `json:"title"`
	DurationMinutes int    `json:"durationMinutes" validate:"min=1"`
}

// QuestionSet is the exam paper for one (examCode, mockTestCode) selection.
type QuestionSet struct {
	Exam      ExamInfo   `json:"exam"`
	Questions []Question `json:"questions" validate:"dive"`
}

// DurationSeconds returns the configured exam duration in seconds.
func (s *QuestionSet) DurationSeconds() int {
	return s.Exam.DurationMinutes * 60
}

// NormalizeQuestions keeps the questions that belong to mockTestCode (untagged
// questions belong to every form) and orders them by question number. The sort
// is stable so branch children keep their source order after the parent.
func NormalizeQuestions(questions []Question, mockTestCode string) []Question {
	out := make([]Question, 0, len(questions))
	for _, q := range questions {
		if mockTestCode != "" && q.MockTestCode != "" && q.MockTestCode != mockTestCode {
			continue
		}
		out = append(out, q)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].QuestionNumber < out[j].QuestionNumber
	})
	return out
}
