package model

import (
	"slices"
	"strings"
	"time"
)

// AnswerStatus is the per-question progress state.
type AnswerStatus string

const (
	AnswerStatusNotVisited AnswerStatus = "not_visited"
	AnswerStatusAttempted  AnswerStatus = "attempted"
	AnswerStatusSkipped    AnswerStatus = "skipped"
)

// Confidence is the self-reported certainty for confidence questions.
type Confidence string

const (
	ConfidenceNone Confidence = ""
	ConfidenceHigh Confidence = "high"
	ConfidenceMid  Confidence = "mid"
	ConfidenceLow  Confidence = "low"
)

// Valid reports whether c is a selectable level. The empty value is not.
func (c Confidence) Valid() bool {
	return c == ConfidenceHigh || c == ConfidenceMid || c == ConfidenceLow
}

// MainBranch is the branch component of every answer key except branch children.
const MainBranch = "main"

// ClearedLabel is the history label recorded when a selection is emptied.
const ClearedLabel = "-"

// AnswerKey identifies an answer. Branch children of different branches may
// reuse a question number, so the branch is part of the key.
type AnswerKey struct {
	Type   QuestionType
	Branch string
	Number int
}

// KeyOf returns the answer key of q.
func KeyOf(q Question) AnswerKey {
	branch := MainBranch
	if q.Type == QuestionTypeBranchChild {
		branch = q.BranchKey
	}
	return AnswerKey{Type: q.Type, Branch: branch, Number: q.QuestionNumber}
}

// ParentKeyOf returns the key of the branch parent that unlocks the child q.
func ParentKeyOf(q Question) AnswerKey {
	return AnswerKey{Type: QuestionTypeBranchParent, Branch: MainBranch, Number: q.ParentQuestion}
}

// Tracking is the visit and change telemetry of a single question.
// A nil CurrentVisitStartedAt means the question is not being viewed.
type Tracking struct {
	CurrentVisitStartedAt *time.Time `json:"currentVisitStartedAt,omitempty"`
	FirstVisitMs          *int64     `json:"firstVisitMs"`
	RevisitChangeMs       []int64    `json:"revisitChangeMs"`
	VisitDurationsMs      []int64    `json:"visitDurationsMs"`
	TotalTimeMs           int64      `json:"totalTimeMs"`
	AnswerHistory         []string   `json:"answerHistory"`
	AnswerChangeCount     int        `json:"answerChangeCount"`
}

// VisitOpen reports whether a visit is in progress.
func (t *Tracking) VisitOpen() bool {
	return t.CurrentVisitStartedAt != nil
}

// SumVisitDurations recomputes the total from the closed visits.
func (t *Tracking) SumVisitDurations() int64 {
	var total int64
	for _, d := range t.VisitDurationsMs {
		total += d
	}
	return total
}

// Clone returns a deep copy.
func (t Tracking) Clone() Tracking {
	out := t
	if t.CurrentVisitStartedAt != nil {
		at := *t.CurrentVisitStartedAt
		out.CurrentVisitStartedAt = &at
	}
	if t.FirstVisitMs != nil {
		v := *t.FirstVisitMs
		out.FirstVisitMs = &v
	}
	out.RevisitChangeMs = slices.Clone(t.RevisitChangeMs)
	out.VisitDurationsMs = slices.Clone(t.VisitDurationsMs)
	out.AnswerHistory = slices.Clone(t.AnswerHistory)
	return out
}

// Answer is the mutable per-question state.
type Answer struct {
	Status          AnswerStatus `json:"status"`
	SelectedAnswer  string       `json:"selectedAnswer"`
	SelectedAnswers []string     `json:"selectedAnswers"`
	Confidence      Confidence   `json:"confidence,omitempty"`
	Tracking        Tracking     `json:"tracking"`
}

// NewAnswer returns an unvisited answer.
func NewAnswer() *Answer {
	return &Answer{Status: AnswerStatusNotVisited}
}

// HasSelection reports whether a selection exists for a question of type t.
func (a *Answer) HasSelection(t QuestionType) bool {
	if a == nil {
		return false
	}
	if t == QuestionTypeMultiple {
		return len(a.SelectedAnswers) > 0
	}
	return a.SelectedAnswer != ""
}

// HistoryLabel encodes the current selection for the answer history.
func (a *Answer) HistoryLabel(t QuestionType) string {
	if t == QuestionTypeMultiple {
		if len(a.SelectedAnswers) == 0 {
			return ClearedLabel
		}
		keys := slices.Clone(a.SelectedAnswers)
		slices.Sort(keys)
		return strings.Join(keys, ",")
	}
	if a.SelectedAnswer == "" {
		return ClearedLabel
	}
	return a.SelectedAnswer
}

// ClearSelection drops the selection and the confidence level.
func (a *Answer) ClearSelection() {
	a.SelectedAnswer = ""
	a.SelectedAnswers = nil
	a.Confidence = ConfidenceNone
}

// Clone returns a deep copy.
func (a Answer) Clone() Answer {
	out := a
	out.SelectedAnswers = slices.Clone(a.SelectedAnswers)
	out.Tracking = a.Tracking.Clone()
	return out
}
