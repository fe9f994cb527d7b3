package model

import (
	"time"
)

// SessionMarker is the persisted origin of an attempt's countdown. It survives
// reloads and reconnects and is cleared on submission or exam change.
type SessionMarker struct {
	ExamCode        string    `json:"exam_code"`
	MockTestCode    string    `json:"mock_test_code,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds int       `json:"duration_seconds"`
}

// Matches reports whether the marker belongs to the given exam/mock selection.
func (m *SessionMarker) Matches(examCode, mockTestCode string) bool {
	return m != nil && m.ExamCode == examCode && m.MockTestCode == mockTestCode
}

// Counts summarizes progress over the scored, visible questions.
type Counts struct {
	Attempted  int `json:"attempted"`
	Skipped    int `json:"skipped"`
	NotVisited int `json:"not_visited"`
}

// NavigatorCell is one tile of the overview grid.
type NavigatorCell struct {
	Index          int          `json:"index"`
	QuestionNumber int          `json:"question_number"`
	Type           QuestionType `json:"type"`
	Status         AnswerStatus `json:"status"`
}

// SessionState is the rendered view of a live session.
type SessionState struct {
	SessionID       string          `json:"session_id"`
	ExamCode        string          `json:"exam_code"`
	MockTestCode    string          `json:"mock_test_code,omitempty"`
	Position        int             `json:"position"`
	VisibleCount    int             `json:"visible_count"`
	Current         *Question       `json:"current,omitempty"`
	CurrentAnswer   *Answer         `json:"current_answer,omitempty"`
	Navigator       []NavigatorCell `json:"navigator"`
	Counts          Counts          `json:"counts"`
	TimeLeftSeconds int             `json:"time_left_seconds"`
	Notice          string          `json:"notice,omitempty"`
	Submitting      bool            `json:"submitting"`
	Submitted       bool            `json:"submitted"`
	AutoSubmitted   bool            `json:"auto_submitted"`
}
