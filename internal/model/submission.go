package model

import (
	"time"
)

// QuestionRecord is the emitted state of one question in a submission.
type QuestionRecord struct {
	QuestionNumber    int          `json:"questionNumber"`
	Type              QuestionType `json:"type"`
	BranchKey         string       `json:"branchKey,omitempty"`
	SelectedAnswer    string       `json:"selectedAnswer"`
	SelectedAnswers   []string     `json:"selectedAnswers"`
	Confidence        Confidence   `json:"confidence,omitempty"`
	Status            AnswerStatus `json:"status"`
	FirstVisitMs      *int64       `json:"firstVisitMs"`
	RevisitChangeMs   []int64      `json:"revisitChangeMs"`
	VisitDurationsMs  []int64      `json:"visitDurationsMs"`
	TotalTimeMs       int64        `json:"totalTimeMs"`
	AnswerHistory     []string     `json:"answerHistory"`
	AnswerChangeCount int          `json:"answerChangeCount"`
}

// SubmissionPayload is the contract handed to the external scoring service.
type SubmissionPayload struct {
	ExamCode         string           `json:"examCode"`
	MockTestCode     string           `json:"mockTestCode,omitempty"`
	StudentID        int              `json:"studentId"`
	AutoSubmitted    bool             `json:"autoSubmitted"`
	StartedAt        time.Time        `json:"startedAt"`
	EndedAt          time.Time        `json:"endedAt"`
	DurationSeconds  int              `json:"durationSeconds"`
	TimeTakenSeconds int              `json:"timeTakenSeconds"`
	AttemptedCount   int              `json:"attemptedCount"`
	SkippedCount     int              `json:"skippedCount"`
	NotVisitedCount  int              `json:"notVisitedCount"`
	Questions        []QuestionRecord `json:"questions"`
}

// SubmitResult is the scoring service's answer to a submission.
type SubmitResult struct {
	Success        bool    `json:"success"`
	AttemptID      string  `json:"attemptId"`
	TotalMarks     float64 `json:"totalMarks"`
	CorrectCount   int     `json:"correctCount"`
	WrongCount     int     `json:"wrongCount"`
	AttemptedCount int     `json:"attemptedCount"`
	SkippedCount   int     `json:"skippedCount"`
	Message        string  `json:"message,omitempty"`
}

// AttemptQuestionResult is the per-question review data of a scored attempt.
type AttemptQuestionResult struct {
	QuestionRecord
	IsCorrect      bool     `json:"isCorrect"`
	CorrectAnswer  string   `json:"correctAnswer,omitempty"`
	CorrectAnswers []string `json:"correctAnswers,omitempty"`
	Marks          float64  `json:"marks"`
	MarksReason    string   `json:"marksReason,omitempty"`
}

// AttemptDetail is the read-only review of a scored attempt.
type AttemptDetail struct {
	SubmitResult
	ExamCode     string                  `json:"examCode"`
	MockTestCode string                  `json:"mockTestCode,omitempty"`
	Questions    []AttemptQuestionResult `json:"questions"`
}

// AttemptReceipt is the locally persisted outcome of a successful submission.
// It carries no answers.
type AttemptReceipt struct {
	AttemptID        string    `json:"attempt_id"`
	StudentID        int       `json:"student_id"`
	ExamCode         string    `json:"exam_code"`
	MockTestCode     string    `json:"mock_test_code,omitempty"`
	AutoSubmitted    bool      `json:"auto_submitted"`
	TotalMarks       float64   `json:"total_marks"`
	CorrectCount     int       `json:"correct_count"`
	WrongCount       int       `json:"wrong_count"`
	AttemptedCount   int       `json:"attempted_count"`
	SkippedCount     int       `json:"skipped_count"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	TimeTakenSeconds int       `json:"time_taken_seconds"`
}
