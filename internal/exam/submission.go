package exam

import (
	"slices"
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

// SubmissionMeta is the session metadata attached to a submission.
type SubmissionMeta struct {
	ExamCode        string
	MockTestCode    string
	StudentID       int
	AutoSubmitted   bool
	StartedAt       time.Time
	DurationSeconds int
}

// BuildSubmission finalizes every open visit and serializes the answers of
// the full question list. Branch children that are not unlocked are emitted
// empty and not_visited whatever their in-memory state, and totalTimeMs is
// recomputed from the closed visits.
func BuildSubmission(questions []model.Question, answers *AnswerStore, tracker *Tracker, meta SubmissionMeta, endedAt time.Time) *model.SubmissionPayload {
	tracker.CloseAll(endedAt)

	payload := &model.SubmissionPayload{
		ExamCode:        meta.ExamCode,
		MockTestCode:    meta.MockTestCode,
		StudentID:       meta.StudentID,
		AutoSubmitted:   meta.AutoSubmitted,
		StartedAt:       meta.StartedAt,
		EndedAt:         endedAt,
		DurationSeconds: meta.DurationSeconds,
		Questions:       make([]model.QuestionRecord, 0, len(questions)),
	}
	payload.TimeTakenSeconds = max(int(endedAt.Sub(meta.StartedAt)/time.Second), 0)

	for _, q := range questions {
		rec := buildRecord(q, answers.Lookup(q))

		unlocked := Unlocked(q, answers)
		if !unlocked {
			rec.SelectedAnswer = ""
			rec.SelectedAnswers = []string{}
			rec.Confidence = model.ConfidenceNone
			rec.Status = model.AnswerStatusNotVisited
		}

		if unlocked && q.Type.IsScored() {
			switch rec.Status {
			case model.AnswerStatusAttempted:
				payload.AttemptedCount++
			case model.AnswerStatusSkipped:
				payload.SkippedCount++
			default:
				payload.NotVisitedCount++
			}
		}

		payload.Questions = append(payload.Questions, rec)
	}

	return payload
}

func buildRecord(q model.Question, a *model.Answer) model.QuestionRecord {
	rec := model.QuestionRecord{
		QuestionNumber:   q.QuestionNumber,
		Type:             q.Type,
		Status:           model.AnswerStatusNotVisited,
		SelectedAnswers:  []string{},
		RevisitChangeMs:  []int64{},
		VisitDurationsMs: []int64{},
		AnswerHistory:    []string{},
	}
	if q.Type == model.QuestionTypeBranchChild {
		rec.BranchKey = q.BranchKey
	}
	if a == nil {
		return rec
	}

	tr := a.Tracking.Clone()
	rec.FirstVisitMs = tr.FirstVisitMs
	if tr.RevisitChangeMs != nil {
		rec.RevisitChangeMs = tr.RevisitChangeMs
	}
	if tr.VisitDurationsMs != nil {
		rec.VisitDurationsMs = tr.VisitDurationsMs
	}
	if tr.AnswerHistory != nil {
		rec.AnswerHistory = tr.AnswerHistory
	}
	rec.TotalTimeMs = tr.SumVisitDurations()
	rec.AnswerChangeCount = tr.AnswerChangeCount

	if q.Type == model.QuestionTypeMultiple {
		if len(a.SelectedAnswers) > 0 {
			rec.SelectedAnswers = slices.Sorted(slices.Values(a.SelectedAnswers))
		}
	} else {
		rec.SelectedAnswer = a.SelectedAnswer
	}
	if q.Type == model.QuestionTypeConfidence {
		rec.Confidence = a.Confidence
	}

	rec.Status = a.Status
	if q.Type.IsScored() {
		// Status follows the selection; only skipped survives without one.
		if a.HasSelection(q.Type) {
			rec.Status = model.AnswerStatusAttempted
		} else if rec.Status == model.AnswerStatusAttempted {
			rec.Status = model.AnswerStatusNotVisited
		}
	}
	return rec
}
