package exam

import (
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

// Tracker records visit durations and answer changes on top of an AnswerStore.
// Duplicate starts and ends are ignored, so repeated event delivery is harmless.
type Tracker struct {
	answers *AnswerStore
	now     Clock
}

// NewTracker creates a Tracker writing into answers.
func NewTracker(answers *AnswerStore, now Clock) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{answers: answers, now: now}
}

// VisitStart opens a visit on q unless one is already open.
func (t *Tracker) VisitStart(q model.Question) {
	a := t.answers.Ensure(q)
	if a.Tracking.VisitOpen() {
		return
	}
	at := t.now()
	a.Tracking.CurrentVisitStartedAt = &at
}

// VisitEnd closes the open visit on q at the given time. No-op without an open visit.
func (t *Tracker) VisitEnd(q model.Question, at time.Time) {
	a := t.answers.Lookup(q)
	if a == nil || !a.Tracking.VisitOpen() {
		return
	}
	closeVisit(&a.Tracking, at)
}

// Change records a selection change on q. It must run after the answer was
// updated so the history label reflects the new selection.
//
// The first change in the question's history sets FirstVisitMs. Any later
// change made on a visit after the first one is appended to RevisitChangeMs.
// A change without an open visit is timed at 0 and opens no visit.
func (t *Tracker) Change(q model.Question) {
	a := t.answers.Ensure(q)
	tr := &a.Tracking

	var elapsed int64
	if tr.VisitOpen() {
		elapsed = max(t.now().Sub(*tr.CurrentVisitStartedAt).Milliseconds(), 0)
	}

	switch {
	case tr.FirstVisitMs == nil:
		tr.FirstVisitMs = &elapsed
	case len(tr.VisitDurationsMs) > 0:
		tr.RevisitChangeMs = append(tr.RevisitChangeMs, elapsed)
	}

	tr.AnswerHistory = append(tr.AnswerHistory, a.HistoryLabel(q.Type))
	tr.AnswerChangeCount++
}

// CloseAll finalizes every open visit at the given time.
func (t *Tracker) CloseAll(at time.Time) {
	t.answers.each(func(_ model.AnswerKey, a *model.Answer) {
		if a.Tracking.VisitOpen() {
			closeVisit(&a.Tracking, at)
		}
	})
}

// Begin opens a visit on q and returns its handle.
func (t *Tracker) Begin(q model.Question) *Visit {
	t.VisitStart(q)
	return &Visit{tracker: t, question: q}
}

func closeVisit(tr *model.Tracking, at time.Time) {
	d := max(at.Sub(*tr.CurrentVisitStartedAt).Milliseconds(), 0)
	tr.VisitDurationsMs = append(tr.VisitDurationsMs, d)
	tr.TotalTimeMs += d
	tr.CurrentVisitStartedAt = nil
}

// Visit is a scoped handle on an open visit. End closes it exactly once.
type Visit struct {
	tracker  *Tracker
	question model.Question
	ended    bool
}

// End closes the visit. Safe on a nil or already ended handle.
func (v *Visit) End() {
	if v == nil || v.ended {
		return
	}
	v.ended = true
	v.tracker.VisitEnd(v.question, v.tracker.now())
}

// Active reports whether the visit is still open.
func (v *Visit) Active() bool {
	return v != nil && !v.ended
}

// Key returns the answer key of the visited question.
func (v *Visit) Key() model.AnswerKey {
	return model.KeyOf(v.question)
}
