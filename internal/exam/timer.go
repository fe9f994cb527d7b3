package exam

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
)

// SessionStore persists the countdown origin of a student's active attempt so
// reloads and reconnects do not reset the timer.
type SessionStore interface {
	Load(ctx context.Context, studentID int) (*model.SessionMarker, error)
	Save(ctx context.Context, studentID int, marker model.SessionMarker) error
	Clear(ctx context.Context, studentID int) error
}

// Timer is the wall-clock countdown of one attempt. Time left is always
// recomputed from the persisted origin, never decremented, so missed ticks
// cannot skew it.
type Timer struct {
	store     SessionStore
	studentID int
	marker    model.SessionMarker
	now       Clock
	log       zerolog.Logger

	fired   bool
	stopped bool
}

// StartTimer restores the origin persisted for the same exam/mock selection,
// or records a fresh one. A marker left by another exam or mock form is
// overwritten. Store failures are logged; the countdown still runs in memory.
func StartTimer(ctx context.Context, store SessionStore, studentID int, examCode, mockTestCode string, durationSeconds int, now Clock, log zerolog.Logger) *Timer {
	if now == nil {
		now = time.Now
	}
	t := &Timer{store: store, studentID: studentID, now: now, log: log}

	marker, err := store.Load(ctx, studentID)
	if err != nil {
		log.Warn().Err(err).Int("student_id", studentID).Msg("Failed to load session marker, starting fresh")
		marker = nil
	}

	if marker.Matches(examCode, mockTestCode) {
		t.marker = *marker
		t.marker.DurationSeconds = durationSeconds
		log.Debug().
			Int("student_id", studentID).
			Time("started_at", t.marker.StartedAt).
			Msg("Session marker restored")
		return t
	}

	t.marker = model.SessionMarker{
		ExamCode:        examCode,
		MockTestCode:    mockTestCode,
		StartedAt:       now(),
		DurationSeconds: durationSeconds,
	}
	if err := store.Save(ctx, studentID, t.marker); err != nil {
		log.Warn().Err(err).Int("student_id", studentID).Msg("Failed to persist session marker")
	}
	return t
}

// StartedAt returns the countdown origin.
func (t *Timer) StartedAt() time.Time {
	return t.marker.StartedAt
}

// DurationSeconds returns the configured exam duration.
func (t *Timer) DurationSeconds() int {
	return t.marker.DurationSeconds
}

// TimeLeft returns max(0, duration - (now - origin)).
func (t *Timer) TimeLeft(now time.Time) time.Duration {
	total := time.Duration(t.marker.DurationSeconds) * time.Second
	return max(total-now.Sub(t.marker.StartedAt), 0)
}

// Tick recomputes the time left. expired is true exactly once, on the first
// tick that finds the countdown at zero.
func (t *Timer) Tick(now time.Time) (left time.Duration, expired bool) {
	left = t.TimeLeft(now)
	if left > 0 || t.fired || t.stopped {
		return left, false
	}
	t.fired = true
	return 0, true
}


// Stop cancels the countdown and clears the persisted origin.
func (t *Timer) Stop(ctx context.Context) error {
	if t.stopped {
		return nil
	}
	t.stopped = true
	return t.store.Clear(ctx, t.studentID)
}
