package exam

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-session/internal/model"
)

type sessionFixture struct {
	clock   *fakeClock
	store   *memoryStore
	scorer  *fakeScorer
	session *Session
}

func newSessionFixture(t *testing.T, questions []model.Question, durationSeconds int) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		clock:  newFakeClock(),
		store:  newMemoryStore(),
		scorer: newFakeScorer(),
	}
	f.session = NewSession(context.Background(), Config{
		StudentID:       7,
		ExamCode:        "EX1",
		DurationSeconds: durationSeconds,
		Clock:           f.clock.Now,
	}, questions, f.store, f.scorer, zerolog.Nop())
	require.NoError(t, f.session.Enter())
	return f
}

func TestSession_MixedPaperWalkthrough(t *testing.T) {
	questions := []model.Question{simple(1), simple(2), simple(3), confidence(4), multiple(5)}
	f := newSessionFixture(t, questions, 600)
	s := f.session

	require.NoError(t, s.SelectSingle("A"))
	require.NoError(t, s.Next())
	require.NoError(t, s.Skip())
	require.NoError(t, s.Next())
	require.NoError(t, s.SelectSingle("B"))

	assert.ErrorIs(t, s.Next(), ErrConfidenceRequired)
	state := s.Snapshot()
	assert.Equal(t, 3, state.Position)
	assert.Equal(t, ErrConfidenceRequired.Error(), state.Notice)

	require.NoError(t, s.SetConfidence(model.ConfidenceHigh))
	f.clock.Advance(90 * time.Second)

	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	p := f.scorer.last()
	require.NotNil(t, p)
	assert.Equal(t, 2, p.AttemptedCount)
	assert.Equal(t, 2, p.SkippedCount)
	assert.Equal(t, 1, p.NotVisitedCount)
	assert.False(t, p.AutoSubmitted)
	assert.Equal(t, 90, p.TimeTakenSeconds)
	assert.Equal(t, 7, p.StudentID)

	skipped := recordOf(t, p, 2, "")
	assert.Equal(t, []string{"-"}, skipped.AnswerHistory)
	implicit := recordOf(t, p, 3, "")
	assert.Equal(t, model.AnswerStatusSkipped, implicit.Status)
	assert.Empty(t, implicit.AnswerHistory)

	assert.True(t, s.Done())
	_, ok := f.store.marker(7)
	assert.False(t, ok, "marker cleared on success")

	receipt, ok := s.Receipt()
	require.True(t, ok)
	assert.Equal(t, "att-1", receipt.AttemptID)
	assert.Equal(t, 90, receipt.TimeTakenSeconds)

	assert.ErrorIs(t, s.Next(), ErrSessionClosed)
	_, err = s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Nil(t, s.Snapshot().Current)
}

func TestSession_FailedSubmitKeepsState(t *testing.T) {
	f := newSessionFixture(t, []model.Question{simple(1), simple(2)}, 600)
	s := f.session
	require.NoError(t, s.SelectSingle("C"))

	f.scorer.setErr(errScoringDown)
	_, err := s.Submit(context.Background())
	require.ErrorIs(t, err, errScoringDown)

	assert.False(t, s.Done())
	state := s.Snapshot()
	assert.Equal(t, 1, state.Counts.Attempted)
	assert.False(t, state.Submitting)
	require.NotNil(t, state.CurrentAnswer)
	assert.True(t, state.CurrentAnswer.Tracking.VisitOpen(), "visit reopened after failure")
	_, ok := f.store.marker(7)
	assert.True(t, ok)

	f.scorer.setErr(nil)
	_, err = s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.scorer.calls())
	assert.True(t, s.Done())
}

func TestSession_ExpiryAutoSubmitsOnce(t *testing.T) {
	f := newSessionFixture(t, []model.Question{simple(1)}, 60)
	s := f.session

	f.clock.Advance(30 * time.Second)
	tick, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, tick.TimeLeft)
	assert.False(t, tick.Expired)

	f.clock.Advance(31 * time.Second)
	tick, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, tick.Expired)
	require.NotNil(t, tick.Result)
	assert.True(t, f.scorer.last().AutoSubmitted)

	_, err = s.Tick(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, 1, f.scorer.calls())

	receipt, ok := s.Receipt()
	require.True(t, ok)
	assert.True(t, receipt.AutoSubmitted)
}

func TestSession_ConcurrentExpiryTicks(t *testing.T) {
	f := newSessionFixture(t, []model.Question{simple(1)}, 60)
	f.scorer.block = true
	f.clock.Advance(time.Minute)

	done := make(chan TickResult, 1)
	go func() {
		tick, _ := f.session.Tick(context.Background())
		done <- tick
	}()
	<-f.scorer.entered

	tick, err := f.session.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, tick.Expired)

	close(f.scorer.release)
	first := <-done
	assert.True(t, first.Expired)
	assert.NotNil(t, first.Result)
	assert.Equal(t, 1, f.scorer.calls())
}

func TestSession_ExpiryDuringManualSubmitIsDropped(t *testing.T) {
	f := newSessionFixture(t, []model.Question{simple(1)}, 60)
	f.scorer.block = true

	type outcome struct {
		res *model.SubmitResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.session.Submit(context.Background())
		done <- outcome{res, err}
	}()
	<-f.scorer.entered

	assert.True(t, f.session.Snapshot().Submitting)
	assert.ErrorIs(t, f.session.Next(), ErrSubmitInFlight)

	f.clock.Advance(2 * time.Minute)
	tick, err := f.session.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, tick.Expired)
	assert.Nil(t, tick.Result)

	close(f.scorer.release)
	out := <-done
	require.NoError(t, out.err)
	assert.NotNil(t, out.res)
	assert.Equal(t, 1, f.scorer.calls())
	assert.False(t, f.scorer.last().AutoSubmitted)
}

func TestSession_CancelDropsPendingResult(t *testing.T) {
	f := newSessionFixture(t, []model.Question{simple(1)}, 60)
	f.scorer.block = true

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Submit(context.Background())
		done <- err
	}()
	<-f.scorer.entered

	f.session.Cancel()
	close(f.scorer.release)

	assert.ErrorIs(t, <-done, ErrSessionCancelled)
	assert.True(t, f.session.Cancelled())
	assert.False(t, f.session.Done())
	_, ok := f.session.Receipt()
	assert.False(t, ok)
	assert.ErrorIs(t, f.session.Next(), ErrSessionCancelled)
}

func TestSession_AbandonClearsMarker(t *testing.T) {
	f := newSessionFixture(t, []model.Question{simple(1)}, 60)

	require.NoError(t, f.session.Abandon(context.Background()))

	_, ok := f.store.marker(7)
	assert.False(t, ok)
	_, err := f.session.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSessionCancelled)
	assert.Zero(t, f.scorer.calls())
}

func TestSession_ResumesCountdown(t *testing.T) {
	store := newMemoryStore()
	clock := newFakeClock()
	require.NoError(t, store.Save(context.Background(), 7, model.SessionMarker{
		ExamCode: "EX1", StartedAt: t0.Add(-45 * time.Second), DurationSeconds: 60,
	}))

	s := NewSession(context.Background(), Config{
		StudentID: 7, ExamCode: "EX1", DurationSeconds: 60, Clock: clock.Now,
	}, []model.Question{simple(1)}, store, newFakeScorer(), zerolog.Nop())

	assert.Equal(t, 15, s.Snapshot().TimeLeftSeconds)
	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 15, s.Snapshot().TimeLeftSeconds, "partial seconds round up")
}

func TestSession_LeaveAndEnter(t *testing.T) {
	f := newSessionFixture(t, []model.Question{simple(1)}, 60)

	f.clock.Advance(3 * time.Second)
	f.session.Leave()
	f.clock.Advance(time.Minute)
	require.NoError(t, f.session.Enter())
	f.clock.Advance(2 * time.Second)
	f.session.Leave()

	a := f.session.Snapshot().CurrentAnswer
	require.NotNil(t, a)
	assert.Equal(t, []int64{3000, 2000}, a.Tracking.VisitDurationsMs)
}

func TestSession_TimeUpFreezesAnswers(t *testing.T) {
	f := newSessionFixture(t, []model.Question{simple(1), simple(2)}, 60)
	s := f.session
	require.NoError(t, s.SelectSingle("A"))

	f.scorer.setErr(errScoringDown)
	f.clock.Advance(61 * time.Second)
	tick, err := s.Tick(context.Background())
	require.ErrorIs(t, err, errScoringDown)
	assert.True(t, tick.Expired)

	f.clock.Advance(time.Hour)
	tick, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, tick.Expired, "the timer fires once")
	assert.Zero(t, tick.TimeLeft)
	assert.Equal(t, 1, f.scorer.calls())

	assert.ErrorIs(t, s.SelectSingle("B"), ErrTimeUp)
	assert.ErrorIs(t, s.Next(), ErrTimeUp)
	assert.ErrorIs(t, s.Skip(), ErrTimeUp)
	assert.Equal(t, 0, s.Snapshot().Position)

	s.Leave()
	require.NoError(t, s.Enter(), "a reconnect after time is up can still submit")

	f.scorer.setErr(nil)
	_, err = s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", f.scorer.last().Questions[0].SelectedAnswer)
}

func TestSession_FailedAutoSubmitIsNotMarkedAuto(t *testing.T) {
	f := newSessionFixture(t, []model.Question{simple(1)}, 60)
	s := f.session

	f.scorer.setErr(errScoringDown)
	f.clock.Advance(time.Minute)
	_, err := s.Tick(context.Background())
	require.ErrorIs(t, err, errScoringDown)
	assert.True(t, f.scorer.last().AutoSubmitted)
	assert.False(t, s.Snapshot().AutoSubmitted)

	f.scorer.setErr(nil)
	_, err = s.Submit(context.Background())
	require.NoError(t, err)

	assert.False(t, f.scorer.last().AutoSubmitted)
	assert.False(t, s.Snapshot().AutoSubmitted)
	receipt, ok := s.Receipt()
	require.True(t, ok)
	assert.False(t, receipt.AutoSubmitted)
}

func TestSession_ConnectionsShareOneVisit(t *testing.T) {
	f := newSessionFixture(t, []model.Question{simple(1), simple(2)}, 600)
	s := f.session
	require.NoError(t, s.Enter())

	f.clock.Advance(2 * time.Second)
	s.Leave()
	require.NotNil(t, s.Snapshot().CurrentAnswer)
	assert.True(t, s.Snapshot().CurrentAnswer.Tracking.VisitOpen(), "another connection is still open")

	s.Leave()
	require.NoError(t, s.SelectSingle("A"))
	f.clock.Advance(time.Second)
	require.NoError(t, s.Next())
	require.NoError(t, s.Enter())
	f.clock.Advance(100 * time.Second)

	_, err := s.Submit(context.Background())
	require.NoError(t, err)

	records := f.scorer.last().Questions
	require.Len(t, records, 2)
	assert.Equal(t, []int64{2000}, records[0].VisitDurationsMs)
	assert.Equal(t, int64(2000), records[0].TotalTimeMs)
	assert.Equal(t, "A", records[0].SelectedAnswer)
	assert.Equal(t, []int64{100_000}, records[1].VisitDurationsMs)
	assert.LessOrEqual(t, records[0].TotalTimeMs+records[1].TotalTimeMs, int64(103_000))
}

func TestSession_PaperIsTheSessionsOwn(t *testing.T) {
	questions := []model.Question{simple(1), simple(2)}
	s := NewSession(context.Background(), Config{
		StudentID: 7, ExamCode: "EX1", ExamTitle: "Tryout", DurationSeconds: 5400, Clock: newFakeClock().Now,
	}, questions, newMemoryStore(), newFakeScorer(), zerolog.Nop())

	info, got := s.Paper()
	assert.Equal(t, model.ExamInfo{ExamCode: "EX1", Title: "Tryout", DurationMinutes: 90}, info)
	assert.Equal(t, []int{1, 2}, numbers(got))

	got[0].QuestionNumber = 99
	_, again := s.Paper()
	assert.Equal(t, 1, again[0].QuestionNumber)
}

func TestSession_SuspendClosesSharedVisit(t *testing.T) {
	f := newSessionFixture(t, []model.Question{simple(1)}, 600)
	require.NoError(t, f.session.Enter())

	f.clock.Advance(4 * time.Second)
	f.session.Suspend()
	f.clock.Advance(time.Minute)

	a := f.session.Snapshot().CurrentAnswer
	require.NotNil(t, a)
	assert.False(t, a.Tracking.VisitOpen())
	assert.Equal(t, []int64{4000}, a.Tracking.VisitDurationsMs)
}
