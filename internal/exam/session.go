package exam

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
)

// Session lifecycle errors.
var (
	ErrSubmitInFlight   = errors.New("submission already in progress")
	ErrSessionClosed    = errors.New("session already submitted")
	ErrSessionCancelled = errors.New("session was replaced or abandoned")
	ErrTimeUp           = errors.New("time is up, only submission is allowed")
)

// Scorer is the external scoring boundary a session submits to.
type Scorer interface {
	Submit(ctx context.Context, payload *model.SubmissionPayload) (*model.SubmitResult, error)
}

// Config describes one attempt.
type Config struct {
	StudentID       int
	ExamCode        string
	ExamTitle       string
	MockTestCode    string
	DurationSeconds int
	NoticeTTL       time.Duration
	Clock           Clock
}

// Session owns the answer store, tracker, navigator and timer of a single
// attempt. Events are applied one at a time under mu; the submitting flag is
// the first-caller-wins guard shared by manual submit and timer expiry.
//
// Once the countdown reaches zero answers are frozen. A failed auto-submit is
// not retried by the timer; the student retries with Submit.
type Session struct {
	id        string
	cfg       Config
	questions []model.Question
	answers   *AnswerStore
	tracker   *Tracker
	nav       *Navigator
	timer     *Timer
	scorer    Scorer
	now       Clock
	log       zerolog.Logger

	mu            sync.Mutex
	present       int
	submitting    atomic.Bool
	cancelled     atomic.Bool
	autoSubmitted bool
	result        *model.SubmitResult
	endedAt       time.Time
}

// NewSession starts (or resumes, if a matching marker is stored) an attempt
// over questions. The student is not considered present until Enter.
func NewSession(ctx context.Context, cfg Config, questions []model.Question, store SessionStore, scorer Scorer, log zerolog.Logger) *Session {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	id := uuid.New().String()
	log = log.With().
		Str("session_id", id).
		Int("student_id", cfg.StudentID).
		Str("exam_code", cfg.ExamCode).
		Logger()

	answers := NewAnswerStore()
	tracker := NewTracker(answers, cfg.Clock)

	s := &Session{
		id:        id,
		cfg:       cfg,
		questions: questions,
		answers:   answers,
		tracker:   tracker,
		nav:       NewNavigator(questions, answers, tracker, cfg.Clock, cfg.NoticeTTL),
		timer:     StartTimer(ctx, store, cfg.StudentID, cfg.ExamCode, cfg.MockTestCode, cfg.DurationSeconds, cfg.Clock, log),
		scorer:    scorer,
		now:       cfg.Clock,
		log:       log,
	}

	log.Info().
		Int("questions", len(questions)).
		Time("started_at", s.timer.StartedAt()).
		Msg("Session opened")
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ExamCode returns the exam this session belongs to.
func (s *Session) ExamCode() string { return s.cfg.ExamCode }

// MockTestCode returns the mock form of this session.
func (s *Session) MockTestCode() string { return s.cfg.MockTestCode }

// Matches reports whether the session serves the given exam/mock selection.
func (s *Session) Matches(examCode, mockTestCode string) bool {
	return s.cfg.ExamCode == examCode && s.cfg.MockTestCode == mockTestCode
}

// Paper returns the exam header and the questions the session navigates.
func (s *Session) Paper() (model.ExamInfo, []model.Question) {
	return model.ExamInfo{
		ExamCode:        s.cfg.ExamCode,
		Title:           s.cfg.ExamTitle,
		DurationMinutes: s.cfg.DurationSeconds / 60,
	}, slices.Clone(s.questions)
}

// Enter marks one more connection as present on the current question. It is
// allowed after time is up so the student can still reach Submit.
func (s *Session) Enter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	s.present++
	s.nav.Enter()
	return nil
}

// Leave drops one connection. The running visit closes when the last one
// leaves.
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.present > 0 {
		s.present--
	}
	if s.present == 0 {
		s.nav.Leave()
	}
}

// Suspend closes the running visit regardless of open connections, e.g. on
// shutdown.
func (s *Session) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present = 0
	s.nav.Leave()
}

// Next advances to the next visible question.
func (s *Session) Next() error { return s.apply(s.nav.Next) }

// Prev goes back one question.
func (s *Session) Prev() error {
	return s.apply(func() error {
		s.nav.Prev()
		return nil
	})
}

// JumpTo moves to a question from the overview grid.
func (s *Session) JumpTo(index int) error {
	return s.apply(func() error { return s.nav.JumpTo(index) })
}

// Skip marks the current question skipped and advances.
func (s *Session) Skip() error { return s.apply(s.nav.Skip) }

// SelectSingle selects an option on a single-answer question.
func (s *Session) SelectSingle(key string) error {
	return s.apply(func() error { return s.nav.SelectSingle(key) })
}

// ToggleMultiple toggles an option on a multiple-select question.
func (s *Session) ToggleMultiple(key string) error {
	return s.apply(func() error { return s.nav.ToggleMultiple(key) })
}

// SetConfidence sets the confidence level on a confidence question.
func (s *Session) SetConfidence(level model.Confidence) error {
	return s.apply(func() error { return s.nav.SetConfidence(level) })
}

// TickResult is the outcome of one timer tick.
type TickResult struct {
	TimeLeft time.Duration
	Expired  bool
	Result   *model.SubmitResult
}

// Tick recomputes the time left and auto-submits when it reaches zero. A tick
// that loses the race against another submission is dropped silently.
func (s *Session) Tick(ctx context.Context) (TickResult, error) {
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return TickResult{}, err
	}
	left, expired := s.timer.Tick(s.now())
	s.mu.Unlock()

	if !expired {
		return TickResult{TimeLeft: left}, nil
	}

	s.log.Info().Msg("Time is up, auto-submitting")
	res, err := s.submit(ctx, true)
	if errors.Is(err, ErrSubmitInFlight) {
		return TickResult{Expired: true}, nil
	}
	return TickResult{Expired: true, Result: res}, err
}

// Submit hands the attempt to the scoring service. On failure the answers and
// the timer are kept so the student can retry.
func (s *Session) Submit(ctx context.Context) (*model.SubmitResult, error) {
	return s.submit(ctx, false)
}

func (s *Session) submit(ctx context.Context, auto bool) (*model.SubmitResult, error) {
	if s.cancelled.Load() {
		return nil, ErrSessionCancelled
	}
	if !s.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmitInFlight
	}

	s.mu.Lock()
	if s.result != nil {
		s.mu.Unlock()
		s.submitting.Store(false)
		return nil, ErrSessionClosed
	}
	present := s.nav.Present()
	s.nav.Leave()
	endedAt := s.now()
	payload := BuildSubmission(s.questions, s.answers, s.tracker, s.meta(auto), endedAt)
	s.mu.Unlock()

	res, err := s.scorer.Submit(ctx, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.submitting.Store(false)

	if s.cancelled.Load() {
		s.log.Warn().Msg("Submission resolved for a superseded session, ignoring")
		return nil, ErrSessionCancelled
	}
	if err != nil {
		if present {
			s.nav.Enter()
		}
		s.log.Error().Err(err).Bool("auto", auto).Msg("Submission failed")
		return nil, err
	}

	s.result = res
	s.autoSubmitted = auto
	s.endedAt = endedAt
	if err := s.timer.Stop(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear session marker")
	}
	s.answers.Reset()

	s.log.Info().
		Str("attempt_id", res.AttemptID).
		Bool("auto", auto).
		Int("time_taken_seconds", payload.TimeTakenSeconds).
		Msg("Session submitted")
	return res, nil
}

// Cancel marks the session as superseded. Pending async results are dropped.
func (s *Session) Cancel() {
	if s.cancelled.Swap(true) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nav.Leave()
	s.log.Info().Msg("Session cancelled")
}

// Abandon cancels the session and clears the persisted countdown origin.
func (s *Session) Abandon(ctx context.Context) error {
	s.Cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer.Stop(ctx)
}

// Cancelled reports whether the session was superseded.
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}

// Done reports whether the attempt was submitted successfully.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result != nil
}

// Receipt returns the local record of a successful submission.
func (s *Session) Receipt() (model.AttemptReceipt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return model.AttemptReceipt{}, false
	}
	started := s.timer.StartedAt()
	return model.AttemptReceipt{
		AttemptID:        s.result.AttemptID,
		StudentID:        s.cfg.StudentID,
		ExamCode:         s.cfg.ExamCode,
		MockTestCode:     s.cfg.MockTestCode,
		AutoSubmitted:    s.autoSubmitted,
		TotalMarks:       s.result.TotalMarks,
		CorrectCount:     s.result.CorrectCount,
		WrongCount:       s.result.WrongCount,
		AttemptedCount:   s.result.AttemptedCount,
		SkippedCount:     s.result.SkippedCount,
		StartedAt:        started,
		EndedAt:          s.endedAt,
		TimeTakenSeconds: max(int(s.endedAt.Sub(started)/time.Second), 0),
	}, true
}

// Snapshot renders the session for the client.
func (s *Session) Snapshot() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	left := s.timer.TimeLeft(s.now())
	state := model.SessionState{
		SessionID:       s.id,
		ExamCode:        s.cfg.ExamCode,
		MockTestCode:    s.cfg.MockTestCode,
		Position:        s.nav.Position(),
		VisibleCount:    len(s.nav.Visible()),
		Navigator:       s.nav.Grid(),
		Counts:          s.answers.Counts(s.questions),
		TimeLeftSeconds: int((left + time.Second - 1) / time.Second),
		Submitting:      s.submitting.Load(),
		Submitted:       s.result != nil,
		AutoSubmitted:   s.autoSubmitted,
	}

	if q, ok := s.nav.Current(); ok && s.result == nil {
		state.Current = &q
		if a := s.answers.Lookup(q); a != nil {
			c := a.Clone()
			state.CurrentAnswer = &c
		}
	}
	if err := s.nav.Notice(); err != nil {
		state.Notice = err.Error()
	}
	return state
}

// apply runs one state mutation under the session lock.
func (s *Session) apply(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	if s.submitting.Load() {
		return ErrSubmitInFlight
	}
	if s.timer.TimeLeft(s.now()) == 0 {
		return ErrTimeUp
	}
	return fn()
}

func (s *Session) usable() error {
	if s.cancelled.Load() {
		return ErrSessionCancelled
	}
	if s.result != nil {
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) meta(auto bool) SubmissionMeta {
	return SubmissionMeta{
		ExamCode:        s.cfg.ExamCode,
		MockTestCode:    s.cfg.MockTestCode,
		StudentID:       s.cfg.StudentID,
		AutoSubmitted:   auto,
		StartedAt:       s.timer.StartedAt(),
		DurationSeconds: s.timer.DurationSeconds(),
	}
}
