package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/exam"
	"github.com/stemsi/exstem-session/internal/model"
)

// Session service errors.
var (
	ErrExamNotFound     = errors.New("exam not found in catalog")
	ErrMockTestNotFound = errors.New("mock test not offered for this exam")
	ErrExamNotEligible  = errors.New("student is not eligible for this exam")
	ErrNoActiveSession  = errors.New("no active session for this exam")
	ErrAttemptNotFound  = errors.New("attempt not found")
)

// AttemptClient is the scoring boundary used by sessions and attempt reviews.
type AttemptClient interface {
	exam.Scorer
	FetchAttempt(ctx context.Context, attemptID string) (*model.AttemptDetail, error)
}

// ReceiptPublisher hands successful submissions to persistence.
type ReceiptPublisher interface {
	Publish(ctx context.Context, receipt model.AttemptReceipt) error
}

// ReceiptReader reads persisted receipts.
type ReceiptReader interface {
	ListByStudent(ctx context.Context, studentID, limit int) ([]model.AttemptReceipt, error)
	GetForStudent(ctx context.Context, studentID int, attemptID string) (*model.AttemptReceipt, error)
}

// SessionOptions configures new sessions.
type SessionOptions struct {
	NoticeTTL        time.Duration
	Clock            exam.Clock
	AttemptListLimit int
}

// ExamSessionService keeps one live session per student.
type ExamSessionService struct {
	catalog  *CatalogService
	store    exam.SessionStore
	client   AttemptClient
	receipts ReceiptPublisher
	reader   ReceiptReader
	opts     SessionOptions
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[int]*exam.Session
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	catalog *CatalogService,
	store exam.SessionStore,
	client AttemptClient,
	receipts ReceiptPublisher,
	reader ReceiptReader,
	opts SessionOptions,
	log zerolog.Logger,
) *ExamSessionService {
	if opts.AttemptListLimit <= 0 {
		opts.AttemptListLimit = 50
	}
	return &ExamSessionService{
		catalog:  catalog,
		store:    store,
		client:   client,
		receipts: receipts,
		reader:   reader,
		opts:     opts,
		log:      log.With().Str("component", "exam_session_service").Logger(),
		sessions: make(map[int]*exam.Session),
	}
}

// Open returns the student's live session for the exam/mock selection,
// starting one if needed. A live session for another selection is cancelled
// and replaced.
func (s *ExamSessionService) Open(ctx context.Context, studentID int, examCode, mockTestCode string) (*exam.Session, error) {
	if sess := s.live(studentID, examCode, mockTestCode); sess != nil {
		return sess, nil
	}

	if err := s.checkEligibility(ctx, studentID, examCode, mockTestCode); err != nil {
		return nil, err
	}

	view, err := s.catalog.QuestionSet(ctx, examCode, mockTestCode)
	if err != nil {
		return nil, err
	}
	set := view.Data

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.sessions[studentID]
	if prev != nil && usable(prev) && prev.Matches(examCode, mockTestCode) {
		return prev, nil
	}
	if prev != nil {
		prev.Cancel()
	}

	sess := exam.NewSession(ctx, exam.Config{
		StudentID:       studentID,
		ExamCode:        examCode,
		ExamTitle:       set.Exam.Title,
		MockTestCode:    mockTestCode,
		DurationSeconds: set.DurationSeconds(),
		NoticeTTL:       s.opts.NoticeTTL,
		Clock:           s.opts.Clock,
	}, set.Questions, s.store, s.client, s.log)
	s.sessions[studentID] = sess

	s.log.Info().
		Int("student_id", studentID).
		Str("exam_code", examCode).
		Str("mock_test_code", mockTestCode).
		Bool("stale_paper", view.Stale).
		Msg("Exam session opened")
	return sess, nil
}

// Get returns the live session for the selection.
func (s *ExamSessionService) Get(studentID int, examCode, mockTestCode string) (*exam.Session, error) {
	if sess := s.live(studentID, examCode, mockTestCode); sess != nil {
		return sess, nil
	}
	return nil, ErrNoActiveSession
}

// Submit submits a session and records its receipt.
func (s *ExamSessionService) Submit(ctx context.Context, sess *exam.Session) (*model.SubmitResult, error) {
	res, err := sess.Submit(ctx)
	if err != nil {
		return nil, err
	}
	s.finish(ctx, sess)
	return res, nil
}

// Tick advances a session's countdown. An auto-submission is recorded like a
// manual one.
func (s *ExamSessionService) Tick(ctx context.Context, sess *exam.Session) (exam.TickResult, error) {
	tick, err := sess.Tick(ctx)
	if err == nil && tick.Result != nil {
		s.finish(ctx, sess)
	}
	return tick, err
}

// Abandon drops the student's live session and clears the countdown origin.
func (s *ExamSessionService) Abandon(ctx context.Context, studentID int) error {
	s.mu.Lock()
	sess := s.sessions[studentID]
	delete(s.sessions, studentID)
	s.mu.Unlock()

	if sess == nil {
		return s.store.Clear(ctx, studentID)
	}
	s.log.Info().Int("student_id", studentID).Str("exam_code", sess.ExamCode()).Msg("Exam session abandoned")
	return sess.Abandon(ctx)
}

// ListAttempts returns the student's recent scored attempts.
func (s *ExamSessionService) ListAttempts(ctx context.Context, studentID int) ([]model.AttemptReceipt, error) {
	receipts, err := s.reader.ListByStudent(ctx, studentID, s.opts.AttemptListLimit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return receipts, nil
}

// GetAttempt returns the scored review of one of the student's attempts.
func (s *ExamSessionService) GetAttempt(ctx context.Context, studentID int, attemptID string) (*model.AttemptDetail, error) {
	if _, err := s.reader.GetForStudent(ctx, studentID, attemptID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt receipt: %w", err)
	}
	return s.client.FetchAttempt(ctx, attemptID)
}

// LiveSessions returns the number of registered sessions.
func (s *ExamSessionService) LiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown closes the running visits of every live session.
func (s *ExamSessionService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.Suspend()
	}
}

func (s *ExamSessionService) live(studentID int, examCode, mockTestCode string) *exam.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[studentID]
	if sess == nil || !usable(sess) || !sess.Matches(examCode, mockTestCode) {
		return nil
	}
	return sess
}

func (s *ExamSessionService) checkEligibility(ctx context.Context, studentID int, examCode, mockTestCode string) error {
	view, err := s.catalog.Catalog(ctx, studentID)
	if err != nil {
		return err
	}

	i := slices.IndexFunc(view.Data, func(e model.ExamSummary) bool { return e.ExamCode == examCode })
	if i < 0 {
		return ErrExamNotFound
	}
	summary := view.Data[i]

	if !summary.IsEligible || (summary.RequiresPayment && !summary.IsPaid) {
		return ErrExamNotEligible
	}
	if mockTestCode != "" && len(summary.MockTestCodes) > 0 && !slices.Contains(summary.MockTestCodes, mockTestCode) {
		return ErrMockTestNotFound
	}
	return nil
}

// finish drops a submitted session from the registry, forgets the student's
// cached catalog and publishes the receipt.
func (s *ExamSessionService) finish(ctx context.Context, sess *exam.Session) {
	receipt, ok := sess.Receipt()
	if !ok {
		return
	}

	s.mu.Lock()
	if s.sessions[receipt.StudentID] == sess {
		delete(s.sessions, receipt.StudentID)
	}
	s.mu.Unlock()

	if err := s.catalog.ForgetCatalog(context.WithoutCancel(ctx), receipt.StudentID); err != nil {
		s.log.Warn().Err(err).Int("student_id", receipt.StudentID).Msg("Failed to drop cached catalog")
	}
	if err := s.receipts.Publish(context.WithoutCancel(ctx), receipt); err != nil {
		s.log.Error().Err(err).Str("attempt_id", receipt.AttemptID).Msg("Failed to queue attempt receipt")
	}
}

func usable(sess *exam.Session) bool {
	return !sess.Cancelled() && !sess.Done()
}
