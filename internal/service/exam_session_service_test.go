package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-session/internal/cache"
	"github.com/stemsi/exstem-session/internal/exam"
	"github.com/stemsi/exstem-session/internal/model"
)

type scoringStub struct {
	fakeFetcher
	catalog   []model.ExamSummary
	submitted []*model.SubmissionPayload
}

func (s *scoringStub) FetchCatalog(context.Context, int) ([]model.ExamSummary, error) {
	return s.catalog, nil
}

func (s *scoringStub) Submit(_ context.Context, p *model.SubmissionPayload) (*model.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, p)
	return &model.SubmitResult{Success: true, AttemptID: "att-42", TotalMarks: 8, AttemptedCount: p.AttemptedCount}, nil
}

func (s *scoringStub) FetchAttempt(_ context.Context, attemptID string) (*model.AttemptDetail, error) {
	return &model.AttemptDetail{SubmitResult: model.SubmitResult{Success: true, AttemptID: attemptID}, ExamCode: "UTBK-1"}, nil
}

type markerStore struct {
	mu      sync.Mutex
	markers map[int]model.SessionMarker
}

func (m *markerStore) Load(_ context.Context, id int) (*model.SessionMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mk, ok := m.markers[id]; ok {
		return &mk, nil
	}
	return nil, nil
}

func (m *markerStore) Save(_ context.Context, id int, mk model.SessionMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[id] = mk
	return nil
}

func (m *markerStore) Clear(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.markers, id)
	return nil
}

func (m *markerStore) has(id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.markers[id]
	return ok
}

type receiptLog struct {
	mu        sync.Mutex
	published []model.AttemptReceipt
}

func (r *receiptLog) Publish(_ context.Context, rc model.AttemptReceipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, rc)
	return nil
}

func (r *receiptLog) ListByStudent(_ context.Context, studentID, limit int) ([]model.AttemptReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AttemptReceipt
	for _, rc := range r.published {
		if rc.StudentID == studentID && len(out) < limit {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (r *receiptLog) GetForStudent(_ context.Context, studentID int, attemptID string) (*model.AttemptReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rc := range r.published {
		if rc.StudentID == studentID && rc.AttemptID == attemptID {
			return &rc, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type sessionServiceFixture struct {
	now      time.Time
	scoring  *scoringStub
	store    *markerStore
	receipts *receiptLog
	svc      *ExamSessionService
}

func newSessionServiceFixture(t *testing.T) *sessionServiceFixture {
	t.Helper()
	f := &sessionServiceFixture{
		now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		scoring: &scoringStub{catalog: []model.ExamSummary{
			{ExamCode: "UTBK-1", IsEligible: true, MockTestCodes: []string{"M1", "M2"}},
			{ExamCode: "UTBK-2", IsEligible: true},
			{ExamCode: "PAID", IsEligible: true, RequiresPayment: true},
			{ExamCode: "CLOSED", IsEligible: false},
		}},
		store:    &markerStore{markers: map[int]model.SessionMarker{}},
		receipts: &receiptLog{},
	}
	clock := func() time.Time { return f.now }

	catalog := NewCatalogService(
		f.scoring,
		cache.New[[]model.ExamSummary](cache.NewMemoryBackend(), time.Hour, zerolog.Nop()),
		cache.New[model.QuestionSet](cache.NewMemoryBackend(), time.Hour, zerolog.Nop()),
		CatalogOptions{},
		zerolog.Nop(),
	)
	t.Cleanup(catalog.Close)

	f.svc = NewExamSessionService(catalog, f.store, f.scoring, f.receipts, f.receipts, SessionOptions{Clock: clock}, zerolog.Nop())
	return f
}

func TestExamSessionService_OpenReusesLiveSession(t *testing.T) {
	f := newSessionServiceFixture(t)
	ctx := context.Background()

	a, err := f.svc.Open(ctx, 7, "UTBK-1", "M1")
	require.NoError(t, err)
	b, err := f.svc.Open(ctx, 7, "UTBK-1", "M1")
	require.NoError(t, err)
	assert.Same(t, a, b)

	got, err := f.svc.Get(7, "UTBK-1", "M1")
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = f.svc.Get(7, "UTBK-1", "M2")
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.Equal(t, 3600, a.Snapshot().TimeLeftSeconds)
}

func TestExamSessionService_OpenOtherSelectionReplaces(t *testing.T) {
	f := newSessionServiceFixture(t)
	ctx := context.Background()

	first, err := f.svc.Open(ctx, 7, "UTBK-1", "M1")
	require.NoError(t, err)
	second, err := f.svc.Open(ctx, 7, "UTBK-1", "M2")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.True(t, first.Cancelled())
	assert.ErrorIs(t, first.Next(), exam.ErrSessionCancelled)

	marker, err := f.store.Load(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "M2", marker.MockTestCode)
}

func TestExamSessionService_OpenChecksCatalog(t *testing.T) {
	f := newSessionServiceFixture(t)
	ctx := context.Background()

	cases := []struct {
		exam string
		mock string
		want error
	}{
		{"NOPE", "", ErrExamNotFound},
		{"UTBK-1", "M9", ErrMockTestNotFound},
		{"PAID", "", ErrExamNotEligible},
		{"CLOSED", "", ErrExamNotEligible},
	}
	for _, tc := range cases {
		_, err := f.svc.Open(ctx, 7, tc.exam, tc.mock)
		assert.ErrorIs(t, err, tc.want, tc.exam)
	}
	assert.False(t, f.store.has(7))
}

func TestExamSessionService_SubmitPublishesReceipt(t *testing.T) {
	f := newSessionServiceFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Open(ctx, 7, "UTBK-2", "")
	require.NoError(t, err)
	require.NoError(t, sess.Enter())
	require.NoError(t, sess.SelectSingle("A"))
	f.now = f.now.Add(2 * time.Minute)

	res, err := f.svc.Submit(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "att-42", res.AttemptID)

	require.Len(t, f.receipts.published, 1)
	rc := f.receipts.published[0]
	assert.Equal(t, 7, rc.StudentID)
	assert.Equal(t, "UTBK-2", rc.ExamCode)
	assert.Equal(t, 120, rc.TimeTakenSeconds)
	assert.False(t, rc.AutoSubmitted)

	_, err = f.svc.Get(7, "UTBK-2", "")
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.False(t, f.store.has(7))

	attempts, err := f.svc.ListAttempts(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)

	detail, err := f.svc.GetAttempt(ctx, 7, "att-42")
	require.NoError(t, err)
	assert.Equal(t, "att-42", detail.AttemptID)

	_, err = f.svc.GetAttempt(ctx, 8, "att-42")
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestExamSessionService_TickAutoSubmits(t *testing.T) {
	f := newSessionServiceFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Open(ctx, 7, "UTBK-2", "")
	require.NoError(t, err)

	f.now = f.now.Add(61 * time.Minute)
	tick, err := f.svc.Tick(ctx, sess)
	require.NoError(t, err)
	assert.True(t, tick.Expired)
	require.NotNil(t, tick.Result)

	require.Len(t, f.receipts.published, 1)
	assert.True(t, f.receipts.published[0].AutoSubmitted)
	assert.Len(t, f.scoring.submitted, 1)
}

func TestExamSessionService_Abandon(t *testing.T) {
	f := newSessionServiceFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Open(ctx, 7, "UTBK-1", "M1")
	require.NoError(t, err)
	require.True(t, f.store.has(7))

	require.NoError(t, f.svc.Abandon(ctx, 7))
	assert.True(t, sess.Cancelled())
	assert.False(t, f.store.has(7))

	// Abandoning without a live session still clears a leftover marker.
	require.NoError(t, f.store.Save(ctx, 7, model.SessionMarker{ExamCode: "UTBK-1"}))
	require.NoError(t, f.svc.Abandon(ctx, 7))
	assert.False(t, f.store.has(7))
}

func TestExamSessionService_ShutdownClosesVisits(t *testing.T) {
	f := newSessionServiceFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Open(ctx, 7, "UTBK-2", "")
	require.NoError(t, err)
	require.NoError(t, sess.Enter())
	require.NoError(t, sess.Enter())
	f.now = f.now.Add(5 * time.Second)

	f.svc.Shutdown()

	a := sess.Snapshot().CurrentAnswer
	require.NotNil(t, a)
	assert.False(t, a.Tracking.VisitOpen())
	assert.Equal(t, []int64{5000}, a.Tracking.VisitDurationsMs)

	info, questions := sess.Paper()
	assert.Equal(t, "fresh", info.Title)
	assert.Len(t, questions, 2)
}
