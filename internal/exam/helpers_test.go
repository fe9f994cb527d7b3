package exam

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: t0}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryStore struct {
	mu      sync.Mutex
	markers map[int]model.SessionMarker
	loadErr error
	clears  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{markers: make(map[int]model.SessionMarker)}
}

func (m *memoryStore) Load(_ context.Context, studentID int) (*model.SessionMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	marker, ok := m.markers[studentID]
	if !ok {
		return nil, nil
	}
	return &marker, nil
}

func (m *memoryStore) Save(_ context.Context, studentID int, marker model.SessionMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[studentID] = marker
	return nil
}

func (m *memoryStore) Clear(_ context.Context, studentID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.markers, studentID)
	m.clears++
	return nil
}

func (m *memoryStore) marker(studentID int) (model.SessionMarker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	marker, ok := m.markers[studentID]
	return marker, ok
}

// fakeScorer records submissions. When block is set, Submit signals entered
// and waits for release before answering.
type fakeScorer struct {
	mu       sync.Mutex
	payloads []*model.SubmissionPayload
	err      error
	block    bool
	entered  chan struct{}
	release  chan struct{}
}

func newFakeScorer() *fakeScorer {
	return &fakeScorer{
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
}

func (f *fakeScorer) Submit(ctx context.Context, payload *model.SubmissionPayload) (*model.SubmitResult, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	block, err := f.block, f.err
	f.mu.Unlock()

	if block {
		f.entered <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &model.SubmitResult{
		Success:        true,
		AttemptID:      "att-1",
		TotalMarks:     4,
		AttemptedCount: payload.AttemptedCount,
		SkippedCount:   payload.SkippedCount,
	}, nil
}

func (f *fakeScorer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeScorer) last() *model.SubmissionPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return nil
	}
	return f.payloads[len(f.payloads)-1]
}

func (f *fakeScorer) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

var errScoringDown = errors.New("scoring service unavailable")

func opts(keys ...string) []model.Option {
	out := make([]model.Option, len(keys))
	for i, k := range keys {
		out[i] = model.Option{Key: k, Text: "option " + k}
	}
	return out
}

func simple(n int) model.Question {
	return model.Question{QuestionNumber: n, Type: model.QuestionTypeSimple, Options: opts("A", "B", "C", "D")}
}

func multiple(n int) model.Question {
	return model.Question{QuestionNumber: n, Type: model.QuestionTypeMultiple, Options: opts("A", "B", "C", "D")}
}

func confidence(n int) model.Question {
	return model.Question{QuestionNumber: n, Type: model.QuestionTypeConfidence, Options: opts("A", "B", "C", "D")}
}

func branchParent(n int) model.Question {
	return model.Question{QuestionNumber: n, Type: model.QuestionTypeBranchParent, Options: opts("A", "B")}
}

func branchChild(n, parent int, key string) model.Question {
	return model.Question{
		QuestionNumber: n,
		Type:           model.QuestionTypeBranchChild,
		Options:        opts("A", "B", "C", "D"),
		ParentQuestion: parent,
		BranchKey:      key,
	}
}

func info(n int) model.Question {
	return model.Question{QuestionNumber: n, Type: model.QuestionTypeXOption}
}

// branchedPaper is Q1 simple, Q2 branch parent, Q3-Q5 branch A, Q6-Q8 branch B, Q9 simple.
func branchedPaper() []model.Question {
	return []model.Question{
		simple(1),
		branchParent(2),
		branchChild(3, 2, "A"), branchChild(4, 2, "A"), branchChild(5, 2, "A"),
		branchChild(6, 2, "B"), branchChild(7, 2, "B"), branchChild(8, 2, "B"),
		simple(9),
	}
}

func numbers(questions []model.Question) []int {
	out := make([]int, len(questions))
	for i, q := range questions {
		out[i] = q.QuestionNumber
	}
	return out
}

type harness struct {
	clock   *fakeClock
	answers *AnswerStore
	tracker *Tracker
	nav     *Navigator
}

func newHarness(questions []model.Question) *harness {
	clock := newFakeClock()
	answers := NewAnswerStore()
	tracker := NewTracker(answers, clock.Now)
	nav := NewNavigator(questions, answers, tracker, clock.Now, time.Second)
	nav.Enter()
	return &harness{clock: clock, answers: answers, tracker: tracker, nav: nav}
}
