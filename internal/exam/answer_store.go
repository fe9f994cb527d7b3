package exam

import (
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

// Clock returns the current time. Sessions take one so tests can drive time.
type Clock func() time.Time

// AnswerReader is the read side of the answer store.
type AnswerReader interface {
	Answer(key model.AnswerKey) (*model.Answer, bool)
}

// AnswerStore holds one Answer per question, created lazily on first visit.
type AnswerStore struct {
	answers map[model.AnswerKey]*model.Answer
}

// NewAnswerStore creates an empty AnswerStore.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{answers: make(map[model.AnswerKey]*model.Answer)}
}

// Answer implements AnswerReader.
func (s *AnswerStore) Answer(key model.AnswerKey) (*model.Answer, bool) {
	if s == nil {
		return nil, false
	}
	a, ok := s.answers[key]
	return a, ok
}

// Lookup returns the answer of q, or nil if q was never visited.
func (s *AnswerStore) Lookup(q model.Question) *model.Answer {
	a, _ := s.Answer(model.KeyOf(q))
	return a
}

// Ensure returns the answer of q, creating an unvisited one if needed.
func (s *AnswerStore) Ensure(q model.Question) *model.Answer {
	key := model.KeyOf(q)
	if a, ok := s.answers[key]; ok {
		return a
	}
	a := model.NewAnswer()
	s.answers[key] = a
	return a
}


// Reset discards every answer.
func (s *AnswerStore) Reset() {
	s.answers = make(map[model.AnswerKey]*model.Answer)
}

// Counts summarizes the scored questions that are currently visible.
func (s *AnswerStore) Counts(questions []model.Question) model.Counts {
	var c model.Counts
	for _, q := range Visible(questions, s) {
		if !q.Type.IsScored() {
			continue
		}
		a := s.Lookup(q)
		switch {
		case a == nil:
			c.NotVisited++
		case a.Status == model.AnswerStatusAttempted:
			c.Attempted++
		case a.Status == model.AnswerStatusSkipped:
			c.Skipped++
		default:
			c.NotVisited++
		}
	}
	return c
}

func (s *AnswerStore) each(fn func(key model.AnswerKey, a *model.Answer)) {
	for k, a := range s.answers {
		fn(k, a)
	}
}
