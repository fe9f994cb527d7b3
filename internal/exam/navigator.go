package exam

import (
	"errors"
	"slices"
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

// Navigation rejections. They leave the state untouched.
var (
	ErrBranchNotChosen    = errors.New("choose a branch before leaving this question")
	ErrConfidenceRequired = errors.New("confidence level required")
	ErrSkipBranchParent   = errors.New("branch choice cannot be skipped")
)

// Invalid input errors.
var (
	ErrNoQuestions       = errors.New("no visible questions")
	ErrInvalidPosition   = errors.New("question index out of range")
	ErrUnsupportedAction = errors.New("action not supported for this question type")
	ErrInvalidOption     = errors.New("unknown option key")
	ErrInvalidConfidence = errors.New("unknown confidence level")
)

// DefaultNoticeTTL is how long a rejection notice stays visible.
const DefaultNoticeTTL = 3 * time.Second

// Navigator moves over the visible question list and applies answer
// mutations. It keeps exactly one visit open on the current question while the
// student is present (between Enter and Leave).
type Navigator struct {
	questions []model.Question
	answers   *AnswerStore
	tracker   *Tracker
	now       Clock
	noticeTTL time.Duration

	position int
	visit    *Visit
	notice   error
	noticeAt time.Time
}

// NewNavigator creates a Navigator positioned on the first question.
func NewNavigator(questions []model.Question, answers *AnswerStore, tracker *Tracker, now Clock, noticeTTL time.Duration) *Navigator {
	if now == nil {
		now = time.Now
	}
	if noticeTTL <= 0 {
		noticeTTL = DefaultNoticeTTL
	}
	return &Navigator{
		questions: questions,
		answers:   answers,
		tracker:   tracker,
		now:       now,
		noticeTTL: noticeTTL,
	}
}

// Visible returns the currently navigable questions.
func (n *Navigator) Visible() []model.Question {
	return Visible(n.questions, n.answers)
}

// Position returns the index of the current question in the visible list.
func (n *Navigator) Position() int {
	return n.position
}

// Current returns the question at the current position.
func (n *Navigator) Current() (model.Question, bool) {
	visible := n.Visible()
	if len(visible) == 0 {
		return model.Question{}, false
	}
	return visible[clampIndex(n.position, len(visible))], true
}

// Enter opens a visit on the current question (student arrives or reconnects).
func (n *Navigator) Enter() {
	n.clamp()
	q, ok := n.Current()
	if !ok {
		return
	}
	if n.visit.Active() && n.visit.Key() == model.KeyOf(q) {
		return
	}
	n.visit.End()
	n.visit = n.tracker.Begin(q)
}

// Present reports whether a visit is open on the current question.
func (n *Navigator) Present() bool {
	return n.visit.Active()
}

// Leave closes the visit on the current question (student leaves or submits).
func (n *Navigator) Leave() {
	n.visit.End()
	n.visit = nil
}

// Next advances by one. A blank scored question is recorded as skipped.
func (n *Navigator) Next() error {
	n.clamp()
	q, ok := n.Current()
	if !ok {
		return ErrNoQuestions
	}
	a := n.answers.Ensure(q)

	if q.Type == model.QuestionTypeBranchParent && a.SelectedAnswer == "" {
		return n.reject(ErrBranchNotChosen)
	}
	if q.Type == model.QuestionTypeConfidence && a.HasSelection(q.Type) && a.Confidence == model.ConfidenceNone {
		return n.reject(ErrConfidenceRequired)
	}

	if q.Type.IsScored() && !a.HasSelection(q.Type) && a.Status != model.AnswerStatusSkipped {
		a.Status = model.AnswerStatusSkipped
	}

	n.clearNotice()
	n.moveTo(n.position + 1)
	return nil
}

// Prev goes back by one. It never touches answers.
func (n *Navigator) Prev() {
	n.clamp()
	n.moveTo(n.position - 1)
}

// JumpTo moves to index from the overview grid.
func (n *Navigator) JumpTo(index int) error {
	n.clamp()
	q, ok := n.Current()
	if !ok {
		return ErrNoQuestions
	}
	if n.unresolvedBranch(q) {
		return n.reject(ErrBranchNotChosen)
	}
	if index < 0 || index >= len(n.Visible()) {
		return ErrInvalidPosition
	}
	n.clearNotice()
	n.moveTo(index)
	return nil
}

// Skip clears the current question, marks it skipped and advances. Repeating
// it on an already skipped, empty question records no new change.
func (n *Navigator) Skip() error {
	n.clamp()
	q, ok := n.Current()
	if !ok {
		return ErrNoQuestions
	}
	if q.Type == model.QuestionTypeBranchParent {
		return n.reject(ErrSkipBranchParent)
	}

	if q.Type.IsScored() {
		a := n.answers.Ensure(q)
		hadSelection := a.HasSelection(q.Type) || a.Confidence != model.ConfidenceNone
		if a.Status != model.AnswerStatusSkipped || hadSelection {
			a.ClearSelection()
			a.Status = model.AnswerStatusSkipped
			n.tracker.Change(q)
		}
	}

	n.clearNotice()
	n.moveTo(n.position + 1)
	return nil
}

// SelectSingle selects key on a single-answer question. A branch parent only
// takes the first selection; later calls are no-ops.
func (n *Navigator) SelectSingle(key string) error {
	n.clamp()
	q, ok := n.Current()
	if !ok {
		return ErrNoQuestions
	}
	if !q.Type.IsSingleAnswer() {
		return ErrUnsupportedAction
	}
	if key == "" || !q.HasOption(key) {
		return ErrInvalidOption
	}

	a := n.answers.Ensure(q)
	if q.Type == model.QuestionTypeBranchParent && a.SelectedAnswer != "" {
		return nil
	}
	if a.SelectedAnswer == key && a.Status == model.AnswerStatusAttempted {
		return nil
	}

	a.SelectedAnswer = key
	a.Status = model.AnswerStatusAttempted
	n.tracker.Change(q)

	n.clearNotice()
	n.clamp()
	return nil
}

// ToggleMultiple adds or removes key from a multiple-select answer. Emptying
// the set reverts the status to not_visited, not skipped.
func (n *Navigator) ToggleMultiple(key string) error {
	n.clamp()
	q, ok := n.Current()
	if !ok {
		return ErrNoQuestions
	}
	if q.Type != model.QuestionTypeMultiple {
		return ErrUnsupportedAction
	}
	if key == "" || !q.HasOption(key) {
		return ErrInvalidOption
	}

	a := n.answers.Ensure(q)
	if i := slices.Index(a.SelectedAnswers, key); i >= 0 {
		a.SelectedAnswers = slices.Delete(a.SelectedAnswers, i, i+1)
	} else {
		a.SelectedAnswers = append(a.SelectedAnswers, key)
		slices.Sort(a.SelectedAnswers)
	}

	if len(a.SelectedAnswers) > 0 {
		a.Status = model.AnswerStatusAttempted
	} else {
		a.SelectedAnswers = nil
		a.Status = model.AnswerStatusNotVisited
	}
	n.tracker.Change(q)

	n.clearNotice()
	return nil
}

// SetConfidence sets the confidence level of a confidence question without
// touching its selection or status.
func (n *Navigator) SetConfidence(level model.Confidence) error {
	n.clamp()
	q, ok := n.Current()
	if !ok {
		return ErrNoQuestions
	}
	if q.Type != model.QuestionTypeConfidence {
		return ErrUnsupportedAction
	}
	if !level.Valid() {
		return ErrInvalidConfidence
	}

	a := n.answers.Ensure(q)
	if a.Confidence == level {
		return nil
	}
	a.Confidence = level
	n.tracker.Change(q)

	n.clearNotice()
	return nil
}

// Notice returns the last rejection while it is still fresh.
func (n *Navigator) Notice() error {
	if n.notice == nil {
		return nil
	}
	if n.now().Sub(n.noticeAt) >= n.noticeTTL {
		n.notice = nil
		return nil
	}
	return n.notice
}

// Grid returns the overview tiles of the visible questions.
func (n *Navigator) Grid() []model.NavigatorCell {
	visible := n.Visible()
	cells := make([]model.NavigatorCell, len(visible))
	for i, q := range visible {
		status := model.AnswerStatusNotVisited
		if a := n.answers.Lookup(q); a != nil {
			status = a.Status
		}
		cells[i] = model.NavigatorCell{
			Index:          i,
			QuestionNumber: q.QuestionNumber,
			Type:           q.Type,
			Status:         status,
		}
	}
	return cells
}

func (n *Navigator) unresolvedBranch(q model.Question) bool {
	if q.Type != model.QuestionTypeBranchParent {
		return false
	}
	a := n.answers.Lookup(q)
	return a == nil || a.SelectedAnswer == ""
}

func (n *Navigator) reject(err error) error {
	n.notice = err
	n.noticeAt = n.now()
	return err
}

func (n *Navigator) clearNotice() {
	n.notice = nil
}

// moveTo changes the position and hands the open visit over to the new
// question. Staying on the same question keeps the visit running.
func (n *Navigator) moveTo(index int) {
	visible := n.Visible()
	if len(visible) == 0 {
		return
	}
	index = clampIndex(index, len(visible))
	if index == n.position && n.visit.Active() && n.visit.Key() == model.KeyOf(visible[index]) {
		return
	}

	present := n.visit != nil
	n.visit.End()
	n.position = index
	if present {
		n.visit = n.tracker.Begin(visible[index])
	}
}

// clamp keeps the position inside the visible list after it changed size, and
// moves an open visit along if the question under the cursor changed.
func (n *Navigator) clamp() {
	visible := n.Visible()
	if len(visible) == 0 {
		n.position = 0
		return
	}
	n.position = clampIndex(n.position, len(visible))

	if n.visit == nil {
		return
	}
	q := visible[n.position]
	if n.visit.Active() && n.visit.Key() == model.KeyOf(q) {
		return
	}
	n.visit.End()
	n.visit = n.tracker.Begin(q)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
