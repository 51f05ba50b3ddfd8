// Package quiz walks a learner through a question sequence: one
// position at a time, per-question timing charged when a position is
// left, and write-through progress snapshots so an interrupted session
// resumes where it stopped.
package quiz

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tsp-sistema/client/internal/models"
	"github.com/tsp-sistema/client/internal/rest"
	"github.com/tsp-sistema/client/internal/results"
	"github.com/tsp-sistema/client/internal/storage"
)

// State is the tracker lifecycle phase.
type State int

const (
	Uninitialized State = iota
	Loading
	Active
	Completed
)

// Tracker owns one questionnaire session for one reading. Answers and
// per-question times are keyed by question id, matching the persisted
// snapshot format. Not safe for concurrent use; a session belongs to
// one learner.
type Tracker struct {
	rest  *rest.Client
	store storage.Store
	log   *zap.Logger
	now   func() time.Time

	state       State
	readingID   int64
	questions   []models.Question
	byID        map[int64]int // question id → position
	position    int
	answers     map[int64]string
	timeSpentMs map[int64]int64
	startedAt   time.Time
	enteredAt   time.Time // when the current position was entered
}

func NewTracker(client *rest.Client, store storage.Store, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		rest:        client,
		store:       store,
		log:         log,
		now:         time.Now,
		answers:     make(map[int64]string),
		timeSpentMs: make(map[int64]int64),
	}
}

// Load fetches the reading's question sequence and restores any saved
// progress for it. A reading with zero questions is a data problem
// surfaced as NoQuestionsError, not an empty session.
func (t *Tracker) Load(ctx context.Context, readingID int64) error {
	if t.state == Active {
		return fmt.Errorf("tracker already active for reading %d", t.readingID)
	}
	t.state = Loading
	t.readingID = readingID

	raw, err := t.rest.From("preguntas_lectura").
		Select("*").
		Eq("lectura_id", readingID).
		Order("orden", true).
		Execute(ctx)
	if err != nil {
		t.state = Uninitialized
		return fmt.Errorf("load questions: %w", err)
	}

	questions, err := models.DecodeQuestions(raw)
	if err != nil {
		t.state = Uninitialized
		return err
	}
	if len(questions) == 0 {
		t.state = Uninitialized
		return &NoQuestionsError{ReadingID: readingID}
	}

	t.questions = questions
	t.byID = make(map[int64]int, len(questions))
	for i := range questions {
		t.byID[questions[i].ID] = i
	}
	t.position = 0
	t.answers = make(map[int64]string)
	t.timeSpentMs = make(map[int64]int64)
	t.startedAt = t.now()
	t.restore()

	t.enteredAt = t.now()
	t.state = Active
	t.log.Info("questionnaire session started",
		zap.Int64("reading_id", readingID),
		zap.Int("questions", len(questions)),
		zap.Int("position", t.position))
	return nil
}

func (t *Tracker) State() State                 { return t.state }
func (t *Tracker) Position() int                { return t.position }
func (t *Tracker) Count() int                   { return len(t.questions) }
func (t *Tracker) Questions() []models.Question { return t.questions }

// Question returns the question at the current position.
func (t *Tracker) Question() *models.Question {
	if t.state != Active {
		return nil
	}
	return &t.questions[t.position]
}

// SelectedAnswer returns the stored answer for the current position's
// question.
func (t *Tracker) SelectedAnswer() (string, bool) {
	if t.state != Active {
		return "", false
	}
	label, ok := t.answers[t.questions[t.position].ID]
	return label, ok
}

// Answer records a choice for the given question, overwriting any
// earlier choice for it, and persists the session immediately.
func (t *Tracker) Answer(questionID int64, label string) error {
	if t.state != Active {
		return fmt.Errorf("no active session")
	}
	if _, ok := t.byID[questionID]; !ok {
		return fmt.Errorf("question %d is not part of this session", questionID)
	}
	if !models.ValidChoice(label) {
		return fmt.Errorf("invalid choice %q", label)
	}
	t.answers[questionID] = label
	t.save()
	return nil
}

// GoTo moves to position. Moving to the current position is a no-op
// and accrues no time; otherwise the stay at the departed position is
// charged to its question before moving.
func (t *Tracker) GoTo(position int) error {
	if t.state != Active {
		return fmt.Errorf("no active session")
	}
	if position < 0 || position >= len(t.questions) {
		return fmt.Errorf("position %d out of range [0,%d)", position, len(t.questions))
	}
	if position == t.position {
		return nil
	}
	t.chargeTime()
	t.position = position
	t.save()
	return nil
}

// Next advances one position. At the last question it moves nowhere
// and reports atEnd so the caller can offer finalization.
func (t *Tracker) Next() (atEnd bool, err error) {
	if t.state != Active {
		return false, fmt.Errorf("no active session")
	}
	if t.position == len(t.questions)-1 {
		return true, nil
	}
	return false, t.GoTo(t.position + 1)
}

// Previous steps one position back, stopping at the first question.
func (t *Tracker) Previous() error {
	if t.state != Active {
		return fmt.Errorf("no active session")
	}
	if t.position == 0 {
		return nil
	}
	return t.GoTo(t.position - 1)
}

// Finalize charges the stay at the current position, computes the
// outcome over the full question set, and closes the session. A second
// call is rejected with AlreadyCompletedError.
func (t *Tracker) Finalize() (*results.QuizOutcome, error) {
	if t.state == Completed {
		return nil, &AlreadyCompletedError{ReadingID: t.readingID}
	}
	if t.state != Active {
		return nil, fmt.Errorf("no active session")
	}
	t.chargeTime()
	t.save()

	elapsed := t.now().Sub(t.startedAt)
	outcome := results.ComputeQuiz(t.questions, t.answers, t.timeSpentMs, elapsed)
	t.state = Completed
	t.log.Info("questionnaire finalized",
		zap.Int64("reading_id", t.readingID),
		zap.Int("correct", outcome.Correct),
		zap.Int("total", outcome.Total))
	return &outcome, nil
}

// ClearProgress drops the persisted snapshot for this session.
func (t *Tracker) ClearProgress() {
	if err := t.store.Remove(snapshotKey(t.readingID)); err != nil {
		t.log.Warn("could not clear questionnaire progress", zap.Error(err))
	}
}

// chargeTime attributes the time since entering the current position
// to its question and restarts the clock.
func (t *Tracker) chargeTime() {
	now := t.now()
	t.timeSpentMs[t.questions[t.position].ID] += now.Sub(t.enteredAt).Milliseconds()
	t.enteredAt = now
}

// save persists the session write-through. Persistence failures are
// logged and swallowed: losing a checkpoint must never break the
// session in front of the learner.
func (t *Tracker) save() {
	if err := storage.SetJSON(t.store, snapshotKey(t.readingID), t.capture()); err != nil {
		t.log.Warn("could not persist questionnaire progress", zap.Error(err))
	}
}

// restore merges a saved snapshot if one exists. Malformed blobs are
// dropped silently and the session starts fresh.
func (t *Tracker) restore() {
	var s snapshot
	if !storage.GetJSON(t.store, snapshotKey(t.readingID), &s) {
		return
	}
	t.apply(s)
	if len(t.answers) > 0 || t.position > 0 {
		t.log.Info("restored questionnaire progress",
			zap.Int64("reading_id", t.readingID),
			zap.Int("position", t.position),
			zap.Int("answers", len(t.answers)))
	}
}
