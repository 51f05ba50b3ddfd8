// Package mlc orchestrates the comprehension reading module: one
// assigned reading per learner, walked through a fixed one-way
// sequence of sections, finishing with scored results and a cohort
// ranking.
package mlc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tsp-sistema/client/internal/models"
	"github.com/tsp-sistema/client/internal/notify"
	"github.com/tsp-sistema/client/internal/quiz"
	"github.com/tsp-sistema/client/internal/rest"
	"github.com/tsp-sistema/client/internal/results"
	"github.com/tsp-sistema/client/internal/storage"
)

// Section identifies one phase of the module flow.
type Section string

const (
	SectionSelection     Section = "selection"
	SectionReading       Section = "reading"
	SectionVocabulary    Section = "vocabulary"
	SectionQuestionnaire Section = "questionnaire"
	SectionResults       Section = "results"
)

// sectionOrder fixes the one-way flow. There is no path backwards:
// a learner who reached the questionnaire cannot reread the text.
var sectionOrder = []Section{
	SectionSelection,
	SectionReading,
	SectionVocabulary,
	SectionQuestionnaire,
	SectionResults,
}

// Outcome bundles everything the results section shows.
type Outcome struct {
	Quiz           results.QuizOutcome
	WordsPerMinute float64
	EffectiveSpeed float64
	ReadingSeconds int
	Ranking        models.Ranking
}

// Orchestrator owns one learner's pass through the module.
type Orchestrator struct {
	rest     *rest.Client
	store    storage.Store
	log      *zap.Logger
	notifier notify.Notifier
	reporter notify.Reporter

	user    *models.User
	reading *models.Reading
	vocab   *VocabularyEngine
	timer   *ReadingTimer
	tracker *quiz.Tracker
	// finalized caches the first successful Finalize so a failed
	// result save can be retried without re-finalizing the session.
	finalized *results.QuizOutcome
	outcome   *Outcome

	section Section
	// cancelSection invalidates in-flight loads from the section being
	// left, so a slow response cannot land on a later section's state.
	cancelSection context.CancelFunc
}

func NewOrchestrator(client *rest.Client, store storage.Store, notifier notify.Notifier, reporter notify.Reporter, log *zap.Logger, user *models.User) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if reporter == nil {
		reporter = notify.Discard{}
	}
	return &Orchestrator{
		rest:     client,
		store:    store,
		log:      log,
		notifier: notifier,
		reporter: reporter,
		user:     user,
		timer:    NewReadingTimer(),
		section:  SectionSelection,
	}
}

func (o *Orchestrator) Section() Section              { return o.section }
func (o *Orchestrator) Reading() *models.Reading      { return o.reading }
func (o *Orchestrator) Vocabulary() *VocabularyEngine { return o.vocab }
func (o *Orchestrator) Timer() *ReadingTimer          { return o.timer }
func (o *Orchestrator) Tracker() *quiz.Tracker        { return o.tracker }
func (o *Orchestrator) Outcome() *Outcome             { return o.outcome }

// LoadAssignment resolves the learner's current reading: the first
// active reading of their grade and cycle by cycle order.
func (o *Orchestrator) LoadAssignment(ctx context.Context) (*models.Reading, error) {
	var reading models.Reading
	found, err := o.rest.From("lecturas").
		Select("*").
		Eq("grado", o.user.Grade).
		Eq("ciclo", o.user.Cycle).
		Eq("estado", string(models.ReadingActive)).
		Order("orden_en_ciclo", true).
		Limit(1).
		Single().
		ExecuteInto(ctx, &reading)
	if err != nil {
		err = fmt.Errorf("load assignment: %w", err)
		o.reporter.Report(err, "loading the assigned reading")
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no active reading assigned for grade %d cycle %d", o.user.Grade, o.user.Cycle)
	}
	o.reading = &reading
	o.log.Info("assignment loaded",
		zap.Int64("reading_id", reading.ID),
		zap.String("title", reading.Title))
	return &reading, nil
}

// Advance moves to the next section, running that section's entry
// work. The flow is strictly forward; there is no way back.
func (o *Orchestrator) Advance(ctx context.Context) error {
	next, err := o.nextSection()
	if err != nil {
		return err
	}
	return o.enter(ctx, next)
}

func (o *Orchestrator) nextSection() (Section, error) {
	for i, s := range sectionOrder {
		if s != o.section {
			continue
		}
		if i == len(sectionOrder)-1 {
			return "", fmt.Errorf("module flow already finished")
		}
		return sectionOrder[i+1], nil
	}
	return "", fmt.Errorf("unknown section %q", o.section)
}

func (o *Orchestrator) enter(ctx context.Context, next Section) error {
	// Leave-side checks first, so a failed entry leaves the flow where
	// it was.
	switch o.section {
	case SectionSelection:
		if o.reading == nil {
			return fmt.Errorf("no reading selected")
		}
	case SectionVocabulary:
		if o.vocab != nil && !o.vocab.AllViewed() {
			// Soft gate: warn and let the learner continue.
			o.notifier.Notify(
				fmt.Sprintf("Has revisado %d de %d términos del vocabulario", o.vocab.ViewedCount(), o.vocab.Count()),
				notify.KindWarning)
		}
	}

	if o.cancelSection != nil {
		o.cancelSection()
	}
	sectionCtx, cancel := context.WithCancel(ctx)
	o.cancelSection = cancel

	switch next {
	case SectionReading:
		o.timer.Start()
	case SectionVocabulary:
		o.timer.Pause()
		vocab, err := LoadVocabulary(sectionCtx, o.rest, o.reading.ID)
		if err != nil {
			o.timer.Resume()
			o.reporter.Report(err, "loading vocabulary")
			return err
		}
		o.vocab = vocab
	case SectionQuestionnaire:
		tracker := quiz.NewTracker(o.rest, o.store, o.log)
		if err := tracker.Load(sectionCtx, o.reading.ID); err != nil {
			o.reporter.Report(err, "starting the questionnaire")
			return err
		}
		o.tracker = tracker
	case SectionResults:
		outcome, err := o.complete(sectionCtx)
		if err != nil {
			o.reporter.Report(err, "completing the module")
			return err
		}
		o.outcome = outcome
	}

	o.log.Debug("section changed",
		zap.String("from", string(o.section)), zap.String("to", string(next)))
	o.section = next
	return nil
}

// complete finalizes the questionnaire, derives the speed metrics,
// persists the record, fetches the ranking, and drops the progress
// snapshot. Finalization happens once and its outcome is cached, so
// Advance can be retried after a failed result save without tripping
// over the tracker's already-completed guard.
func (o *Orchestrator) complete(ctx context.Context) (*Outcome, error) {
	if o.finalized == nil {
		quizOutcome, err := o.tracker.Finalize()
		if err != nil {
			return nil, err
		}
		o.finalized = quizOutcome
	}
	quizOutcome := o.finalized

	readingSeconds := o.timer.TotalSeconds()
	wpm := results.SimpleSpeed(o.reading.WordCount, readingSeconds)
	outcome := &Outcome{
		Quiz:           *quizOutcome,
		WordsPerMinute: wpm,
		EffectiveSpeed: results.EffectiveSpeed(wpm, quizOutcome.Percentage),
		ReadingSeconds: readingSeconds,
	}

	rec := results.Record{
		UserID:           o.user.ID,
		ReadingID:        o.reading.ID,
		WordsPerMinute:   wpm,
		ComprehensionPct: quizOutcome.Percentage,
		EffectiveSpeed:   outcome.EffectiveSpeed,
		ReadingSeconds:   readingSeconds,
		QuizSeconds:      quizOutcome.ElapsedSeconds,
		CompletedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if err := results.Save(ctx, o.rest, rec); err != nil {
		return nil, err
	}

	outcome.Ranking = results.FetchRanking(ctx, o.rest, o.log, o.user.ID, o.user.Grade, o.user.Cycle)
	o.tracker.ClearProgress()
	o.notifier.Notify("Módulo completado", notify.KindSuccess)
	return outcome, nil
}

// Close cancels any in-flight section work.
func (o *Orchestrator) Close() {
	if o.cancelSection != nil {
		o.cancelSection()
	}
}
