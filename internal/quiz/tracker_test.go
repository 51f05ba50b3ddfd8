package quiz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"

	"github.com/tsp-sistema/client/internal/rest"
	"github.com/tsp-sistema/client/internal/results"
	"github.com/tsp-sistema/client/internal/storage"
)

// fakeClock advances only when told to, so time charges are exact.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func questionRows(readingID, count int) string {
	rows := make([]string, count)
	for i := 0; i < count; i++ {
		rows[i] = fmt.Sprintf(
			`{"id":%d,"lectura_id":%d,"orden":%d,"pregunta":"P%d","opcion_a":"a","opcion_b":"b","opcion_c":"c","opcion_d":"d","respuesta_correcta":"A"}`,
			100+i, readingID, i+1, i+1)
	}
	return "[" + strings.Join(rows, ",") + "]"
}

func newTestTracker(t *testing.T, body string) (*Tracker, storage.Store, *fakeClock) {
	t.Helper()
	router := mux.NewRouter()
	router.HandleFunc("/rest/v1/preguntas_lectura", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	client, err := rest.New(rest.Config{
		BaseURL: server.URL,
		Key:     "test-key",
		Retry:   rest.Policy{MaxAttempts: 1},
	}, nil)
	if err != nil {
		t.Fatalf("rest.New: %v", err)
	}
	store, err := storage.NewFileStore(afero.NewMemMapFs(), "/state", "tsp_")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	clock := newFakeClock()
	tracker := NewTracker(client, store, nil)
	tracker.now = clock.now
	return tracker, store, clock
}

func TestLoadSortsByOrdinal(t *testing.T) {
	body := `[
		{"id":102,"lectura_id":5,"orden":2,"pregunta":"second","opcion_a":"a","opcion_b":"b","opcion_c":"c","opcion_d":"d","respuesta_correcta":"B"},
		{"id":101,"lectura_id":5,"orden":1,"pregunta":"first","opcion_a":"a","opcion_b":"b","opcion_c":"c","opcion_d":"d","respuesta_correcta":"A"}
	]`
	tracker, _, _ := newTestTracker(t, body)

	if err := tracker.Load(context.Background(), 5); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := tracker.Question().Prompt; got != "first" {
		t.Errorf("first question = %q, want %q", got, "first")
	}
	if tracker.Count() != 2 {
		t.Errorf("Count = %d, want 2", tracker.Count())
	}
}

func TestLoadEmptySequence(t *testing.T) {
	tracker, _, _ := newTestTracker(t, "[]")

	err := tracker.Load(context.Background(), 5)
	var noQuestions *NoQuestionsError
	if !errors.As(err, &noQuestions) {
		t.Fatalf("Load error = %v, want NoQuestionsError", err)
	}
	if noQuestions.ReadingID != 5 {
		t.Errorf("ReadingID = %d, want 5", noQuestions.ReadingID)
	}
	if tracker.State() != Uninitialized {
		t.Errorf("state = %v, want Uninitialized", tracker.State())
	}
}

func TestTimeChargedOnLeavingPosition(t *testing.T) {
	tracker, _, clock := newTestTracker(t, questionRows(5, 3))
	if err := tracker.Load(context.Background(), 5); err != nil {
		t.Fatalf("Load: %v", err)
	}

	clock.advance(8 * time.Second)
	if _, err := tracker.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}

	if got := tracker.timeSpentMs[100]; got != 8000 {
		t.Errorf("time for question 100 = %dms, want 8000", got)
	}
	if got := tracker.timeSpentMs[101]; got != 0 {
		t.Errorf("time for question 101 = %dms, want 0 before leaving", got)
	}
}

func TestGoToSamePositionAccruesNothing(t *testing.T) {
	tracker, _, clock := newTestTracker(t, questionRows(5, 3))
	if err := tracker.Load(context.Background(), 5); err != nil {
		t.Fatalf("Load: %v", err)
	}

	clock.advance(4 * time.Second)
	if err := tracker.GoTo(0); err != nil {
		t.Fatalf("GoTo: %v", err)
	}
	if got := tracker.timeSpentMs[100]; got != 0 {
		t.Errorf("time for question 100 = %dms, want 0 after same-position GoTo", got)
	}

	// The stay is still charged in full when the position is finally left.
	clock.advance(3 * time.Second)
	if err := tracker.GoTo(2); err != nil {
		t.Fatalf("GoTo: %v", err)
	}
	if got := tracker.timeSpentMs[100]; got != 7000 {
		t.Errorf("time for question 100 = %dms, want 7000", got)
	}
}

func TestRevisitAccumulatesTime(t *testing.T) {
	tracker, _, clock := newTestTracker(t, questionRows(5, 3))
	if err := tracker.Load(context.Background(), 5); err != nil {
		t.Fatalf("Load: %v", err)
	}

	clock.advance(2 * time.Second)
	if _, err := tracker.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	clock.advance(time.Second)
	if err := tracker.Previous(); err != nil {
		t.Fatalf("Previous: %v", err)
	}
	clock.advance(5 * time.Second)
	if _, err := tracker.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}

	if got := tracker.timeSpentMs[100]; got != 7000 {
		t.Errorf("accumulated time for question 100 = %dms, want 7000", got)
	}
	if got := tracker.timeSpentMs[101]; got != 1000 {
		t.Errorf("time for question 101 = %dms, want 1000", got)
	}
}

func TestNextAtLastQuestionSignalsEnd(t *testing.T) {
	tracker, _, _ := newTestTracker(t, questionRows(5, 2))
	if err := tracker.Load(context.Background(), 5); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := tracker.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	atEnd, err := tracker.Next()
	if err != nil {
		t.Fatalf("Next at end: %v", err)
	}
	if !atEnd {
		t.Error("atEnd = false at last question, want true")
	}
	if tracker.Position() != 1 {
		t.Errorf("position moved to %d, want 1", tracker.Position())
	}
}

func TestAnswerOverwrites(t *testing.T) {
	tracker, _, _ := newTestTracker(t, questionRows(5, 2))
	if err := tracker.Load(context.Background(), 5); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := tracker.Answer(100, "B"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := tracker.Answer(100, "C"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if label, _ := tracker.SelectedAnswer(); label != "C" {
		t.Errorf("selected = %q, want C", label)
	}

	if err := tracker.Answer(100, "Z"); err == nil {
		t.Error("invalid choice accepted")
	}
	if err := tracker.Answer(999, "A"); err == nil {
		t.Error("answer for unknown question accepted")
	}
}

func TestFinalizeFiveQuestionsTwoCorrect(t *testing.T) {
	tracker, _, clock := newTestTracker(t, questionRows(5, 5))
	if err := tracker.Load(context.Background(), 5); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Correct answer is "A" for every question: two right, one wrong,
	// two left unanswered.
	if err := tracker.Answer(100, "A"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	clock.advance(time.Second)
	if _, err := tracker.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := tracker.Answer(101, "A"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	clock.advance(time.Second)
	if _, err := tracker.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := tracker.Answer(102, "B"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	clock.advance(time.Second)

	outcome, err := tracker.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if outcome.Correct != 2 || outcome.Total != 5 || outcome.Answered != 3 {
		t.Errorf("outcome = %d/%d answered %d, want 2/5 answered 3", outcome.Correct, outcome.Total, outcome.Answered)
	}
	if got := results.FormatPercent(outcome.Percentage); got != "40.0" {
		t.Errorf("percentage = %q, want %q", got, "40.0")
	}
	if got := tracker.timeSpentMs[102]; got != 1000 {
		t.Errorf("finalize did not charge current question: %dms, want 1000", got)
	}
	if len(outcome.Detail) != 5 {
		t.Fatalf("detail rows = %d, want 5", len(outcome.Detail))
	}
	if outcome.Detail[3].Selected != "" || outcome.Detail[3].IsCorrect {
		t.Errorf("unanswered detail = %+v, want empty and incorrect", outcome.Detail[3])
	}
}

func TestFinalizeTwiceRejected(t *testing.T) {
	tracker, _, _ := newTestTracker(t, questionRows(5, 2))
	if err := tracker.Load(context.Background(), 5); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := tracker.Finalize(); err != nil {
		t.Fatalf("first Finalize: %v", err)
	}

	_, err := tracker.Finalize()
	var completed *AlreadyCompletedError
	if !errors.As(err, &completed) {
		t.Fatalf("second Finalize error = %v, want AlreadyCompletedError", err)
	}
}

func TestProgressRestoredAcrossSessions(t *testing.T) {
	tracker, store, clock := newTestTracker(t, questionRows(5, 3))
	if err := tracker.Load(context.Background(), 5); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := tracker.Answer(100, "B"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	clock.advance(6 * time.Second)
	if _, err := tracker.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}

	// A new tracker over the same store picks the session back up.
	restored := NewTracker(tracker.rest, store, nil)
	restored.now = clock.now
	if err := restored.Load(context.Background(), 5); err != nil {
		t.Fatalf("restored Load: %v", err)
	}
	if restored.Position() != 1 {
		t.Errorf("restored position = %d, want 1", restored.Position())
	}
	if restored.answers[100] != "B" {
		t.Errorf("restored answer = %q, want B", restored.answers[100])
	}
	if restored.timeSpentMs[100] != 6000 {
		t.Errorf("restored time = %dms, want 6000", restored.timeSpentMs[100])
	}
}

func TestMalformedSnapshotStartsFresh(t *testing.T) {
	tracker, store, _ := newTestTracker(t, questionRows(5, 3))
	if err := store.Set(snapshotKey(5), []byte(`{"lectura_id":"not a number"`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := tracker.Load(context.Background(), 5); err != nil {
		t.Fatalf("Load with corrupt snapshot: %v", err)
	}
	if tracker.Position() != 0 || len(tracker.answers) != 0 {
		t.Errorf("corrupt snapshot leaked state: position %d, answers %d", tracker.Position(), len(tracker.answers))
	}
}

func TestSnapshotFromOtherReadingIgnored(t *testing.T) {
	tracker, store, _ := newTestTracker(t, questionRows(5, 3))
	other := snapshot{ReadingID: 99, Position: 2, Answers: map[string]string{"100": "D"}}
	if err := storage.SetJSON(store, snapshotKey(5), other); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	if err := tracker.Load(context.Background(), 5); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tracker.Position() != 0 || len(tracker.answers) != 0 {
		t.Errorf("foreign snapshot applied: position %d, answers %d", tracker.Position(), len(tracker.answers))
	}
}

func TestSnapshotPositionClamped(t *testing.T) {
	tracker, store, _ := newTestTracker(t, questionRows(5, 3))
	stale := snapshot{ReadingID: 5, Position: 7, Answers: map[string]string{"101": "C", "999": "A"}}
	if err := storage.SetJSON(store, snapshotKey(5), stale); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	if err := tracker.Load(context.Background(), 5); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tracker.Position() != 0 {
		t.Errorf("out-of-range position restored as %d, want 0", tracker.Position())
	}
	if tracker.answers[101] != "C" {
		t.Errorf("known-question answer dropped")
	}
	if _, ok := tracker.answers[999]; ok {
		t.Error("unknown-question answer restored")
	}
}

func TestClearProgressRemovesSnapshot(t *testing.T) {
	tracker, store, _ := newTestTracker(t, questionRows(5, 2))
	if err := tracker.Load(context.Background(), 5); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := tracker.Answer(100, "A"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if _, ok := store.Get(snapshotKey(5)); !ok {
		t.Fatal("snapshot missing after Answer")
	}

	tracker.ClearProgress()
	if _, ok := store.Get(snapshotKey(5)); ok {
		t.Error("snapshot survived ClearProgress")
	}
}

func TestSnapshotWrittenByAnotherClientRestores(t *testing.T) {
	tracker, store, _ := newTestTracker(t, questionRows(5, 3))

	// Blob as another portal client writes it: respuestas and
	// tiempos_por_pregunta keyed by question id.
	blob := `{"lectura_id":5,"pregunta_actual":2,"respuestas":{"100":"A","101":"C"},"tiempos_por_pregunta":{"100":4000},"tiempo_inicio":1756360000000,"timestamp":1756360100000}`
	if err := store.Set(snapshotKey(5), []byte(blob)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := tracker.Load(context.Background(), 5); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tracker.Position() != 2 {
		t.Errorf("restored position = %d, want 2", tracker.Position())
	}
	if tracker.answers[100] != "A" || tracker.answers[101] != "C" {
		t.Errorf("restored answers = %v", tracker.answers)
	}
	if tracker.timeSpentMs[100] != 4000 {
		t.Errorf("restored time = %dms, want 4000", tracker.timeSpentMs[100])
	}
}
