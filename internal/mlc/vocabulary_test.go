package mlc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/tsp-sistema/client/internal/rest"
)

const vocabRows = `[
	{"id":1,"lectura_id":5,"orden":1,"palabra":"efímero","definicion":"que dura poco"},
	{"id":2,"lectura_id":5,"orden":2,"palabra":"prolijo","definicion":"cuidadoso"},
	{"id":3,"lectura_id":5,"orden":3,"palabra":"diáfano","definicion":"transparente"}
]`

func newVocabClient(t *testing.T, body string) *rest.Client {
	t.Helper()
	router := mux.NewRouter()
	router.HandleFunc("/rest/v1/vocabulario", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("lectura_id"); got != "eq.5" {
			t.Errorf("lectura_id filter = %q, want eq.5", got)
		}
		if got := r.URL.Query().Get("order"); got != "orden.asc" {
			t.Errorf("order = %q, want orden.asc", got)
		}
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
	return client
}

func TestVocabularyViewedProgress(t *testing.T) {
	engine, err := LoadVocabulary(context.Background(), newVocabClient(t, vocabRows), 5)
	if err != nil {
		t.Fatalf("LoadVocabulary: %v", err)
	}

	if engine.Count() != 3 {
		t.Fatalf("Count = %d, want 3", engine.Count())
	}
	if engine.AllViewed() {
		t.Error("AllViewed true before any term viewed")
	}

	engine.MarkViewed(0)
	engine.MarkViewed(0) // repeat views count once
	engine.MarkViewed(1)
	if engine.ViewedCount() != 2 {
		t.Errorf("ViewedCount = %d, want 2", engine.ViewedCount())
	}
	if engine.AllViewed() {
		t.Error("AllViewed true with one term pending")
	}

	engine.MarkViewed(2)
	if !engine.AllViewed() {
		t.Error("AllViewed false after viewing every term")
	}
}

func TestVocabularyOutOfRangeIgnored(t *testing.T) {
	engine, err := LoadVocabulary(context.Background(), newVocabClient(t, vocabRows), 5)
	if err != nil {
		t.Fatalf("LoadVocabulary: %v", err)
	}

	engine.MarkViewed(-1)
	engine.MarkViewed(99)
	if engine.ViewedCount() != 0 {
		t.Errorf("ViewedCount = %d, want 0", engine.ViewedCount())
	}
	if engine.Term(99) != nil {
		t.Error("Term(99) != nil")
	}
}

func TestVocabularyEmptyReading(t *testing.T) {
	engine, err := LoadVocabulary(context.Background(), newVocabClient(t, "[]"), 5)
	if err != nil {
		t.Fatalf("LoadVocabulary: %v", err)
	}
	if engine.Count() != 0 {
		t.Errorf("Count = %d, want 0", engine.Count())
	}
	if !engine.AllViewed() {
		t.Error("AllViewed false for reading without vocabulary")
	}
}
