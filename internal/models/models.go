// Package models holds the typed record shapes for the portal tables.
// The backend schema is authoritative; these structs narrow its JSON
// rows at the boundary instead of passing dynamic maps around.
package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ── User / session records ─────────────────────────────

type UserState string

const (
	UserActive   UserState = "ACTIVO"
	UserInactive UserState = "INACTIVO"
)

// User is a row of the usuarios table.
type User struct {
	ID         int64     `json:"id"`
	AccessCode string    `json:"codigo_acceso"`
	FullName   string    `json:"nombre_completo"`
	Grade      int       `json:"grado"`
	Cycle      int       `json:"ciclo_actual"`
	State      UserState `json:"estado"`
	UpdatedAt  time.Time `json:"fecha_actualizacion,omitempty"`
}

// ── Reading (MLC) records ──────────────────────────────

type ReadingState string

const ReadingActive ReadingState = "ACTIVA"

// Reading is a row of the lecturas table.
type Reading struct {
	ID           int64        `json:"id"`
	Title        string       `json:"titulo"`
	Author       string       `json:"autor,omitempty"`
	Grade        int          `json:"grado"`
	Cycle        int          `json:"ciclo"`
	CycleOrder   int          `json:"orden_en_ciclo"`
	State        ReadingState `json:"estado"`
	WordCount    int          `json:"total_palabras"`
	Introduction string       `json:"contexto_introduccion,omitempty"`
	DocumentURL  string       `json:"archivo_pdf_url,omitempty"`
}

// VocabularyTerm is a row of the vocabulario table.
type VocabularyTerm struct {
	ID         int64  `json:"id"`
	ReadingID  int64  `json:"lectura_id"`
	Ordinal    int    `json:"orden"`
	Word       string `json:"palabra"`
	Definition string `json:"definicion"`
}

// ── Question records ───────────────────────────────────

// ChoiceLabels is the closed set of answer labels a question carries.
var ChoiceLabels = []string{"A", "B", "C", "D"}

func ValidChoice(label string) bool {
	for _, l := range ChoiceLabels {
		if l == label {
			return true
		}
	}
	return false
}

// Question is a row of the preguntas_lectura table. Immutable for the
// duration of a session once loaded.
type Question struct {
	ID            int64  `json:"id"`
	ReadingID     int64  `json:"lectura_id"`
	Ordinal       int    `json:"orden"`
	Prompt        string `json:"pregunta"`
	ChoiceA       string `json:"opcion_a"`
	ChoiceB       string `json:"opcion_b"`
	ChoiceC       string `json:"opcion_c"`
	ChoiceD       string `json:"opcion_d"`
	CorrectChoice string `json:"respuesta_correcta"`
	Hint          string `json:"orientacion,omitempty"`
	Feedback      string `json:"retroalimentacion,omitempty"`
}

// Choice returns the text for a choice label, or "" for an unknown label.
func (q *Question) Choice(label string) string {
	switch label {
	case "A":
		return q.ChoiceA
	case "B":
		return q.ChoiceB
	case "C":
		return q.ChoiceC
	case "D":
		return q.ChoiceD
	}
	return ""
}

func (q *Question) Validate() error {
	if q.Prompt == "" {
		return fmt.Errorf("question %d: empty prompt", q.ID)
	}
	if !ValidChoice(q.CorrectChoice) {
		return fmt.Errorf("question %d: invalid correct choice %q", q.ID, q.CorrectChoice)
	}
	return nil
}

// DecodeQuestions narrows a raw response into an ordinal-sorted,
// validated question sequence.
func DecodeQuestions(raw json.RawMessage) ([]Question, error) {
	var questions []Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	for i := range questions {
		if err := questions[i].Validate(); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Ordinal < questions[j].Ordinal
	})
	return questions, nil
}

// ── Ranking ────────────────────────────────────────────

// Ranking is the row shape returned by the obtener_ranking_mlc
// procedure. The zero value is the degraded "no ranking" result.
type Ranking struct {
	Position      int `json:"posicion"`
	TotalStudents int `json:"total_estudiantes"`
	Percentile    int `json:"percentil"`
}
