// Package results turns a finished question session into the numbers
// the portal reports: comprehension percentage, reading speeds, and
// the learner's cohort ranking.
package results

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/tsp-sistema/client/internal/models"
	"github.com/tsp-sistema/client/internal/rest"
)

// AnswerDetail is the per-question breakdown shown on the results
// screen. An unanswered question carries Selected="" and counts
// against the score like a wrong answer.
type AnswerDetail struct {
	QuestionID int64
	Ordinal    int
	Prompt     string
	Selected   string
	Correct    string
	IsCorrect  bool
	Feedback   string
	Seconds    int // time spent on the question, rounded
}

// QuizOutcome is the computed result of one questionnaire session.
type QuizOutcome struct {
	Correct        int
	Total          int
	Answered       int
	Percentage     float64 // 0..100, rounded to one decimal
	ElapsedSeconds int
	Detail         []AnswerDetail
}

// ComputeQuiz scores answers against questions. Answers and times are
// keyed by question id. The denominator is always the full question
// count, never just the answered ones: skipping a question is
// answering it wrong.
func ComputeQuiz(questions []models.Question, answers map[int64]string, timeSpentMs map[int64]int64, elapsed time.Duration) QuizOutcome {
	outcome := QuizOutcome{
		Total:          len(questions),
		ElapsedSeconds: int(elapsed.Seconds()),
		Detail:         make([]AnswerDetail, 0, len(questions)),
	}
	for i := range questions {
		q := &questions[i]
		selected, answered := answers[q.ID]
		correct := answered && selected == q.CorrectChoice
		if answered {
			outcome.Answered++
		}
		if correct {
			outcome.Correct++
		}
		outcome.Detail = append(outcome.Detail, AnswerDetail{
			QuestionID: q.ID,
			Ordinal:    q.Ordinal,
			Prompt:     q.Prompt,
			Selected:   selected,
			Correct:    q.CorrectChoice,
			IsCorrect:  correct,
			Feedback:   q.Feedback,
			Seconds:    int(math.Round(float64(timeSpentMs[q.ID]) / 1000)),
		})
	}
	if outcome.Total > 0 {
		outcome.Percentage = round1(float64(outcome.Correct) * 100 / float64(outcome.Total))
	}
	return outcome
}

// FormatPercent renders a percentage with exactly one decimal: "0.0",
// "40.0", "100.0".
func FormatPercent(p float64) string {
	return strconv.FormatFloat(round1(p), 'f', 1, 64)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// SimpleSpeed is raw reading speed in words per minute.
func SimpleSpeed(words int, seconds int) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(words) / (float64(seconds) / 60)
}

// EffectiveSpeed scales words-per-minute by comprehension, the MLC
// headline metric: fast reading that was not understood scores low.
func EffectiveSpeed(wpm, comprehensionPct float64) float64 {
	return round1(wpm * comprehensionPct / 100)
}

// FetchRanking asks the backend for the learner's cohort position via
// the obtener_ranking_mlc procedure. Ranking is decoration on the
// results screen, so every failure degrades to the zero Ranking and a
// log line; this function never returns an error.
func FetchRanking(ctx context.Context, client *rest.Client, log *zap.Logger, userID int64, grade, cycle int) models.Ranking {
	if log == nil {
		log = zap.NewNop()
	}
	raw, err := client.RPC(ctx, "obtener_ranking_mlc", map[string]any{
		"p_usuario_id": userID,
		"p_grado":      grade,
		"p_ciclo":      cycle,
		"p_metrica":    "velocidad_efectiva",
	})
	if err != nil {
		log.Warn("ranking unavailable", zap.Error(err))
		return models.Ranking{}
	}
	if raw == nil {
		return models.Ranking{}
	}

	// The procedure returns either a row set or a bare object.
	row := gjson.ParseBytes(raw)
	if row.IsArray() {
		arr := row.Array()
		if len(arr) == 0 {
			return models.Ranking{}
		}
		row = arr[0]
	}
	ranking := models.Ranking{
		Position:      int(row.Get("posicion").Int()),
		TotalStudents: int(row.Get("total_estudiantes").Int()),
		Percentile:    int(row.Get("percentil").Int()),
	}
	if ranking.TotalStudents == 0 {
		return models.Ranking{}
	}
	return ranking
}

// Record is a row of the resultados_mlc table.
type Record struct {
	UserID           int64   `json:"usuario_id"`
	ReadingID        int64   `json:"lectura_id"`
	WordsPerMinute   float64 `json:"palabras_por_minuto"`
	ComprehensionPct float64 `json:"comprension_porcentaje"`
	EffectiveSpeed   float64 `json:"velocidad_efectiva"`
	ReadingSeconds   int     `json:"tiempo_lectura_segundos"`
	QuizSeconds      int     `json:"tiempo_cuestionario_segundos"`
	CompletedAt      string  `json:"fecha_completado"`
}

// Save persists one completed session's metrics. Unlike ranking this
// is learner data, so failures surface to the caller.
func Save(ctx context.Context, client *rest.Client, rec Record) error {
	if _, err := client.From("resultados_mlc").Insert(ctx, rec); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return nil
}
