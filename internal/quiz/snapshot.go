package quiz

import (
	"strconv"
	"time"
)

// snapshot is the persisted progress blob. Answers and times are
// keyed by question id, and keys mirror the backend's Spanish column
// vocabulary, so a blob written by any portal client restores in any
// other.
type snapshot struct {
	ReadingID   int64             `json:"lectura_id"`
	Position    int               `json:"pregunta_actual"`
	Answers     map[string]string `json:"respuestas"`
	TimeSpentMs map[string]int64  `json:"tiempos_por_pregunta"`
	StartedAt   int64             `json:"tiempo_inicio"` // unix milliseconds
	SavedAt     int64             `json:"timestamp"`
}

func snapshotKey(readingID int64) string {
	return "cuestionario_" + strconv.FormatInt(readingID, 10)
}

// capture freezes the tracker's live state into a snapshot.
func (t *Tracker) capture() snapshot {
	s := snapshot{
		ReadingID:   t.readingID,
		Position:    t.position,
		Answers:     make(map[string]string, len(t.answers)),
		TimeSpentMs: make(map[string]int64, len(t.timeSpentMs)),
		StartedAt:   t.startedAt.UnixMilli(),
		SavedAt:     t.now().UnixMilli(),
	}
	for id, label := range t.answers {
		s.Answers[strconv.FormatInt(id, 10)] = label
	}
	for id, ms := range t.timeSpentMs {
		s.TimeSpentMs[strconv.FormatInt(id, 10)] = ms
	}
	return s
}

// apply merges a restored snapshot into the tracker, dropping anything
// that no longer fits the loaded question sequence. It never fails:
// a partial or stale blob restores what it can and the session starts
// fresh for the rest.
func (t *Tracker) apply(s snapshot) {
	if s.ReadingID != t.readingID {
		return
	}
	for key, label := range s.Answers {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		if _, ok := t.byID[id]; !ok {
			continue
		}
		t.answers[id] = label
	}
	for key, ms := range s.TimeSpentMs {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || ms < 0 {
			continue
		}
		if _, ok := t.byID[id]; !ok {
			continue
		}
		t.timeSpentMs[id] = ms
	}
	if s.Position >= 0 && s.Position < len(t.questions) {
		t.position = s.Position
	}
	if s.StartedAt > 0 {
		t.startedAt = time.UnixMilli(s.StartedAt)
	}
}
