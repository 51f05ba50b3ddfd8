package mlc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tsp-sistema/client/internal/models"
	"github.com/tsp-sistema/client/internal/rest"
)

// VocabularyEngine drives the study phase: terms are presented in
// their backend ordinal order and the learner marks each as viewed.
type VocabularyEngine struct {
	terms  []models.VocabularyTerm
	viewed map[int64]bool
}

// LoadVocabulary fetches the reading's term list. An empty list is
// valid: some readings carry no vocabulary and the study phase is
// skipped for them.
func LoadVocabulary(ctx context.Context, client *rest.Client, readingID int64) (*VocabularyEngine, error) {
	raw, err := client.From("vocabulario").
		Select("*").
		Eq("lectura_id", readingID).
		Order("orden", true).
		Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}

	var terms []models.VocabularyTerm
	if raw != nil {
		if err := json.Unmarshal(raw, &terms); err != nil {
			return nil, fmt.Errorf("decode vocabulary: %w", err)
		}
	}
	return &VocabularyEngine{
		terms:  terms,
		viewed: make(map[int64]bool, len(terms)),
	}, nil
}

func (v *VocabularyEngine) Terms() []models.VocabularyTerm { return v.terms }
func (v *VocabularyEngine) Count() int                     { return len(v.terms) }

// Term returns the term at index, or nil when out of range.
func (v *VocabularyEngine) Term(index int) *models.VocabularyTerm {
	if index < 0 || index >= len(v.terms) {
		return nil
	}
	return &v.terms[index]
}

// MarkViewed records that the learner opened the term at index.
func (v *VocabularyEngine) MarkViewed(index int) {
	if t := v.Term(index); t != nil {
		v.viewed[t.ID] = true
	}
}

func (v *VocabularyEngine) ViewedCount() int { return len(v.viewed) }

// AllViewed reports whether every term has been opened at least once.
// Vacuously true for readings without vocabulary.
func (v *VocabularyEngine) AllViewed() bool {
	return len(v.viewed) == len(v.terms)
}
