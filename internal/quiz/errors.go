package quiz

import "fmt"

// NoQuestionsError means the reading has no question rows at all;
// starting a questionnaire on it is impossible, not merely empty.
type NoQuestionsError struct {
	ReadingID int64
}

func (e *NoQuestionsError) Error() string {
	return fmt.Sprintf("reading %d has no questions", e.ReadingID)
}

// AlreadyCompletedError rejects a second finalization of the same
// session; the first outcome is the outcome.
type AlreadyCompletedError struct {
	ReadingID int64
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("questionnaire for reading %d is already completed", e.ReadingID)
}
