package questionnaire

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// ReplaceStep deletes every answer of (patient, step) and inserts the
	// given ones atomically, under a row lock on the patient.
	ReplaceStep(ctx context.Context, patientID uuid.UUID, step int, answers []Answer) error
	ListStep(ctx context.Context, patientID uuid.UUID, step int) (map[string]string, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Answer, error)
	GroupedByStep(ctx context.Context, patientID uuid.UUID) (map[int]map[string]string, error)
}

func groupByStep(answers []Answer) map[int]map[string]string {
	grouped := make(map[int]map[string]string)
	for _, a := range answers {
		if grouped[a.Step] == nil {
			grouped[a.Step] = make(map[string]string)
		}
		grouped[a.Step][a.Question] = a.Answer
	}
	return grouped
}
