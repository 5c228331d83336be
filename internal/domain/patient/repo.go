package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByToken(ctx context.Context, token string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error)
	ExistsNaturalKey(ctx context.Context, registrationID, surgeryDate string) (bool, error)

	// MarkSubmitted sets the submitted flag. completed_at is only written
	// the first time; the effective completion time is returned.
	MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) (time.Time, error)
	MarkSMSSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AnswerReader gives the admin detail view read access to saved answers.
type AnswerReader interface {
	GroupedByStep(ctx context.Context, patientID uuid.UUID) (map[int]map[string]string, error)
}
