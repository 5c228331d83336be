package questionnaire

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/preop/intake/internal/domain/patient"
)

var ErrNotFound = errors.New("questionnaire not found")

// Answer is one saved question/answer pair of a step.
type Answer struct {
	ID        int64     `db:"id" json:"-"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Step      int       `db:"step" json:"step"`
	Question  string    `db:"question" json:"question"`
	Answer    string    `db:"answer" json:"answer"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Upload is an optional file attached to a step submission.
type Upload struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// Submission is a posted step form. Values keeps every value of a key in
// the order received.
type Submission struct {
	Values map[string][]string
	File   *Upload
}

func (s Submission) first(key string) string {
	if vs := s.Values[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// PatientSummary is what the public questionnaire pages may show. Name and
// surgery date are left out: they are what step 1 asks the patient to type.
type PatientSummary struct {
	DoctorName  string     `json:"doctor_name"`
	SurgeryName string     `json:"surgery_name"`
	Submitted   bool       `json:"submitted"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func summarize(p *patient.Patient) PatientSummary {
	return PatientSummary{
		DoctorName:  p.DoctorName,
		SurgeryName: p.SurgeryName,
		Submitted:   p.Submitted,
		CompletedAt: p.CompletedAt,
	}
}

type StartView struct {
	Patient    PatientSummary `json:"patient"`
	TotalSteps int            `json:"total_steps"`
	FirstStep  int            `json:"first_step"`
}

type StepView struct {
	Patient PatientSummary      `json:"patient"`
	Step    int                 `json:"step"`
	Total   int                 `json:"total"`
	Saved   map[string]string   `json:"saved"`
	Lists   map[string][]string `json:"lists"`
}

type SubmitResult struct {
	NextStep  int  `json:"next_step,omitempty"`
	Completed bool `json:"completed"`
}

// ValidationError rejects a step-1 submission. Nothing was saved.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, " / ")
}
