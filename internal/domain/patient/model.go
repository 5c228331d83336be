package patient

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("patient not found")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid patient")
)

// Patient is one scheduled surgery. Token is the questionnaire credential:
// assigned on create, unique, never changed afterwards.
type Patient struct {
	ID             uuid.UUID  `db:"id" json:"id" schema:"-"`
	Name           string     `db:"name" json:"name" schema:"name"`
	RegistrationID string     `db:"registration_id" json:"registration_id" schema:"registration_id"`
	Phone          string     `db:"phone" json:"phone" schema:"phone"`
	Gender         string     `db:"gender" json:"gender" schema:"gender"`
	Age            string     `db:"age" json:"age" schema:"age"`
	DoctorName     string     `db:"doctor_name" json:"doctor_name" schema:"doctor_name"`
	SurgeryName    string     `db:"surgery_name" json:"surgery_name" schema:"surgery_name"`
	SurgeryDate    string     `db:"surgery_date" json:"surgery_date" schema:"surgery_date"`
	Token          string     `db:"token" json:"token" schema:"-"`
	Submitted      bool       `db:"submitted" json:"submitted" schema:"-"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty" schema:"-"`
	SMSSent        bool       `db:"sms_sent" json:"sms_sent" schema:"-"`
	SMSSentAt      *time.Time `db:"sms_sent_at" json:"sms_sent_at,omitempty" schema:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at" schema:"-"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at" schema:"-"`
}

// Filter narrows the admin patient list. A non-empty Query overrides Date.
type Filter struct {
	Query string `query:"q"`
	Date  string `query:"date"`
}

// ImportResult counts the outcome of a bulk registration.
type ImportResult struct {
	Total      int        `json:"total"`
	Created    int        `json:"created"`
	Duplicates int        `json:"duplicates"`
	Invalid    int        `json:"invalid"`
	Failed     int        `json:"failed"`
	Patients   []*Patient `json:"patients"`
}

// Detail is a patient with every saved answer grouped by step.
type Detail struct {
	Patient *Patient                  `json:"patient"`
	Answers map[int]map[string]string `json:"answers"`
}

var surgeryDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// NewToken returns 32 lowercase hex characters from a random v4 UUID.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (p *Patient) normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.RegistrationID = strings.TrimSpace(p.RegistrationID)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Gender = strings.TrimSpace(p.Gender)
	p.Age = strings.TrimSpace(p.Age)
	p.DoctorName = strings.TrimSpace(p.DoctorName)
	p.SurgeryName = strings.TrimSpace(p.SurgeryName)
	p.SurgeryDate = strings.TrimSpace(p.SurgeryDate)
}

// Validate checks the identity fields staff must supply.
func (p *Patient) Validate() error {
	var missing []string
	if p.Name == "" {
		missing = append(missing, "name")
	}
	if p.RegistrationID == "" {
		missing = append(missing, "registration_id")
	}
	if p.Phone == "" {
		missing = append(missing, "phone")
	}
	if p.DoctorName == "" {
		missing = append(missing, "doctor_name")
	}
	if p.SurgeryDate == "" {
		missing = append(missing, "surgery_date")
	}
	if len(missing) > 0 {
		return &FieldError{Fields: missing, Reason: "is required"}
	}
	if !surgeryDatePattern.MatchString(p.SurgeryDate) {
		return &FieldError{Fields: []string{"surgery_date"}, Reason: "must be YYYY-MM-DD"}
	}
	if !validSurgeryDate(p.SurgeryDate) {
		return &FieldError{Fields: []string{"surgery_date"}, Reason: "is not a calendar date"}
	}
	return nil
}

func validSurgeryDate(s string) bool {
	if !surgeryDatePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

type FieldError struct {
	Fields []string
	Reason string
}

func (e *FieldError) Error() string {
	return strings.Join(e.Fields, ", ") + " " + e.Reason
}

func (e *FieldError) Unwrap() error { return ErrInvalid }

func (p *Patient) naturalKey() string {
	return p.RegistrationID + "\x00" + p.SurgeryDate
}
