package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/preop/intake/internal/platform/auth"
	"github.com/preop/intake/internal/platform/blobstore"
	"github.com/preop/intake/internal/platform/notification"
)

type Options struct {
	PublicBaseURL string
	Location      *time.Location
}

type Service struct {
	repo    Repository
	answers AnswerReader
	sms     notification.SMSSender
	exports blobstore.BlobStore
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, answers AnswerReader, sms notification.SMSSender, exports blobstore.BlobStore, opts Options, logger zerolog.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		repo:    repo,
		answers: answers,
		sms:     sms,
		exports: exports,
		opts:    opts,
		logger:  logger.With().Str("component", "patient").Logger(),
		now:     time.Now,
	}
}

func authorize(p auth.Principal) error {
	if !p.IsPrivileged() {
		return ErrForbidden
	}
	return nil
}

func (s *Service) Create(ctx context.Context, principal auth.Principal, p *Patient) error {
	if err := authorize(principal); err != nil {
		return err
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	p.Token = NewToken()
	if err := s.repo.Create(ctx, p); err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Str("by", principal.Username).Msg("patient registered")
	return nil
}

func (s *Service) Get(ctx context.Context, principal auth.Principal, id uuid.UUID) (*Patient, error) {
	if err := authorize(principal); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// GetByToken resolves a questionnaire link. It is the only unauthenticated read.
func (s *Service) GetByToken(ctx context.Context, token string) (*Patient, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.repo.GetByToken(ctx, token)
}

// Update replaces the identity fields of an existing patient. Token and
// questionnaire/SMS status are never touched here.
func (s *Service) Update(ctx context.Context, principal auth.Principal, p *Patient) (*Patient, error) {
	if err := authorize(principal); err != nil {
		return nil, err
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	existing.Name = p.Name
	existing.RegistrationID = p.RegistrationID
	existing.Phone = p.Phone
	existing.Gender = p.Gender
	existing.Age = p.Age
	existing.DoctorName = p.DoctorName
	existing.SurgeryName = p.SurgeryName
	existing.SurgeryDate = p.SurgeryDate

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Service) Delete(ctx context.Context, principal auth.Principal, id uuid.UUID) error {
	if err := authorize(principal); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", id.String()).Str("by", principal.Username).Msg("patient deleted")
	return nil
}

func (s *Service) List(ctx context.Context, principal auth.Principal, f Filter, limit, offset int) ([]*Patient, int, error) {
	if err := authorize(principal); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, f, limit, offset)
}

// Detail returns the patient with all saved answers grouped by step.
func (s *Service) Detail(ctx context.Context, principal auth.Principal, id uuid.UUID) (*Detail, error) {
	if err := authorize(principal); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	answers, err := s.answers.GroupedByStep(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	return &Detail{Patient: p, Answers: answers}, nil
}

// BulkImport registers spreadsheet candidates one by one. Rows without a
// registration id, a name or a YYYY-MM-DD surgery date are invalid; rows whose (registration id,
// surgery date) already exists, in the database or earlier in the batch,
// are duplicates. A failing row is counted and skipped.
func (s *Service) BulkImport(ctx context.Context, principal auth.Principal, candidates []*Patient) (*ImportResult, error) {
	if err := authorize(principal); err != nil {
		return nil, err
	}

	res := &ImportResult{Total: len(candidates), Patients: []*Patient{}}
	seen := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		c.normalize()
		if c.RegistrationID == "" || c.Name == "" || !validSurgeryDate(c.SurgeryDate) {
			res.Invalid++
			continue
		}

		key := c.naturalKey()
		if seen[key] {
			res.Duplicates++
			continue
		}
		seen[key] = true

		exists, err := s.repo.ExistsNaturalKey(ctx, c.RegistrationID, c.SurgeryDate)
		if err != nil {
			s.logger.Error().Err(err).Str("registration_id", c.RegistrationID).Msg("duplicate check failed")
			res.Failed++
			continue
		}
		if exists {
			res.Duplicates++
			continue
		}

		c.Token = NewToken()
		if err := s.repo.Create(ctx, c); err != nil {
			s.logger.Error().Err(err).Str("registration_id", c.RegistrationID).Msg("import row failed")
			res.Failed++
			continue
		}
		res.Created++
		res.Patients = append(res.Patients, c)
	}

	s.logger.Info().
		Int("total", res.Total).
		Int("created", res.Created).
		Int("duplicates", res.Duplicates).
		Int("invalid", res.Invalid).
		Int("failed", res.Failed).
		Str("by", principal.Username).
		Msg("bulk import finished")
	return res, nil
}

// StartLink is the questionnaire entry URL sent to the patient.
func (s *Service) StartLink(p *Patient) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/preop/start/" + p.Token
}

func (s *Service) defaultMessage(p *Patient) string {
	return fmt.Sprintf("[수술 전 문진 안내]\n%s님, 수술(%s) 전 문진표를 작성해 주세요.\n%s",
		p.Name, p.SurgeryDate, s.StartLink(p))
}

// SendSMS texts the patient. An empty message sends the default reminder
// with the questionnaire link. The sent flag changes only on success.
func (s *Service) SendSMS(ctx context.Context, principal auth.Principal, id uuid.UUID, message string) (*Patient, error) {
	if err := authorize(principal); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(message) == "" {
		message = s.defaultMessage(p)
	}
	if err := s.sms.SendSMS(ctx, p.Phone, message); err != nil {
		return nil, err
	}

	at := s.now()
	if err := s.repo.MarkSMSSent(ctx, p.ID, at); err != nil {
		return nil, fmt.Errorf("record sms sent: %w", err)
	}
	p.SMSSent = true
	p.SMSSentAt = &at
	return p, nil
}
