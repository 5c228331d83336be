package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/preop/intake/internal/domain/patient"
	"github.com/preop/intake/internal/platform/blobstore"
	"github.com/preop/intake/internal/platform/db"
)

const DefaultSteps = 9

// PatientStore is the slice of the patient registry the questionnaire needs.
type PatientStore interface {
	GetByToken(ctx context.Context, token string) (*patient.Patient, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) (time.Time, error)
}

type Notifier interface {
	Notify(ctx context.Context, content string)
}

type Options struct {
	Steps    int
	Location *time.Location
}

type Service struct {
	repo     Repository
	patients PatientStore
	tx       db.Transactor
	uploads  blobstore.BlobStore
	forms    blobstore.BlobStore
	notifier Notifier
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, patients PatientStore, tx db.Transactor, uploads, forms blobstore.BlobStore, notifier Notifier, opts Options, logger zerolog.Logger) *Service {
	if opts.Steps <= 0 {
		opts.Steps = DefaultSteps
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		repo:     repo,
		patients: patients,
		tx:       tx,
		uploads:  uploads,
		forms:    forms,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "questionnaire").Logger(),
		now:      time.Now,
	}
}

func (s *Service) Steps() int { return s.opts.Steps }

func (s *Service) patient(ctx context.Context, token string) (*patient.Patient, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	p, err := s.patients.GetByToken(ctx, token)
	if errors.Is(err, patient.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	return p, nil
}

func (s *Service) checkStep(step int) error {
	if step < 1 || step > s.opts.Steps {
		return ErrNotFound
	}
	return nil
}

// Start resolves the entry link.
func (s *Service) Start(ctx context.Context, token string) (*StartView, error) {
	p, err := s.patient(ctx, token)
	if err != nil {
		return nil, err
	}
	return &StartView{Patient: summarize(p), TotalSteps: s.opts.Steps, FirstStep: 1}, nil
}

// Complete is the confirmation page after the last step.
func (s *Service) Complete(ctx context.Context, token string) (*PatientSummary, error) {
	p, err := s.patient(ctx, token)
	if err != nil {
		return nil, err
	}
	sum := summarize(p)
	return &sum, nil
}

// Load returns the answers saved for a step so the form can be refilled.
func (s *Service) Load(ctx context.Context, token string, step int) (*StepView, error) {
	if err := s.checkStep(step); err != nil {
		return nil, err
	}
	p, err := s.patient(ctx, token)
	if err != nil {
		return nil, err
	}

	saved, err := s.repo.ListStep(ctx, p.ID, step)
	if err != nil {
		return nil, fmt.Errorf("load step %d: %w", step, err)
	}
	view := &StepView{
		Patient: summarize(p),
		Step:    step,
		Total:   s.opts.Steps,
		Saved:   saved,
		Lists:   map[string][]string{},
	}
	if step == medicationStep {
		view.Lists[surgeryHistoryDesc] = DecodeList(saved[surgeryHistoryDesc])
	}
	return view, nil
}

// Submit saves a step, replacing whatever was saved for it before. The
// last step also marks the patient submitted in the same transaction and,
// once committed, sends the completion summary.
func (s *Service) Submit(ctx context.Context, token string, step int, sub Submission) (*SubmitResult, error) {
	if err := s.checkStep(step); err != nil {
		return nil, err
	}
	p, err := s.patient(ctx, token)
	if err != nil {
		return nil, err
	}

	var (
		answers []Answer
		upload  *pendingUpload
	)
	switch step {
	case identityStep:
		answers, err = identityAnswers(p, sub)
	case vitalsStep:
		answers = vitalsAnswers(sub)
	case medicationStep:
		answers, upload = medicationAnswers(p, sub)
	default:
		answers = genericAnswers(sub)
	}
	if err != nil {
		return nil, err
	}

	terminal := step == s.opts.Steps
	at := s.now()
	stored := ""
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.ReplaceStep(ctx, p.ID, step, answers); err != nil {
			return fmt.Errorf("save step %d: %w", step, err)
		}
		if terminal {
			completedAt, err := s.patients.MarkSubmitted(ctx, p.ID, at)
			if err != nil {
				return fmt.Errorf("mark submitted: %w", err)
			}
			p.Submitted = true
			p.CompletedAt = &completedAt
		}
		// Last, so a failed save never leaves an unreferenced file behind.
		if upload != nil {
			if _, err := s.uploads.Put(ctx, upload.name, upload.file.ContentType, upload.file.Content); err != nil {
				return fmt.Errorf("store medication image: %w", err)
			}
			stored = upload.name
		}
		return nil
	})
	if err != nil {
		if stored != "" {
			s.discardUpload(ctx, stored)
		}
		return nil, err
	}

	if !terminal {
		return &SubmitResult{NextStep: step + 1}, nil
	}

	summary := Summary(p, at.In(s.opts.Location))
	s.notifier.Notify(ctx, summary)
	s.archiveSummary(ctx, p, at, summary)
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("questionnaire submitted")
	return &SubmitResult{Completed: true}, nil
}

// discardUpload removes an image whose answers were rolled back.
func (s *Service) discardUpload(ctx context.Context, name string) {
	if err := s.uploads.Delete(ctx, name); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("upload", name).Msg("orphaned upload not removed")
	}
}
