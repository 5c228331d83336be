package questionnaire

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/preop/intake/internal/domain/patient"
)

const summaryTimeLayout = "2006-01-02 15:04"

// Summary is the completion notice sent to the clinic channel.
func Summary(p *patient.Patient, submittedAt time.Time) string {
	return fmt.Sprintf("[수술 전 문진 제출 완료]\n이름: %s\n등록번호: %s\n수술일: %s\n주치의: %s\n제출시간: %s",
		p.Name, p.RegistrationID, p.SurgeryDate, p.DoctorName, submittedAt.Format(summaryTimeLayout))
}

func (s *Service) archiveSummary(ctx context.Context, p *patient.Patient, at time.Time, summary string) {
	if s.forms == nil {
		return
	}
	name := fmt.Sprintf("summary_%s_%s.txt", p.ID, at.In(s.opts.Location).Format("20060102150405"))
	if _, err := s.forms.Put(ctx, name, "text/plain; charset=utf-8", strings.NewReader(summary)); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("summary archive failed")
	}
}
