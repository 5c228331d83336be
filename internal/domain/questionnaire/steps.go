package questionnaire

import (
	"fmt"
	"sort"

	"github.com/preop/intake/internal/domain/patient"
	"github.com/preop/intake/internal/platform/blobstore"
)

const (
	identityStep   = 1
	vitalsStep     = 2
	medicationStep = 4
)

const (
	oralMedImage       = "oral_med_image"
	surgeryHistoryDesc = "surgery_history_desc"
)

var vitalsFields = []string{"height", "weight", "chief_complaint", "injury_cause"}

// identityAnswers gates the questionnaire: name and surgery date must match
// the registration exactly.
func identityAnswers(p *patient.Patient, sub Submission) ([]Answer, error) {
	name := sub.first("name")
	date := sub.first("surgery_date")

	var msgs []string
	if name != p.Name {
		msgs = append(msgs, "이름이 등록된 정보와 일치하지 않습니다.")
	}
	if date != p.SurgeryDate {
		msgs = append(msgs, "수술 날짜가 등록된 정보와 일치하지 않습니다.")
	}
	if len(msgs) > 0 {
		return nil, &ValidationError{Messages: msgs}
	}
	return []Answer{
		{Question: "name", Answer: name},
		{Question: "surgery_date", Answer: date},
	}, nil
}

func vitalsAnswers(sub Submission) []Answer {
	answers := make([]Answer, 0, len(vitalsFields))
	for _, f := range vitalsFields {
		answers = append(answers, Answer{Question: f, Answer: sub.first(f)})
	}
	return answers
}

// pendingUpload is an image accepted with a step, written once the step's
// answers are saved.
type pendingUpload struct {
	name string
	file *Upload
}

// medicationAnswers records the derived name of the medication image, when
// one was sent. The bytes are stored by Submit.
func medicationAnswers(p *patient.Patient, sub Submission) ([]Answer, *pendingUpload) {
	answers := []Answer{
		{Question: "oral_med", Answer: sub.first("oral_med")},
		{Question: "oral_med_desc", Answer: sub.first("oral_med_desc")},
	}

	var up *pendingUpload
	if f := sub.File; f != nil && f.Filename != "" {
		up = &pendingUpload{
			name: fmt.Sprintf("oral_%s_%d_%s", p.ID, medicationStep, blobstore.SanitizeFileName(f.Filename)),
			file: f,
		}
		answers = append(answers, Answer{Question: oralMedImage, Answer: up.name})
	}

	answers = append(answers,
		Answer{Question: "surgery_history", Answer: sub.first("surgery_history")},
		Answer{Question: surgeryHistoryDesc, Answer: EncodeList(sub.Values[surgeryHistoryDesc+"[]"])},
	)
	return answers, up
}

// genericAnswers keeps every posted key with its first value. Keys are not
// checked against any schema.
func genericAnswers(sub Submission) []Answer {
	keys := make([]string, 0, len(sub.Values))
	for k := range sub.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	answers := make([]Answer, 0, len(keys))
	for _, k := range keys {
		answers = append(answers, Answer{Question: k, Answer: sub.first(k)})
	}
	return answers
}
