package spreadsheet

import (
	"errors"
	"fmt"
)

var (
	ErrParse      = errors.New("unreadable spreadsheet")
	ErrNotFound   = errors.New("no matching row")
	ErrInvalidKey = errors.New("registration id has no digits")
)

// MatchError carries a staff-facing message for one of the sentinel errors.
type MatchError struct {
	Err     error
	Message string
}

func (e *MatchError) Error() string { return e.Message }
func (e *MatchError) Unwrap() error { return e.Err }

// Candidate is a patient registration lifted from one sheet row.
type Candidate struct {
	Row            int    `json:"row"`
	SurgeryDate    string `json:"surgery_date"`
	RegistrationID string `json:"registration_id"`
	Name           string `json:"name"`
	Gender         string `json:"gender"`
	Age            string `json:"age"`
	SurgeryName    string `json:"surgery_name"`
	DoctorName     string `json:"doctor_name"`
	Phone          string `json:"phone"`
}

func (c Candidate) valid() bool {
	return c.RegistrationID != "" && c.Name != ""
}

// MarkerResult is the outcome of a marker scan. Discarded counts marked
// rows dropped for lacking a registration id or name.
type MarkerResult struct {
	Candidates []Candidate `json:"candidates"`
	Matched    int         `json:"matched"`
	Discarded  int         `json:"discarded"`
}

type Matcher struct {
	cols ColumnMap
}

func NewMatcher(cols ColumnMap) *Matcher {
	return &Matcher{cols: cols}
}

func (m *Matcher) Columns() ColumnMap { return m.cols }

// FindByRegistrationID locates one patient by registration id. The id
// column is not fixed: it is the leftmost column holding a cell whose
// normalized value equals the normalized key, and the first such row in
// that column is the match.
func (m *Matcher) FindByRegistrationID(rows [][]string, key string) (*Candidate, error) {
	if !hasDigit(key) {
		return nil, &MatchError{Err: ErrInvalidKey, Message: "등록번호에 숫자가 없습니다."}
	}
	want := NormalizeRegistrationID(key)

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	for col := 0; col < width; col++ {
		for i, row := range rows {
			if col >= len(row) || !hasDigit(row[col]) {
				continue
			}
			if NormalizeRegistrationID(row[col]) != want {
				continue
			}
			c := m.extract(row, i, col)
			if !c.valid() {
				return nil, &MatchError{Err: ErrNotFound, Message: fmt.Sprintf("[%s] 환자 이름을 찾을 수 없습니다.", key)}
			}
			return &c, nil
		}
	}
	return nil, &MatchError{Err: ErrNotFound, Message: "등록번호가 포함된 열을 찾을 수 없습니다."}
}

// FindByMarker collects every row whose marker column holds exactly the
// configured marker value, in sheet order.
func (m *Matcher) FindByMarker(rows [][]string) (*MarkerResult, error) {
	present := false
	res := &MarkerResult{Candidates: []Candidate{}}

	for i, row := range rows {
		if m.cols.Marker >= len(row) {
			continue
		}
		present = true
		if row[m.cols.Marker] != m.cols.MarkerValue {
			continue
		}
		res.Matched++
		c := m.extract(row, i, m.cols.RegistrationID)
		if !c.valid() {
			res.Discarded++
			continue
		}
		res.Candidates = append(res.Candidates, c)
	}

	if !present {
		return nil, &MatchError{Err: ErrNotFound, Message: "구분 열을 찾을 수 없습니다."}
	}
	if res.Matched == 0 {
		return nil, &MatchError{Err: ErrNotFound, Message: fmt.Sprintf("'%s' 표시된 행이 없습니다.", m.cols.MarkerValue)}
	}
	return res, nil
}

func (m *Matcher) extract(row []string, index, idCol int) Candidate {
	cell := func(col int) string {
		if col < 0 || col >= len(row) {
			return ""
		}
		return row[col]
	}

	id := ""
	if raw := cell(idCol); hasDigit(raw) {
		id = PadRegistrationID(raw, m.cols.IDWidth)
	}

	return Candidate{
		Row:            index + 1,
		SurgeryDate:    extractDate(cell(m.cols.SurgeryDate)),
		RegistrationID: id,
		Name:           cell(m.cols.Name),
		Gender:         cell(m.cols.Gender),
		Age:            extractAge(cell(m.cols.Age)),
		SurgeryName:    cell(m.cols.SurgeryName),
		DoctorName:     cell(m.cols.Doctor),
		Phone:          cell(m.cols.Phone),
	}
}
