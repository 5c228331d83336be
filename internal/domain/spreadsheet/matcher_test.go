package spreadsheet

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// scheduleRow builds a 31-column row in the default layout.
func scheduleRow(date, id, name, marker string) []string {
	row := make([]string, 31)
	row[0] = "OR-1"
	row[5] = date
	row[7] = id
	row[8] = name
	row[9] = "F"
	row[10] = "45세"
	row[12] = "Knee arthroscopy"
	row[13] = "김의사"
	row[14] = marker
	row[30] = "010-1234-5678"
	return row
}

func workbook(t *testing.T, rows [][]string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		vals := make([]interface{}, len(r))
		for j, v := range r {
			vals[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &vals))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestNormalizeRegistrationID(t *testing.T) {
	assert.Equal(t, "9", NormalizeRegistrationID("009"))
	assert.Equal(t, "9", NormalizeRegistrationID("9"))
	assert.Equal(t, "9", NormalizeRegistrationID("R-0009"))
	assert.Equal(t, "0", NormalizeRegistrationID("000"))
	assert.Equal(t, "0", NormalizeRegistrationID(""))
	assert.Equal(t, "0", NormalizeRegistrationID("abc"))

	for _, s := range []string{"009", "00012345", " 12-34 ", "x"} {
		once := NormalizeRegistrationID(s)
		assert.Equal(t, once, NormalizeRegistrationID(once), "normalize must be idempotent for %q", s)
	}
}

func TestPadRegistrationID(t *testing.T) {
	assert.Equal(t, "00012345", PadRegistrationID("12345", 8))
	assert.Equal(t, "00012345", PadRegistrationID("0012345", 8))
	assert.Equal(t, "123456789", PadRegistrationID("0123456789", 8))
	assert.Equal(t, "00000000", PadRegistrationID("0", 8))
}

func TestExtractors(t *testing.T) {
	assert.Equal(t, "2026-03-04", extractDate("2026-03-04 (수) 09:00"))
	assert.Equal(t, "", extractDate("3/4/26"))
	assert.Equal(t, "45", extractAge("45세"))
	assert.Equal(t, "", extractAge("-"))
}

func TestFindByRegistrationID(t *testing.T) {
	rows := [][]string{
		{"header"},
		scheduleRow("2026-03-04 (수)", "00012345", "홍길동", "Gen"),
		scheduleRow("2026-03-05", "00067890", "김철수", ""),
	}
	m := NewMatcher(DefaultColumnMap())

	c, err := m.FindByRegistrationID(rows, "12345")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Row)
	assert.Equal(t, "00012345", c.RegistrationID)
	assert.Equal(t, "홍길동", c.Name)
	assert.Equal(t, "2026-03-04", c.SurgeryDate)
	assert.Equal(t, "45", c.Age)
	assert.Equal(t, "F", c.Gender)
	assert.Equal(t, "Knee arthroscopy", c.SurgeryName)
	assert.Equal(t, "김의사", c.DoctorName)
	assert.Equal(t, "010-1234-5678", c.Phone)

	// Leading zeros and separators in the key do not matter.
	c, err = m.FindByRegistrationID(rows, "0006-7890")
	require.NoError(t, err)
	assert.Equal(t, "김철수", c.Name)
}

func TestFindByRegistrationID_LeftmostColumnWins(t *testing.T) {
	early := scheduleRow("2026-03-04", "00099999", "이영희", "")
	early[3] = "555"
	rows := [][]string{
		scheduleRow("2026-03-01", "00000555", "박민수", ""),
		early,
	}

	c, err := NewMatcher(DefaultColumnMap()).FindByRegistrationID(rows, "555")
	require.NoError(t, err)
	assert.Equal(t, "이영희", c.Name, "column 3 is left of the id column")
	assert.Equal(t, "00000555", c.RegistrationID)
}

func TestFindByRegistrationID_Errors(t *testing.T) {
	rows := [][]string{
		scheduleRow("2026-03-04", "N/A", "홍길동", ""),
	}
	m := NewMatcher(DefaultColumnMap())

	_, err := m.FindByRegistrationID(rows, "등록번호")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = m.FindByRegistrationID(rows, "424242")
	assert.ErrorIs(t, err, ErrNotFound)

	// "N/A" normalizes to "0" but holds no digit, so it never matches.
	_, err = m.FindByRegistrationID([][]string{{"N/A", "x"}}, "000")
	assert.ErrorIs(t, err, ErrNotFound)

	// Row found but the name cell is empty.
	noName := scheduleRow("2026-03-04", "00011111", "", "")
	_, err = m.FindByRegistrationID([][]string{noName}, "11111")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByMarker(t *testing.T) {
	rows := make([][]string, 8)
	for i := range rows {
		rows[i] = scheduleRow("2026-03-04", "0000100"+string(rune('0'+i)), "환자"+string(rune('A'+i)), "")
	}
	for _, i := range []int{1, 4, 6} {
		rows[i][14] = "Gen"
	}
	rows[3][14] = "General"

	res, err := NewMatcher(DefaultColumnMap()).FindByMarker(rows)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 3)
	assert.Equal(t, 3, res.Matched)
	assert.Equal(t, 0, res.Discarded)

	var gotRows []int
	for _, c := range res.Candidates {
		gotRows = append(gotRows, c.Row)
	}
	assert.Equal(t, []int{2, 5, 7}, gotRows)
	assert.Equal(t, "00001001", res.Candidates[0].RegistrationID)
}

func TestFindByMarker_DiscardsIncompleteRows(t *testing.T) {
	rows := [][]string{
		scheduleRow("2026-03-04", "00000001", "홍길동", "Gen"),
		scheduleRow("2026-03-04", "", "이름만", "Gen"),
		scheduleRow("2026-03-04", "00000003", "", "Gen"),
	}
	res, err := NewMatcher(DefaultColumnMap()).FindByMarker(rows)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Matched)
	assert.Equal(t, 2, res.Discarded)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "홍길동", res.Candidates[0].Name)
}

func TestFindByMarker_NotFound(t *testing.T) {
	m := NewMatcher(DefaultColumnMap())

	_, err := m.FindByMarker([][]string{{"a", "b"}, {"c"}})
	assert.ErrorIs(t, err, ErrNotFound, "no row reaches the marker column")

	_, err = m.FindByMarker([][]string{scheduleRow("2026-03-04", "1", "x", "Other")})
	assert.ErrorIs(t, err, ErrNotFound, "no row carries the marker")
}

func TestColumnMapOverride(t *testing.T) {
	cols := DefaultColumnMap()
	cols.Marker = 0
	cols.MarkerValue = "Y"
	cols.RegistrationID = 1
	cols.Name = 2
	cols.IDWidth = 6

	res, err := NewMatcher(cols).FindByMarker([][]string{{"Y", "42", "홍길동"}})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "000042", res.Candidates[0].RegistrationID)
	assert.Equal(t, "", res.Candidates[0].Phone)
}

func TestReadRows(t *testing.T) {
	buf := workbook(t, [][]string{
		{"  padded  ", "x"},
		scheduleRow("2026-03-04", "00012345", "홍길동", "Gen"),
	})

	rows, err := ReadRows(buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "padded", rows[0][0])
	assert.Equal(t, "홍길동", rows[1][8])
}

func TestReadRows_ExcelDates(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	surgery := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.SetCellValue("Sheet1", "A1", surgery))

	builtin, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Sheet1", "B1", surgery))
	require.NoError(t, f.SetCellStyle("Sheet1", "B1", "B1", builtin))

	dotted := "yyyy.mm.dd"
	custom, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dotted})
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Sheet1", "C1", surgery))
	require.NoError(t, f.SetCellStyle("Sheet1", "C1", "C1", custom))

	clock := "h:mm"
	timeOnly, err := f.NewStyle(&excelize.Style{CustomNumFmt: &clock})
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Sheet1", "D1", 0.375))
	require.NoError(t, f.SetCellStyle("Sheet1", "D1", "D1", timeOnly))

	require.NoError(t, f.SetCellValue("Sheet1", "E1", 45726))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	rows, err := ReadRows(buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-03-10", rows[0][0])
	assert.Equal(t, "2025-03-10", rows[0][1])
	assert.Equal(t, "2025-03-10", rows[0][2])
	assert.Equal(t, "9:00", rows[0][3])
	assert.Equal(t, "45726", rows[0][4])
}

func TestFindByMarker_ExcelDateCell(t *testing.T) {
	buf := workbook(t, [][]string{
		{"header"},
		scheduleRow("", "00012345", "홍길동", "Gen"),
	})
	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Sheet1", "F2", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, f.SetCellStyle("Sheet1", "F2", "F2", dateStyle))
	out, err := f.WriteToBuffer()
	require.NoError(t, err)

	rows, err := ReadRows(out)
	require.NoError(t, err)
	res, err := NewMatcher(DefaultColumnMap()).FindByMarker(rows)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "2025-03-10", res.Candidates[0].SurgeryDate)
}

func TestIsDateFormat(t *testing.T) {
	code := func(s string) *string { return &s }
	assert.True(t, isDateFormat(14, nil))
	assert.True(t, isDateFormat(22, nil))
	assert.False(t, isDateFormat(0, nil))
	assert.False(t, isDateFormat(20, nil))
	assert.True(t, isDateFormat(200, code("yyyy-mm-dd")))
	assert.False(t, isDateFormat(200, code("[h]:mm")))
	assert.False(t, isDateFormat(200, code(`0"d"`)))
}

func TestReadRows_Garbage(t *testing.T) {
	_, err := ReadRows(strings.NewReader("not a workbook"))
	assert.ErrorIs(t, err, ErrParse)
}

func multipartRequest(t *testing.T, target string, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		part, err := w.CreateFormFile("excel_file", "schedule.xlsx")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestHandler_Lookup(t *testing.T) {
	file := workbook(t, [][]string{scheduleRow("2026-03-04", "00012345", "홍길동", "Gen")}).Bytes()
	h := NewHandler(NewMatcher(DefaultColumnMap()))
	e := echo.New()

	req := multipartRequest(t, "/spreadsheet/lookup", map[string]string{"patient_id": "12345"}, file)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Lookup(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"success"`)
	assert.Contains(t, rec.Body.String(), `"registration_id":"00012345"`)
}

func TestHandler_LookupErrors(t *testing.T) {
	file := workbook(t, [][]string{scheduleRow("2026-03-04", "00012345", "홍길동", "Gen")}).Bytes()
	h := NewHandler(NewMatcher(DefaultColumnMap()))
	e := echo.New()

	tests := []struct {
		name   string
		fields map[string]string
		file   []byte
		status int
	}{
		{"missing key", map[string]string{}, file, http.StatusBadRequest},
		{"missing file", map[string]string{"patient_id": "1"}, nil, http.StatusBadRequest},
		{"bad file", map[string]string{"patient_id": "1"}, []byte("junk"), http.StatusBadRequest},
		{"no digits", map[string]string{"patient_id": "abc"}, file, http.StatusBadRequest},
		{"not found", map[string]string{"patient_id": "999"}, file, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartRequest(t, "/spreadsheet/lookup", tt.fields, tt.file)
			rec := httptest.NewRecorder()
			require.NoError(t, h.Lookup(e.NewContext(req, rec)))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"status":"error"`)
		})
	}
}

func TestHandler_Preview(t *testing.T) {
	file := workbook(t, [][]string{
		scheduleRow("2026-03-04", "00000001", "홍길동", "Gen"),
		scheduleRow("2026-03-04", "00000002", "김철수", ""),
	}).Bytes()
	h := NewHandler(NewMatcher(DefaultColumnMap()))
	e := echo.New()

	req := multipartRequest(t, "/spreadsheet/preview", nil, file)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Preview(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"matched":1`)
	assert.Contains(t, rec.Body.String(), "홍길동")
	assert.NotContains(t, rec.Body.String(), "김철수")
}
