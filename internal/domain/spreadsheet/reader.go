package spreadsheet

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadRows loads the first sheet of an xlsx workbook as text. Every cell is
// whitespace-trimmed and no header row is assumed; rows may be ragged.
// Cells holding an Excel date are rendered as YYYY-MM-DD whatever their
// display format.
func ReadRows(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &MatchError{Err: ErrParse, Message: fmt.Sprintf("엑셀 파일을 읽을 수 없습니다: %v", err)}
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, &MatchError{Err: ErrParse, Message: "엑셀 파일에 시트가 없습니다."}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &MatchError{Err: ErrParse, Message: fmt.Sprintf("엑셀 파일을 읽을 수 없습니다: %v", err)}
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &MatchError{Err: ErrParse, Message: fmt.Sprintf("엑셀 파일을 읽을 수 없습니다: %v", err)}
	}

	dates := dateStyles{f: f, known: make(map[int]bool)}
	for r, row := range rows {
		for c, cell := range row {
			if r < len(raw) && c < len(raw[r]) && raw[r][c] != cell {
				if d, ok := dates.render(sheet, r, c, raw[r][c]); ok {
					cell = d
				}
			}
			row[c] = strings.TrimSpace(cell)
		}
	}
	return rows, nil
}

// dateStyles recognizes cells whose number format is a date and caches the
// verdict per style id.
type dateStyles struct {
	f     *excelize.File
	known map[int]bool
}

func (d dateStyles) render(sheet string, row, col int, raw string) (string, bool) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", false
	}
	axis, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return "", false
	}
	styleID, err := d.f.GetCellStyle(sheet, axis)
	if err != nil || !d.isDate(styleID) {
		return "", false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

func (d dateStyles) isDate(styleID int) bool {
	if v, ok := d.known[styleID]; ok {
		return v
	}
	v := false
	if style, err := d.f.GetStyle(styleID); err == nil {
		v = isDateFormat(style.NumFmt, style.CustomNumFmt)
	}
	d.known[styleID] = v
	return v
}

// isDateFormat reports whether a built-in number format id, or a custom
// format code, displays a date.
func isDateFormat(id int, custom *string) bool {
	if custom != nil && *custom != "" {
		return isDateCode(*custom)
	}
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 31, id == 36, id >= 50 && id <= 58:
		// East Asian built-in date formats.
		return true
	}
	return false
}

// isDateCode looks for a year or day token outside quoted text and
// brackets. A bare m is ambiguous with minutes and does not count.
func isDateCode(code string) bool {
	inQuote, inBracket := false, false
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		case r == 'y' || r == 'd':
			return true
		}
	}
	return false
}
