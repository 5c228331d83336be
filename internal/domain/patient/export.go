package patient

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/preop/intake/internal/platform/auth"
)

const (
	exportSheet    = "환자목록"
	exportPageSize = 500
	exportMaxRows  = 20000
)

var exportHeaders = []string{
	"수술일", "등록번호", "이름", "성별", "나이", "수술명", "주치의", "연락처",
	"문진 제출", "제출시간", "문자 발송", "발송시간", "등록일",
}

var exportColumnWidths = []float64{12, 12, 10, 6, 6, 30, 10, 15, 10, 18, 10, 18, 18}

type ExportFile struct {
	Name string
	Data []byte
}

// Export writes the filtered patient list to an xlsx workbook. The workbook
// is returned and a copy is archived to the export store; a failed archive
// is logged only.
func (s *Service) Export(ctx context.Context, principal auth.Principal, f Filter) (*ExportFile, error) {
	if err := authorize(principal); err != nil {
		return nil, err
	}

	var all []*Patient
	for offset := 0; offset < exportMaxRows; offset += exportPageSize {
		page, total, err := s.repo.List(ctx, f, exportPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list patients for export: %w", err)
		}
		all = append(all, page...)
		if offset+exportPageSize >= total || len(page) == 0 {
			break
		}
	}

	data, err := s.buildWorkbook(all)
	if err != nil {
		return nil, err
	}

	out := &ExportFile{
		Name: fmt.Sprintf("preop_patients_%s.xlsx", s.now().In(s.opts.Location).Format("20060102_150405")),
		Data: data,
	}
	if s.exports != nil {
		if _, err := s.exports.Put(ctx, out.Name, excelMIME, bytes.NewReader(data)); err != nil {
			s.logger.Warn().Err(err).Str("file", out.Name).Msg("export archive failed")
		}
	}
	s.logger.Info().Int("rows", len(all)).Str("file", out.Name).Str("by", principal.Username).Msg("patient list exported")
	return out, nil
}

const excelMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Service) buildWorkbook(patients []*Patient) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	header := make([]interface{}, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("set header style: %w", err)
	}

	for i, w := range exportColumnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(exportSheet, col, col, w); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for i, p := range patients {
		row := []interface{}{
			p.SurgeryDate, p.RegistrationID, p.Name, p.Gender, p.Age, p.SurgeryName, p.DoctorName, p.Phone,
			yesNo(p.Submitted), s.formatTime(p.CompletedAt),
			yesNo(p.SMSSent), s.formatTime(p.SMSSentAt),
			s.formatTime(&p.CreatedAt),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

func (s *Service) formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(s.opts.Location).Format("2006-01-02 15:04")
}
