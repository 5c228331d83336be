package patient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"github.com/preop/intake/internal/domain/spreadsheet"
	"github.com/preop/intake/internal/platform/auth"
	"github.com/preop/intake/internal/platform/notification"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	h := NewHandler(f.svc, spreadsheet.NewMatcher(spreadsheet.DefaultColumnMap()))
	return h, f, echo.New()
}

func asPrincipal(req *http.Request, p auth.Principal) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_Create_JSON(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"name":"홍길동","registration_id":"00012345","phone":"010-1234-5678","doctor_name":"김의사","surgery_date":"2026-03-04","token":"mine"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(req, admin), rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var resp struct {
		Patient Patient `json:"patient"`
		Link    string  `json:"link"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Patient.Token == "mine" || len(resp.Patient.Token) != 32 {
		t.Errorf("token must be server-assigned, got %q", resp.Patient.Token)
	}
	if !strings.HasSuffix(resp.Link, "/preop/start/"+resp.Patient.Token) {
		t.Errorf("unexpected link %s", resp.Link)
	}
	if len(f.repo.patients) != 1 {
		t.Errorf("expected 1 stored patient, got %d", len(f.repo.patients))
	}
}

func TestHandler_Create_Form(t *testing.T) {
	h, f, e := newTestHandler()
	form := url.Values{}
	form.Set("name", "홍길동")
	form.Set("registration_id", "00012345")
	form.Set("phone", "01012345678")
	form.Set("doctor_name", "김의사")
	form.Set("surgery_date", "2026-03-04")
	form.Set("csrf", "ignored")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(req, admin), rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	for _, p := range f.repo.patients {
		if p.DoctorName != "김의사" {
			t.Errorf("form fields not decoded: %+v", p)
		}
	}
}

func TestHandler_Create_Invalid(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(`{"name":"홍길동"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(req, admin), rec)

	err := h.Create(c)
	if code := httpStatus(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_Create_Forbidden(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(req, staff), rec)

	err := h.Create(c)
	if code := httpStatus(t, err); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
}

func TestHandler_Get(t *testing.T) {
	h, f, e := newTestHandler()
	p := validPatient()
	if err := f.svc.Create(context.Background(), admin, p); err != nil {
		t.Fatal(err)
	}
	f.answers.byPatient[p.ID] = map[int]map[string]string{3: {"allergy": "없음"}}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(req, admin), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"allergy":"없음"`) {
		t.Errorf("expected answers in body: %s", rec.Body.String())
	}
}

func TestHandler_Get_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(req, admin), rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if code := httpStatus(t, h.Get(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_Get_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(req, admin), rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if code := httpStatus(t, h.Get(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_List(t *testing.T) {
	h, f, e := newTestHandler()
	for _, name := range []string{"홍길동", "김철수", "홍길순"} {
		p := validPatient()
		p.Name = name
		if err := f.svc.Create(context.Background(), admin, p); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients?q="+url.QueryEscape("홍")+"&limit=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(req, admin), rec)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data    []Patient `json:"data"`
		Total   int       `json:"total"`
		HasMore bool      `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Data) != 1 || !resp.HasMore {
		t.Errorf("unexpected page: total=%d len=%d has_more=%v", resp.Total, len(resp.Data), resp.HasMore)
	}
}

func TestHandler_Update(t *testing.T) {
	h, f, e := newTestHandler()
	p := validPatient()
	if err := f.svc.Create(context.Background(), admin, p); err != nil {
		t.Fatal(err)
	}

	body := `{"name":"홍길순","registration_id":"00012345","phone":"010-1234-5678","doctor_name":"박의사","surgery_date":"2026-03-05"}`
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(req, admin), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.Update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored := f.repo.patients[p.ID]
	if stored.DoctorName != "박의사" || stored.SurgeryDate != "2026-03-05" {
		t.Errorf("update not applied: %+v", stored)
	}
	if stored.Token != p.Token {
		t.Error("token changed on update")
	}
}

func TestHandler_Delete(t *testing.T) {
	h, f, e := newTestHandler()
	p := validPatient()
	if err := f.svc.Create(context.Background(), admin, p); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(req, admin), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.Delete(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"success"`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if len(f.repo.patients) != 0 {
		t.Error("patient still stored")
	}
}

func TestHandler_SendSMS_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{notification.ErrSMSNotConfigured, http.StatusServiceUnavailable},
		{notification.ErrInvalidRecipient, http.StatusBadRequest},
		{notification.ErrSMSTransport, http.StatusBadGateway},
		{notification.ErrSMSGateway, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h, f, e := newTestHandler()
			p := validPatient()
			if err := f.svc.Create(context.Background(), admin, p); err != nil {
				t.Fatal(err)
			}
			f.sms.Err = tt.err

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(asPrincipal(req, admin), rec)
			c.SetParamNames("id")
			c.SetParamValues(p.ID.String())

			if code := httpStatus(t, h.SendSMS(c)); code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, code)
			}
		})
	}
}

func TestHandler_SendSMS(t *testing.T) {
	h, f, e := newTestHandler()
	p := validPatient()
	if err := f.svc.Create(context.Background(), admin, p); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"안내 문자"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(req, admin), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.SendSMS(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"sms_sent":true`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if len(f.sms.Sent) != 1 || f.sms.Sent[0].Body != "안내 문자" {
		t.Errorf("unexpected sent messages %+v", f.sms.Sent)
	}
}

func TestHandler_Export(t *testing.T) {
	h, f, e := newTestHandler()
	if err := f.svc.Create(context.Background(), admin, validPatient()); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/export", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(req, admin), rec)

	if err := h.Export(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != excelMIME {
		t.Errorf("unexpected content type %s", ct)
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "preop_patients_") {
		t.Errorf("missing attachment header")
	}
}

func scheduleWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()
	for i, r := range rows {
		vals := make([]interface{}, len(r))
		for j, v := range r {
			vals[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := wb.SetSheetRow("Sheet1", cell, &vals); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := wb.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func markedRow(id, name, marker string) []string {
	row := make([]string, 31)
	row[5] = "2026-03-04"
	row[7] = id
	row[8] = name
	row[13] = "김의사"
	row[14] = marker
	row[30] = "010-0000-0000"
	return row
}

func TestHandler_Import(t *testing.T) {
	h, f, e := newTestHandler()
	existing := validPatient()
	existing.RegistrationID = "00000001"
	if err := f.svc.Create(context.Background(), admin, existing); err != nil {
		t.Fatal(err)
	}

	file := scheduleWorkbook(t, [][]string{
		markedRow("1", "기존환자", "Gen"),
		markedRow("2", "신규환자", "Gen"),
		markedRow("3", "", "Gen"),
		markedRow("4", "미표시", ""),
	})

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, _ := w.CreateFormFile("excel_file", "schedule.xlsx")
	part.Write(file)
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients/import", body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(req, admin), rec)

	if err := h.Import(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Result ImportResult `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	r := resp.Result
	if r.Total != 3 || r.Created != 1 || r.Duplicates != 1 || r.Invalid != 1 {
		t.Errorf("unexpected counts: %+v", r)
	}
	if len(f.repo.patients) != 2 {
		t.Errorf("expected 2 stored patients, got %d", len(f.repo.patients))
	}
}

func TestHandler_Import_NoFile(t *testing.T) {
	h, _, e := newTestHandler()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	w.WriteField("note", "x")
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients/import", body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(asPrincipal(req, admin), rec)

	if err := h.Import(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"status":"error"`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
