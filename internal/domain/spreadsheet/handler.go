package spreadsheet

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const uploadField = "excel_file"

type Handler struct {
	matcher *Matcher
}

func NewHandler(matcher *Matcher) *Handler {
	return &Handler{matcher: matcher}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/spreadsheet/lookup", h.Lookup)
	g.POST("/spreadsheet/preview", h.Preview)
}

// ErrorResponse is the structured payload returned to data-fetch callers.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusFor maps matcher errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrParse), errors.Is(err, ErrInvalidKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as {"status":"error","message":...}.
func WriteError(c echo.Context, err error) error {
	return c.JSON(StatusFor(err), ErrorResponse{Status: "error", Message: err.Error()})
}

// RowsFromRequest reads the uploaded workbook in the excel_file field.
func RowsFromRequest(c echo.Context) ([][]string, error) {
	fh, err := c.FormFile(uploadField)
	if err != nil {
		return nil, &MatchError{Err: ErrParse, Message: "엑셀 파일이 없습니다."}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, &MatchError{Err: ErrParse, Message: "엑셀 파일을 열 수 없습니다."}
	}
	defer f.Close()
	return ReadRows(f)
}

func (h *Handler) Lookup(c echo.Context) error {
	key := strings.TrimSpace(c.FormValue("patient_id"))
	if key == "" {
		key = strings.TrimSpace(c.FormValue("registration_id"))
	}
	if key == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Status: "error", Message: "파일 또는 등록번호가 없습니다."})
	}

	rows, err := RowsFromRequest(c)
	if err != nil {
		return WriteError(c, err)
	}
	candidate, err := h.matcher.FindByRegistrationID(rows, key)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "success",
		"patient": candidate,
	})
}

func (h *Handler) Preview(c echo.Context) error {
	rows, err := RowsFromRequest(c)
	if err != nil {
		return WriteError(c, err)
	}
	res, err := h.matcher.FindByMarker(rows)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "success",
		"candidates": res.Candidates,
		"matched":    res.Matched,
		"discarded":  res.Discarded,
	})
}
