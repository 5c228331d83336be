package patient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/labstack/echo/v4"

	"github.com/preop/intake/internal/domain/spreadsheet"
	"github.com/preop/intake/internal/platform/auth"
	"github.com/preop/intake/internal/platform/notification"
	"github.com/preop/intake/pkg/pagination"
)

type Handler struct {
	svc     *Service
	matcher *spreadsheet.Matcher
	forms   *schema.Decoder
}

func NewHandler(svc *Service, matcher *spreadsheet.Matcher) *Handler {
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)
	return &Handler{svc: svc, matcher: matcher, forms: dec}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/patients", h.List)
	g.POST("/patients", h.Create)
	g.GET("/patients/export", h.Export)
	g.POST("/patients/import", h.Import)
	g.GET("/patients/:id", h.Get)
	g.PUT("/patients/:id", h.Update)
	g.DELETE("/patients/:id", h.Delete)
	g.POST("/patients/:id/sms", h.SendSMS)
}

func httpError(err error) error {
	var fe *FieldError
	switch {
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "권한이 없습니다.")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.As(err, &fe):
		return echo.NewHTTPError(http.StatusBadRequest, fe.Error())
	case errors.Is(err, notification.ErrSMSNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, notification.ErrInvalidRecipient):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, notification.ErrSMSTransport), errors.Is(err, notification.ErrSMSGateway):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func isForm(c echo.Context) bool {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	return strings.HasPrefix(ct, echo.MIMEApplicationForm) || strings.HasPrefix(ct, echo.MIMEMultipartForm)
}

// bindPatient accepts the admin form post as well as JSON.
func (h *Handler) bindPatient(c echo.Context, p *Patient) error {
	if !isForm(c) {
		return c.Bind(p)
	}
	if _, err := c.FormParams(); err != nil {
		return err
	}
	// PostForm holds body fields only, multipart included.
	return h.forms.Decode(p, c.Request().PostForm)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		Query: strings.TrimSpace(c.QueryParam("q")),
		Date:  strings.TrimSpace(c.QueryParam("date")),
	}
	items, total, err := h.svc.List(c.Request().Context(), auth.PrincipalFromContext(c.Request().Context()), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Create(c echo.Context) error {
	var p Patient
	if err := h.bindPatient(c, &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = uuid.Nil
	if err := h.svc.Create(c.Request().Context(), auth.PrincipalFromContext(c.Request().Context()), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"patient": p,
		"link":    h.svc.StartLink(&p),
	})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Detail(c.Request().Context(), auth.PrincipalFromContext(c.Request().Context()), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient": d.Patient,
		"answers": d.Answers,
		"link":    h.svc.StartLink(d.Patient),
	})
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := h.bindPatient(c, &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	updated, err := h.svc.Update(c.Request().Context(), auth.PrincipalFromContext(c.Request().Context()), &p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), auth.PrincipalFromContext(c.Request().Context()), id); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success", "message": "삭제되었습니다."})
}

type smsRequest struct {
	Message string `json:"message" form:"message"`
}

func (h *Handler) SendSMS(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req smsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.SendSMS(c.Request().Context(), auth.PrincipalFromContext(c.Request().Context()), id, req.Message)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "success",
		"sms_sent":    p.SMSSent,
		"sms_sent_at": p.SMSSentAt,
	})
}

func (h *Handler) Export(c echo.Context) error {
	f := Filter{
		Query: strings.TrimSpace(c.QueryParam("q")),
		Date:  strings.TrimSpace(c.QueryParam("date")),
	}
	out, err := h.svc.Export(c.Request().Context(), auth.PrincipalFromContext(c.Request().Context()), f)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", out.Name))
	return c.Blob(http.StatusOK, excelMIME, out.Data)
}

// Import registers every marker row of the uploaded schedule. Marked rows
// the matcher already discarded count as invalid.
func (h *Handler) Import(c echo.Context) error {
	principal := auth.PrincipalFromContext(c.Request().Context())
	if !principal.IsPrivileged() {
		return httpError(ErrForbidden)
	}

	rows, err := spreadsheet.RowsFromRequest(c)
	if err != nil {
		return spreadsheet.WriteError(c, err)
	}
	found, err := h.matcher.FindByMarker(rows)
	if err != nil {
		return spreadsheet.WriteError(c, err)
	}

	candidates := make([]*Patient, 0, len(found.Candidates))
	for _, fc := range found.Candidates {
		candidates = append(candidates, fromCandidate(fc))
	}

	res, err := h.svc.BulkImport(c.Request().Context(), principal, candidates)
	if err != nil {
		return httpError(err)
	}
	res.Total += found.Discarded
	res.Invalid += found.Discarded
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "success",
		"result": res,
	})
}

func fromCandidate(c spreadsheet.Candidate) *Patient {
	return &Patient{
		Name:           c.Name,
		RegistrationID: c.RegistrationID,
		Phone:          c.Phone,
		Gender:         c.Gender,
		Age:            c.Age,
		DoctorName:     c.DoctorName,
		SurgeryName:    c.SurgeryName,
		SurgeryDate:    c.SurgeryDate,
	}
}
