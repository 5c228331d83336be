package questionnaire

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/preop/intake/internal/platform/blobstore"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the patient-facing routes. They are reachable
// without staff credentials; the token is the credential.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/start/:token", h.Start)
	g.GET("/form/:token/step/:step", h.Load)
	g.POST("/form/:token/step/:step", h.Submit)
	g.GET("/complete/:token", h.Complete)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "잘못된 접근입니다.")
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func stepParam(c echo.Context) (int, error) {
	step, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusNotFound, "잘못된 접근입니다.")
	}
	return step, nil
}

func stepPath(token string, step int) string {
	return fmt.Sprintf("/preop/form/%s/step/%d", token, step)
}

// postedValues returns the fields of the request body. Query parameters
// (link tracking and the like) are not answers.
func postedValues(c echo.Context) (url.Values, error) {
	// FormParams parses the body, urlencoded or multipart.
	if _, err := c.FormParams(); err != nil {
		return nil, err
	}
	req := c.Request()
	values := make(url.Values)
	if req.MultipartForm != nil {
		for k, vs := range req.MultipartForm.Value {
			values[k] = append([]string(nil), vs...)
		}
		return values, nil
	}
	for k, vs := range req.PostForm {
		values[k] = append([]string(nil), vs...)
	}
	return values, nil
}

func (h *Handler) Start(c echo.Context) error {
	token := c.Param("token")
	view, err := h.svc.Start(c.Request().Context(), token)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient":     view.Patient,
		"total_steps": view.TotalSteps,
		"next":        stepPath(token, view.FirstStep),
	})
}

func (h *Handler) Load(c echo.Context) error {
	step, err := stepParam(c)
	if err != nil {
		return err
	}
	view, err := h.svc.Load(c.Request().Context(), c.Param("token"), step)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) Submit(c echo.Context) error {
	token := c.Param("token")
	step, err := stepParam(c)
	if err != nil {
		return err
	}

	values, err := postedValues(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sub := Submission{Values: values}

	if fh, err := c.FormFile(oralMedImage); err == nil {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		defer f.Close()
		sub.File = &Upload{Filename: fh.Filename, ContentType: fh.Header.Get(echo.HeaderContentType), Content: f}
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	// The multipart file field must not be stored as a text answer.
	delete(sub.Values, oralMedImage)

	res, err := h.svc.Submit(c.Request().Context(), token, step, sub)
	var ve *ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"status":   "error",
			"message":  ve.Error(),
			"messages": ve.Messages,
			"saved":    map[string]string{},
		})
	}
	if err != nil {
		return httpError(err)
	}

	next := "/preop/complete/" + token
	if !res.Completed {
		next = stepPath(token, res.NextStep)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "success",
		"next_step": res.NextStep,
		"completed": res.Completed,
		"next":      next,
	})
}

func (h *Handler) Complete(c echo.Context) error {
	sum, err := h.svc.Complete(c.Request().Context(), c.Param("token"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient": sum,
	})
}
