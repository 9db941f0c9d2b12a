package admin

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/smhs/intake/internal/platform/apiclient"
	"github.com/smhs/intake/internal/platform/auth"
	"github.com/smhs/intake/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/admin", auth.RequireRole("admin"))
	g.GET("/dashboard", h.Dashboard)
	g.GET("/submissions", h.ListSubmissions)
	g.POST("/submissions/:uuid/process", h.ProcessSubmission)
}

func (h *Handler) Dashboard(c echo.Context) error {
	sum, err := h.svc.Summary(c.Request().Context())
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) ListSubmissions(c echo.Context) error {
	pg := pagination.FromContext(c)
	page, err := h.svc.List(c.Request().Context(), c.QueryParam("status"), pg)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page.Items, page.Total, pg.Limit, pg.Offset))
}

func (h *Handler) ProcessSubmission(c echo.Context) error {
	var req ProcessRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	rec, err := h.svc.Process(c.Request().Context(), c.Param("uuid"), req.Note)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func respondError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidIdentifier):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoteTooLong):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(apiclient.HTTPStatus(err), apiclient.Message(err))
}
