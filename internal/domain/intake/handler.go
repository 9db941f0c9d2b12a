package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/smhs/intake/internal/platform/apiclient"
	"github.com/smhs/intake/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/intake")

	// Public endpoints – parents and guardians
	g.POST("/validate", h.Validate)
	g.POST("/submit", h.Submit)
	g.GET("/status/:uuid", h.Status)

	// Staff endpoints – admin, staff
	staff := g.Group("", auth.RequireRole("admin", "staff"))
	staff.GET("/details/:id", h.Details)
	staff.PUT("/update/:id", h.Update)
}

type validateResponse struct {
	Valid bool `json:"valid"`
	Result
}

func (h *Handler) Validate(c echo.Context) error {
	var d Draft
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form body")
	}
	res := h.svc.Validate(&d)
	return c.JSON(http.StatusOK, validateResponse{Valid: res.Valid(), Result: res})
}

func (h *Handler) Submit(c echo.Context) error {
	d, err := h.bindDraft(c)
	if err != nil {
		return err
	}
	resp, err := h.svc.Submit(c.Request().Context(), d)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Status(c echo.Context) error {
	res := h.svc.CheckStatus(c.Request().Context(), c.Param("uuid"))
	if res.Outcome == OutcomeError {
		if errors.Is(res.Err, ErrInvalidIdentifier) {
			return echo.NewHTTPError(http.StatusBadRequest, res.Message)
		}
		return c.JSON(apiclient.HTTPStatus(res.Err), res)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Details(c echo.Context) error {
	d, err := h.svc.LoadForEdit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Update(c echo.Context) error {
	d, err := h.bindDraft(c)
	if err != nil {
		return err
	}
	resp, err := h.svc.Update(c.Request().Context(), c.Param("id"), d)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// bindDraft accepts a JSON draft, or multipart with the draft as JSON in the
// "form" part and the card images as file parts.
func (h *Handler) bindDraft(c echo.Context) (*Draft, error) {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		var d Draft
		if err := c.Bind(&d); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid form body")
		}
		return &d, nil
	}

	var d Draft
	if err := json.Unmarshal([]byte(c.FormValue("form")), &d); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "the form part must be a JSON intake draft")
	}
	for _, part := range []struct {
		name string
		dst  **Attachment
	}{
		{"insurance_card_front", &d.InsuranceInformation.CardFront},
		{"insurance_card_back", &d.InsuranceInformation.CardBack},
	} {
		att, err := h.readCard(c, part.name)
		if err != nil {
			return nil, err
		}
		*part.dst = att
	}
	return &d, nil
}

func (h *Handler) readCard(c echo.Context, name string) (*Attachment, error) {
	fh, err := c.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s upload", name))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s upload", name))
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s upload", name))
	}
	att, err := PrepareImage(fh.Filename, data, h.svc.Limits())
	switch {
	case errors.Is(err, ErrUnsupportedImage):
		return nil, echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ErrImageTooLarge):
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case err != nil:
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return att, nil
}

// respondError maps service errors onto the edge's response shapes.
func respondError(c echo.Context, err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{
			"message": "Please correct the highlighted fields.",
			"errors":  verr.Fields,
		})
	case errors.Is(err, ErrMissingIdentifier):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(apiclient.HTTPStatus(err), apiclient.Message(err))
}
