package similarity

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/casematch/internal/platform/auth"
)

// Finder is the engine operation the handler serves.
type Finder interface {
	FindSimilarPatients(ctx context.Context, referenceID int64, st SearchType) ([]SimilarityResult, error)
}

type Handler struct {
	svc Finder
}

func NewHandler(svc Finder) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("physician", "nurse", "researcher"))
	readGroup.GET("/patients/:id/similar", h.FindSimilar)
}

// SimilarResponse is the body of GET /patients/:id/similar.
type SimilarResponse struct {
	ReferencePatientID int64              `json:"reference_patient_id"`
	SearchType         SearchType         `json:"search_type"`
	Total              int                `json:"total"`
	Results            []SimilarityResult `json:"results"`
}

func (h *Handler) FindSimilar(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	raw := c.QueryParam("type")
	if raw == "" {
		raw = c.QueryParam("search_type")
	}
	st, err := ParseSearchType(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "type must be one of all, diagnosis, symptoms")
	}

	results, err := h.svc.FindSimilarPatients(c.Request().Context(), id, st)
	switch {
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrInvalidSearchType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "similarity search failed")
	}

	if results == nil {
		results = []SimilarityResult{}
	}
	return c.JSON(http.StatusOK, SimilarResponse{
		ReferencePatientID: id,
		SearchType:         st,
		Total:              len(results),
		Results:            results,
	})
}
