package actions

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"wialon-connector/internal/models"
	"wialon-connector/internal/observability"
	"wialon-connector/internal/wialon"
	"wialon-connector/pkg/utils"
)

// Handler handles HTTP requests to run connector actions.
type Handler struct {
	svc ServiceInterface
}

// NewHandler creates a new actions handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

// RunAction executes the action named in the path against the integration
// carried in the body. Action results are returned with 200 even when they
// describe a failure; non-200 statuses are reserved for errors of the run
// itself.
func (h *Handler) RunAction(c echo.Context) error {
	actionID := c.Param("actionId")

	var req models.ActionRunRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	integration := &req.Integration

	timer := prometheus.NewTimer(observability.ActionDuration.WithLabelValues(actionID))
	defer timer.ObserveDuration()

	switch actionID {
	case models.ActionAuth:
		result, err := h.svc.Auth(ctx, integration)
		if err != nil {
			observability.ActionRuns.WithLabelValues(actionID, "error").Inc()
			return utils.HandleServiceError(c, err)
		}
		observability.ActionRuns.WithLabelValues(actionID, "success").Inc()
		return utils.RespondWithJSON(c, http.StatusOK, result)

	case models.ActionFetchSamples:
		result, err := h.svc.FetchSamples(ctx, integration)
		if err != nil {
			observability.ActionRuns.WithLabelValues(actionID, "error").Inc()
			var apiErr *wialon.APIError
			if errors.As(err, &apiErr) {
				return utils.RespondWithError(c, http.StatusBadGateway, apiErr.Error())
			}
			return utils.HandleServiceError(c, err)
		}
		observability.ActionRuns.WithLabelValues(actionID, "success").Inc()
		return utils.RespondWithJSON(c, http.StatusOK, result)

	case models.ActionPullObservations:
		result := h.svc.PullObservations(ctx, integration)
		outcome := "success"
		if result.Error != "" {
			outcome = "error"
		}
		observability.ActionRuns.WithLabelValues(actionID, outcome).Inc()
		return utils.RespondWithJSON(c, http.StatusOK, result)

	default:
		return utils.RespondWithError(c, http.StatusNotFound, fmt.Sprintf("Unknown action %q", actionID))
	}
}
