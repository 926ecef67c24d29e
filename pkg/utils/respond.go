package utils

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"wialon-connector/internal/models"
)

// RespondWithJSON writes the payload as a JSON response.
func RespondWithJSON(c echo.Context, status int, payload interface{}) error {
	return c.JSON(status, payload)
}

// RespondWithError writes a JSON error body with the given status.
func RespondWithError(c echo.Context, status int, message string) error {
	return c.JSON(status, models.ErrorResponse{Message: message})
}

// HandleServiceError maps service-layer errors onto HTTP statuses: broken
// integration setups are the caller's problem (422), upstream failures are
// reported as bad gateway, anything else is a 500.
func HandleServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrConfigurationNotFound):
		return RespondWithError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, models.ErrBadPayload):
		return RespondWithError(c, http.StatusBadGateway, err.Error())
	case models.IsTransportError(err):
		return RespondWithError(c, http.StatusBadGateway, err.Error())
	default:
		return RespondWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}
