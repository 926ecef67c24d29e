package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"wialon-connector/internal/api/middleware"
	"wialon-connector/internal/modules/actions"
)

// SetupRoutes sets up all the API endpoints for the connector.
func SetupRoutes(
	e *echo.Echo,
	actionsHandler *actions.Handler,
	jwtSecret string,
) {
	// Initialize the JWT authentication middleware
	authMiddleware := middleware.JWTAuth(jwtSecret)

	// --- Public Routes ---
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "Wialon integration connector"})
	})

	// --- Action Routes ---
	// The platform's scheduler and portal invoke these with a signed JWT.
	v1 := e.Group("/v1", authMiddleware)
	{
		v1.POST("/actions/:actionId/run", actionsHandler.RunAction)
	}
}
