package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ControlTokenMiddleware validates the X-Control-Token header against the
// configured token. If the configured token is empty, the guard is disabled
// (development mode).
func ControlTokenMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return next(c)
			}

			provided := c.Request().Header.Get("X-Control-Token")
			if provided == "" {
				provided = c.QueryParam("token")
			}

			if provided == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "missing control token",
				})
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "invalid control token",
				})
			}

			return next(c)
		}
	}
}

// Actor returns the identity for audit records: the authenticated user from
// the reverse proxy when present, otherwise "anonymous".
func Actor(c echo.Context) string {
	if user := c.Request().Header.Get("X-Forwarded-User"); user != "" {
		return user
	}
	if user := c.Request().Header.Get("X-Auth-Request-User"); user != "" {
		return user
	}
	return "anonymous"
}
