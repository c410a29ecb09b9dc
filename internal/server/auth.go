package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"classrelay/internal/core"
)

// AuthMiddleware validates the admin key on the admin routes.
// If adminKey is empty, no authentication is required.
func AuthMiddleware(adminKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if adminKey == "" {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSONBlob(http.StatusUnauthorized, core.ErrorEnvelope("missing authorization header"))
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				return c.JSONBlob(http.StatusUnauthorized,
					core.ErrorEnvelope("invalid authorization header format, expected 'Bearer <token>'"))
			}

			token := strings.TrimPrefix(authHeader, prefix)
			if subtle.ConstantTimeCompare([]byte(token), []byte(adminKey)) != 1 {
				return c.JSONBlob(http.StatusUnauthorized, core.ErrorEnvelope("invalid admin key"))
			}

			return next(c)
		}
	}
}
