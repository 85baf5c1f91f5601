package httpserver

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apperrors "github.com/pscheid92/emojirank/internal/platform/errors"
)

// newTokenAuth requires "Authorization: Bearer <token>" on every API request.
// Missing and wrong tokens are both answered with 401.
func newTokenAuth(token string) echo.MiddlewareFunc {
	expected := []byte(token)

	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), expected) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return apperrors.UnauthorizedError("missing or invalid API token").
				WithCause(err).
				WithField("client_ip", c.RealIP())
		},
	})
}
