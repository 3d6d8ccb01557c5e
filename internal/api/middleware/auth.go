package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/comdex/comdexapi/internal/api/handlers"
	"github.com/comdex/comdexapi/internal/service"
	"github.com/comdex/comdexapi/pkg/utils/response"
	"github.com/labstack/echo/v4"
)

// SessionOpener restores an API session from its token
type SessionOpener interface {
	Open(ctx context.Context, sessionToken string) (*service.UserSession, error)
}

func unauthorized(c echo.Context, message string) error {
	return response.DetailedErrorResponse(c, response.Error{
		Status:    http.StatusUnauthorized,
		ErrorType: "AuthenticationException",
		Message:   message,
		Data:      map[string]string{"redirect": handlers.LoginRedirect},
	})
}

// AuthMiddleware creates a new authorization middleware.
// It expects `Authorization: Bearer <session token>`.
func AuthMiddleware(sessions SessionOpener) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if auth == "" {
				return unauthorized(c, "Missing Authorization header")
			}

			scheme, token, ok := strings.Cut(auth, " ")
			token = strings.TrimSpace(token)
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				return unauthorized(c, "Invalid Authorization header format")
			}

			us, err := sessions.Open(c.Request().Context(), token)
			if errors.Is(err, service.ErrSessionInvalid) {
				return unauthorized(c, "Invalid or expired session")
			}
			if err != nil {
				return handlers.ErrorResponse(c, err)
			}

			c.Set(handlers.SessionKey, us)
			return next(c)
		}
	}
}
