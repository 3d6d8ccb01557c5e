package middleware

import (
	"net/http"

	"github.com/comdex/comdexapi/internal/api/handlers"
	"github.com/comdex/comdexapi/internal/service"
	"github.com/comdex/comdexapi/pkg/utils/response"
	"github.com/labstack/echo/v4"
)

// ReasonAdminOnly refuses an operator endpoint to a regular user
const ReasonAdminOnly = "ADMIN_ONLY"

// AdminMiddleware lets through only signed-in users isAdmin accepts.
// It must run after AuthMiddleware.
func AdminMiddleware(isAdmin func(username string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			us, _ := c.Get(handlers.SessionKey).(*service.UserSession)
			if us == nil {
				return unauthorized(c, "Missing session")
			}
			if !isAdmin(us.Username) {
				return response.DetailedErrorResponse(c, response.Error{
					Status:    http.StatusForbidden,
					ErrorType: "IneligibleException",
					Message:   "This action is restricted to administrators",
					Reason:    ReasonAdminOnly,
				})
			}
			return next(c)
		}
	}
}
