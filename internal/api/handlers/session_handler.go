// Package handlers contains the handlers for the API
package handlers

import (
	"time"

	"github.com/comdex/comdexapi/internal/models"
	"github.com/comdex/comdexapi/internal/service"
	"github.com/comdex/comdexapi/pkg/utils/response"
	"github.com/labstack/echo/v4"
)

// SessionHandler is the handler for the session API
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler creates a new handler for the session API
func NewSessionHandler(service *service.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// SessionResponseData is the session as returned to the UI
type SessionResponseData struct {
	SessionToken string     `json:"session_token"`
	UserID       int64      `json:"user_id"`
	Username     string     `json:"username"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

func sessionData(us *service.UserSession) SessionResponseData {
	out := SessionResponseData{SessionToken: us.Token, UserID: us.UserID, Username: us.Username}
	if exp := us.ExpiresAt(); !exp.IsZero() {
		out.ExpiresAt = &exp
	}
	return out
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Login signs the user in and opens an API session
func (h *SessionHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, &service.ValidationError{Field: "body", Message: "Invalid request body"})
	}

	us, err := h.service.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, sessionData(us))
}

// Signup creates the account and opens an API session
func (h *SessionHandler) Signup(c echo.Context) error {
	var req models.SignupRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, &service.ValidationError{Field: "body", Message: "Invalid request body"})
	}

	us, err := h.service.Signup(c.Request().Context(), req)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, sessionData(us))
}

// CheckSessionValid reports the session the request is authenticated with
func (h *SessionHandler) CheckSessionValid(c echo.Context) error {
	return response.SuccessResponse(c, sessionData(userSession(c)))
}

// DeleteSession logs the user out
func (h *SessionHandler) DeleteSession(c echo.Context) error {
	h.service.Logout(userSession(c))
	return response.SuccessResponse(c, map[string]string{"redirect": LoginRedirect})
}
