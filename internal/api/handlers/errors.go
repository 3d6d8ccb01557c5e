// Package handlers contains the handlers for the API
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/comdex/comdexapi/internal/gateway"
	"github.com/comdex/comdexapi/internal/inflight"
	"github.com/comdex/comdexapi/internal/service"
	"github.com/comdex/comdexapi/pkg/utils/response"
	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
	"github.com/labstack/echo/v4"
)

// SessionKey is the echo context key of the signed-in *service.UserSession
const SessionKey = "session"

// LoginRedirect is where the UI sends a user whose session ended
const LoginRedirect = "/login"

const genericMessage = "Something went wrong. Please try again."

var gatewayStatus = map[gateway.Kind]int{
	gateway.KindAuthentication:      http.StatusUnauthorized,
	gateway.KindValidation:          http.StatusBadRequest,
	gateway.KindIneligible:          http.StatusForbidden,
	gateway.KindInsufficientCredits: http.StatusBadRequest,
	gateway.KindNetwork:             http.StatusBadGateway,
	gateway.KindNotFound:            http.StatusNotFound,
	gateway.KindServer:              http.StatusBadGateway,
}

// ErrorResponse maps a service or gateway error onto the response envelope
func ErrorResponse(c echo.Context, err error) error {
	var (
		ve *service.ValidationError
		ie *service.IneligibleError
		ge *gateway.Error
	)
	switch {
	case errors.Is(err, service.ErrSessionInvalid), errors.Is(err, gateway.ErrAuthentication):
		msg := "Your session has ended. Please log in again."
		if errors.As(err, &ge) && ge.Message != "" {
			msg = ge.Message
		}
		return response.DetailedErrorResponse(c, response.Error{
			Status:    http.StatusUnauthorized,
			ErrorType: string(gateway.KindAuthentication),
			Message:   msg,
			Data:      map[string]string{"redirect": LoginRedirect},
		})
	case errors.As(err, &ve):
		return response.DetailedErrorResponse(c, response.Error{
			Status:    http.StatusBadRequest,
			ErrorType: string(gateway.KindValidation),
			Message:   ve.Message,
			Field:     ve.Field,
			Reason:    string(ve.Reason),
		})
	case errors.As(err, &ie):
		return response.DetailedErrorResponse(c, response.Error{
			Status:    http.StatusForbidden,
			ErrorType: string(gateway.KindIneligible),
			Message:   ie.Error(),
			Reason:    string(ie.Reason),
		})
	case errors.Is(err, inflight.ErrInFlight):
		return response.ErrorResponse(c, http.StatusConflict, "ConflictException", "This action is already in progress")
	case errors.Is(err, context.Canceled):
		return nil
	case errors.As(err, &ge):
		status, ok := gatewayStatus[ge.Kind]
		if !ok {
			status = http.StatusBadGateway
		}
		msg := ge.Message
		if msg == "" {
			msg = genericMessage
		}
		if status >= http.StatusInternalServerError {
			zaplogger.Error("backend request failed", zaplogger.Fields{"uri": c.Request().RequestURI, "error": err.Error()})
		}
		return response.DetailedErrorResponse(c, response.Error{
			Status:    status,
			ErrorType: string(ge.Kind),
			Message:   msg,
			Field:     ge.Field,
		})
	}
	zaplogger.Error("request failed", zaplogger.Fields{"uri": c.Request().RequestURI, "error": err.Error()})
	return response.ErrorResponse(c, http.StatusInternalServerError, string(gateway.KindServer), genericMessage)
}

// userSession returns the session the auth middleware stored on the context
func userSession(c echo.Context) *service.UserSession {
	us, _ := c.Get(SessionKey).(*service.UserSession)
	return us
}

// pathID parses a positive integer path parameter
func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &service.ValidationError{Field: name, Message: "`" + name + "` must be a positive integer"}
	}
	return id, nil
}

// queryID parses an optional non-negative integer query parameter
func queryID(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, &service.ValidationError{Field: name, Message: "`" + name + "` must be a positive integer"}
	}
	return id, nil
}
