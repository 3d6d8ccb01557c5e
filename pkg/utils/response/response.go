// Package response contains response utility functions and types
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Response represents the standard API response structure
type Response struct {
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	ErrorType string      `json:"error_type,omitempty"`
	Message   string      `json:"message,omitempty"`
	Field     string      `json:"field,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// SuccessResponse sends a successful JSON response
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Status: "success",
		Data:   data,
	})
}

// ErrorResponse sends an error JSON response
func ErrorResponse(c echo.Context, httpStatus int, errorType, message string) error {
	return c.JSON(httpStatus, Response{
		Status:    "error",
		ErrorType: errorType,
		Message:   message,
	})
}

// Error carries the optional parts of an error response
type Error struct {
	Status    int
	ErrorType string
	Message   string
	Field     string
	Reason    string
	Data      interface{}
}

// DetailedErrorResponse sends an error JSON response naming the offending field or rule
func DetailedErrorResponse(c echo.Context, e Error) error {
	return c.JSON(e.Status, Response{
		Status:    "error",
		Data:      e.Data,
		ErrorType: e.ErrorType,
		Message:   e.Message,
		Field:     e.Field,
		Reason:    e.Reason,
	})
}
