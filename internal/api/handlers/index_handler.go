// Package handlers contains the handlers for the API
package handlers

import (
	"github.com/comdex/comdexapi/internal/lifecycle"
	"github.com/comdex/comdexapi/internal/service"
	"github.com/comdex/comdexapi/pkg/utils/response"
	"github.com/labstack/echo/v4"
)

// IndexHandler is the handler for the index views and management actions
type IndexHandler struct {
	indexService  *service.IndexService
	manageService *service.ManageService
}

// NewIndexHandler creates a new handler for the index API
func NewIndexHandler(indexService *service.IndexService, manageService *service.ManageService) *IndexHandler {
	return &IndexHandler{indexService: indexService, manageService: manageService}
}

// Dashboard returns the signed-in landing view
func (h *IndexHandler) Dashboard(c echo.Context) error {
	d, err := h.indexService.Dashboard(c.Request().Context(), userSession(c))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, d)
}

// ListIndexes returns the indexes, optionally filtered by `status`
func (h *IndexHandler) ListIndexes(c echo.Context) error {
	var status lifecycle.Status
	if raw := c.QueryParam("status"); raw != "" {
		st, err := lifecycle.ParseStatus(raw)
		if err != nil {
			return ErrorResponse(c, &service.ValidationError{Field: "status", Message: err.Error()})
		}
		status = st
	}

	indexes, err := h.indexService.List(c.Request().Context(), userSession(c), status)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, indexes)
}

// GetIndexStats returns the platform-wide index statistics
func (h *IndexHandler) GetIndexStats(c echo.Context) error {
	stats, err := h.indexService.Stats(c.Request().Context(), userSession(c))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, stats)
}

// GetIndex returns the detail view of one index
func (h *IndexHandler) GetIndex(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return ErrorResponse(c, err)
	}
	details, err := h.indexService.Details(c.Request().Context(), userSession(c), id)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, details)
}

// TransitionIndex applies a management action such as `start_voting` or `execute`
func (h *IndexHandler) TransitionIndex(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return ErrorResponse(c, err)
	}
	res, err := h.manageService.Transition(c.Request().Context(), userSession(c), id, c.Param("action"))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, res)
}
