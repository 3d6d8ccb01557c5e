// Package handlers contains the handlers for the API
package handlers

import (
	"strconv"

	"github.com/comdex/comdexapi/internal/service"
	"github.com/comdex/comdexapi/pkg/utils/response"
	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
	"github.com/labstack/echo/v4"
)

// StreamHandler is the handler for the stream API
type StreamHandler struct {
	service *service.StreamService
}

// NewStreamHandler creates a new handler for the stream API
func NewStreamHandler(service *service.StreamService) *StreamHandler {
	return &StreamHandler{service: service}
}

// StreamIndexStatus streams index status events as server-sent events.
// `index_id` limits the stream to one index.
func (h *StreamHandler) StreamIndexStatus(c echo.Context) error {
	indexID, err := queryID(c, "index_id")
	if err != nil {
		return ErrorResponse(c, err)
	}
	if err := h.service.RunStatusStream(c.Request().Context(), c, indexID); err != nil {
		// headers are already sent; the client reconnects on its own
		zaplogger.Warn("status stream closed", zaplogger.Fields{"error": err.Error()})
	}
	return nil
}

// GetStatusEvents returns the stored status history
func (h *StreamHandler) GetStatusEvents(c echo.Context) error {
	indexID, err := queryID(c, "index_id")
	if err != nil {
		return ErrorResponse(c, err)
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	events, err := h.service.Recent(c.Request().Context(), indexID, limit)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, events)
}
