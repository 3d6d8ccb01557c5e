// Package handlers contains the handlers for the API
package handlers

import (
	"github.com/comdex/comdexapi/internal/service"
	"github.com/comdex/comdexapi/pkg/utils/response"
	"github.com/labstack/echo/v4"
)

// VotingHandler is the handler for the voting API
type VotingHandler struct {
	service *service.VotingService
}

// NewVotingHandler creates a new handler for the voting API
func NewVotingHandler(service *service.VotingService) *VotingHandler {
	return &VotingHandler{service: service}
}

type submitVotesRequest struct {
	CompanyIDs []int64 `json:"company_ids"`
}

// GetVoting returns the voting view of an index
func (h *VotingHandler) GetVoting(c echo.Context) error {
	indexID, err := pathID(c, "index_id")
	if err != nil {
		return ErrorResponse(c, err)
	}
	view, err := h.service.View(c.Request().Context(), userSession(c), indexID)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, view)
}

// SubmitVotes casts the user's ballot for an index
func (h *VotingHandler) SubmitVotes(c echo.Context) error {
	indexID, err := pathID(c, "index_id")
	if err != nil {
		return ErrorResponse(c, err)
	}
	var req submitVotesRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, &service.ValidationError{Field: "company_ids", Message: "`company_ids` must be a list of company ids"})
	}

	res, err := h.service.SubmitVotes(c.Request().Context(), userSession(c), indexID, req.CompanyIDs)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, res)
}

// GetResults returns the interim or final results of a voting session
func (h *VotingHandler) GetResults(c echo.Context) error {
	sessionID, err := pathID(c, "id")
	if err != nil {
		return ErrorResponse(c, err)
	}
	res, err := h.service.Results(c.Request().Context(), userSession(c), sessionID)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, res)
}
