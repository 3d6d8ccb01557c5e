// Package handlers contains the handlers for the API
package handlers

import (
	"github.com/comdex/comdexapi/internal/models"
	"github.com/comdex/comdexapi/internal/service"
	"github.com/comdex/comdexapi/pkg/utils/response"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// InvestmentHandler is the handler for the investment API
type InvestmentHandler struct {
	service *service.InvestmentService
}

// NewInvestmentHandler creates a new handler for the investment API
func NewInvestmentHandler(service *service.InvestmentService) *InvestmentHandler {
	return &InvestmentHandler{service: service}
}

// investRequest accepts amount as a JSON number or a numeric string
type investRequest struct {
	IndexID int64           `json:"index_id" form:"index_id"`
	Amount  decimal.Decimal `json:"amount" form:"amount"`
}

// errInvalidBody reports a body that does not bind, e.g. a non-numeric amount
var errInvalidBody = &service.ValidationError{Field: "body", Message: "Invalid request body"}

// ListInvestments returns the user's investments with their action eligibility
func (h *InvestmentHandler) ListInvestments(c echo.Context) error {
	list, err := h.service.List(c.Request().Context(), userSession(c))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, list)
}

// Invest commits credits to an index
func (h *InvestmentHandler) Invest(c echo.Context) error {
	var req investRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, errInvalidBody)
	}

	res, err := h.service.Invest(c.Request().Context(), userSession(c), req.IndexID, req.Amount)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, res)
}

// GetEligibility evaluates the closing actions of one investment
func (h *InvestmentHandler) GetEligibility(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return ErrorResponse(c, err)
	}
	sum, err := h.service.Eligibility(c.Request().Context(), userSession(c), id)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, sum)
}

// Settle runs one closing action: claim_insurance, emergency_withdraw, take_insurance or withdraw
func (h *InvestmentHandler) Settle(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return ErrorResponse(c, err)
	}
	ctx, us := c.Request().Context(), userSession(c)

	var res *service.SettlementResult
	switch models.SettlementKind(c.Param("kind")) {
	case models.SettlementClaimInsurance:
		res, err = h.service.ClaimInsurance(ctx, us, id)
	case models.SettlementEmergencyWithdraw:
		res, err = h.service.EmergencyWithdraw(ctx, us, id)
	case models.SettlementTakeInsurance:
		res, err = h.service.TakeInsurance(ctx, us, id)
	case models.SettlementWithdraw:
		res, err = h.service.Withdraw(ctx, us, id)
	default:
		err = &service.ValidationError{Field: "kind", Message: "Unknown investment action `" + c.Param("kind") + "`"}
	}
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, res)
}
