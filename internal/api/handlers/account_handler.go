// Package handlers contains the handlers for the API
package handlers

import (
	"github.com/comdex/comdexapi/internal/service"
	"github.com/comdex/comdexapi/pkg/utils/response"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// AccountHandler is the handler for the profile and credit API
type AccountHandler struct {
	service *service.AccountService
}

// NewAccountHandler creates a new handler for the account API
func NewAccountHandler(service *service.AccountService) *AccountHandler {
	return &AccountHandler{service: service}
}

type creditsRequest struct {
	Amount decimal.Decimal `json:"amount" form:"amount"`
}

func (h *AccountHandler) GetProfile(c echo.Context) error {
	profile, err := h.service.Profile(c.Request().Context(), userSession(c))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, profile)
}

func (h *AccountHandler) GetCredits(c echo.Context) error {
	bal, err := h.service.Credits(c.Request().Context(), userSession(c))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, bal)
}

func (h *AccountHandler) AddCredits(c echo.Context) error {
	var req creditsRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, errInvalidBody)
	}
	bal, err := h.service.AddCredits(c.Request().Context(), userSession(c), req.Amount)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, bal)
}

func (h *AccountHandler) RemoveCredits(c echo.Context) error {
	var req creditsRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, errInvalidBody)
	}
	bal, err := h.service.RemoveCredits(c.Request().Context(), userSession(c), req.Amount)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return response.SuccessResponse(c, bal)
}
