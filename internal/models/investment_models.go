// Package models contains the models for the Comdex API
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InvestmentStatus is the state of a user's stake
type InvestmentStatus string

const (
	InvestmentActive    InvestmentStatus = "active"
	InvestmentExecuted  InvestmentStatus = "executed"
	InvestmentWithdrawn InvestmentStatus = "withdrawn"
)

// ParseInvestmentStatus folds the backend's investment states into the three client-visible ones
func ParseInvestmentStatus(s string) InvestmentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "withdrawn", "failed":
		return InvestmentWithdrawn
	case "executed", "completed":
		return InvestmentExecuted
	default:
		return InvestmentActive
	}
}

// Investment is a user's stake in one index
type Investment struct {
	ID               int64            `json:"id"`
	IndexID          int64            `json:"index_id"`
	IndexName        string           `json:"index_name,omitempty"`
	UserID           int64            `json:"user_id"`
	Amount           decimal.Decimal  `json:"amount"`
	CurrentValue     decimal.Decimal  `json:"current_value"`
	InvestmentDate   time.Time        `json:"investment_date"`
	Status           InvestmentStatus `json:"status"`
	InsuranceClaimed bool             `json:"insurance_claimed"`
	HasVoted         bool             `json:"has_voted"`
}

// IsOpen reports whether the position can still be acted upon
func (i Investment) IsOpen() bool {
	return i.Status != InvestmentWithdrawn && !i.InsuranceClaimed
}

// SettlementKind names the action that closed or paid out an investment
type SettlementKind string

const (
	SettlementClaimInsurance    SettlementKind = "claim_insurance"
	SettlementTakeInsurance     SettlementKind = "take_insurance"
	SettlementEmergencyWithdraw SettlementKind = "emergency_withdraw"
	SettlementWithdraw          SettlementKind = "withdraw"
)

// Settlement is the backend's answer to a closing action
type Settlement struct {
	InvestmentID     int64            `json:"investment_id"`
	Kind             SettlementKind   `json:"kind"`
	AmountCredited   decimal.Decimal  `json:"amount_credited"`
	NewCreditBalance *decimal.Decimal `json:"new_credit_balance,omitempty"`
	Message          string           `json:"message,omitempty"`
}
