// Package models contains the models for the Comdex API
package models

import "github.com/shopspring/decimal"

// Profile is the authenticated user's account
type Profile struct {
	ID        int64           `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	FirstName string          `json:"first_name,omitempty"`
	LastName  string          `json:"last_name,omitempty"`
	Credits   decimal.Decimal `json:"credits"`
}

// CreditBalance is the user's spendable credits
type CreditBalance struct {
	Credits decimal.Decimal `json:"credits"`
}

// AuthTokens is the token pair issued by the backend on login
type AuthTokens struct {
	Access  string   `json:"-"`
	Refresh string   `json:"-"`
	User    *Profile `json:"user,omitempty"`
}

// SignupRequest is the account creation form
type SignupRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}
