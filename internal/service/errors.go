// Package service contains the service layer for the Comdex API
package service

import (
	"errors"
	"fmt"

	"github.com/comdex/comdexapi/internal/eligibility"
	"github.com/comdex/comdexapi/internal/lifecycle"
)

// ErrSessionInvalid is returned when an API session token is unknown or has been torn down
var ErrSessionInvalid = errors.New("invalid or expired session")

// Reasons for refused management transitions
const (
	ReasonTerminalStatus       eligibility.Reason = "TERMINAL_STATUS"
	ReasonAlreadyInStatus      eligibility.Reason = "ALREADY_IN_STATUS"
	ReasonTransitionNotAllowed eligibility.Reason = "TRANSITION_NOT_ALLOWED"
)

// IneligibleError is a user action refused by the local rules before it reached the backend
type IneligibleError struct {
	Action string
	Reason eligibility.Reason
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("%s not allowed: %s", e.Action, e.Reason)
}

// ValidationError is a form input problem tied to one field
type ValidationError struct {
	Field   string
	Message string
	Reason  eligibility.Reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func ineligible(action string, d eligibility.Decision) error {
	return &IneligibleError{Action: action, Reason: d.Reason}
}

func transitionRefused(action lifecycle.Action, err error) *IneligibleError {
	reason := ReasonTransitionNotAllowed
	switch {
	case errors.Is(err, lifecycle.ErrTerminal):
		reason = ReasonTerminalStatus
	case errors.Is(err, lifecycle.ErrAlreadyInStatus):
		reason = ReasonAlreadyInStatus
	}
	return &IneligibleError{Action: string(action), Reason: reason}
}
