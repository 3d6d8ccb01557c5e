package service

import (
	"context"

	"github.com/comdex/comdexapi/internal/gateway"
	"github.com/comdex/comdexapi/internal/inflight"
	"github.com/comdex/comdexapi/internal/models"
	"github.com/comdex/comdexapi/pkg/utils/audit"
	"github.com/shopspring/decimal"
)

// AccountService reads the profile and moves credits in and out of the account
type AccountService struct {
	gw    gateway.Gateway
	guard inflight.Guard
	audit audit.Recorder
}

// NewAccountService creates a new account service
func NewAccountService(gw gateway.Gateway, guard inflight.Guard, rec audit.Recorder) *AccountService {
	return &AccountService{gw: gw, guard: guard, audit: rec}
}

func (s *AccountService) Profile(ctx context.Context, us *UserSession) (models.Profile, error) {
	return s.gw.FetchProfile(ctx, us.Backend)
}

func (s *AccountService) Credits(ctx context.Context, us *UserSession) (models.CreditBalance, error) {
	return s.gw.FetchCredits(ctx, us.Backend)
}

// AddCredits tops the account up
func (s *AccountService) AddCredits(ctx context.Context, us *UserSession, amount decimal.Decimal) (models.CreditBalance, error) {
	if !amount.IsPositive() {
		return models.CreditBalance{}, &ValidationError{Field: "amount", Message: "Amount must be greater than zero"}
	}
	release, err := s.guard.Acquire(ctx, inflight.Key(us.UserID, "credits", us.UserID))
	if err != nil {
		return models.CreditBalance{}, err
	}
	defer release()

	bal, err := s.gw.AddCredits(ctx, us.Backend, amount)
	s.record(ctx, us, "add_credits", amount, err)
	return bal, err
}

// RemoveCredits takes credits out; the amount cannot exceed the current balance
func (s *AccountService) RemoveCredits(ctx context.Context, us *UserSession, amount decimal.Decimal) (models.CreditBalance, error) {
	if !amount.IsPositive() {
		return models.CreditBalance{}, &ValidationError{Field: "amount", Message: "Amount must be greater than zero"}
	}
	release, err := s.guard.Acquire(ctx, inflight.Key(us.UserID, "credits", us.UserID))
	if err != nil {
		return models.CreditBalance{}, err
	}
	defer release()

	current, err := s.gw.FetchCredits(ctx, us.Backend)
	if err != nil {
		return models.CreditBalance{}, err
	}
	if amount.GreaterThan(current.Credits) {
		return models.CreditBalance{}, &ValidationError{Field: "amount", Message: "Amount exceeds available credits"}
	}

	bal, err := s.gw.RemoveCredits(ctx, us.Backend, amount)
	s.record(ctx, us, "remove_credits", amount, err)
	return bal, err
}

func (s *AccountService) record(ctx context.Context, us *UserSession, action string, amount decimal.Decimal, err error) {
	e := audit.Entry{UserID: us.UserID, Action: action, EntityID: us.UserID, Outcome: audit.OutcomeOK}
	if err != nil {
		e.Outcome = audit.OutcomeFailed
		e.Detail = err.Error()
	}
	s.audit.Record(ctx, e, map[string]interface{}{"amount": amount.String()})
}
