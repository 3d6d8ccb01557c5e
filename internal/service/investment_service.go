package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/comdex/comdexapi/internal/eligibility"
	"github.com/comdex/comdexapi/internal/gateway"
	"github.com/comdex/comdexapi/internal/inflight"
	"github.com/comdex/comdexapi/internal/models"
	"github.com/comdex/comdexapi/pkg/utils/audit"
	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// indexFetchLimit bounds concurrent index fetches of one investment listing
const indexFetchLimit = 4

// InvestmentService lists investments and runs the invest and closing actions
type InvestmentService struct {
	gw    gateway.Gateway
	rules eligibility.Rules
	guard inflight.Guard
	audit audit.Recorder
}

// NewInvestmentService creates a new investment service
func NewInvestmentService(gw gateway.Gateway, rules eligibility.Rules, guard inflight.Guard, rec audit.Recorder) *InvestmentService {
	return &InvestmentService{gw: gw, rules: rules, guard: guard, audit: rec}
}

// InvestmentItem is one investment with the evaluation of its closing actions
type InvestmentItem struct {
	models.Investment
	IndexStatus string              `json:"index_status,omitempty"`
	Eligibility eligibility.Summary `json:"eligibility"`
}

// InvestmentList is the investments page
type InvestmentList struct {
	Investments []InvestmentItem `json:"investments"`
	Unavailable []Unavailable    `json:"unavailable"`
}

// InvestResult is the outcome of a new investment
type InvestResult struct {
	Investment models.Investment     `json:"investment"`
	Warning    string                `json:"warning,omitempty"`
	Credits    *models.CreditBalance `json:"credits"`
	Refreshed  bool                  `json:"refreshed"`
}

// SettlementResult is the outcome of a closing action
type SettlementResult struct {
	Settlement  models.Settlement     `json:"settlement"`
	Investments []models.Investment   `json:"investments"`
	Credits     *models.CreditBalance `json:"credits"`
	Refreshed   bool                  `json:"refreshed"`
}

// List returns the user's investments, each with its closing-action eligibility.
// The indexes they belong to are fetched concurrently; a missing index degrades only its rows.
func (s *InvestmentService) List(ctx context.Context, us *UserSession) (*InvestmentList, error) {
	investments, err := s.gw.ListInvestments(ctx, us.Backend)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0)
	seen := make(map[int64]struct{})
	for _, inv := range investments {
		if _, ok := seen[inv.IndexID]; !ok {
			seen[inv.IndexID] = struct{}{}
			ids = append(ids, inv.IndexID)
		}
	}

	indexes := make([]models.Index, len(ids))
	errs := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(indexFetchLimit)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			indexes[i], errs[i] = s.gw.FetchIndex(ctx, us.Backend, id)
			return nil
		})
	}
	_ = g.Wait()

	byID := make(map[int64]models.Index, len(ids))
	var d degraded
	for i, id := range ids {
		if err := d.add("index_"+strconv.FormatInt(id, 10), errs[i]); err != nil {
			return nil, err
		}
		if errs[i] == nil {
			byID[id] = indexes[i]
		}
	}

	out := &InvestmentList{Investments: make([]InvestmentItem, 0, len(investments))}
	for _, inv := range investments {
		idx, ok := byID[inv.IndexID]
		item := InvestmentItem{Investment: inv, Eligibility: eligibility.Summarize(idx, inv)}
		if ok {
			item.IndexStatus = string(idx.Status)
			if item.IndexName == "" {
				item.IndexName = idx.Name
			}
		}
		out.Investments = append(out.Investments, item)
	}
	out.Unavailable = d.list()
	return out, nil
}

// find looks up one of the user's investments and the index it belongs to
func (s *InvestmentService) find(ctx context.Context, us *UserSession, investmentID int64) (models.Investment, models.Index, error) {
	investments, err := s.gw.ListInvestments(ctx, us.Backend)
	if err != nil {
		return models.Investment{}, models.Index{}, err
	}
	for _, inv := range investments {
		if inv.ID == investmentID {
			idx, err := s.gw.FetchIndex(ctx, us.Backend, inv.IndexID)
			if err != nil {
				return models.Investment{}, models.Index{}, err
			}
			return inv, idx, nil
		}
	}
	return models.Investment{}, models.Index{}, &gateway.Error{Kind: gateway.KindNotFound, StatusCode: 404, Message: "Investment not found"}
}

// Eligibility evaluates the closing actions of one investment
func (s *InvestmentService) Eligibility(ctx context.Context, us *UserSession, investmentID int64) (eligibility.Summary, error) {
	inv, idx, err := s.find(ctx, us, investmentID)
	if err != nil {
		return eligibility.Summary{}, err
	}
	return eligibility.Summarize(idx, inv), nil
}

// Invest commits credits to an index
func (s *InvestmentService) Invest(ctx context.Context, us *UserSession, indexID int64, amount decimal.Decimal) (*InvestResult, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "Amount must be greater than zero"}
	}
	if indexID <= 0 {
		return nil, &ValidationError{Field: "index_id", Message: "Index is required"}
	}

	release, err := s.guard.Acquire(ctx, inflight.Key(us.UserID, "invest", indexID))
	if err != nil {
		return nil, err
	}
	defer release()

	idx, err := s.gw.FetchIndex(ctx, us.Backend, indexID)
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{"index_id": indexID, "amount": amount.String()}
	d := s.rules.CanInvest(idx)
	if !d.Allowed {
		s.record(ctx, us, "invest", indexID, audit.OutcomeRejected, string(d.Reason), fields)
		return nil, ineligible("invest", d)
	}

	inv, err := s.gw.CreateInvestment(ctx, us.Backend, indexID, amount)
	if err != nil {
		s.record(ctx, us, "invest", indexID, audit.OutcomeFailed, err.Error(), fields)
		return nil, err
	}
	fields["investment_id"] = inv.ID
	s.record(ctx, us, "invest", indexID, audit.OutcomeOK, d.Warning, fields)

	out := &InvestResult{Investment: inv, Warning: d.Warning, Refreshed: true}
	credits, err := s.gw.FetchCredits(ctx, us.Backend)
	if err != nil {
		s.refetchFailed(us, "credits", err)
		out.Refreshed = false
		return out, nil
	}
	out.Credits = &credits
	return out, nil
}

type settleFunc func(ctx context.Context, s *gateway.Session, investmentID int64) (models.Settlement, error)

// ClaimInsurance pays out the insured share of an investment that lost at least 40%
func (s *InvestmentService) ClaimInsurance(ctx context.Context, us *UserSession, investmentID int64) (*SettlementResult, error) {
	return s.settle(ctx, us, investmentID, models.SettlementClaimInsurance, eligibility.InsuranceClaim, s.gw.ClaimInsurance)
}

// EmergencyWithdraw exits an investment that lost at least 10% at its current value
func (s *InvestmentService) EmergencyWithdraw(ctx context.Context, us *UserSession, investmentID int64) (*SettlementResult, error) {
	return s.settle(ctx, us, investmentID, models.SettlementEmergencyWithdraw, eligibility.EmergencyWithdrawal, s.gw.EmergencyWithdraw)
}

// TakeInsurance refunds the original amount of an open investment
func (s *InvestmentService) TakeInsurance(ctx context.Context, us *UserSession, investmentID int64) (*SettlementResult, error) {
	check := func(_ models.Index, inv models.Investment) eligibility.Decision { return eligibility.TakeInsurance(inv) }
	return s.settle(ctx, us, investmentID, models.SettlementTakeInsurance, check, s.gw.TakeInsurance)
}

// Withdraw cashes out a completed investment at its current value
func (s *InvestmentService) Withdraw(ctx context.Context, us *UserSession, investmentID int64) (*SettlementResult, error) {
	check := func(_ models.Index, inv models.Investment) eligibility.Decision { return eligibility.Withdrawal(inv) }
	return s.settle(ctx, us, investmentID, models.SettlementWithdraw, check, s.gw.Withdraw)
}

// settle runs one closing action. All closing actions of an investment share one in-flight key,
// so a claim and a withdrawal of the same investment can never run together.
func (s *InvestmentService) settle(
	ctx context.Context,
	us *UserSession,
	investmentID int64,
	kind models.SettlementKind,
	check func(models.Index, models.Investment) eligibility.Decision,
	call settleFunc,
) (*SettlementResult, error) {
	release, err := s.guard.Acquire(ctx, inflight.Key(us.UserID, "close", investmentID))
	if err != nil {
		return nil, err
	}
	defer release()

	inv, idx, err := s.find(ctx, us, investmentID)
	if err != nil {
		return nil, err
	}

	action := string(kind)
	fields := map[string]interface{}{"index_id": inv.IndexID, "amount": inv.Amount.String(), "current_value": inv.CurrentValue.String()}
	if d := check(idx, inv); !d.Allowed {
		s.record(ctx, us, action, investmentID, audit.OutcomeRejected, string(d.Reason), fields)
		return nil, ineligible(action, d)
	}

	st, err := call(ctx, us.Backend, investmentID)
	if err != nil {
		s.record(ctx, us, action, investmentID, audit.OutcomeFailed, err.Error(), fields)
		return nil, err
	}
	st.InvestmentID = investmentID
	st.Kind = kind
	fields["amount_credited"] = st.AmountCredited.String()
	s.record(ctx, us, action, investmentID, audit.OutcomeOK, "", fields)

	out := &SettlementResult{Settlement: st, Investments: []models.Investment{}, Refreshed: true}
	var (
		investments         []models.Investment
		credits             models.CreditBalance
		invErr, creditsErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		investments, invErr = s.gw.ListInvestments(ctx, us.Backend)
		return nil
	})
	g.Go(func() error {
		credits, creditsErr = s.gw.FetchCredits(ctx, us.Backend)
		return nil
	})
	_ = g.Wait()

	if invErr != nil {
		s.refetchFailed(us, "investments", invErr)
		out.Refreshed = false
	} else if investments != nil {
		out.Investments = investments
	}
	if creditsErr != nil {
		s.refetchFailed(us, "credits", creditsErr)
		out.Refreshed = false
	} else {
		out.Credits = &credits
	}
	return out, nil
}

func (s *InvestmentService) record(ctx context.Context, us *UserSession, action string, entityID int64, outcome audit.Outcome, detail string, fields map[string]interface{}) {
	s.audit.Record(ctx, audit.Entry{
		UserID:   us.UserID,
		Action:   action,
		EntityID: entityID,
		Outcome:  outcome,
		Detail:   detail,
	}, fields)
}

func (s *InvestmentService) refetchFailed(us *UserSession, what string, err error) {
	level := zaplogger.Warn
	if errors.Is(err, gateway.ErrAuthentication) {
		level = zaplogger.Error
	}
	level("failed to refetch "+what, zaplogger.Fields{"user_id": us.UserID, "error": err.Error()})
}
