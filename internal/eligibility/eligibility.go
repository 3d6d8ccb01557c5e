// Package eligibility computes which user actions an index and an investment currently permit.
//
// Every function is total: it never panics on zero values and always returns a Decision whose
// Reason explains a refusal.
package eligibility

import (
	"github.com/comdex/comdexapi/internal/lifecycle"
	"github.com/comdex/comdexapi/internal/models"
	"github.com/shopspring/decimal"
)

// Reason is a machine-readable refusal code
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotActive        Reason = "NOT_ACTIVE"
	ReasonAlreadyClaimed   Reason = "ALREADY_CLAIMED"
	ReasonInsufficientLoss Reason = "INSUFFICIENT_LOSS"
	ReasonNoInvestment     Reason = "NO_INVESTMENT"
	ReasonSessionInactive  Reason = "SESSION_INACTIVE"
	ReasonAlreadyVoted     Reason = "ALREADY_VOTED"
	ReasonInvestmentClosed Reason = "INVESTMENT_CLOSED"
	ReasonTooFewVotes      Reason = "TOO_FEW_VOTES"
	ReasonTooManyVotes     Reason = "TOO_MANY_VOTES"
	ReasonDuplicateCompany Reason = "DUPLICATE_COMPANY"
	ReasonUnknownCompany   Reason = "UNKNOWN_COMPANY"
)

// WarningNewlyCreated is attached when investing into a draft index is allowed
const WarningNewlyCreated = "NEWLY_CREATED"

var (
	ClaimLossThreshold      = decimal.NewFromInt(40)
	WithdrawalLossThreshold = decimal.NewFromInt(10)
	hundred                 = decimal.NewFromInt(100)
)

// Decision is the outcome of one eligibility check
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
	Warning string `json:"warning,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(r Reason) Decision {
	return Decision{Reason: r}
}

// Rules holds the policy flags the source left open
type Rules struct {
	InvestDuringVoting bool
	InvestInDraft      bool
	AllowRevote        bool
}

// CanInvest reports whether new credits may be committed to the index
func (r Rules) CanInvest(index models.Index) Decision {
	switch index.Status {
	case lifecycle.StatusActive:
		return allow()
	case lifecycle.StatusVoting:
		if r.InvestDuringVoting {
			return allow()
		}
	case lifecycle.StatusDraft:
		if r.InvestInDraft {
			return Decision{Allowed: true, Warning: WarningNewlyCreated}
		}
	}
	return deny(ReasonNotActive)
}

// CanVote reports whether the user may cast votes in the index's session.
// userVotes are the user's votes already recorded in that session.
func (r Rules) CanVote(index models.Index, investments []models.Investment, session *models.VotingSession, userVotes []models.Vote) Decision {
	if index.Status != lifecycle.StatusVoting {
		return deny(ReasonNotActive)
	}
	if session == nil || !session.IsActive {
		return deny(ReasonSessionInactive)
	}
	if _, ok := OpenInvestment(index.ID, investments); !ok {
		return deny(ReasonNoInvestment)
	}
	if !r.AllowRevote {
		for _, v := range userVotes {
			if v.SessionID == session.ID {
				return deny(ReasonAlreadyVoted)
			}
		}
	}
	return allow()
}

// OpenInvestment returns the first open investment the user holds in the index
func OpenInvestment(indexID int64, investments []models.Investment) (models.Investment, bool) {
	for _, inv := range investments {
		if inv.IndexID == indexID && inv.IsOpen() {
			return inv, true
		}
	}
	return models.Investment{}, false
}

// VoteSelectionValid checks the selected companies against the session bounds and index membership
func VoteSelectionValid(companyIDs []int64, session models.VotingSession, index models.Index) Decision {
	n := len(companyIDs)
	if n == 0 || n < session.MinVotesPerUser {
		return deny(ReasonTooFewVotes)
	}
	if n > session.MaxVotesAllowed {
		return deny(ReasonTooManyVotes)
	}
	seen := make(map[int64]struct{}, n)
	for _, id := range companyIDs {
		if _, dup := seen[id]; dup {
			return deny(ReasonDuplicateCompany)
		}
		seen[id] = struct{}{}
		if !index.HasCompany(id) {
			return deny(ReasonUnknownCompany)
		}
	}
	return allow()
}

// LossPercentage is (amount - currentValue) / amount * 100. A gain yields a negative value.
func LossPercentage(inv models.Investment) decimal.Decimal {
	if !inv.Amount.IsPositive() {
		return decimal.Zero
	}
	return inv.Amount.Sub(inv.CurrentValue).Div(inv.Amount).Mul(hundred)
}

func closing(inv models.Investment) (Decision, bool) {
	if inv.InsuranceClaimed {
		return deny(ReasonAlreadyClaimed), false
	}
	if !inv.IsOpen() {
		return deny(ReasonInvestmentClosed), false
	}
	return Decision{}, true
}

func lossGated(index models.Index, inv models.Investment, threshold decimal.Decimal) Decision {
	if d, ok := closing(inv); !ok {
		return d
	}
	if index.Status != lifecycle.StatusExecuted {
		return deny(ReasonNotActive)
	}
	if LossPercentage(inv).LessThan(threshold) {
		return deny(ReasonInsufficientLoss)
	}
	return allow()
}

// InsuranceClaim reports whether the 40% loss insurance payout may be claimed
func InsuranceClaim(index models.Index, inv models.Investment) Decision {
	return lossGated(index, inv, ClaimLossThreshold)
}

// EmergencyWithdrawal reports whether the position may be exited at its current value
func EmergencyWithdrawal(index models.Index, inv models.Investment) Decision {
	return lossGated(index, inv, WithdrawalLossThreshold)
}

// TakeInsurance reports whether insurance may be taken, refunding the original amount
func TakeInsurance(inv models.Investment) Decision {
	if d, ok := closing(inv); !ok {
		return d
	}
	return allow()
}

// Withdrawal reports whether a completed position may be cashed out at its current value
func Withdrawal(inv models.Investment) Decision {
	if d, ok := closing(inv); !ok {
		return d
	}
	if inv.Status != models.InvestmentExecuted {
		return deny(ReasonNotActive)
	}
	return allow()
}

// Summary is every closing action evaluated for one investment
type Summary struct {
	InvestmentID        int64           `json:"investment_id"`
	LossPercentage      decimal.Decimal `json:"loss_percentage"`
	InsuranceClaim      Decision        `json:"insurance_claim"`
	EmergencyWithdrawal Decision        `json:"emergency_withdrawal"`
	TakeInsurance       Decision        `json:"take_insurance"`
	Withdrawal          Decision        `json:"withdrawal"`
}

// Summarize evaluates the closing actions of one investment
func Summarize(index models.Index, inv models.Investment) Summary {
	return Summary{
		InvestmentID:        inv.ID,
		LossPercentage:      LossPercentage(inv),
		InsuranceClaim:      InsuranceClaim(index, inv),
		EmergencyWithdrawal: EmergencyWithdrawal(index, inv),
		TakeInsurance:       TakeInsurance(inv),
		Withdrawal:          Withdrawal(inv),
	}
}
