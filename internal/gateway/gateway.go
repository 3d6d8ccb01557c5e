// Package gateway is the boundary to the Comdex backend REST API.
//
// Every call takes the caller's *Session explicitly. Calls are never retried, with one exception:
// a 401 triggers a single token refresh and a single replay of the same request.
package gateway

import (
	"context"

	"github.com/comdex/comdexapi/internal/lifecycle"
	"github.com/comdex/comdexapi/internal/models"
	"github.com/shopspring/decimal"
)

// Gateway is the set of backend operations the service layer consumes
type Gateway interface {
	Login(ctx context.Context, username, password string) (models.AuthTokens, error)
	Signup(ctx context.Context, req models.SignupRequest) (models.AuthTokens, error)

	// ListIndexes returns every index, or only those in status when it is not empty
	ListIndexes(ctx context.Context, s *Session, status lifecycle.Status) ([]models.Index, error)
	FetchIndex(ctx context.Context, s *Session, indexID int64) (models.Index, error)
	FetchIndexStats(ctx context.Context, s *Session) (models.IndexStats, error)
	FetchCompanyStats(ctx context.Context, s *Session, indexID int64) (models.CompanyStats, error)
	FetchVoteWeights(ctx context.Context, s *Session, indexID int64) ([]models.VoteWeight, error)
	TransitionIndex(ctx context.Context, s *Session, indexID int64, action lifecycle.Action) (models.Index, error)

	// FetchVotingSession returns nil without error when the index has no active session
	FetchVotingSession(ctx context.Context, s *Session, indexID int64) (*models.VotingSession, error)
	FetchUserVotes(ctx context.Context, s *Session, sessionID int64) ([]models.Vote, error)
	SubmitVotes(ctx context.Context, s *Session, indexID int64, companyIDs []int64, investmentID int64) (models.VoteReceipt, error)
	FetchVotingResults(ctx context.Context, s *Session, sessionID int64) (models.VotingResults, error)

	ListInvestments(ctx context.Context, s *Session) ([]models.Investment, error)
	CreateInvestment(ctx context.Context, s *Session, indexID int64, amount decimal.Decimal) (models.Investment, error)
	ClaimInsurance(ctx context.Context, s *Session, investmentID int64) (models.Settlement, error)
	EmergencyWithdraw(ctx context.Context, s *Session, investmentID int64) (models.Settlement, error)
	TakeInsurance(ctx context.Context, s *Session, investmentID int64) (models.Settlement, error)
	Withdraw(ctx context.Context, s *Session, investmentID int64) (models.Settlement, error)

	FetchProfile(ctx context.Context, s *Session) (models.Profile, error)
	FetchCredits(ctx context.Context, s *Session) (models.CreditBalance, error)
	AddCredits(ctx context.Context, s *Session, amount decimal.Decimal) (models.CreditBalance, error)
	RemoveCredits(ctx context.Context, s *Session, amount decimal.Decimal) (models.CreditBalance, error)
}

var _ Gateway = (*Client)(nil)
