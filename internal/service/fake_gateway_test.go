package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/comdex/comdexapi/internal/gateway"
	"github.com/comdex/comdexapi/internal/lifecycle"
	"github.com/comdex/comdexapi/internal/models"
	"github.com/comdex/comdexapi/internal/repository"
	"github.com/shopspring/decimal"
)

// fakeGateway is an in-memory backend. Settlements follow the backend rules:
// insurance credits the original amount, withdrawals credit the current value.
type fakeGateway struct {
	mu          sync.Mutex
	indexes     map[int64]models.Index
	investments []models.Investment
	sessions    map[int64]*models.VotingSession // by index id
	votes       map[int64][]models.Vote         // by session id
	weights     map[int64][]models.VoteWeight
	results     map[int64]models.VotingResults
	credits     decimal.Decimal
	profile     models.Profile
	tokens      models.AuthTokens

	errs   map[string]error
	nth    map[nthCall]error
	calls  map[string]int
	nextID int64
}

type nthCall struct {
	name string
	n    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		indexes:  map[int64]models.Index{},
		sessions: map[int64]*models.VotingSession{},
		votes:    map[int64][]models.Vote{},
		weights:  map[int64][]models.VoteWeight{},
		results:  map[int64]models.VotingResults{},
		errs:     map[string]error{},
		nth:      map[nthCall]error{},
		calls:    map[string]int{},
		profile:  models.Profile{ID: 7, Username: "alice"},
		tokens:   models.AuthTokens{Access: "access-1", Refresh: "refresh-1"},
		nextID:   100,
	}
}

func (f *fakeGateway) hit(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if err, ok := f.nth[nthCall{name, f.calls[name]}]; ok {
		return err
	}
	return f.errs[name]
}

func (f *fakeGateway) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeGateway) fail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[name] = err
}

// failNth fails only the n-th call of name, counting from 1
func (f *fakeGateway) failNth(name string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nth[nthCall{name, n}] = err
}

func (f *fakeGateway) Login(ctx context.Context, username, password string) (models.AuthTokens, error) {
	if err := f.hit("Login"); err != nil {
		return models.AuthTokens{}, err
	}
	return f.tokens, nil
}

func (f *fakeGateway) Signup(ctx context.Context, req models.SignupRequest) (models.AuthTokens, error) {
	if err := f.hit("Signup"); err != nil {
		return models.AuthTokens{}, err
	}
	return models.AuthTokens{}, nil
}

func (f *fakeGateway) ListIndexes(ctx context.Context, s *gateway.Session, status lifecycle.Status) ([]models.Index, error) {
	if err := f.hit("ListIndexes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Index{}
	for _, idx := range f.indexes {
		if status == "" || idx.Status == status {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeGateway) FetchIndex(ctx context.Context, s *gateway.Session, indexID int64) (models.Index, error) {
	if err := f.hit("FetchIndex"); err != nil {
		return models.Index{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.indexes[indexID]
	if !ok {
		return models.Index{}, &gateway.Error{Kind: gateway.KindNotFound, StatusCode: 404}
	}
	return idx, nil
}

func (f *fakeGateway) FetchIndexStats(ctx context.Context, s *gateway.Session) (models.IndexStats, error) {
	if err := f.hit("FetchIndexStats"); err != nil {
		return models.IndexStats{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.IndexStats{TotalIndexes: len(f.indexes)}, nil
}

func (f *fakeGateway) FetchCompanyStats(ctx context.Context, s *gateway.Session, indexID int64) (models.CompanyStats, error) {
	if err := f.hit("FetchCompanyStats"); err != nil {
		return models.CompanyStats{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.CompanyStats{TotalCompanies: len(f.indexes[indexID].Companies)}, nil
}

func (f *fakeGateway) FetchVoteWeights(ctx context.Context, s *gateway.Session, indexID int64) ([]models.VoteWeight, error) {
	if err := f.hit("FetchVoteWeights"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.weights[indexID], nil
}

func (f *fakeGateway) TransitionIndex(ctx context.Context, s *gateway.Session, indexID int64, action lifecycle.Action) (models.Index, error) {
	if err := f.hit("TransitionIndex"); err != nil {
		return models.Index{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.indexes[indexID]
	idx.Status = action.Target()
	f.indexes[indexID] = idx
	return idx, nil
}

func (f *fakeGateway) FetchVotingSession(ctx context.Context, s *gateway.Session, indexID int64) (*models.VotingSession, error) {
	if err := f.hit("FetchVotingSession"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	vs, ok := f.sessions[indexID]
	if !ok {
		return nil, nil
	}
	cp := *vs
	return &cp, nil
}

func (f *fakeGateway) FetchUserVotes(ctx context.Context, s *gateway.Session, sessionID int64) ([]models.Vote, error) {
	if err := f.hit("FetchUserVotes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Vote(nil), f.votes[sessionID]...), nil
}

func (f *fakeGateway) SubmitVotes(ctx context.Context, s *gateway.Session, indexID int64, companyIDs []int64, investmentID int64) (models.VoteReceipt, error) {
	if err := f.hit("SubmitVotes"); err != nil {
		return models.VoteReceipt{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	vs := f.sessions[indexID]
	for _, id := range companyIDs {
		f.nextID++
		f.votes[vs.ID] = append(f.votes[vs.ID], models.Vote{ID: f.nextID, UserID: f.profile.ID, SessionID: vs.ID, CompanyID: id, CreatedAt: time.Now()})
	}
	return models.VoteReceipt{Message: "Votes submitted", CompanyIDs: companyIDs}, nil
}

func (f *fakeGateway) FetchVotingResults(ctx context.Context, s *gateway.Session, sessionID int64) (models.VotingResults, error) {
	if err := f.hit("FetchVotingResults"); err != nil {
		return models.VotingResults{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[sessionID], nil
}

func (f *fakeGateway) ListInvestments(ctx context.Context, s *gateway.Session) ([]models.Investment, error) {
	if err := f.hit("ListInvestments"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Investment(nil), f.investments...), nil
}

func (f *fakeGateway) CreateInvestment(ctx context.Context, s *gateway.Session, indexID int64, amount decimal.Decimal) (models.Investment, error) {
	if err := f.hit("CreateInvestment"); err != nil {
		return models.Investment{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if amount.GreaterThan(f.credits) {
		return models.Investment{}, &gateway.Error{Kind: gateway.KindInsufficientCredits, StatusCode: 400, Message: "Insufficient credits"}
	}
	f.nextID++
	inv := models.Investment{ID: f.nextID, IndexID: indexID, UserID: f.profile.ID, Amount: amount, CurrentValue: amount, Status: models.InvestmentActive}
	f.investments = append(f.investments, inv)
	f.credits = f.credits.Sub(amount)
	return inv, nil
}

func (f *fakeGateway) settle(name string, investmentID int64, insurance bool) (models.Settlement, error) {
	if err := f.hit(name); err != nil {
		return models.Settlement{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, inv := range f.investments {
		if inv.ID != investmentID {
			continue
		}
		if !inv.IsOpen() {
			return models.Settlement{}, &gateway.Error{Kind: gateway.KindIneligible, StatusCode: 403, Message: "Investment closed"}
		}
		credited := inv.CurrentValue
		if insurance {
			credited = inv.Amount
			f.investments[i].InsuranceClaimed = true
		}
		f.investments[i].Status = models.InvestmentWithdrawn
		f.credits = f.credits.Add(credited)
		bal := f.credits
		return models.Settlement{AmountCredited: credited, NewCreditBalance: &bal}, nil
	}
	return models.Settlement{}, &gateway.Error{Kind: gateway.KindNotFound, StatusCode: 404}
}

func (f *fakeGateway) ClaimInsurance(ctx context.Context, s *gateway.Session, investmentID int64) (models.Settlement, error) {
	return f.settle("ClaimInsurance", investmentID, true)
}

func (f *fakeGateway) EmergencyWithdraw(ctx context.Context, s *gateway.Session, investmentID int64) (models.Settlement, error) {
	return f.settle("EmergencyWithdraw", investmentID, false)
}

func (f *fakeGateway) TakeInsurance(ctx context.Context, s *gateway.Session, investmentID int64) (models.Settlement, error) {
	return f.settle("TakeInsurance", investmentID, true)
}

func (f *fakeGateway) Withdraw(ctx context.Context, s *gateway.Session, investmentID int64) (models.Settlement, error) {
	return f.settle("Withdraw", investmentID, false)
}

func (f *fakeGateway) FetchProfile(ctx context.Context, s *gateway.Session) (models.Profile, error) {
	if err := f.hit("FetchProfile"); err != nil {
		return models.Profile{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile, nil
}

func (f *fakeGateway) FetchCredits(ctx context.Context, s *gateway.Session) (models.CreditBalance, error) {
	if err := f.hit("FetchCredits"); err != nil {
		return models.CreditBalance{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.CreditBalance{Credits: f.credits}, nil
}

func (f *fakeGateway) AddCredits(ctx context.Context, s *gateway.Session, amount decimal.Decimal) (models.CreditBalance, error) {
	if err := f.hit("AddCredits"); err != nil {
		return models.CreditBalance{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits = f.credits.Add(amount)
	return models.CreditBalance{Credits: f.credits}, nil
}

func (f *fakeGateway) RemoveCredits(ctx context.Context, s *gateway.Session, amount decimal.Decimal) (models.CreditBalance, error) {
	if err := f.hit("RemoveCredits"); err != nil {
		return models.CreditBalance{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits = f.credits.Sub(amount)
	return models.CreditBalance{Credits: f.credits}, nil
}

var _ gateway.Gateway = (*fakeGateway)(nil)

// testUser is a signed-in user with a live backend session
func testUser() *UserSession {
	return &UserSession{Token: "tok", UserID: 7, Username: "alice", Backend: gateway.NewSession("access-1", "refresh-1")}
}

// fakeSessionStore is an in-memory SessionStore
type fakeSessionStore struct {
	mu   sync.Mutex
	rows map[string]models.SessionModel
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{rows: map[string]models.SessionModel{}}
}

func (s *fakeSessionStore) UpsertSession(ctx context.Context, row *models.SessionModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	s.rows[row.SessionToken] = cp
	return nil
}

func (s *fakeSessionStore) UpdateTokens(ctx context.Context, token, access, refresh string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[token]
	if !ok {
		return nil
	}
	row.AccessToken, row.RefreshToken, row.AccessExpiresAt = access, refresh, exp
	s.rows[token] = row
	return nil
}

func (s *fakeSessionStore) GetSessionByToken(ctx context.Context, token string) (*models.SessionModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[token]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return &row, nil
}

func (s *fakeSessionStore) GetLatestSessionByUsername(ctx context.Context, username string) (*models.SessionModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.SessionModel
	for _, row := range s.rows {
		if row.Username != username {
			continue
		}
		r := row
		if best == nil || r.UpdatedAt.After(best.UpdatedAt) {
			best = &r
		}
	}
	if best == nil {
		return nil, repository.ErrSessionNotFound
	}
	return best, nil
}

func (s *fakeSessionStore) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, token)
	return nil
}

func (s *fakeSessionStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, row := range s.rows {
		if row.UpdatedAt.Before(cutoff) {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}

func (s *fakeSessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
