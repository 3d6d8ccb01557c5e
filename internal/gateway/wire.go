package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/comdex/comdexapi/internal/lifecycle"
	"github.com/comdex/comdexapi/internal/models"
	"github.com/shopspring/decimal"
)

// ref is a DRF relation that arrives either as a primary key or as a nested object with an id
type ref int64

func (r *ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = 0
		return nil
	}
	switch b[0] {
	case '{':
		var obj struct {
			ID ref `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*r = obj.ID
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", s, err)
		}
		*r = ref(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*r = ref(n)
	return nil
}

// decodeList accepts a bare JSON array or a DRF page {"results": [...]}
func decodeList[T any](body []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	var out []T
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

func first(values ...decimal.NullDecimal) decimal.Decimal {
	for _, v := range values {
		if v.Valid {
			return v.Decimal
		}
	}
	return decimal.Zero
}

type companyWire struct {
	ID           ref                 `json:"id"`
	Name         string              `json:"name"`
	Symbol       string              `json:"symbol"`
	Ticker       string              `json:"ticker"`
	Sector       string              `json:"sector"`
	Price        decimal.NullDecimal `json:"price"`
	CurrentPrice decimal.NullDecimal `json:"current_price"`
	PriceChange  decimal.NullDecimal `json:"price_change"`
	MarketCap    decimal.NullDecimal `json:"market_cap"`
}

func (w companyWire) model() models.Company {
	ticker := w.Ticker
	if ticker == "" {
		ticker = w.Symbol
	}
	return models.Company{
		ID:          int64(w.ID),
		Name:        w.Name,
		Ticker:      ticker,
		Sector:      w.Sector,
		Price:       first(w.Price, w.CurrentPrice),
		PriceChange: first(w.PriceChange),
		MarketCap:   first(w.MarketCap),
	}
}

type indexWire struct {
	ID              ref                 `json:"id"`
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	Status          string              `json:"status"`
	TotalInvestment decimal.NullDecimal `json:"total_investment"`
	Companies       []companyWire       `json:"companies"`
	MinVotesPerUser int                 `json:"min_votes_per_user"`
	MaxVotesPerUser int                 `json:"max_votes_per_user"`
	CreatedAt       time.Time           `json:"created_at"`
}

func (w indexWire) model() (models.Index, error) {
	status, err := lifecycle.ParseStatus(w.Status)
	if err != nil {
		return models.Index{}, &Error{Kind: KindServer, Message: fmt.Sprintf("index %d has unreadable status %q", w.ID, w.Status), Err: err}
	}
	companies := make([]models.Company, 0, len(w.Companies))
	for _, c := range w.Companies {
		companies = append(companies, c.model())
	}
	return models.Index{
		ID:              int64(w.ID),
		Name:            w.Name,
		Description:     w.Description,
		Status:          status,
		TotalInvestment: first(w.TotalInvestment),
		Companies:       companies,
		MinVotesPerUser: w.MinVotesPerUser,
		MaxVotesPerUser: w.MaxVotesPerUser,
		CreatedAt:       w.CreatedAt,
	}, nil
}

type indexStatsWire struct {
	TotalIndexes             int     `json:"total_indexes"`
	ActiveIndexes            int     `json:"active_indexes"`
	AverageCompaniesPerIndex float64 `json:"average_companies_per_index"`
}

type companyStatsWire struct {
	TotalCompanies int                 `json:"total_companies"`
	TotalMarketCap decimal.NullDecimal `json:"total_market_cap"`
	AveragePrice   decimal.NullDecimal `json:"average_price"`
}

type voteWeightWire struct {
	Company     json.RawMessage     `json:"company"`
	CompanyID   ref                 `json:"company_id"`
	CompanyName string              `json:"company_name"`
	VoteCount   int                 `json:"vote_count"`
	TotalWeight decimal.NullDecimal `json:"total_weight"`
}

// companyOf resolves the company field, which may be an id or a nested company
func companyOf(raw json.RawMessage, id ref, name string) (int64, string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var c companyWire
		if err := json.Unmarshal(raw, &c); err == nil {
			return int64(c.ID), c.Name
		}
	}
	if len(raw) > 0 {
		var r ref
		if err := json.Unmarshal(raw, &r); err == nil && r != 0 {
			return int64(r), name
		}
	}
	return int64(id), name
}

func (w voteWeightWire) model() models.VoteWeight {
	id, name := companyOf(w.Company, w.CompanyID, w.CompanyName)
	return models.VoteWeight{
		CompanyID:   id,
		CompanyName: name,
		VoteCount:   w.VoteCount,
		TotalWeight: first(w.TotalWeight),
	}
}

type votingSessionWire struct {
	ID              ref       `json:"id"`
	Index           ref       `json:"index"`
	IsActive        *bool     `json:"is_active"`
	Status          string    `json:"status"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	MaxVotesAllowed int       `json:"max_votes_allowed"`
	MinVotesPerUser int       `json:"min_votes_per_user"`
}

func (w votingSessionWire) model(indexID int64) models.VotingSession {
	active := w.Status == "active"
	if w.IsActive != nil {
		active = *w.IsActive
	}
	if w.Index != 0 {
		indexID = int64(w.Index)
	}
	return models.VotingSession{
		ID:              int64(w.ID),
		IndexID:         indexID,
		IsActive:        active,
		StartDate:       w.StartDate,
		EndDate:         w.EndDate,
		MaxVotesAllowed: w.MaxVotesAllowed,
		MinVotesPerUser: w.MinVotesPerUser,
	}
}

type userVotesWire struct {
	SessionID      ref   `json:"session_id"`
	VotesCast      int   `json:"votes_cast"`
	VotesRemaining int   `json:"votes_remaining"`
	CompaniesVoted []ref `json:"companies_voted"`
}

type votingResultWire struct {
	Company     json.RawMessage     `json:"company"`
	CompanyID   ref                 `json:"company_id"`
	CompanyName string              `json:"company_name"`
	VoteCount   int                 `json:"vote_count"`
	TotalWeight decimal.NullDecimal `json:"total_weight"`
	Rank        int                 `json:"rank"`
}

type votingResultsWire struct {
	Status         string             `json:"status"`
	Results        []votingResultWire `json:"results"`
	InterimResults []votingResultWire `json:"interim_results"`
}

func (w votingResultsWire) model(sessionID int64) models.VotingResults {
	rows := w.Results
	final := w.Status == "completed"
	if len(rows) == 0 && len(w.InterimResults) > 0 {
		rows = w.InterimResults
		final = false
	}
	out := models.VotingResults{SessionID: sessionID, Final: final, Results: make([]models.VotingResult, 0, len(rows))}
	for i, r := range rows {
		id, name := companyOf(r.Company, r.CompanyID, r.CompanyName)
		rank := r.Rank
		if rank == 0 {
			rank = i + 1
		}
		out.Results = append(out.Results, models.VotingResult{
			CompanyID:   id,
			CompanyName: name,
			VoteCount:   r.VoteCount,
			TotalWeight: first(r.TotalWeight),
			Rank:        rank,
		})
	}
	return out
}

type submitVotesWire struct {
	IndexID      int64   `json:"index_id"`
	CompanyIDs   []int64 `json:"company_ids"`
	InvestmentID int64   `json:"investment_id"`
}

type voteReceiptWire struct {
	Message    string `json:"message"`
	Detail     string `json:"detail"`
	CompanyIDs []ref  `json:"company_ids"`
}

type investmentWire struct {
	ID               ref                 `json:"id"`
	Index            ref                 `json:"index"`
	IndexID          ref                 `json:"index_id"`
	IndexName        string              `json:"index_name"`
	User             ref                 `json:"user"`
	Amount           decimal.NullDecimal `json:"amount"`
	CurrentValue     decimal.NullDecimal `json:"current_value"`
	InvestmentDate   time.Time           `json:"investment_date"`
	Status           string              `json:"status"`
	InsuranceClaimed bool                `json:"insurance_claimed"`
	HasVoted         bool                `json:"has_voted"`
}

func (w investmentWire) model() models.Investment {
	indexID := w.Index
	if indexID == 0 {
		indexID = w.IndexID
	}
	amount := first(w.Amount)
	return models.Investment{
		ID:               int64(w.ID),
		IndexID:          int64(indexID),
		IndexName:        w.IndexName,
		UserID:           int64(w.User),
		Amount:           amount,
		CurrentValue:     first(w.CurrentValue, w.Amount),
		InvestmentDate:   w.InvestmentDate,
		Status:           models.ParseInvestmentStatus(w.Status),
		InsuranceClaimed: w.InsuranceClaimed,
		HasVoted:         w.HasVoted,
	}
}

type createInvestmentWire struct {
	Index  int64           `json:"index"`
	Amount decimal.Decimal `json:"amount"`
}

// settlementWire covers the payloads of claim, take, emergency withdrawal and plain withdrawal
type settlementWire struct {
	Amount           decimal.NullDecimal `json:"amount"`
	AmountCredited   decimal.NullDecimal `json:"amount_credited"`
	WithdrawnAmount  decimal.NullDecimal `json:"withdrawn_amount"`
	CreditsReturned  decimal.NullDecimal `json:"credits_returned"`
	NewCreditBalance decimal.NullDecimal `json:"new_credit_balance"`
	Message          string              `json:"message"`
	Status           string              `json:"status"`
}

func (w settlementWire) model(investmentID int64, kind models.SettlementKind) models.Settlement {
	st := models.Settlement{
		InvestmentID:   investmentID,
		Kind:           kind,
		AmountCredited: first(w.AmountCredited, w.Amount, w.WithdrawnAmount, w.CreditsReturned),
		Message:        w.Message,
	}
	if st.Message == "" {
		st.Message = w.Status
	}
	if w.NewCreditBalance.Valid {
		bal := w.NewCreditBalance.Decimal
		st.NewCreditBalance = &bal
	}
	return st
}

type loginWire struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshWire struct {
	Refresh string `json:"refresh"`
}

type tokensWire struct {
	Access  string       `json:"access"`
	Token   string       `json:"token"`
	Refresh string       `json:"refresh"`
	User    *profileWire `json:"user"`
}

func (w tokensWire) model() models.AuthTokens {
	access := w.Access
	if access == "" {
		access = w.Token
	}
	out := models.AuthTokens{Access: access, Refresh: w.Refresh}
	if w.User != nil {
		p := w.User.model()
		out.User = &p
	}
	return out
}

type profileWire struct {
	ID        ref                 `json:"id"`
	Username  string              `json:"username"`
	Email     string              `json:"email"`
	FirstName string              `json:"first_name"`
	LastName  string              `json:"last_name"`
	Credits   decimal.NullDecimal `json:"credits"`
}

func (w profileWire) model() models.Profile {
	return models.Profile{
		ID:        int64(w.ID),
		Username:  w.Username,
		Email:     w.Email,
		FirstName: w.FirstName,
		LastName:  w.LastName,
		Credits:   first(w.Credits),
	}
}

type creditsWire struct {
	Credits          decimal.NullDecimal `json:"credits"`
	NewBalance       decimal.NullDecimal `json:"new_balance"`
	NewCreditBalance decimal.NullDecimal `json:"new_credit_balance"`
}

func (w creditsWire) model() models.CreditBalance {
	return models.CreditBalance{Credits: first(w.Credits, w.NewBalance, w.NewCreditBalance)}
}

type amountWire struct {
	Amount decimal.Decimal `json:"amount"`
}
