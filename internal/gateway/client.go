package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/comdex/comdexapi/internal/lifecycle"
	"github.com/comdex/comdexapi/internal/models"
	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseURL = "http://localhost:8000/"
	refreshPath    = "accounts/token/refresh/"
	maxBodyBytes   = 4 << 20
)

// Client implements Gateway over the backend REST API
type Client struct {
	BaseURL string
	HTTP    *http.Client

	// refreshes collapses concurrent refreshes of the same rejected access token
	refreshes singleflight.Group
}

// NewClient returns a client for the backend at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type call struct {
	method string
	path   string
	query  url.Values
	body   any
	class  endpointClass
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (c *Client) endpoint(path string, query url.Values) string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	u := base + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// send performs one HTTP exchange and returns the status and body
func (c *Client) send(ctx context.Context, token string, in call, payload []byte) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, in.method, c.endpoint(in.path, in.query), body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		zaplogger.Warn("backend request failed", zaplogger.Fields{
			"method":     in.method,
			"path":       in.path,
			"request_id": reqID,
			"error":      err.Error(),
		})
		return 0, nil, networkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, networkError(err)
	}
	zaplogger.Debug("backend request", zaplogger.Fields{
		"method":     in.method,
		"path":       in.path,
		"status":     resp.StatusCode,
		"request_id": reqID,
		"latency":    time.Since(start).String(),
	})
	return resp.StatusCode, b, nil
}

// do runs a call on behalf of s, refreshing once on 401, and decodes the 2xx body into out
func (c *Client) do(ctx context.Context, s *Session, in call, out any) ([]byte, error) {
	var payload []byte
	if in.body != nil {
		var err error
		if payload, err = json.Marshal(in.body); err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", in.method, in.path, err)
		}
	}

	token := ""
	if s != nil {
		if !s.Active() {
			return nil, &Error{Kind: KindAuthentication, Message: "Not signed in."}
		}
		token = s.AccessToken()
	}

	status, body, err := c.send(ctx, token, in, payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized && s != nil {
		if rerr := c.refreshOnce(ctx, s, token); rerr != nil {
			if KindOf(rerr) == KindAuthentication {
				s.Teardown()
			}
			return nil, rerr
		}
		status, body, err = c.send(ctx, s.AccessToken(), in, payload)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			s.Teardown()
		}
	}
	if status < 200 || status >= 300 {
		return nil, classify(status, body, in.class)
	}
	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, &Error{Kind: KindServer, StatusCode: status, Message: "Unexpected response from the server.", Err: err}
		}
	}
	return body, nil
}

// refreshOnce refreshes s after the backend rejected stale. Callers rejected with the same
// token share one refresh; a caller whose token was already replaced skips it.
func (c *Client) refreshOnce(ctx context.Context, s *Session, stale string) error {
	_, err, _ := c.refreshes.Do(stale, func() (any, error) {
		if current := s.AccessToken(); current != "" && current != stale {
			return nil, nil
		}
		return nil, c.refresh(ctx, s)
	})
	return err
}

func (c *Client) refresh(ctx context.Context, s *Session) error {
	rt := s.RefreshToken()
	if rt == "" {
		return &Error{Kind: KindAuthentication, StatusCode: http.StatusUnauthorized, Message: "Session expired. Please sign in again."}
	}
	payload, err := json.Marshal(refreshWire{Refresh: rt})
	if err != nil {
		return err
	}
	status, body, err := c.send(ctx, "", call{method: http.MethodPost, path: refreshPath}, payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		e := classify(status, body, classForm)
		e.Kind = KindAuthentication
		if e.Message == "" {
			e.Message = "Session expired. Please sign in again."
		}
		return e
	}
	var tw tokensWire
	if err := json.Unmarshal(body, &tw); err != nil || tw.model().Access == "" {
		return &Error{Kind: KindAuthentication, StatusCode: status, Message: "Session expired. Please sign in again.", Err: err}
	}
	t := tw.model()
	if err := s.rotate(ctx, t.Access, t.Refresh); err != nil {
		zaplogger.Error("failed to persist refreshed tokens", zaplogger.Fields{"error": err.Error()})
	}
	return nil
}

func idPath(format string, id int64) string {
	return fmt.Sprintf(format, strconv.FormatInt(id, 10))
}

func (c *Client) Login(ctx context.Context, username, password string) (models.AuthTokens, error) {
	var tw tokensWire
	_, err := c.do(ctx, nil, call{method: http.MethodPost, path: "accounts/login/", body: loginWire{Username: username, Password: password}, class: classForm}, &tw)
	if err != nil {
		return models.AuthTokens{}, err
	}
	tokens := tw.model()
	if tokens.Access == "" {
		return models.AuthTokens{}, &Error{Kind: KindAuthentication, Message: "Invalid response from server"}
	}
	return tokens, nil
}

func (c *Client) Signup(ctx context.Context, req models.SignupRequest) (models.AuthTokens, error) {
	var tw tokensWire
	_, err := c.do(ctx, nil, call{method: http.MethodPost, path: "accounts/signup/", body: req, class: classForm}, &tw)
	if err != nil {
		return models.AuthTokens{}, err
	}
	return tw.model(), nil
}

func (c *Client) ListIndexes(ctx context.Context, s *Session, status lifecycle.Status) ([]models.Index, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status.String())
	}
	body, err := c.do(ctx, s, call{method: http.MethodGet, path: "indexes/", query: q}, nil)
	if err != nil {
		return nil, err
	}
	wires, err := decodeList[indexWire](body)
	if err != nil {
		return nil, &Error{Kind: KindServer, Message: "Unexpected response from the server.", Err: err}
	}
	out := make([]models.Index, 0, len(wires))
	for _, w := range wires {
		idx, err := w.model()
		if err != nil {
			return nil, err
		}
		if status != "" && idx.Status != status {
			continue
		}
		out = append(out, idx)
	}
	return out, nil
}

func (c *Client) FetchIndex(ctx context.Context, s *Session, indexID int64) (models.Index, error) {
	var w indexWire
	if _, err := c.do(ctx, s, call{method: http.MethodGet, path: idPath("indexes/%s/", indexID)}, &w); err != nil {
		return models.Index{}, err
	}
	return w.model()
}

func (c *Client) FetchIndexStats(ctx context.Context, s *Session) (models.IndexStats, error) {
	var w indexStatsWire
	if _, err := c.do(ctx, s, call{method: http.MethodGet, path: "indexes/stats/"}, &w); err != nil {
		return models.IndexStats{}, err
	}
	return models.IndexStats(w), nil
}

func (c *Client) FetchCompanyStats(ctx context.Context, s *Session, indexID int64) (models.CompanyStats, error) {
	var w companyStatsWire
	if _, err := c.do(ctx, s, call{method: http.MethodGet, path: idPath("indexes/%s/companies_stats/", indexID)}, &w); err != nil {
		return models.CompanyStats{}, err
	}
	return models.CompanyStats{
		TotalCompanies: w.TotalCompanies,
		TotalMarketCap: first(w.TotalMarketCap),
		AveragePrice:   first(w.AveragePrice),
	}, nil
}

func (c *Client) FetchVoteWeights(ctx context.Context, s *Session, indexID int64) ([]models.VoteWeight, error) {
	body, err := c.do(ctx, s, call{method: http.MethodGet, path: idPath("indexes/%s/company_vote_weights/", indexID)}, nil)
	if err != nil {
		return nil, err
	}
	wires, err := decodeList[voteWeightWire](body)
	if err != nil {
		return nil, &Error{Kind: KindServer, Message: "Unexpected response from the server.", Err: err}
	}
	out := make([]models.VoteWeight, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.model())
	}
	return out, nil
}

func (c *Client) TransitionIndex(ctx context.Context, s *Session, indexID int64, action lifecycle.Action) (models.Index, error) {
	var w indexWire
	path := fmt.Sprintf("indexes/%d/%s/", indexID, action)
	if _, err := c.do(ctx, s, call{method: http.MethodPost, path: path, class: classAction}, &w); err != nil {
		return models.Index{}, err
	}
	// some actions answer with a status message only
	if w.ID == 0 {
		return c.FetchIndex(ctx, s, indexID)
	}
	return w.model()
}

func (c *Client) FetchVotingSession(ctx context.Context, s *Session, indexID int64) (*models.VotingSession, error) {
	q := url.Values{}
	q.Set("index", strconv.FormatInt(indexID, 10))
	q.Set("is_active", "true")
	body, err := c.do(ctx, s, call{method: http.MethodGet, path: "voting/sessions/", query: q}, nil)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	wires, err := decodeList[votingSessionWire](body)
	if err != nil {
		return nil, &Error{Kind: KindServer, Message: "Unexpected response from the server.", Err: err}
	}
	for _, w := range wires {
		vs := w.model(indexID)
		if vs.IndexID == indexID && vs.IsActive {
			return &vs, nil
		}
	}
	return nil, nil
}

func (c *Client) FetchUserVotes(ctx context.Context, s *Session, sessionID int64) ([]models.Vote, error) {
	var w userVotesWire
	if _, err := c.do(ctx, s, call{method: http.MethodGet, path: idPath("voting/sessions/%s/user_votes/", sessionID)}, &w); err != nil {
		return nil, err
	}
	out := make([]models.Vote, 0, len(w.CompaniesVoted))
	for _, id := range w.CompaniesVoted {
		out = append(out, models.Vote{SessionID: sessionID, CompanyID: int64(id)})
	}
	return out, nil
}

func (c *Client) SubmitVotes(ctx context.Context, s *Session, indexID int64, companyIDs []int64, investmentID int64) (models.VoteReceipt, error) {
	var w voteReceiptWire
	in := call{
		method: http.MethodPost,
		path:   "voting/votes/submit_votes/",
		body:   submitVotesWire{IndexID: indexID, CompanyIDs: companyIDs, InvestmentID: investmentID},
		class:  classForm,
	}
	if _, err := c.do(ctx, s, in, &w); err != nil {
		return models.VoteReceipt{}, err
	}
	receipt := models.VoteReceipt{Message: w.Message, CompanyIDs: companyIDs}
	if receipt.Message == "" {
		receipt.Message = w.Detail
	}
	if len(w.CompanyIDs) > 0 {
		receipt.CompanyIDs = make([]int64, 0, len(w.CompanyIDs))
		for _, id := range w.CompanyIDs {
			receipt.CompanyIDs = append(receipt.CompanyIDs, int64(id))
		}
	}
	return receipt, nil
}

func (c *Client) FetchVotingResults(ctx context.Context, s *Session, sessionID int64) (models.VotingResults, error) {
	var w votingResultsWire
	if _, err := c.do(ctx, s, call{method: http.MethodGet, path: idPath("voting/sessions/%s/results/", sessionID), class: classAction}, &w); err != nil {
		return models.VotingResults{}, err
	}
	return w.model(sessionID), nil
}

func (c *Client) ListInvestments(ctx context.Context, s *Session) ([]models.Investment, error) {
	body, err := c.do(ctx, s, call{method: http.MethodGet, path: "investments/"}, nil)
	if err != nil {
		return nil, err
	}
	wires, err := decodeList[investmentWire](body)
	if err != nil {
		return nil, &Error{Kind: KindServer, Message: "Unexpected response from the server.", Err: err}
	}
	out := make([]models.Investment, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.model())
	}
	return out, nil
}

func (c *Client) CreateInvestment(ctx context.Context, s *Session, indexID int64, amount decimal.Decimal) (models.Investment, error) {
	var w investmentWire
	in := call{
		method: http.MethodPost,
		path:   "investments/",
		body:   createInvestmentWire{Index: indexID, Amount: amount},
		class:  classInvest,
	}
	if _, err := c.do(ctx, s, in, &w); err != nil {
		return models.Investment{}, err
	}
	return w.model(), nil
}

func (c *Client) settle(ctx context.Context, s *Session, investmentID int64, kind models.SettlementKind) (models.Settlement, error) {
	var w settlementWire
	path := fmt.Sprintf("investments/%d/%s/", investmentID, kind)
	if _, err := c.do(ctx, s, call{method: http.MethodPost, path: path, class: classAction}, &w); err != nil {
		return models.Settlement{}, err
	}
	return w.model(investmentID, kind), nil
}

func (c *Client) ClaimInsurance(ctx context.Context, s *Session, investmentID int64) (models.Settlement, error) {
	return c.settle(ctx, s, investmentID, models.SettlementClaimInsurance)
}

func (c *Client) EmergencyWithdraw(ctx context.Context, s *Session, investmentID int64) (models.Settlement, error) {
	return c.settle(ctx, s, investmentID, models.SettlementEmergencyWithdraw)
}

func (c *Client) TakeInsurance(ctx context.Context, s *Session, investmentID int64) (models.Settlement, error) {
	return c.settle(ctx, s, investmentID, models.SettlementTakeInsurance)
}

func (c *Client) Withdraw(ctx context.Context, s *Session, investmentID int64) (models.Settlement, error) {
	return c.settle(ctx, s, investmentID, models.SettlementWithdraw)
}

func (c *Client) FetchProfile(ctx context.Context, s *Session) (models.Profile, error) {
	var w profileWire
	if _, err := c.do(ctx, s, call{method: http.MethodGet, path: "accounts/profile/"}, &w); err != nil {
		return models.Profile{}, err
	}
	return w.model(), nil
}

func (c *Client) FetchCredits(ctx context.Context, s *Session) (models.CreditBalance, error) {
	var w creditsWire
	if _, err := c.do(ctx, s, call{method: http.MethodGet, path: "accounts/users/credits/"}, &w); err != nil {
		return models.CreditBalance{}, err
	}
	return w.model(), nil
}

func (c *Client) AddCredits(ctx context.Context, s *Session, amount decimal.Decimal) (models.CreditBalance, error) {
	return c.moveCredits(ctx, s, "accounts/users/add_credits/", amount)
}

func (c *Client) RemoveCredits(ctx context.Context, s *Session, amount decimal.Decimal) (models.CreditBalance, error) {
	return c.moveCredits(ctx, s, "accounts/users/remove_credits/", amount)
}

func (c *Client) moveCredits(ctx context.Context, s *Session, path string, amount decimal.Decimal) (models.CreditBalance, error) {
	var w creditsWire
	in := call{method: http.MethodPost, path: path, body: amountWire{Amount: amount}, class: classInvest}
	if _, err := c.do(ctx, s, in, &w); err != nil {
		return models.CreditBalance{}, err
	}
	return w.model(), nil
}
