// Package service contains the service layer for the Comdex API
package service

import (
	"context"

	"github.com/comdex/comdexapi/internal/eligibility"
	"github.com/comdex/comdexapi/internal/gateway"
	"github.com/comdex/comdexapi/internal/lifecycle"
	"github.com/comdex/comdexapi/internal/models"
	"golang.org/x/sync/errgroup"
)

// IndexService renders the index listing, detail and dashboard views
type IndexService struct {
	gw     gateway.Gateway
	rules  eligibility.Rules
	policy lifecycle.Policy
}

// NewIndexService creates a new index service
func NewIndexService(gw gateway.Gateway, rules eligibility.Rules, policy lifecycle.Policy) *IndexService {
	return &IndexService{gw: gw, rules: rules, policy: policy}
}

// IndexListItem is one row of the index listing
type IndexListItem struct {
	models.Index
	CanInvest eligibility.Decision `json:"can_invest"`
}

// List returns every index, or only those in status when it is not empty.
// A backend failure is returned as is; there is no fallback listing.
func (s *IndexService) List(ctx context.Context, us *UserSession, status lifecycle.Status) ([]IndexListItem, error) {
	indexes, err := s.gw.ListIndexes(ctx, us.Backend, status)
	if err != nil {
		return nil, err
	}
	out := make([]IndexListItem, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, IndexListItem{Index: idx, CanInvest: s.rules.CanInvest(idx)})
	}
	return out, nil
}

func (s *IndexService) Stats(ctx context.Context, us *UserSession) (models.IndexStats, error) {
	return s.gw.FetchIndexStats(ctx, us.Backend)
}

// IndexDetails is the detail page of one index
type IndexDetails struct {
	Index         models.Index          `json:"index"`
	CompanyStats  *models.CompanyStats  `json:"company_stats"`
	VoteWeights   []models.VoteWeight   `json:"vote_weights"`
	VotingSession *models.VotingSession `json:"voting_session"`
	Investments   []models.Investment   `json:"investments"`
	CanInvest     eligibility.Decision  `json:"can_invest"`
	Actions       []lifecycle.Action    `json:"actions"`
	Unavailable   []Unavailable         `json:"unavailable"`
}

// Details loads the index and its secondary sections concurrently and joins them.
// Only the index itself is required; other sections degrade to Unavailable.
func (s *IndexService) Details(ctx context.Context, us *UserSession, indexID int64) (*IndexDetails, error) {
	var (
		index                                  models.Index
		stats                                  models.CompanyStats
		weights                                []models.VoteWeight
		session                                *models.VotingSession
		investments                            []models.Investment
		statsErr, weightsErr, sessionErr, invErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		index, err = s.gw.FetchIndex(gctx, us.Backend, indexID)
		return err
	})
	g.Go(func() error {
		stats, statsErr = s.gw.FetchCompanyStats(gctx, us.Backend, indexID)
		return nil
	})
	g.Go(func() error {
		weights, weightsErr = s.gw.FetchVoteWeights(gctx, us.Backend, indexID)
		return nil
	})
	g.Go(func() error {
		session, sessionErr = s.gw.FetchVotingSession(gctx, us.Backend, indexID)
		return nil
	})
	g.Go(func() error {
		investments, invErr = s.gw.ListInvestments(gctx, us.Backend)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &IndexDetails{
		Index:       index,
		CanInvest:   s.rules.CanInvest(index),
		Actions:     s.policy.Available(index.Status),
		VoteWeights: []models.VoteWeight{},
		Investments: []models.Investment{},
	}
	var d degraded
	if err := d.add("company_stats", statsErr); err != nil {
		return nil, err
	}
	if statsErr == nil {
		out.CompanyStats = &stats
	}
	if err := d.add("vote_weights", weightsErr); err != nil {
		return nil, err
	}
	if weightsErr == nil && weights != nil {
		out.VoteWeights = weights
	}
	if err := d.add("voting_session", sessionErr); err != nil {
		return nil, err
	}
	out.VotingSession = session
	if err := d.add("investments", invErr); err != nil {
		return nil, err
	}
	for _, inv := range investments {
		if inv.IndexID == indexID {
			out.Investments = append(out.Investments, inv)
		}
	}
	out.Unavailable = d.list()
	return out, nil
}

// Dashboard is the signed-in landing view
type Dashboard struct {
	Indexes     []IndexListItem       `json:"indexes"`
	Stats       *models.IndexStats    `json:"stats"`
	Investments []models.Investment   `json:"investments"`
	Credits     *models.CreditBalance `json:"credits"`
	Unavailable []Unavailable         `json:"unavailable"`
}

// Dashboard fans out every section and reports the ones that failed instead of hiding them
func (s *IndexService) Dashboard(ctx context.Context, us *UserSession) (*Dashboard, error) {
	var (
		indexes                                []models.Index
		stats                                  models.IndexStats
		investments                            []models.Investment
		credits                                models.CreditBalance
		indexesErr, statsErr, invErr, creditsErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		indexes, indexesErr = s.gw.ListIndexes(ctx, us.Backend, "")
		return nil
	})
	g.Go(func() error {
		stats, statsErr = s.gw.FetchIndexStats(ctx, us.Backend)
		return nil
	})
	g.Go(func() error {
		investments, invErr = s.gw.ListInvestments(ctx, us.Backend)
		return nil
	})
	g.Go(func() error {
		credits, creditsErr = s.gw.FetchCredits(ctx, us.Backend)
		return nil
	})
	_ = g.Wait()

	out := &Dashboard{Indexes: []IndexListItem{}, Investments: []models.Investment{}}
	var d degraded
	if err := d.add("indexes", indexesErr); err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		out.Indexes = append(out.Indexes, IndexListItem{Index: idx, CanInvest: s.rules.CanInvest(idx)})
	}
	if err := d.add("stats", statsErr); err != nil {
		return nil, err
	}
	if statsErr == nil {
		out.Stats = &stats
	}
	if err := d.add("investments", invErr); err != nil {
		return nil, err
	}
	if invErr == nil && investments != nil {
		out.Investments = investments
	}
	if err := d.add("credits", creditsErr); err != nil {
		return nil, err
	}
	if creditsErr == nil {
		out.Credits = &credits
	}
	out.Unavailable = d.list()
	return out, nil
}
