package service

import (
	"context"
	"strconv"

	"github.com/comdex/comdexapi/internal/eligibility"
	"github.com/comdex/comdexapi/internal/gateway"
	"github.com/comdex/comdexapi/internal/inflight"
	"github.com/comdex/comdexapi/internal/models"
	"github.com/comdex/comdexapi/pkg/utils/audit"
	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
	"golang.org/x/sync/errgroup"
)

// VotingService renders the voting view and submits votes
type VotingService struct {
	gw    gateway.Gateway
	rules eligibility.Rules
	guard inflight.Guard
	audit audit.Recorder
}

// NewVotingService creates a new voting service
func NewVotingService(gw gateway.Gateway, rules eligibility.Rules, guard inflight.Guard, rec audit.Recorder) *VotingService {
	return &VotingService{gw: gw, rules: rules, guard: guard, audit: rec}
}

// SelectionBounds is how many companies one ballot must name
type SelectionBounds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// VotingView is the voting page of one index
type VotingView struct {
	Index         models.Index          `json:"index"`
	VotingSession *models.VotingSession `json:"voting_session"`
	UserVotes     []models.Vote         `json:"user_votes"`
	VoteWeights   []models.VoteWeight   `json:"vote_weights"`
	CanVote       eligibility.Decision  `json:"can_vote"`
	Bounds        SelectionBounds       `json:"bounds"`
	Unavailable   []Unavailable         `json:"unavailable"`
}

// VoteSubmission is the result of one submitted ballot
type VoteSubmission struct {
	Receipt   models.VoteReceipt `json:"receipt"`
	UserVotes []models.Vote      `json:"user_votes"`
	Refreshed bool               `json:"refreshed"`
}

// bounds fills the session's selection limits from the index when the session leaves them unset
func bounds(session models.VotingSession, index models.Index) SelectionBounds {
	b := SelectionBounds{Min: session.MinVotesPerUser, Max: session.MaxVotesAllowed}
	if b.Min <= 0 {
		b.Min = index.MinVotesPerUser
	}
	if b.Min <= 0 {
		b.Min = 1
	}
	if b.Max <= 0 {
		b.Max = index.MaxVotesPerUser
	}
	if b.Max <= 0 {
		b.Max = len(index.Companies)
	}
	return b
}

type votingState struct {
	index       models.Index
	session     *models.VotingSession
	investments []models.Investment
	votes       []models.Vote
}

// load reads everything the vote eligibility depends on. Every part is required.
func (s *VotingService) load(ctx context.Context, us *UserSession, indexID int64) (*votingState, error) {
	st := &votingState{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		st.index, err = s.gw.FetchIndex(gctx, us.Backend, indexID)
		return err
	})
	g.Go(func() error {
		var err error
		st.investments, err = s.gw.ListInvestments(gctx, us.Backend)
		return err
	})
	g.Go(func() error {
		var err error
		if st.session, err = s.gw.FetchVotingSession(gctx, us.Backend, indexID); err != nil || st.session == nil {
			return err
		}
		st.votes, err = s.gw.FetchUserVotes(gctx, us.Backend, st.session.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return st, nil
}

// View loads the voting page. Vote weights are optional and degrade to Unavailable.
func (s *VotingService) View(ctx context.Context, us *UserSession, indexID int64) (*VotingView, error) {
	var (
		st         *votingState
		weights    []models.VoteWeight
		weightsErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		st, err = s.load(gctx, us, indexID)
		return err
	})
	g.Go(func() error {
		weights, weightsErr = s.gw.FetchVoteWeights(gctx, us.Backend, indexID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &VotingView{
		Index:         st.index,
		VotingSession: st.session,
		UserVotes:     []models.Vote{},
		VoteWeights:   []models.VoteWeight{},
		CanVote:       s.rules.CanVote(st.index, st.investments, st.session, st.votes),
	}
	if st.votes != nil {
		out.UserVotes = st.votes
	}
	if st.session != nil {
		out.Bounds = bounds(*st.session, st.index)
	}
	var d degraded
	if err := d.add("vote_weights", weightsErr); err != nil {
		return nil, err
	}
	if weightsErr == nil && weights != nil {
		out.VoteWeights = weights
	}
	out.Unavailable = d.list()
	return out, nil
}

// SubmitVotes casts one ballot. The user's votes are refetched afterwards whatever the
// submission returned, so the view never relies on a locally assumed outcome.
func (s *VotingService) SubmitVotes(ctx context.Context, us *UserSession, indexID int64, companyIDs []int64) (*VoteSubmission, error) {
	release, err := s.guard.Acquire(ctx, inflight.Key(us.UserID, "submit_votes", indexID))
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := s.load(ctx, us, indexID)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{"index_id": indexID, "company_ids": companyIDs}
	if d := s.rules.CanVote(st.index, st.investments, st.session, st.votes); !d.Allowed {
		s.reject(ctx, us, indexID, d.Reason, fields)
		return nil, ineligible("submit_votes", d)
	}

	session := *st.session
	b := bounds(session, st.index)
	session.MinVotesPerUser, session.MaxVotesAllowed = b.Min, b.Max
	if d := eligibility.VoteSelectionValid(companyIDs, session, st.index); !d.Allowed {
		s.reject(ctx, us, indexID, d.Reason, fields)
		return nil, &ValidationError{Field: "company_ids", Message: selectionMessage(d.Reason, b), Reason: d.Reason}
	}

	inv, _ := eligibility.OpenInvestment(indexID, st.investments)
	fields["investment_id"] = inv.ID
	receipt, err := s.gw.SubmitVotes(ctx, us.Backend, indexID, companyIDs, inv.ID)
	if err != nil {
		s.audit.Record(ctx, audit.Entry{UserID: us.UserID, Action: "submit_votes", EntityID: indexID, Outcome: audit.OutcomeFailed, Detail: err.Error()}, fields)
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{UserID: us.UserID, Action: "submit_votes", EntityID: indexID, Outcome: audit.OutcomeOK}, fields)

	out := &VoteSubmission{Receipt: receipt, UserVotes: []models.Vote{}, Refreshed: true}
	votes, err := s.gw.FetchUserVotes(ctx, us.Backend, session.ID)
	if err != nil {
		zaplogger.Warn("failed to refetch user votes", zaplogger.Fields{
			"user_id":    us.UserID,
			"session_id": session.ID,
			"error":      err.Error(),
		})
		out.Refreshed = false
		return out, nil
	}
	if votes != nil {
		out.UserVotes = votes
	}
	return out, nil
}

func (s *VotingService) reject(ctx context.Context, us *UserSession, indexID int64, reason eligibility.Reason, fields map[string]interface{}) {
	s.audit.Record(ctx, audit.Entry{
		UserID:   us.UserID,
		Action:   "submit_votes",
		EntityID: indexID,
		Outcome:  audit.OutcomeRejected,
		Detail:   string(reason),
	}, fields)
}

func selectionMessage(reason eligibility.Reason, b SelectionBounds) string {
	switch reason {
	case eligibility.ReasonTooFewVotes:
		return "Select at least " + strconv.Itoa(b.Min) + " companies"
	case eligibility.ReasonTooManyVotes:
		return "Select at most " + strconv.Itoa(b.Max) + " companies"
	case eligibility.ReasonDuplicateCompany:
		return "A company can only be selected once"
	case eligibility.ReasonUnknownCompany:
		return "Selected company is not part of this index"
	}
	return "Invalid selection"
}

// Results returns interim or final results of a voting session
func (s *VotingService) Results(ctx context.Context, us *UserSession, sessionID int64) (models.VotingResults, error) {
	return s.gw.FetchVotingResults(ctx, us.Backend, sessionID)
}
