package service

import (
	"context"

	"github.com/comdex/comdexapi/internal/gateway"
	"github.com/comdex/comdexapi/internal/inflight"
	"github.com/comdex/comdexapi/internal/lifecycle"
	"github.com/comdex/comdexapi/internal/models"
	"github.com/comdex/comdexapi/pkg/utils/audit"
	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
)

// ManageService moves indexes through their lifecycle
type ManageService struct {
	gw     gateway.Gateway
	policy lifecycle.Policy
	guard  inflight.Guard
	audit  audit.Recorder
}

// NewManageService creates a new management service
func NewManageService(gw gateway.Gateway, policy lifecycle.Policy, guard inflight.Guard, rec audit.Recorder) *ManageService {
	return &ManageService{gw: gw, policy: policy, guard: guard, audit: rec}
}

// TransitionResult is the index as the backend reports it after a transition
type TransitionResult struct {
	Index     models.Index       `json:"index"`
	From      lifecycle.Status   `json:"from"`
	Actions   []lifecycle.Action `json:"actions"`
	Refreshed bool               `json:"refreshed"`
}

// Transition applies action to the index when the configured policy allows it.
// A refused transition never reaches the backend.
func (s *ManageService) Transition(ctx context.Context, us *UserSession, indexID int64, name string) (*TransitionResult, error) {
	action, err := lifecycle.ParseAction(name)
	if err != nil {
		return nil, &ValidationError{Field: "action", Message: err.Error()}
	}

	release, err := s.guard.Acquire(ctx, inflight.Key(us.UserID, "transition", indexID))
	if err != nil {
		return nil, err
	}
	defer release()

	idx, err := s.gw.FetchIndex(ctx, us.Backend, indexID)
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{"from": string(idx.Status), "action": string(action), "policy": s.policy.Name()}

	if _, err := s.policy.Next(idx.Status, action); err != nil {
		refused := transitionRefused(action, err)
		s.audit.Record(ctx, audit.Entry{UserID: us.UserID, Action: string(action), EntityID: indexID, Outcome: audit.OutcomeRejected, Detail: string(refused.Reason)}, fields)
		return nil, refused
	}

	updated, err := s.gw.TransitionIndex(ctx, us.Backend, indexID, action)
	if err != nil {
		s.audit.Record(ctx, audit.Entry{UserID: us.UserID, Action: string(action), EntityID: indexID, Outcome: audit.OutcomeFailed, Detail: err.Error()}, fields)
		return nil, err
	}
	s.audit.Record(ctx, audit.Entry{UserID: us.UserID, Action: string(action), EntityID: indexID, Outcome: audit.OutcomeOK}, fields)

	out := &TransitionResult{Index: updated, From: idx.Status, Refreshed: true}
	fresh, err := s.gw.FetchIndex(ctx, us.Backend, indexID)
	if err != nil {
		zaplogger.Warn("failed to refetch index", zaplogger.Fields{"index_id": indexID, "error": err.Error()})
		out.Refreshed = false
	} else {
		out.Index = fresh
	}
	out.Actions = s.policy.Available(out.Index.Status)
	return out, nil
}
