package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Action is a privileged management action that moves an index to a status
type Action string

const (
	ActionStartVoting Action = "start_voting"
	ActionActivate    Action = "activate"
	ActionExecute     Action = "execute"
	ActionArchive     Action = "archive"
	ActionSetDraft    Action = "set_draft"
)

// Actions lists every management action
var Actions = []Action{ActionStartVoting, ActionActivate, ActionExecute, ActionArchive, ActionSetDraft}

var actionTargets = map[Action]Status{
	ActionStartVoting: StatusVoting,
	ActionActivate:    StatusActive,
	ActionExecute:     StatusExecuted,
	ActionArchive:     StatusArchived,
	ActionSetDraft:    StatusDraft,
}

var (
	ErrUnknownAction        = errors.New("unknown index action")
	ErrTerminal             = errors.New("index is archived")
	ErrAlreadyInStatus      = errors.New("index is already in the target status")
	ErrTransitionNotAllowed = errors.New("transition not allowed")
	ErrUnknownPolicy        = errors.New("unknown transition policy")
)

// ParseAction converts an action name into an Action
func ParseAction(s string) (Action, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	a := Action(key)
	if _, ok := actionTargets[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// Target returns the status the action moves an index to
func (a Action) Target() Status {
	return actionTargets[a]
}

// Policy is a transition table
type Policy struct {
	name  string
	edges map[Status][]Status
}

// Strict allows the linear lifecycle plus archiving from any live state
var Strict = Policy{
	name: "strict",
	edges: map[Status][]Status{
		StatusDraft:    {StatusVoting, StatusArchived},
		StatusVoting:   {StatusActive, StatusArchived},
		StatusActive:   {StatusExecuted, StatusArchived},
		StatusExecuted: {StatusArchived},
	},
}

// Permissive allows any live state to jump to any other state
var Permissive = Policy{
	name: "permissive",
	edges: map[Status][]Status{
		StatusDraft:    {StatusVoting, StatusActive, StatusExecuted, StatusArchived},
		StatusVoting:   {StatusDraft, StatusActive, StatusExecuted, StatusArchived},
		StatusActive:   {StatusDraft, StatusVoting, StatusExecuted, StatusArchived},
		StatusExecuted: {StatusDraft, StatusVoting, StatusActive, StatusArchived},
	},
}

// PolicyByName returns the named transition policy
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", Strict.name:
		return Strict, nil
	case Permissive.name:
		return Permissive, nil
	}
	return Policy{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

// Name returns the policy name
func (p Policy) Name() string {
	return p.name
}

// Allows reports whether the table has an edge from -> to
func (p Policy) Allows(from, to Status) bool {
	for _, next := range p.edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next returns the status an action would move the index to
func (p Policy) Next(current Status, action Action) (Status, error) {
	target, ok := actionTargets[action]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if current.IsTerminal() {
		return "", ErrTerminal
	}
	if current == target {
		return "", fmt.Errorf("%w: %s", ErrAlreadyInStatus, current)
	}
	if !p.Allows(current, target) {
		return "", fmt.Errorf("%w: %s -> %s (%s policy)", ErrTransitionNotAllowed, current, target, p.name)
	}
	return target, nil
}

// Available returns the actions valid from the current status
func (p Policy) Available(current Status) []Action {
	var out []Action
	for _, a := range Actions {
		if _, err := p.Next(current, a); err == nil {
			out = append(out, a)
		}
	}
	return out
}
