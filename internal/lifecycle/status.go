// Package lifecycle defines the index status state machine
package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle status of an index
type Status string

const (
	StatusDraft    Status = "draft"
	StatusVoting   Status = "voting"
	StatusActive   Status = "active"
	StatusExecuted Status = "executed"
	StatusArchived Status = "archived"
)

// Statuses lists every status in lifecycle order
var Statuses = []Status{StatusDraft, StatusVoting, StatusActive, StatusExecuted, StatusArchived}

var ErrUnknownStatus = errors.New("unknown index status")

// legacy spellings seen in older payloads
var statusAliases = map[string]Status{
	"drafted": StatusDraft,
	"archive": StatusArchived,
}

// ParseStatus converts any casing of a status name into its canonical form
func ParseStatus(s string) (Status, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, st := range Statuses {
		if string(st) == key {
			return st, nil
		}
	}
	if st, ok := statusAliases[key]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// IsTerminal reports whether no transition leaves the status
func (s Status) IsTerminal() bool {
	return s == StatusArchived
}

// String returns the canonical status name
func (s Status) String() string {
	return string(s)
}

// UnmarshalJSON accepts any casing and normalises it
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}
