// Package models contains the models for the Comdex API
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VotingSession is the voting window of one index
type VotingSession struct {
	ID              int64     `json:"id"`
	IndexID         int64     `json:"index_id"`
	IsActive        bool      `json:"is_active"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	MaxVotesAllowed int       `json:"max_votes_allowed"`
	MinVotesPerUser int       `json:"min_votes_per_user"`
}

// Vote is one (user, session, company) selection
type Vote struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	SessionID int64     `json:"session_id"`
	CompanyID int64     `json:"company_id"`
	CreatedAt time.Time `json:"created_at"`
}

// VoteWeight is the backend-computed influence of a company's votes
type VoteWeight struct {
	CompanyID   int64           `json:"company_id"`
	CompanyName string          `json:"company_name,omitempty"`
	VoteCount   int             `json:"vote_count"`
	TotalWeight decimal.Decimal `json:"total_weight"`
}

// VotingResult is one ranked row of a session's outcome
type VotingResult struct {
	CompanyID   int64           `json:"company_id"`
	CompanyName string          `json:"company_name,omitempty"`
	VoteCount   int             `json:"vote_count"`
	TotalWeight decimal.Decimal `json:"total_weight"`
	Rank        int             `json:"rank"`
}

// VotingResults holds either interim or final results of a session
type VotingResults struct {
	SessionID int64          `json:"session_id"`
	Final     bool           `json:"final"`
	Results   []VotingResult `json:"results"`
}

// VoteReceipt is the backend's answer to a vote submission
type VoteReceipt struct {
	Message    string  `json:"message,omitempty"`
	CompanyIDs []int64 `json:"company_ids"`
}
