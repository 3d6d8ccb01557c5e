// Package models contains the models for the Comdex API
package models

import (
	"time"

	"github.com/comdex/comdexapi/internal/lifecycle"
	"github.com/shopspring/decimal"
)

// Company is a member of an index basket
type Company struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Ticker      string          `json:"ticker"`
	Sector      string          `json:"sector"`
	Price       decimal.Decimal `json:"price"`
	PriceChange decimal.Decimal `json:"price_change"`
	MarketCap   decimal.Decimal `json:"market_cap"`
}

// Index is a community-curated basket of companies
type Index struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Status          lifecycle.Status `json:"status"`
	TotalInvestment decimal.Decimal  `json:"total_investment"`
	Companies       []Company        `json:"companies"`
	MinVotesPerUser int              `json:"min_votes_per_user"`
	MaxVotesPerUser int              `json:"max_votes_per_user"`
	CreatedAt       time.Time        `json:"created_at"`
}

// HasCompany reports whether the company belongs to the index
func (i Index) HasCompany(companyID int64) bool {
	for _, c := range i.Companies {
		if c.ID == companyID {
			return true
		}
	}
	return false
}

// CompanyStats is the aggregate company data of one index
type CompanyStats struct {
	TotalCompanies int             `json:"total_companies"`
	TotalMarketCap decimal.Decimal `json:"total_market_cap"`
	AveragePrice   decimal.Decimal `json:"average_price"`
}

// IndexStats is the platform-wide index summary
type IndexStats struct {
	TotalIndexes             int     `json:"total_indexes"`
	ActiveIndexes            int     `json:"active_indexes"`
	AverageCompaniesPerIndex float64 `json:"average_companies_per_index"`
}
