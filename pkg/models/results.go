package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the point-in-time state of a loan.
type Snapshot struct {
	AsOf            time.Time       `json:"as_of"`
	Principal       decimal.Decimal `json:"principal"`
	AccruedInterest decimal.Decimal `json:"accrued_interest"`
	Outstanding     decimal.Decimal `json:"outstanding"`
	ElapsedPeriods  int             `json:"elapsed_periods"`
}

// PeriodRecord is one 15-day window of a loan ledger. Balance fields are
// measured at AsOf, which is the window boundary or the end of the requested
// range when the range stops inside the window.
type PeriodRecord struct {
	Number          int             `json:"number"`
	Start           time.Time       `json:"start"`
	End             time.Time       `json:"end"`
	AsOf            time.Time       `json:"as_of"`
	InterestBase    decimal.Decimal `json:"interest_base"`
	Interest        decimal.Decimal `json:"interest"`
	CapitalPaid     decimal.Decimal `json:"capital_paid"`
	InterestPaid    decimal.Decimal `json:"interest_paid"`
	Principal       decimal.Decimal `json:"principal"`
	AccruedInterest decimal.Decimal `json:"accrued_interest"`
	Outstanding     decimal.Decimal `json:"outstanding"`
	Completed       bool            `json:"completed"`
	Projected       bool            `json:"projected"`
}

type RiskBand string

const (
	RiskLow      RiskBand = "bajo"
	RiskMedium   RiskBand = "medio"
	RiskHigh     RiskBand = "alto"
	RiskVeryHigh RiskBand = "muy_alto"
)

type CreditAssessment struct {
	Score              int             `json:"score"`
	RiskBand           RiskBand        `json:"risk_band"`
	MaxRecommendedLoan decimal.Decimal `json:"max_recommended_loan"`
	ShouldLend         bool            `json:"should_lend"`
	Recommendation     string          `json:"recommendation"`
	Reasons            []string        `json:"reasons"`
}
