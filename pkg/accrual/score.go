package accrual

import (
	"fmt"
	"time"

	"github.com/mcclellann/quincena/pkg/models"
	"github.com/mcclellann/quincena/pkg/scoring"
)

// ScoreBorrower evaluates every loan at now and scores the result.
func ScoreBorrower(loans []models.Loan, rate Rate, now time.Time) (models.CreditAssessment, error) {
	profiles := make([]scoring.LoanProfile, 0, len(loans))
	for _, loan := range loans {
		snap, err := Evaluate(loan, rate, now)
		if err != nil {
			return models.CreditAssessment{}, fmt.Errorf("evaluate loan %s: %w", loan.ID, err)
		}
		profiles = append(profiles, scoring.LoanProfile{
			Status:           loan.Status,
			Principal:        loan.Principal,
			Snapshot:         snap,
			CapitalPayments:  len(loan.CapitalPayments),
			InterestPayments: len(loan.InterestPayments),
		})
	}
	return scoring.Assess(profiles), nil
}
