// Package accrual reconstructs loan balances from origination, one 15-day
// period at a time. Every entry point is a pure function of its arguments.
package accrual

import (
	"fmt"
	"time"

	"github.com/mcclellann/quincena/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	// PeriodDays is the length of one billing period.
	PeriodDays = 15
	// MaxPeriods bounds every period loop.
	MaxPeriods = 200
	// MaxProjectedPeriods is how many windows past the current one a ledger shows.
	MaxProjectedPeriods = 2
)

var hundred = decimal.NewFromInt(100)

// Rate is a validated period interest rate expressed as a percentage.
type Rate struct {
	percent decimal.Decimal
}

// NewRate rejects negative rates. A zero rate is allowed.
func NewRate(percent decimal.Decimal) (Rate, error) {
	if percent.IsNegative() {
		return Rate{}, fmt.Errorf("%w: period rate %s is negative", models.ErrInvalidInput, percent)
	}
	return Rate{percent: percent}, nil
}

func (r Rate) Percent() decimal.Decimal {
	return r.percent
}

func (r Rate) factor() decimal.Decimal {
	return r.percent.Div(hundred)
}

// Transition is the result of advancing a loan across one period start.
type Transition struct {
	Principal decimal.Decimal  // interest base for the period
	Interest  decimal.Decimal  // interest the period generates once it completes
	Applied   []models.Payment // capital payments consumed at the period start
	Remaining []models.Payment
}

// Advance applies every pending capital payment dated on or before
// periodStart, then charges one period of interest on what is left.
// pending must be sorted by date.
func Advance(principal decimal.Decimal, periodStart time.Time, pending []models.Payment, rate Rate) Transition {
	principal, n := settle(principal, pending, periodStart)
	return Transition{
		Principal: principal,
		Interest:  principal.Mul(rate.factor()),
		Applied:   pending[:n],
		Remaining: pending[n:],
	}
}

// settle reduces principal by the leading payments dated on or before through.
func settle(principal decimal.Decimal, pending []models.Payment, through time.Time) (decimal.Decimal, int) {
	n := 0
	for n < len(pending) && !pending[n].PaidAt.After(through) {
		principal = floorZero(principal.Sub(pending[n].Amount))
		n++
	}
	return principal, n
}

// PeriodEnd returns the instant the period starting at start completes.
func PeriodEnd(start time.Time) time.Time {
	return start.AddDate(0, 0, PeriodDays)
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// schedule is a loan's payments after allocation checks.
type schedule struct {
	loan         models.Loan
	capital      []models.Payment
	interest     []models.Payment
	interestPaid decimal.Decimal
}

// allocate sorts a loan's payments and rejects inputs the engine cannot
// account for. It works on copies so callers' slices are never reordered.
func allocate(loan models.Loan) (schedule, error) {
	if loan.OriginatedAt.IsZero() {
		return schedule{}, fmt.Errorf("%w: loan %s has no origination date", models.ErrInvalidInput, loan.ID)
	}
	if loan.Principal.IsNegative() {
		return schedule{}, fmt.Errorf("%w: loan %s principal %s is negative", models.ErrInvalidInput, loan.ID, loan.Principal)
	}
	if loan.UnpaidInterestCarry.IsNegative() {
		return schedule{}, fmt.Errorf("%w: loan %s unpaid interest carry %s is negative", models.ErrInvalidInput, loan.ID, loan.UnpaidInterestCarry)
	}
	for _, group := range [][]models.Payment{loan.CapitalPayments, loan.InterestPayments} {
		for _, p := range group {
			if !p.Amount.IsPositive() {
				return schedule{}, fmt.Errorf("%w: payment %s amount %s is not positive", models.ErrInvalidInput, p.ID, p.Amount)
			}
			if p.PaidAt.Before(loan.OriginatedAt) {
				return schedule{}, fmt.Errorf("%w: payment %s on %s", models.ErrInconsistentPaymentDate, p.ID, p.PaidAt.Format(time.RFC3339))
			}
		}
	}
	return schedule{
		loan:         loan,
		capital:      models.SortPayments(loan.CapitalPayments),
		interest:     models.SortPayments(loan.InterestPayments),
		interestPaid: models.SumPayments(loan.InterestPayments),
	}, nil
}
