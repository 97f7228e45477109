package accrual

import (
	"time"

	"github.com/mcclellann/quincena/pkg/models"
	"github.com/shopspring/decimal"
)

// CarryForward folds stored arrears and lifetime interest payments into the
// interest generated by completed periods. The result is never negative.
func CarryForward(periodInterest, unpaidCarry, interestPaid decimal.Decimal) decimal.Decimal {
	return floorZero(periodInterest.Add(unpaidCarry).Sub(interestPaid))
}

// walker drives Advance from origination. Snapshot and ledger generation
// both read balances through it so they cannot drift apart.
type walker struct {
	sched     schedule
	rate      Rate
	principal decimal.Decimal
	start     time.Time
	pending   []models.Payment
	interest  decimal.Decimal
	elapsed   int
}

func newWalker(sched schedule, rate Rate) *walker {
	return &walker{
		sched:     sched,
		rate:      rate,
		principal: sched.loan.Principal,
		start:     sched.loan.OriginatedAt,
		pending:   sched.capital,
		interest:  decimal.Zero,
	}
}

func (w *walker) advance() Transition {
	return Advance(w.principal, w.start, w.pending, w.rate)
}

// commit records a completed period.
func (w *walker) commit(tr Transition) {
	w.principal = tr.Principal
	w.pending = tr.Remaining
	w.interest = w.interest.Add(tr.Interest)
	w.elapsed++
	w.start = PeriodEnd(w.start)
}

// snapshot reports balances at asOf without consuming walker state. Capital
// paid after the last completed period start still lowers principal but has
// produced no interest yet.
func (w *walker) snapshot(asOf time.Time) models.Snapshot {
	return w.balances(w.principal, w.pending, asOf)
}

func (w *walker) balances(principal decimal.Decimal, pending []models.Payment, asOf time.Time) models.Snapshot {
	principal, _ = settle(principal, pending, asOf)
	accrued := CarryForward(w.interest, w.sched.loan.UnpaidInterestCarry, w.sched.interestPaid)
	return models.Snapshot{
		AsOf:            asOf,
		Principal:       principal.Round(2),
		AccruedInterest: accrued.Round(2),
		Outstanding:     floorZero(principal.Add(accrued)).Round(2),
		ElapsedPeriods:  w.elapsed,
	}
}

// Evaluate returns the state of loan at asOf: the periods fully elapsed
// since origination, the remaining principal and the unpaid interest.
func Evaluate(loan models.Loan, rate Rate, asOf time.Time) (models.Snapshot, error) {
	sched, err := allocate(loan)
	if err != nil {
		return models.Snapshot{}, err
	}
	if asOf.Before(loan.OriginatedAt) {
		principal := loan.Principal.Round(2)
		return models.Snapshot{
			AsOf:            asOf,
			Principal:       principal,
			AccruedInterest: decimal.Zero,
			Outstanding:     principal,
		}, nil
	}

	w := newWalker(sched, rate)
	for w.elapsed < MaxPeriods && !PeriodEnd(w.start).After(asOf) {
		w.commit(w.advance())
	}
	return w.snapshot(asOf), nil
}
