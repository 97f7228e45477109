package accrual

import (
	"fmt"
	"time"

	"github.com/mcclellann/quincena/pkg/models"
	"github.com/shopspring/decimal"
)

// LedgerOptions bounds a generated ledger. Zero values pick defaults: From is
// the origination date, To is the end of the last projected window and Now
// is the wall clock.
type LedgerOptions struct {
	From time.Time
	To   time.Time
	Now  time.Time
}

// GenerateLedger rebuilds the loan period by period. Each record's balances
// match Evaluate(loan, rate, record.AsOf). Windows that end after Now are
// flagged incomplete, and at most MaxProjectedPeriods windows past the
// current one are produced.
func GenerateLedger(loan models.Loan, rate Rate, opts LedgerOptions) ([]models.PeriodRecord, error) {
	sched, err := allocate(loan)
	if err != nil {
		return nil, err
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	origin := loan.OriginatedAt
	windows := windowLimit(origin, opts.Now)
	horizon := origin.AddDate(0, 0, windows*PeriodDays)

	from, to := opts.From, opts.To
	if from.IsZero() {
		from = origin
	}
	if to.IsZero() || to.After(horizon) {
		to = horizon
	}
	if to.Before(origin) {
		return nil, nil
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end %s precedes range start %s", models.ErrInvalidInput,
			to.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	w := newWalker(sched, rate)
	var records []models.PeriodRecord
	for n := 1; n <= windows; n++ {
		start := w.start
		if n > 1 && !start.Before(to) {
			break
		}
		end := PeriodEnd(start)
		asOf := end
		closed := true
		if to.Before(end) {
			asOf, closed = to, false
		}

		tr := w.advance()
		var snap models.Snapshot
		if closed {
			w.commit(tr)
			snap = w.snapshot(asOf)
		} else {
			snap = w.partial(tr, asOf)
		}

		completed := !end.After(opts.Now)
		if end.After(from) {
			records = append(records, models.PeriodRecord{
				Number:          n,
				Start:           start,
				End:             start.AddDate(0, 0, PeriodDays-1),
				AsOf:            asOf,
				InterestBase:    tr.Principal.Round(2),
				Interest:        tr.Interest.Round(2),
				CapitalPaid:     paidWithin(sched.capital, start, end),
				InterestPaid:    paidWithin(sched.interest, start, end),
				Principal:       snap.Principal,
				AccruedInterest: snap.AccruedInterest,
				Outstanding:     snap.Outstanding,
				Completed:       completed,
				Projected:       start.After(opts.Now),
			})
		}

		if !closed {
			break
		}
		if completed && snap.Principal.IsZero() && snap.AccruedInterest.IsZero() {
			break
		}
	}
	return records, nil
}

// partial reports balances inside a window that has not completed by asOf.
// The window's interest is left out, matching what Evaluate sees.
func (w *walker) partial(tr Transition, asOf time.Time) models.Snapshot {
	return w.balances(tr.Principal, tr.Remaining, asOf)
}

// windowLimit counts the windows a ledger may show: every completed one,
// the one in progress at now, and the projected ones after it.
func windowLimit(origin, now time.Time) int {
	limit := MaxProjectedPeriods
	if !now.Before(origin) {
		completed := 0
		for start := origin; completed < MaxPeriods && !PeriodEnd(start).After(now); start = PeriodEnd(start) {
			completed++
		}
		limit = completed + 1 + MaxProjectedPeriods
	}
	if limit > MaxPeriods {
		limit = MaxPeriods
	}
	return limit
}

// paidWithin sums payments dated in [start, end).
func paidWithin(payments []models.Payment, start, end time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if !p.PaidAt.Before(start) && p.PaidAt.Before(end) {
			total = total.Add(p.Amount)
		}
	}
	return total.Round(2)
}
