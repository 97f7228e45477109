package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/quincena/pkg/accrual"
	"github.com/mcclellann/quincena/pkg/models"
	"github.com/mcclellann/quincena/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

// Ledger handles the business logic for borrowers, loans and payments.
// Balances are never stored; they are derived from the payment history on every read.
type Ledger struct {
	storage store.Storage
	logger  *logrus.Logger
	now     func() time.Time
	workers int
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now as the source of the current date.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithWorkers bounds the number of borrowers scored concurrently.
func WithWorkers(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.workers = n
		}
	}
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, logger *logrus.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	l := &Ledger{
		storage: s,
		logger:  logger,
		now:     time.Now,
		workers: defaultWorkers,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BorrowerScore pairs a borrower with the assessment computed for it.
type BorrowerScore struct {
	Borrower   *models.Borrower
	AsOf       time.Time
	Assessment models.CreditAssessment
}

// CreateBorrower registers a borrower with its period rate.
func (l *Ledger) CreateBorrower(ctx context.Context, name string, periodRate decimal.Decimal) (*models.Borrower, error) {
	borrower, err := models.NewBorrower(name, periodRate)
	if err != nil {
		return nil, err
	}
	if err := l.storage.CreateBorrower(ctx, borrower); err != nil {
		return nil, fmt.Errorf("failed to store borrower: %w", err)
	}
	l.logger.WithFields(logrus.Fields{
		"borrower_id": borrower.ID,
		"period_rate": borrower.PeriodRate.String(),
	}).Info("borrower created")
	return borrower, nil
}

// GetBorrower retrieves a borrower by its ID.
func (l *Ledger) GetBorrower(ctx context.Context, id uuid.UUID) (*models.Borrower, error) {
	return l.storage.GetBorrower(ctx, id)
}

// ListBorrowers retrieves all borrowers.
func (l *Ledger) ListBorrowers(ctx context.Context) ([]*models.Borrower, error) {
	return l.storage.GetAllBorrowers(ctx)
}

// UpdateBorrowerRate changes the rate applied to every loan of the borrower,
// including periods already elapsed.
func (l *Ledger) UpdateBorrowerRate(ctx context.Context, id uuid.UUID, periodRate decimal.Decimal) (*models.Borrower, error) {
	if periodRate.IsNegative() {
		return nil, fmt.Errorf("%w: period rate %s is negative", models.ErrInvalidInput, periodRate)
	}
	borrower, err := l.storage.GetBorrower(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := borrower.PeriodRate
	borrower.PeriodRate = periodRate
	borrower.UpdatedAt = time.Now()
	if err := l.storage.UpdateBorrower(ctx, borrower); err != nil {
		return nil, fmt.Errorf("failed to update borrower rate: %w", err)
	}
	l.logger.WithFields(logrus.Fields{
		"borrower_id": id,
		"from":        previous.String(),
		"to":          periodRate.String(),
	}).Info("period rate changed")
	return borrower, nil
}

// CreateLoan originates a loan for an existing borrower.
func (l *Ledger) CreateLoan(ctx context.Context, borrowerID uuid.UUID, principal decimal.Decimal, originatedAt time.Time) (*models.Loan, error) {
	if _, err := l.storage.GetBorrower(ctx, borrowerID); err != nil {
		return nil, err
	}
	loan, err := models.NewLoan(borrowerID, principal, originatedAt)
	if err != nil {
		return nil, err
	}
	if err := l.storage.CreateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}
	l.logger.WithFields(logrus.Fields{
		"loan_id":     loan.ID,
		"borrower_id": borrowerID,
		"principal":   principal.StringFixed(2),
	}).Info("loan created")
	return loan, nil
}

// GetLoan retrieves a loan with its payments.
func (l *Ledger) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(ctx, id)
}

// ListLoans retrieves all loans of a borrower.
func (l *Ledger) ListLoans(ctx context.Context, borrowerID uuid.UUID) ([]*models.Loan, error) {
	if _, err := l.storage.GetBorrower(ctx, borrowerID); err != nil {
		return nil, err
	}
	return l.storage.GetLoansForBorrower(ctx, borrowerID)
}

// UpdateLoanStatus sets the advisory lifecycle status. It has no effect on balances.
func (l *Ledger) UpdateLoanStatus(ctx context.Context, id uuid.UUID, status models.LoanStatus) (*models.Loan, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown loan status %q", models.ErrInvalidInput, status)
	}
	loan, err := l.storage.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	loan.Status = status
	loan.UpdatedAt = time.Now()
	if err := l.storage.UpdateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to update loan status: %w", err)
	}
	l.logger.WithFields(logrus.Fields{"loan_id": id, "status": status}).Info("loan status changed")
	return loan, nil
}

// CorrectPrincipal overwrites the original principal. Every derived balance follows.
func (l *Ledger) CorrectPrincipal(ctx context.Context, id uuid.UUID, principal decimal.Decimal) (*models.Loan, error) {
	if principal.IsNegative() {
		return nil, fmt.Errorf("%w: principal %s is negative", models.ErrInvalidInput, principal)
	}
	loan, err := l.storage.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := loan.Principal
	loan.Principal = principal
	loan.UpdatedAt = time.Now()
	if err := l.storage.UpdateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to correct principal: %w", err)
	}
	l.logger.WithFields(logrus.Fields{
		"loan_id": id,
		"from":    previous.StringFixed(2),
		"to":      principal.StringFixed(2),
	}).Warn("principal corrected")
	return loan, nil
}

// SetUnpaidInterestCarry replaces the arrears brought over from before period tracking.
// Recording interest payments never changes it.
func (l *Ledger) SetUnpaidInterestCarry(ctx context.Context, id uuid.UUID, carry decimal.Decimal) (*models.Loan, error) {
	if carry.IsNegative() {
		return nil, fmt.Errorf("%w: carry %s is negative", models.ErrInvalidInput, carry)
	}
	if err := l.storage.SetUnpaidInterestCarry(ctx, id, carry); err != nil {
		return nil, err
	}
	l.logger.WithFields(logrus.Fields{"loan_id": id, "carry": carry.StringFixed(2)}).Warn("unpaid interest carry overwritten")
	return l.storage.GetLoan(ctx, id)
}

// DeleteLoan deletes a loan and its payments.
func (l *Ledger) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	if err := l.storage.DeleteLoan(ctx, id); err != nil {
		return err
	}
	l.logger.WithField("loan_id", id).Info("loan deleted")
	return nil
}

// RecordCapitalPayment records a payment that reduces principal from the next period on.
func (l *Ledger) RecordCapitalPayment(ctx context.Context, loanID uuid.UUID, amount decimal.Decimal, paidAt time.Time) (*models.Payment, error) {
	return l.recordPayment(ctx, loanID, models.PaymentKindCapital, amount, paidAt)
}

// RecordInterestPayment records a payment that settles accrued interest.
func (l *Ledger) RecordInterestPayment(ctx context.Context, loanID uuid.UUID, amount decimal.Decimal, paidAt time.Time) (*models.Payment, error) {
	return l.recordPayment(ctx, loanID, models.PaymentKindInterest, amount, paidAt)
}

func (l *Ledger) recordPayment(ctx context.Context, loanID uuid.UUID, kind models.PaymentKind, amount decimal.Decimal, paidAt time.Time) (*models.Payment, error) {
	loan, err := l.storage.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	payment, err := models.NewPayment(loan, kind, amount, paidAt)
	if err != nil {
		return nil, err
	}
	if err := l.storage.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to store %s payment: %w", kind, err)
	}
	l.logger.WithFields(logrus.Fields{
		"loan_id":    loanID,
		"payment_id": payment.ID,
		"kind":       kind,
		"amount":     amount.StringFixed(2),
		"paid_at":    paidAt.Format(time.RFC3339),
	}).Info("payment recorded")
	return payment, nil
}

// DeletePayment removes a payment. Balances are recomputed on the next read.
func (l *Ledger) DeletePayment(ctx context.Context, id uuid.UUID) error {
	if err := l.storage.DeletePayment(ctx, id); err != nil {
		return err
	}
	l.logger.WithField("payment_id", id).Info("payment deleted")
	return nil
}

// LoanState evaluates a loan as of a date. A zero asOf means now.
func (l *Ledger) LoanState(ctx context.Context, loanID uuid.UUID, asOf time.Time) (models.Snapshot, error) {
	loan, rate, err := l.loanWithRate(ctx, loanID)
	if err != nil {
		return models.Snapshot{}, err
	}
	if asOf.IsZero() {
		asOf = l.now()
	}
	return accrual.Evaluate(*loan, rate, asOf)
}

// LoanLedger builds the period-by-period ledger of a loan. Zero bounds use the defaults
// of accrual.GenerateLedger.
func (l *Ledger) LoanLedger(ctx context.Context, loanID uuid.UUID, from, to time.Time) ([]models.PeriodRecord, error) {
	loan, rate, err := l.loanWithRate(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return accrual.GenerateLedger(*loan, rate, accrual.LedgerOptions{From: from, To: to, Now: l.now()})
}

// ScoreBorrower assesses a borrower from all of its loans. A zero asOf means now.
func (l *Ledger) ScoreBorrower(ctx context.Context, borrowerID uuid.UUID, asOf time.Time) (models.CreditAssessment, error) {
	borrower, err := l.storage.GetBorrower(ctx, borrowerID)
	if err != nil {
		return models.CreditAssessment{}, err
	}
	if asOf.IsZero() {
		asOf = l.now()
	}
	return l.score(ctx, borrower, asOf)
}

// ScoreAllBorrowers assesses every borrower using a bounded pool of workers.
// Results keep the order of ListBorrowers.
func (l *Ledger) ScoreAllBorrowers(ctx context.Context, asOf time.Time) ([]BorrowerScore, error) {
	borrowers, err := l.storage.GetAllBorrowers(ctx)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = l.now()
	}

	results := make([]BorrowerScore, len(borrowers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, borrower := range borrowers {
		i, borrower := i, borrower
		g.Go(func() error {
			assessment, err := l.score(gctx, borrower, asOf)
			if err != nil {
				return fmt.Errorf("score borrower %s: %w", borrower.ID, err)
			}
			results[i] = BorrowerScore{Borrower: borrower, AsOf: asOf, Assessment: assessment}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ReportPortfolio scores every borrower and logs the distribution of risk bands.
func (l *Ledger) ReportPortfolio(ctx context.Context) {
	scores, err := l.ScoreAllBorrowers(ctx, time.Time{})
	if err != nil {
		l.logger.Errorf("Error scoring portfolio: %v", err)
		return
	}

	bands := map[models.RiskBand]int{}
	blocked := 0
	for _, s := range scores {
		bands[s.Assessment.RiskBand]++
		if !s.Assessment.ShouldLend {
			blocked++
		}
	}
	l.logger.WithFields(logrus.Fields{
		"borrowers":                 len(scores),
		string(models.RiskLow):      bands[models.RiskLow],
		string(models.RiskMedium):   bands[models.RiskMedium],
		string(models.RiskHigh):     bands[models.RiskHigh],
		string(models.RiskVeryHigh): bands[models.RiskVeryHigh],
		"blocked":                   blocked,
	}).Info("portfolio scored")
}

func (l *Ledger) score(ctx context.Context, borrower *models.Borrower, asOf time.Time) (models.CreditAssessment, error) {
	rate, err := accrual.NewRate(borrower.PeriodRate)
	if err != nil {
		return models.CreditAssessment{}, err
	}
	stored, err := l.storage.GetLoansForBorrower(ctx, borrower.ID)
	if err != nil {
		return models.CreditAssessment{}, err
	}
	loans := make([]models.Loan, len(stored))
	for i, loan := range stored {
		loans[i] = *loan
	}
	return accrual.ScoreBorrower(loans, rate, asOf)
}

func (l *Ledger) loanWithRate(ctx context.Context, loanID uuid.UUID) (*models.Loan, accrual.Rate, error) {
	loan, err := l.storage.GetLoan(ctx, loanID)
	if err != nil {
		return nil, accrual.Rate{}, err
	}
	borrower, err := l.storage.GetBorrower(ctx, loan.BorrowerID)
	if err != nil {
		return nil, accrual.Rate{}, err
	}
	rate, err := accrual.NewRate(borrower.PeriodRate)
	if err != nil {
		return nil, accrual.Rate{}, err
	}
	return loan, rate, nil
}
