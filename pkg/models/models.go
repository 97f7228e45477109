package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrInconsistentPaymentDate = errors.New("payment dated before loan origination")
	ErrBorrowerNotFound        = errors.New("borrower not found")
	ErrLoanNotFound            = errors.New("loan not found")
	ErrPaymentNotFound         = errors.New("payment not found")
)

type LoanStatus string

const (
	LoanStatusActive     LoanStatus = "active"
	LoanStatusPaid       LoanStatus = "paid"
	LoanStatusOverdue    LoanStatus = "overdue"
	LoanStatusCancelled  LoanStatus = "cancelled"
	LoanStatusRefinanced LoanStatus = "refinanced"
)

// Valid reports whether s is one of the known lifecycle states.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusActive, LoanStatusPaid, LoanStatusOverdue, LoanStatusCancelled, LoanStatusRefinanced:
		return true
	}
	return false
}

// Closed loans are excluded from the active portfolio regardless of balance.
func (s LoanStatus) Closed() bool {
	return s == LoanStatusCancelled || s == LoanStatusRefinanced
}

type PaymentKind string

const (
	PaymentKindCapital  PaymentKind = "capital"
	PaymentKindInterest PaymentKind = "interest"
)

// Borrower owns loans and carries the period rate applied to all of them.
type Borrower struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Name       string          `json:"name" db:"name"`
	PeriodRate decimal.Decimal `json:"period_rate" db:"period_rate"` // Percentage charged every 15 days, e.g. 14
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

type Loan struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	BorrowerID          uuid.UUID       `json:"borrower_id" db:"borrower_id"`
	Principal           decimal.Decimal `json:"principal" db:"principal"`
	OriginatedAt        time.Time       `json:"originated_at" db:"originated_at"`
	UnpaidInterestCarry decimal.Decimal `json:"unpaid_interest_carry" db:"unpaid_interest_carry"` // Arrears predating period tracking
	Status              LoanStatus      `json:"status" db:"status"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`

	CapitalPayments  []Payment `json:"capital_payments" db:"-"`
	InterestPayments []Payment `json:"interest_payments" db:"-"`
}

type Payment struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	LoanID    uuid.UUID       `json:"loan_id" db:"loan_id"`
	Kind      PaymentKind     `json:"kind" db:"kind"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	PaidAt    time.Time       `json:"paid_at" db:"paid_at"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// NewBorrower validates the rate and returns a borrower with a fresh ID.
func NewBorrower(name string, periodRate decimal.Decimal) (*Borrower, error) {
	if periodRate.IsNegative() {
		return nil, fmt.Errorf("%w: period rate %s is negative", ErrInvalidInput, periodRate)
	}
	now := time.Now()
	return &Borrower{
		ID:         uuid.New(),
		Name:       name,
		PeriodRate: periodRate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// NewLoan validates principal and origination and returns an active loan.
func NewLoan(borrowerID uuid.UUID, principal decimal.Decimal, originatedAt time.Time) (*Loan, error) {
	if principal.IsNegative() {
		return nil, fmt.Errorf("%w: principal %s is negative", ErrInvalidInput, principal)
	}
	if originatedAt.IsZero() {
		return nil, fmt.Errorf("%w: origination date is required", ErrInvalidInput)
	}
	now := time.Now()
	return &Loan{
		ID:                  uuid.New(),
		BorrowerID:          borrowerID,
		Principal:           principal,
		OriginatedAt:        originatedAt,
		UnpaidInterestCarry: decimal.Zero,
		Status:              LoanStatusActive,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// NewPayment validates a payment against the loan it is recorded on.
func NewPayment(loan *Loan, kind PaymentKind, amount decimal.Decimal, paidAt time.Time) (*Payment, error) {
	if kind != PaymentKindCapital && kind != PaymentKindInterest {
		return nil, fmt.Errorf("%w: unknown payment kind %q", ErrInvalidInput, kind)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive, got %s", ErrInvalidInput, amount)
	}
	if paidAt.IsZero() {
		return nil, fmt.Errorf("%w: payment date is required", ErrInvalidInput)
	}
	if paidAt.Before(loan.OriginatedAt) {
		return nil, fmt.Errorf("%w: %s is before %s", ErrInconsistentPaymentDate,
			paidAt.Format(time.RFC3339), loan.OriginatedAt.Format(time.RFC3339))
	}
	return &Payment{
		ID:        uuid.New(),
		LoanID:    loan.ID,
		Kind:      kind,
		Amount:    amount,
		PaidAt:    paidAt,
		CreatedAt: time.Now(),
	}, nil
}

// Attach files p under the slice matching its kind.
func (l *Loan) Attach(p Payment) {
	switch p.Kind {
	case PaymentKindCapital:
		l.CapitalPayments = append(l.CapitalPayments, p)
	case PaymentKindInterest:
		l.InterestPayments = append(l.InterestPayments, p)
	}
}

// SortPayments orders a copy of payments by date, keeping insertion order on ties.
func SortPayments(payments []Payment) []Payment {
	sorted := make([]Payment, len(payments))
	copy(sorted, payments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PaidAt.Before(sorted[j].PaidAt)
	})
	return sorted
}

// SumPayments adds up the amounts of all payments.
func SumPayments(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}
