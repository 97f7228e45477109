package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcclellann/quincena/pkg/models"
	"github.com/shopspring/decimal"
)

// Storage defines the interface for database operations on borrowers, loans and payments.
type Storage interface {
	CreateBorrower(ctx context.Context, borrower *models.Borrower) error
	GetBorrower(ctx context.Context, id uuid.UUID) (*models.Borrower, error)
	UpdateBorrower(ctx context.Context, borrower *models.Borrower) error
	GetAllBorrowers(ctx context.Context) ([]*models.Borrower, error)

	// Loans are returned with their capital and interest payments attached.
	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	UpdateLoan(ctx context.Context, loan *models.Loan) error
	DeleteLoan(ctx context.Context, id uuid.UUID) error
	GetLoansForBorrower(ctx context.Context, borrowerID uuid.UUID) ([]*models.Loan, error)
	// SetUnpaidInterestCarry replaces the stored carry under a row lock.
	SetUnpaidInterestCarry(ctx context.Context, loanID uuid.UUID, carry decimal.Decimal) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	DeletePayment(ctx context.Context, id uuid.UUID) error
	GetPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error)

	Close() error
}
