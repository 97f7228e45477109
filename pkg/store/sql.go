package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mcclellann/quincena/pkg/models"
	"github.com/shopspring/decimal"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	borrowerColumns = `id, name, period_rate, created_at, updated_at`
	loanColumns     = `id, borrower_id, principal, originated_at, unpaid_interest_carry, status, created_at, updated_at`
	paymentColumns  = `id, loan_id, kind, amount, paid_at, created_at`
)

// SQLStore manages the database connection and operations for SQLite and PostgreSQL.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// NewSQLStore opens the database for driver ("sqlite3" or "postgres") and initializes the schema.
func NewSQLStore(driver, dataSourceName string) (*SQLStore, error) {
	var schema string
	switch driver {
	case driverSQLite:
		schema = sqliteSchema
	case driverPostgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if driver == driverSQLite {
		// PRAGMAs are per connection; a single connection keeps foreign keys enforced.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return &SQLStore{db: db, driver: driver}, nil
}

// NewSQLiteStore opens a SQLite database file.
func NewSQLiteStore(dataSourceName string) (*SQLStore, error) {
	return NewSQLStore(driverSQLite, dataSourceName)
}

// NewPostgresStore opens a PostgreSQL database.
func NewPostgresStore(dataSourceName string) (*SQLStore, error) {
	return NewSQLStore(driverPostgres, dataSourceName)
}

func (s *SQLStore) q(query string) string {
	return s.db.Rebind(query)
}

// CreateBorrower inserts a new borrower.
func (s *SQLStore) CreateBorrower(ctx context.Context, borrower *models.Borrower) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO borrowers (`+borrowerColumns+`) VALUES (:id, :name, :period_rate, :created_at, :updated_at)`,
		borrower)
	if err != nil {
		return fmt.Errorf("failed to create borrower: %w", err)
	}
	return nil
}

// GetBorrower retrieves a borrower by its ID.
func (s *SQLStore) GetBorrower(ctx context.Context, id uuid.UUID) (*models.Borrower, error) {
	var borrower models.Borrower
	err := s.db.GetContext(ctx, &borrower, s.q(`SELECT `+borrowerColumns+` FROM borrowers WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrBorrowerNotFound
		}
		return nil, fmt.Errorf("failed to get borrower: %w", err)
	}
	return &borrower, nil
}

// UpdateBorrower updates the name and period rate of a borrower.
func (s *SQLStore) UpdateBorrower(ctx context.Context, borrower *models.Borrower) error {
	result, err := s.db.NamedExecContext(ctx,
		`UPDATE borrowers SET name = :name, period_rate = :period_rate, updated_at = :updated_at WHERE id = :id`,
		borrower)
	if err != nil {
		return fmt.Errorf("failed to update borrower: %w", err)
	}
	return expectRow(result, models.ErrBorrowerNotFound)
}

// GetAllBorrowers retrieves all borrowers ordered by name.
func (s *SQLStore) GetAllBorrowers(ctx context.Context) ([]*models.Borrower, error) {
	var borrowers []*models.Borrower
	if err := s.db.SelectContext(ctx, &borrowers, `SELECT `+borrowerColumns+` FROM borrowers ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("failed to get all borrowers: %w", err)
	}
	return borrowers, nil
}

// CreateLoan inserts a new loan. Payments on the struct are not written.
func (s *SQLStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO loans (`+loanColumns+`)
		VALUES (:id, :borrower_id, :principal, :originated_at, :unpaid_interest_carry, :status, :created_at, :updated_at)`,
		loan)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan and its payments.
func (s *SQLStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := s.db.GetContext(ctx, &loan, s.q(`SELECT `+loanColumns+` FROM loans WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}

	payments, err := s.GetPaymentsForLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		loan.Attach(*p)
	}
	return &loan, nil
}

// UpdateLoan writes principal and status. The carry is only changed through SetUnpaidInterestCarry.
func (s *SQLStore) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	result, err := s.db.NamedExecContext(ctx,
		`UPDATE loans SET principal = :principal, status = :status, updated_at = :updated_at WHERE id = :id`,
		loan)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return expectRow(result, models.ErrLoanNotFound)
}

// SetUnpaidInterestCarry replaces the carry inside a transaction holding the loan row.
func (s *SQLStore) SetUnpaidInterestCarry(ctx context.Context, loanID uuid.UUID, carry decimal.Decimal) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lock := `SELECT id FROM loans WHERE id = ?`
	if s.driver == driverPostgres {
		lock += ` FOR UPDATE`
	}
	var locked uuid.UUID
	if err := tx.GetContext(ctx, &locked, tx.Rebind(lock), loanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrLoanNotFound
		}
		return fmt.Errorf("failed to lock loan: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE loans SET unpaid_interest_carry = ?, updated_at = ? WHERE id = ?`),
		carry, time.Now(), loanID); err != nil {
		return fmt.Errorf("failed to update unpaid interest carry: %w", err)
	}
	return tx.Commit()
}

// DeleteLoan removes a loan and its payments from the database within a transaction.
func (s *SQLStore) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM payments WHERE loan_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete associated payments: %w", err)
	}

	result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM loans WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	if err := expectRow(result, models.ErrLoanNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

// GetLoansForBorrower retrieves a borrower's loans, oldest first, with payments attached.
func (s *SQLStore) GetLoansForBorrower(ctx context.Context, borrowerID uuid.UUID) ([]*models.Loan, error) {
	var loans []*models.Loan
	err := s.db.SelectContext(ctx, &loans,
		s.q(`SELECT `+loanColumns+` FROM loans WHERE borrower_id = ? ORDER BY originated_at, id`), borrowerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get loans for borrower %s: %w", borrowerID, err)
	}
	if len(loans) == 0 {
		return loans, nil
	}

	var payments []*models.Payment
	err = s.db.SelectContext(ctx, &payments,
		s.q(`SELECT `+paymentColumns+` FROM payments
		WHERE loan_id IN (SELECT id FROM loans WHERE borrower_id = ?)
		ORDER BY paid_at, created_at`), borrowerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for borrower %s: %w", borrowerID, err)
	}

	byID := make(map[uuid.UUID]*models.Loan, len(loans))
	for _, loan := range loans {
		byID[loan.ID] = loan
	}
	for _, p := range payments {
		if loan, ok := byID[p.LoanID]; ok {
			loan.Attach(*p)
		}
	}
	return loans, nil
}

// CreatePayment inserts a new payment.
func (s *SQLStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES (:id, :loan_id, :kind, :amount, :paid_at, :created_at)`,
		payment)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// DeletePayment removes a single payment.
func (s *SQLStore) DeletePayment(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM payments WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return expectRow(result, models.ErrPaymentNotFound)
}

// GetPaymentsForLoan retrieves all payments for a loan ordered by date.
func (s *SQLStore) GetPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := s.db.SelectContext(ctx, &payments,
		s.q(`SELECT `+paymentColumns+` FROM payments WHERE loan_id = ? ORDER BY paid_at, created_at`), loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for loan %s: %w", loanID, err)
	}
	return payments, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func expectRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
