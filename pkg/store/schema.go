package store

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "postgres"
)

// Decimals are stored as TEXT in SQLite so no precision is lost.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS borrowers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	period_rate TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS loans (
	id TEXT PRIMARY KEY,
	borrower_id TEXT NOT NULL,
	principal TEXT NOT NULL,
	originated_at DATETIME NOT NULL,
	unpaid_interest_carry TEXT NOT NULL DEFAULT '0',
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY(borrower_id) REFERENCES borrowers(id)
);
CREATE TABLE IF NOT EXISTS payments (
	id TEXT PRIMARY KEY,
	loan_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	amount TEXT NOT NULL,
	paid_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY(loan_id) REFERENCES loans(id)
);
CREATE INDEX IF NOT EXISTS idx_loans_borrower ON loans(borrower_id);
CREATE INDEX IF NOT EXISTS idx_payments_loan ON payments(loan_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS borrowers (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	period_rate NUMERIC NOT NULL CHECK (period_rate >= 0),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS loans (
	id UUID PRIMARY KEY,
	borrower_id UUID NOT NULL REFERENCES borrowers(id),
	principal NUMERIC NOT NULL CHECK (principal >= 0),
	originated_at TIMESTAMPTZ NOT NULL,
	unpaid_interest_carry NUMERIC NOT NULL DEFAULT 0 CHECK (unpaid_interest_carry >= 0),
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	loan_id UUID NOT NULL REFERENCES loans(id),
	kind TEXT NOT NULL,
	amount NUMERIC NOT NULL CHECK (amount > 0),
	paid_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_loans_borrower ON loans(borrower_id);
CREATE INDEX IF NOT EXISTS idx_payments_loan ON payments(loan_id);
`
