package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/quincena/pkg/ledger"
	"github.com/mcclellann/quincena/pkg/models"
	"github.com/mcclellann/quincena/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func setupTestServer(t *testing.T) (*Server, *mux.Router) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test_api.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	server := NewServer(s, logger, ledger.WithClock(func() time.Time { return now }))
	return server, server.Routes()
}

func do(t *testing.T, router *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func createBorrowerAndLoan(t *testing.T, router *mux.Router) (models.Borrower, models.Loan) {
	t.Helper()
	rr := do(t, router, http.MethodPost, "/borrowers", map[string]any{"name": "Ana", "period_rate": "14"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var borrower models.Borrower
	json.Unmarshal(rr.Body.Bytes(), &borrower)

	rr = do(t, router, http.MethodPost, "/borrowers/"+borrower.ID.String()+"/loans",
		map[string]any{"principal": 10000, "originated_at": "2024-01-01"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var loan models.Loan
	json.Unmarshal(rr.Body.Bytes(), &loan)
	return borrower, loan
}

func TestAPI_CreateAndGetLoan(t *testing.T) {
	_, router := setupTestServer(t)
	borrower, loan := createBorrowerAndLoan(t, router)

	if !loan.Principal.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Expected principal 10000, got %s", loan.Principal)
	}
	if loan.BorrowerID != borrower.ID {
		t.Errorf("Expected borrower %s, got %s", borrower.ID, loan.BorrowerID)
	}

	rr := do(t, router, http.MethodGet, "/loans/"+loan.ID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var fetched models.Loan
	json.Unmarshal(rr.Body.Bytes(), &fetched)
	if fetched.ID != loan.ID {
		t.Errorf("Expected ID %s, got %s", loan.ID, fetched.ID)
	}

	rr = do(t, router, http.MethodGet, "/borrowers/"+borrower.ID.String()+"/loans", nil)
	var loans []models.Loan
	json.Unmarshal(rr.Body.Bytes(), &loans)
	if len(loans) != 1 {
		t.Errorf("Expected 1 loan for borrower, got %d", len(loans))
	}
}

func TestAPI_PaymentsStateAndLedger(t *testing.T) {
	_, router := setupTestServer(t)
	_, loan := createBorrowerAndLoan(t, router)
	base := "/loans/" + loan.ID.String()

	rr := do(t, router, http.MethodPost, base+"/payments/capital", map[string]any{"amount": "5000", "paid_at": "2024-01-10"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, router, http.MethodGet, base+"/state?as_of=2024-02-01", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var snap models.Snapshot
	json.Unmarshal(rr.Body.Bytes(), &snap)
	if !snap.Outstanding.Equal(decimal.NewFromInt(7100)) {
		t.Errorf("Expected outstanding 7100, got %s", snap.Outstanding)
	}
	if !snap.AccruedInterest.Equal(decimal.NewFromInt(2100)) {
		t.Errorf("Expected accrued 2100, got %s", snap.AccruedInterest)
	}

	rr = do(t, router, http.MethodGet, base+"/ledger", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var records []models.PeriodRecord
	json.Unmarshal(rr.Body.Bytes(), &records)
	if len(records) != 5 {
		t.Fatalf("Expected 5 ledger records, got %d", len(records))
	}
	if !records[0].CapitalPaid.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("Expected 5000 capital paid in period 1, got %s", records[0].CapitalPaid)
	}

	rr = do(t, router, http.MethodGet, base+"/ledger?from=2023-01-01&to=2023-06-01", nil)
	if rr.Code != http.StatusOK || bytes.TrimSpace(rr.Body.Bytes())[0] != '[' {
		t.Errorf("Expected empty JSON array before origination, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAPI_ScoreBorrower(t *testing.T) {
	_, router := setupTestServer(t)
	borrower, loan := createBorrowerAndLoan(t, router)

	rr := do(t, router, http.MethodPut, "/loans/"+loan.ID.String()+"/carry", map[string]any{"unpaid_interest_carry": "3200"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, router, http.MethodGet, "/borrowers/"+borrower.ID.String()+"/score", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var assessment models.CreditAssessment
	json.Unmarshal(rr.Body.Bytes(), &assessment)
	if assessment.ShouldLend {
		t.Error("Expected lending to be blocked")
	}
	if assessment.Score != 35 || assessment.RiskBand != models.RiskVeryHigh {
		t.Errorf("Expected 35/muy_alto, got %d/%s", assessment.Score, assessment.RiskBand)
	}
}

func TestAPI_AdministrativeUpdates(t *testing.T) {
	_, router := setupTestServer(t)
	borrower, loan := createBorrowerAndLoan(t, router)
	base := "/loans/" + loan.ID.String()

	rr := do(t, router, http.MethodPut, "/borrowers/"+borrower.ID.String()+"/rate", map[string]any{"period_rate": "10"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = do(t, router, http.MethodPut, base+"/principal", map[string]any{"principal": "5000"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = do(t, router, http.MethodPut, base+"/status", map[string]any{"status": "overdue"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, router, http.MethodGet, base+"/state", nil)
	var snap models.Snapshot
	json.Unmarshal(rr.Body.Bytes(), &snap)
	// 5000 at 10% for two periods.
	if !snap.Outstanding.Equal(decimal.NewFromInt(6000)) {
		t.Errorf("Expected outstanding 6000, got %s", snap.Outstanding)
	}
}

func TestAPI_DeletePaymentAndLoan(t *testing.T) {
	_, router := setupTestServer(t)
	_, loan := createBorrowerAndLoan(t, router)
	base := "/loans/" + loan.ID.String()

	rr := do(t, router, http.MethodPost, base+"/payments/interest", map[string]any{"amount": "1400", "paid_at": "2024-01-16T10:00:00Z"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var payment models.Payment
	json.Unmarshal(rr.Body.Bytes(), &payment)

	if rr = do(t, router, http.MethodDelete, "/payments/"+payment.ID.String(), nil); rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}
	if rr = do(t, router, http.MethodDelete, "/payments/"+payment.ID.String(), nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
	if rr = do(t, router, http.MethodDelete, base, nil); rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}
	if rr = do(t, router, http.MethodGet, base, nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestAPI_ErrorMapping(t *testing.T) {
	_, router := setupTestServer(t)
	_, loan := createBorrowerAndLoan(t, router)
	base := "/loans/" + loan.ID.String()

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad id", http.MethodGet, "/loans/not-a-uuid", nil, http.StatusBadRequest},
		{"unknown loan", http.MethodGet, "/loans/00000000-0000-0000-0000-000000000000", nil, http.StatusNotFound},
		{"unknown borrower", http.MethodGet, "/borrowers/00000000-0000-0000-0000-000000000000/score", nil, http.StatusNotFound},
		{"payment before origination", http.MethodPost, base + "/payments/interest", map[string]any{"amount": "10", "paid_at": "2023-12-31"}, http.StatusUnprocessableEntity},
		{"non-positive amount", http.MethodPost, base + "/payments/capital", map[string]any{"amount": "0", "paid_at": "2024-01-05"}, http.StatusBadRequest},
		{"malformed date", http.MethodPost, base + "/payments/capital", map[string]any{"amount": "10", "paid_at": "05/01/2024"}, http.StatusBadRequest},
		{"malformed as_of", http.MethodGet, base + "/state?as_of=yesterday", nil, http.StatusBadRequest},
		{"inverted range", http.MethodGet, base + "/ledger?from=2024-02-01&to=2024-01-20", nil, http.StatusBadRequest},
		{"negative carry", http.MethodPut, base + "/carry", map[string]any{"unpaid_interest_carry": "-1"}, http.StatusBadRequest},
		{"unknown status", http.MethodPut, base + "/status", map[string]any{"status": "closed"}, http.StatusBadRequest},
		{"negative rate", http.MethodPost, "/borrowers", map[string]any{"name": "X", "period_rate": "-2"}, http.StatusBadRequest},
		{"missing name", http.MethodPost, "/borrowers", map[string]any{"period_rate": "2"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, router, tc.method, tc.path, tc.body)
			if rr.Code != tc.want {
				t.Errorf("Expected status %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-01-16")
	if err != nil || !d.Equal(time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected 2024-01-16 UTC, got %s (%v)", d, err)
	}
	d, err = parseDate("2024-01-16T08:30:00-06:00")
	if err != nil || !d.Equal(time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC)) {
		t.Errorf("Expected 14:30 UTC, got %s (%v)", d, err)
	}
	if _, err := parseDate(""); err == nil {
		t.Error("Expected error for empty date")
	}
}
