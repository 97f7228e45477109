package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/quincena/pkg/ledger"
	"github.com/mcclellann/quincena/pkg/models"
	"github.com/mcclellann/quincena/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
	logger  *logrus.Logger
}

func NewServer(s store.Storage, logger *logrus.Logger, opts ...ledger.Option) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s, logger, opts...),
		storage: s,
		logger:  logger,
	}
}

// Routes registers every endpoint on a new router.
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(LogMiddleware(s.logger))

	router.HandleFunc("/borrowers", s.createBorrowerHandler).Methods(http.MethodPost)
	router.HandleFunc("/borrowers", s.listBorrowersHandler).Methods(http.MethodGet)
	router.HandleFunc("/borrowers/{id}", s.getBorrowerHandler).Methods(http.MethodGet)
	router.HandleFunc("/borrowers/{id}/rate", s.updateRateHandler).Methods(http.MethodPut)
	router.HandleFunc("/borrowers/{id}/loans", s.listLoansHandler).Methods(http.MethodGet)
	router.HandleFunc("/borrowers/{id}/loans", s.createLoanHandler).Methods(http.MethodPost)
	router.HandleFunc("/borrowers/{id}/score", s.scoreHandler).Methods(http.MethodGet)

	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods(http.MethodGet)
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods(http.MethodDelete)
	router.HandleFunc("/loans/{id}/status", s.updateStatusHandler).Methods(http.MethodPut)
	router.HandleFunc("/loans/{id}/principal", s.correctPrincipalHandler).Methods(http.MethodPut)
	router.HandleFunc("/loans/{id}/carry", s.setCarryHandler).Methods(http.MethodPut)
	router.HandleFunc("/loans/{id}/payments/capital", s.recordPaymentHandler(models.PaymentKindCapital)).Methods(http.MethodPost)
	router.HandleFunc("/loans/{id}/payments/interest", s.recordPaymentHandler(models.PaymentKindInterest)).Methods(http.MethodPost)
	router.HandleFunc("/loans/{id}/state", s.stateHandler).Methods(http.MethodGet)
	router.HandleFunc("/loans/{id}/ledger", s.ledgerHandler).Methods(http.MethodGet)

	router.HandleFunc("/payments/{id}", s.deletePaymentHandler).Methods(http.MethodDelete)
	return router
}

func (s *Server) createBorrowerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string          `json:"name"`
		PeriodRate decimal.Decimal `json:"period_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	}

	borrower, err := s.ledger.CreateBorrower(r.Context(), req.Name, req.PeriodRate)
	if err != nil {
		s.writeError(w, "create borrower", err)
		return
	}
	writeJSON(w, http.StatusCreated, borrower)
}

func (s *Server) listBorrowersHandler(w http.ResponseWriter, r *http.Request) {
	borrowers, err := s.ledger.ListBorrowers(r.Context())
	if err != nil {
		s.writeError(w, "list borrowers", err)
		return
	}
	writeJSON(w, http.StatusOK, borrowers)
}

func (s *Server) getBorrowerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "borrower")
	if !ok {
		return
	}
	borrower, err := s.ledger.GetBorrower(r.Context(), id)
	if err != nil {
		s.writeError(w, "get borrower", err)
		return
	}
	writeJSON(w, http.StatusOK, borrower)
}

func (s *Server) updateRateHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "borrower")
	if !ok {
		return
	}
	var req struct {
		PeriodRate decimal.Decimal `json:"period_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	borrower, err := s.ledger.UpdateBorrowerRate(r.Context(), id, req.PeriodRate)
	if err != nil {
		s.writeError(w, "update rate", err)
		return
	}
	writeJSON(w, http.StatusOK, borrower)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "borrower")
	if !ok {
		return
	}
	loans, err := s.ledger.ListLoans(r.Context(), id)
	if err != nil {
		s.writeError(w, "list loans", err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	borrowerID, ok := pathID(w, r, "borrower")
	if !ok {
		return
	}
	var req struct {
		Principal    decimal.Decimal `json:"principal"`
		OriginatedAt string          `json:"originated_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	originatedAt, err := parseDate(req.OriginatedAt)
	if err != nil {
		s.writeError(w, "create loan", err)
		return
	}

	loan, err := s.ledger.CreateLoan(r.Context(), borrowerID, req.Principal, originatedAt)
	if err != nil {
		s.writeError(w, "create loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) scoreHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "borrower")
	if !ok {
		return
	}
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		s.writeError(w, "score borrower", err)
		return
	}
	assessment, err := s.ledger.ScoreBorrower(r.Context(), id, asOf)
	if err != nil {
		s.writeError(w, "score borrower", err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	loan, err := s.ledger.GetLoan(r.Context(), id)
	if err != nil {
		s.writeError(w, "get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	if err := s.ledger.DeleteLoan(r.Context(), id); err != nil {
		s.writeError(w, "delete loan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	var req struct {
		Status models.LoanStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	loan, err := s.ledger.UpdateLoanStatus(r.Context(), id, req.Status)
	if err != nil {
		s.writeError(w, "update status", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) correctPrincipalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	var req struct {
		Principal decimal.Decimal `json:"principal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	loan, err := s.ledger.CorrectPrincipal(r.Context(), id, req.Principal)
	if err != nil {
		s.writeError(w, "correct principal", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) setCarryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	var req struct {
		UnpaidInterestCarry decimal.Decimal `json:"unpaid_interest_carry"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	loan, err := s.ledger.SetUnpaidInterestCarry(r.Context(), id, req.UnpaidInterestCarry)
	if err != nil {
		s.writeError(w, "set carry", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) recordPaymentHandler(kind models.PaymentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, ok := pathID(w, r, "loan")
		if !ok {
			return
		}
		var req struct {
			Amount decimal.Decimal `json:"amount"`
			PaidAt string          `json:"paid_at"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		paidAt, err := parseDate(req.PaidAt)
		if err != nil {
			s.writeError(w, "record payment", err)
			return
		}

		var payment *models.Payment
		if kind == models.PaymentKindCapital {
			payment, err = s.ledger.RecordCapitalPayment(r.Context(), loanID, req.Amount, paidAt)
		} else {
			payment, err = s.ledger.RecordInterestPayment(r.Context(), loanID, req.Amount, paidAt)
		}
		if err != nil {
			s.writeError(w, "record payment", err)
			return
		}
		writeJSON(w, http.StatusCreated, payment)
	}
}

func (s *Server) deletePaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "payment")
	if !ok {
		return
	}
	if err := s.ledger.DeletePayment(r.Context(), id); err != nil {
		s.writeError(w, "delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		s.writeError(w, "loan state", err)
		return
	}
	snap, err := s.ledger.LoanState(r.Context(), id, asOf)
	if err != nil {
		s.writeError(w, "loan state", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) ledgerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loan")
	if !ok {
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		s.writeError(w, "loan ledger", err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		s.writeError(w, "loan ledger", err)
		return
	}
	records, err := s.ledger.LoanLedger(r.Context(), id, from, to)
	if err != nil {
		s.writeError(w, "loan ledger", err)
		return
	}
	if records == nil {
		records = []models.PeriodRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// writeError maps domain errors to status codes. Unknown errors are logged and hidden.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, models.ErrBorrowerNotFound),
		errors.Is(err, models.ErrLoanNotFound),
		errors.Is(err, models.ErrPaymentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrInconsistentPaymentDate):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, models.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Warnf("Failed to %s: %v", op, err)
		http.Error(w, fmt.Sprintf("Failed to %s", op), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid %s ID", what), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// parseDate accepts a calendar date (taken as UTC midnight) or an RFC 3339 timestamp.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", models.ErrInvalidInput)
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed date %q", models.ErrInvalidInput, value)
	}
	return t, nil
}

// queryDate returns the zero time when the parameter is absent.
func queryDate(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	return parseDate(value)
}
