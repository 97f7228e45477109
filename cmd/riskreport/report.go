package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mcclellann/quincena/pkg/ledger"
)

var reportHeader = []string{
	"borrower_id", "name", "as_of", "score", "risk_band",
	"should_lend", "max_recommended_loan", "recommendation", "reasons",
}

// WriteScores writes one CSV row per borrower assessment.
func WriteScores(w io.Writer, scores []ledger.BorrowerScore) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(reportHeader); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	for _, s := range scores {
		a := s.Assessment
		record := []string{
			s.Borrower.ID.String(),
			s.Borrower.Name,
			s.AsOf.Format(time.DateOnly),
			strconv.Itoa(a.Score),
			string(a.RiskBand),
			strconv.FormatBool(a.ShouldLend),
			a.MaxRecommendedLoan.StringFixed(2),
			a.Recommendation,
			strings.Join(a.Reasons, "; "),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("error writing score for borrower %s: %w", s.Borrower.ID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
