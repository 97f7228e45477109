package accrual

import (
	"testing"

	"github.com/mcclellann/quincena/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreBorrower_NoLoans(t *testing.T) {
	a, err := ScoreBorrower(nil, rate(t, "14"), date(2024, 2, 1))

	require.NoError(t, err)
	assert.Equal(t, 70, a.Score)
	assert.Equal(t, models.RiskMedium, a.RiskBand)
	assert.True(t, a.ShouldLend)
	assertDecimal(t, "10000", a.MaxRecommendedLoan)
}

func TestScoreBorrower_PendingInterestBlocksLending(t *testing.T) {
	loan := testLoan("10000", date(2024, 1, 1))
	loan.UnpaidInterestCarry = dec("3200")

	a, err := ScoreBorrower([]models.Loan{loan}, rate(t, "14"), date(2024, 2, 1))

	// 2800 accrued + 3200 carried = 6000 pending:
	// -25 pending, -30 no interest payments, -10 thirty days late.
	require.NoError(t, err)
	assert.Equal(t, 35, a.Score)
	assert.Equal(t, models.RiskVeryHigh, a.RiskBand)
	assert.False(t, a.ShouldLend)
}

func TestScoreBorrower_PropagatesAllocationErrors(t *testing.T) {
	loan := testLoan("10000", date(2024, 1, 10),
		payment(models.PaymentKindInterest, "100", date(2024, 1, 1)))

	_, err := ScoreBorrower([]models.Loan{loan}, rate(t, "14"), date(2024, 2, 1))

	assert.ErrorIs(t, err, models.ErrInconsistentPaymentDate)
}
