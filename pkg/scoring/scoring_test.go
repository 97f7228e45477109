package scoring

import (
	"testing"

	"github.com/mcclellann/quincena/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profile(principal, accrued, outstanding int64, elapsed, interestPayments int) LoanProfile {
	return LoanProfile{
		Status:    models.LoanStatusActive,
		Principal: decimal.NewFromInt(principal),
		Snapshot: models.Snapshot{
			AccruedInterest: decimal.NewFromInt(accrued),
			Outstanding:     decimal.NewFromInt(outstanding),
			ElapsedPeriods:  elapsed,
		},
		InterestPayments: interestPayments,
	}
}

func TestAssess_NewBorrower(t *testing.T) {
	a := Assess(nil)

	assert.Equal(t, 70, a.Score)
	assert.Equal(t, models.RiskMedium, a.RiskBand)
	assert.True(t, a.ShouldLend)
	assert.True(t, decimal.NewFromInt(10000).Equal(a.MaxRecommendedLoan))
	assert.Len(t, a.Reasons, 1)
}

func TestAssess_ArrearsOverrideBlocksLending(t *testing.T) {
	a := Assess([]LoanProfile{profile(10000, 6000, 16000, 3, 3)})

	// 100 - 25 (pending > 5000) + 10 (punctual)
	assert.Equal(t, 85, a.Score)
	assert.Equal(t, models.RiskLow, a.RiskBand)
	assert.False(t, a.ShouldLend)
	assert.Equal(t, arrearsFirst, a.Recommendation)
}

func TestAssess_ModeratePendingInterest(t *testing.T) {
	a := Assess([]LoanProfile{profile(10000, 2500, 12500, 2, 2)})

	assert.Equal(t, 95, a.Score)
	assert.True(t, a.ShouldLend)
}

func TestAssess_DefaultedLoansAreCumulative(t *testing.T) {
	a := Assess([]LoanProfile{
		profile(10000, 6000, 16000, 6, 0),
		profile(10000, 6000, 16000, 6, 0),
	})

	assert.Equal(t, 0, a.Score)
	assert.Equal(t, models.RiskVeryHigh, a.RiskBand)
	assert.False(t, a.ShouldLend)
	assert.True(t, a.MaxRecommendedLoan.IsZero())
}

func TestAssess_SingleDefaultedLoan(t *testing.T) {
	// elapsed 5, 1 interest payment, 2600 pending on 5000 principal:
	// -40 default, -15 pending, -30 punctuality (20%), -20 lateness (60 days)
	a := Assess([]LoanProfile{profile(5000, 2600, 7600, 5, 1)})

	assert.Equal(t, 0, a.Score)
	assert.Equal(t, models.RiskVeryHigh, a.RiskBand)
}

func TestAssess_TooManyActiveLoans(t *testing.T) {
	loans := []LoanProfile{
		profile(1000, 0, 1000, 0, 0),
		profile(1000, 0, 1000, 0, 0),
		profile(1000, 0, 1000, 0, 0),
		profile(1000, 0, 1000, 0, 0),
	}

	a := Assess(loans)

	assert.Equal(t, 85, a.Score)
	assert.True(t, a.ShouldLend)
}

func TestAssess_LatenessAndPunctuality(t *testing.T) {
	// 3 of 4 periods paid: 75% punctual (no adjustment), 15 days late on average.
	a := Assess([]LoanProfile{profile(2000, 280, 2280, 4, 3)})
	assert.Equal(t, 90, a.Score)

	// 2 of 4 paid: 50% punctual (-15), 30 days late (-10).
	a = Assess([]LoanProfile{profile(2000, 560, 2560, 4, 2)})
	assert.Equal(t, 75, a.Score)
	assert.Equal(t, models.RiskMedium, a.RiskBand)
}

func TestAssess_OutstandingDebt(t *testing.T) {
	a := Assess([]LoanProfile{profile(40000, 0, 40000, 0, 0)})
	assert.Equal(t, 90, a.Score)

	a = Assess([]LoanProfile{profile(60000, 0, 60000, 0, 0)})
	assert.Equal(t, 80, a.Score)
	assert.Equal(t, models.RiskLow, a.RiskBand)
}

func TestAssess_PaidHistoryBonusIsClamped(t *testing.T) {
	loans := make([]LoanProfile, 4)
	for i := range loans {
		loans[i] = profile(1000, 0, 0, 2, 2)
	}

	a := Assess(loans)

	assert.Equal(t, 100, a.Score)
	assert.Equal(t, models.RiskLow, a.RiskBand)
	assert.True(t, decimal.NewFromInt(20000).Equal(a.MaxRecommendedLoan))
	require.Len(t, a.Reasons, 2)
}

func TestAssess_ClosedLoansAreNotActive(t *testing.T) {
	refinanced := profile(10000, 6000, 16000, 6, 0)
	refinanced.Status = models.LoanStatusRefinanced

	assert.False(t, refinanced.Active())
	assert.False(t, refinanced.Paid())
	assert.False(t, refinanced.Defaulted())

	// Only punctuality (-30) and lateness (-20) still count.
	a := Assess([]LoanProfile{refinanced})
	assert.Equal(t, 50, a.Score)
	assert.Equal(t, models.RiskHigh, a.RiskBand)
	assert.True(t, a.ShouldLend)
	assert.NotEqual(t, arrearsFirst, a.Recommendation)
}

func TestAssess_BandEdges(t *testing.T) {
	cases := []struct {
		score int
		band  models.RiskBand
		max   int64
	}{
		{100, models.RiskLow, 20000},
		{80, models.RiskLow, 20000},
		{79, models.RiskMedium, 10000},
		{60, models.RiskMedium, 10000},
		{59, models.RiskHigh, 5000},
		{40, models.RiskHigh, 5000},
		{39, models.RiskVeryHigh, 0},
		{-50, models.RiskVeryHigh, 0},
	}
	for _, tc := range cases {
		a := decide(tc.score, nil, false)
		assert.Equal(t, tc.band, a.RiskBand, "score %d", tc.score)
		assert.True(t, decimal.NewFromInt(tc.max).Equal(a.MaxRecommendedLoan), "score %d", tc.score)
		assert.Equal(t, tc.max > 0, a.ShouldLend, "score %d", tc.score)
		assert.NotNil(t, a.Reasons)
	}
}
