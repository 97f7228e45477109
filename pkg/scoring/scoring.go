// Package scoring turns a borrower's loan history into a lending decision.
package scoring

import (
	"github.com/mcclellann/quincena/pkg/models"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	baseScore        = 100
	newBorrowerScore = 70
	lateDaysPerMiss  = 15
)

var (
	pendingHigh         = decimal.NewFromInt(5000)
	pendingModerate     = decimal.NewFromInt(2000)
	arrearsBlock        = decimal.NewFromInt(3000)
	outstandingHigh     = decimal.NewFromInt(50000)
	outstandingModerate = decimal.NewFromInt(30000)
	half                = decimal.NewFromFloat(0.5)
)

// band maps a minimum score to its risk band and lending limit.
type band struct {
	minScore       int
	risk           models.RiskBand
	maxLoan        decimal.Decimal
	recommendation string
}

var bands = []band{
	{80, models.RiskLow, decimal.NewFromInt(20000), "Cliente confiable: se puede prestar hasta el monto máximo recomendado"},
	{60, models.RiskMedium, decimal.NewFromInt(10000), "Prestar con precaución y por montos moderados"},
	{40, models.RiskHigh, decimal.NewFromInt(5000), "Prestar solo montos pequeños y con seguimiento cercano"},
	{0, models.RiskVeryHigh, decimal.Zero, "No se recomienda prestar"},
}

const arrearsFirst = "Debe ponerse al día con los intereses pendientes antes de recibir un nuevo préstamo"

// LoanProfile is what the scorer knows about one loan: its state at
// evaluation time and how many payments of each kind were recorded.
type LoanProfile struct {
	Status           models.LoanStatus
	Principal        decimal.Decimal
	Snapshot         models.Snapshot
	CapitalPayments  int
	InterestPayments int
}

// Active loans still owe something and were not closed administratively.
func (p LoanProfile) Active() bool {
	return !p.Status.Closed() && p.Snapshot.Outstanding.IsPositive()
}

func (p LoanProfile) Paid() bool {
	return !p.Status.Closed() && !p.Snapshot.Outstanding.IsPositive()
}

// Defaulted loans are active, past their fourth period and owe more than
// half their principal in interest.
func (p LoanProfile) Defaulted() bool {
	return p.Active() && p.Snapshot.ElapsedPeriods > 4 &&
		p.Snapshot.AccruedInterest.GreaterThan(p.Principal.Mul(half))
}

func (p LoanProfile) missedPeriods() int {
	if missed := p.Snapshot.ElapsedPeriods - p.InterestPayments; missed > 0 {
		return missed
	}
	return 0
}

// Assess scores a borrower. Every rule adds to or subtracts from a base of
// 100 and the total is clamped to [0, 100] once at the end.
func Assess(loans []LoanProfile) models.CreditAssessment {
	p := message.NewPrinter(language.LatinAmericanSpanish)

	if len(loans) == 0 {
		return decide(newBorrowerScore, []string{"Cliente nuevo sin historial de préstamos"}, false)
	}

	var (
		score            = baseScore
		reasons          []string
		active, paid     int
		pending          = decimal.Zero
		outstanding      = decimal.Zero
		interestPayments int
		elapsed          int
		missed           int
		withHistory      int
		blocked          bool
	)

	for _, l := range loans {
		interestPayments += l.InterestPayments
		elapsed += l.Snapshot.ElapsedPeriods
		if l.Snapshot.ElapsedPeriods > 0 {
			missed += l.missedPeriods()
			withHistory++
		}
		if l.Paid() {
			paid++
		}
		if !l.Active() {
			continue
		}
		active++
		pending = pending.Add(l.Snapshot.AccruedInterest)
		outstanding = outstanding.Add(l.Snapshot.Outstanding)
		if l.Snapshot.AccruedInterest.GreaterThan(arrearsBlock) {
			blocked = true
		}
		if l.Defaulted() {
			score -= 40
			reasons = append(reasons, p.Sprintf("Préstamo en mora grave: %d quincenas con %.2f de interés pendiente",
				l.Snapshot.ElapsedPeriods, l.Snapshot.AccruedInterest.InexactFloat64()))
		}
	}

	if active > 3 {
		score -= 15
		reasons = append(reasons, p.Sprintf("Tiene %d préstamos activos al mismo tiempo", active))
	}

	switch {
	case pending.GreaterThan(pendingHigh):
		score -= 25
		reasons = append(reasons, p.Sprintf("Interés pendiente muy alto: %.2f", pending.InexactFloat64()))
	case pending.GreaterThan(pendingModerate):
		score -= 15
		reasons = append(reasons, p.Sprintf("Interés pendiente elevado: %.2f", pending.InexactFloat64()))
	}

	// Interest-payment count over elapsed periods stands in for punctuality;
	// amounts and dates are not reconciled per period.
	onTime := 0.0
	if elapsed > 0 {
		onTime = float64(interestPayments) / float64(elapsed)
		if onTime > 1 {
			onTime = 1
		}
		switch {
		case onTime < 0.50:
			score -= 30
			reasons = append(reasons, p.Sprintf("Pagos puntuales bajos: %.0f%%", onTime*100))
		case onTime < 0.75:
			score -= 15
			reasons = append(reasons, p.Sprintf("Pagos puntuales regulares: %.0f%%", onTime*100))
		case onTime >= 0.95:
			score += 10
			reasons = append(reasons, p.Sprintf("Excelente puntualidad: %.0f%%", onTime*100))
		}
	}

	if withHistory > 0 {
		lateDays := float64(missed*lateDaysPerMiss) / float64(withHistory)
		switch {
		case lateDays > 30:
			score -= 20
			reasons = append(reasons, p.Sprintf("Atraso promedio de %.0f días", lateDays))
		case lateDays >= 15:
			score -= 10
			reasons = append(reasons, p.Sprintf("Atraso promedio de %.0f días", lateDays))
		}
	}

	switch {
	case outstanding.GreaterThan(outstandingHigh):
		score -= 20
		reasons = append(reasons, p.Sprintf("Deuda total muy alta: %.2f", outstanding.InexactFloat64()))
	case outstanding.GreaterThan(outstandingModerate):
		score -= 10
		reasons = append(reasons, p.Sprintf("Deuda total alta: %.2f", outstanding.InexactFloat64()))
	}

	if paid > 3 && onTime > 0.85 {
		score += 15
		reasons = append(reasons, p.Sprintf("Historial sólido: %d préstamos liquidados", paid))
	}

	if blocked {
		reasons = append(reasons, "Tiene un préstamo con más de 3,000 de interés pendiente")
	}
	return decide(score, reasons, blocked)
}

// decide clamps the score, picks the band and applies the arrears override.
func decide(score int, reasons []string, blocked bool) models.CreditAssessment {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	b := bands[len(bands)-1]
	for _, candidate := range bands {
		if score >= candidate.minScore {
			b = candidate
			break
		}
	}
	assessment := models.CreditAssessment{
		Score:              score,
		RiskBand:           b.risk,
		MaxRecommendedLoan: b.maxLoan,
		ShouldLend:         b.maxLoan.IsPositive(),
		Recommendation:     b.recommendation,
		Reasons:            reasons,
	}
	if blocked {
		assessment.ShouldLend = false
		assessment.Recommendation = arrearsFirst
	}
	if assessment.Reasons == nil {
		assessment.Reasons = []string{}
	}
	return assessment
}
