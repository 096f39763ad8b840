// Package credit maps an agent's repayment record to a score, a tier and a loan limit.
package credit

import (
	"github.com/Dan9191/credit-network/internal/models"
	"github.com/shopspring/decimal"
)

const (
	MinScore = 300
	MaxScore = 850

	RepaymentBonus = 10
	DefaultPenalty = 50

	// SubUnits is the number of sub-units in one currency unit
	SubUnits = 1_000_000
)

// Credit history reasons
const (
	ReasonRepaid    = "loan_repaid"
	ReasonDefaulted = "loan_defaulted"
)

// Tier is a named credit bracket
type Tier struct {
	Name     string `json:"name"`
	MinScore int    `json:"min_score"`
	MaxScore int    `json:"max_score"`
	MaxLoan  int64  `json:"max_loan_amount"`
}

// Tiers is ordered from lowest to highest
var Tiers = []Tier{
	{Name: "No Credit", MinScore: 300, MaxScore: 399, MaxLoan: 25 * SubUnits},
	{Name: "Bronze", MinScore: 400, MaxScore: 549, MaxLoan: 100 * SubUnits},
	{Name: "Silver", MinScore: 550, MaxScore: 649, MaxLoan: 250 * SubUnits},
	{Name: "Gold", MinScore: 650, MaxScore: 749, MaxLoan: 500 * SubUnits},
	{Name: "Platinum", MinScore: 750, MaxScore: 850, MaxLoan: 1000 * SubUnits},
}

// ForScore returns the tier a score falls in. Out of range scores are clamped.
func ForScore(score int) Tier {
	score = clamp(score)
	for i := len(Tiers) - 1; i >= 0; i-- {
		if score >= Tiers[i].MinScore {
			return Tiers[i]
		}
	}
	return Tiers[0]
}

// New returns the record created for a freshly registered agent
func New(address string) *models.CreditScore {
	cs := &models.CreditScore{AgentAddress: address, Score: MinScore}
	Rederive(cs)
	return cs
}

// Rederive sets tier and max loan amount from the score
func Rederive(cs *models.CreditScore) {
	cs.Score = clamp(cs.Score)
	t := ForScore(cs.Score)
	cs.Tier = t.Name
	cs.MaxLoanAmount = t.MaxLoan
}

// ApplyRepayment credits a repaid loan and returns the previous score
func ApplyRepayment(cs *models.CreditScore) int {
	old := cs.Score
	cs.TotalLoans++
	cs.RepaidLoans++
	cs.Score = min(cs.Score+RepaymentBonus, MaxScore)
	Rederive(cs)
	return old
}

// ApplyDefault penalises a defaulted loan and returns the previous score
func ApplyDefault(cs *models.CreditScore) int {
	old := cs.Score
	cs.TotalLoans++
	cs.DefaultedLoans++
	cs.Score = max(cs.Score-DefaultPenalty, MinScore)
	Rederive(cs)
	return old
}

// FormatUnits renders a sub-unit amount as whole currency units, e.g. 25000000 -> "25"
func FormatUnits(amount int64) string {
	return decimal.New(amount, -6).String()
}

func clamp(score int) int {
	return min(max(score, MinScore), MaxScore)
}
