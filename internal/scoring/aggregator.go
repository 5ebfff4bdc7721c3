package scoring

import (
	"math"
	"math/big"

	"github.com/yuanqi-assessment-server/internal/domain"
)

const (
	// causeCeiling assumes at most 20 points for each of the 8 cause labels.
	causeCeiling = 160.0

	causeWeight        = 0.5
	organWeight        = 0.3
	constitutionWeight = 0.2

	issueLimit     = 3
	issueThreshold = 10
)

// OverallHealth is the aggregated health assessment of one analysis.
type OverallHealth struct {
	Score  float64
	Level  domain.HealthLevel
	Issues []domain.PrimaryIssue
}

// ComputeOverallHealth combines cause, organ and constitution scores into one weighted score.
// The cause component is not floored, so the weighted sum is not clamped to [0, 100].
func ComputeOverallHealth(causes *domain.Scores[domain.CauseLabel], organs *domain.Scores[domain.Organ], constitutions *domain.Scores[domain.Constitution]) OverallHealth {
	causeComponent := 100 - float64(causes.Sum())/causeCeiling*100
	organComponent := math.Max(0, 100-float64(organs.Sum())/100*50)
	constitutionComponent := math.Max(0, 100-float64(constitutions.Sum())/100*30)

	score := Round2(causeComponent*causeWeight + organComponent*organWeight + constitutionComponent*constitutionWeight)

	issues := make([]domain.PrimaryIssue, 0, issueLimit)
	for _, entry := range causes.Top(issueLimit) {
		if entry.Score > issueThreshold {
			issues = append(issues, domain.PrimaryIssue{
				Type:  domain.IssueTypeCause,
				Name:  string(entry.Key),
				Score: entry.Score,
			})
		}
	}

	return OverallHealth{
		Score:  score,
		Level:  domain.HealthLevelForScore(score),
		Issues: issues,
	}
}

// Round2 rounds the exact binary value of x to two decimals, half away from zero.
// 59.995 is stored as 59.99499999... and rounds down to 59.99.
func Round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	exact := new(big.Float).SetPrec(256).SetFloat64(math.Abs(x))
	exact.Mul(exact, big.NewFloat(100)).Add(exact, big.NewFloat(0.5))
	cents, _ := exact.Int64()
	if cents == 0 {
		return 0
	}
	return math.Copysign(float64(cents)/100, x)
}
