package scoring

import (
	"fmt"

	"github.com/yuanqi-assessment-server/internal/domain"
)

// trendThreshold is the total_score delta beyond which a comparison is not stable.
const trendThreshold = 10

// Compare diffs exactly two assessments, the first being the baseline.
func Compare(pair []*domain.Assessment) (*domain.Comparison, error) {
	if len(pair) != 2 {
		return nil, fmt.Errorf("comparing %d assessments: %w", len(pair), domain.ErrInvalidComparison)
	}
	a, b := pair[0], pair[1]
	if a == nil || b == nil {
		return nil, fmt.Errorf("comparing nil assessment: %w", domain.ErrInvalidComparison)
	}

	totalChange := b.TotalScore - a.TotalScore
	total := domain.TotalScoreChange{
		Before: a.TotalScore,
		After:  b.TotalScore,
		Change: totalChange,
	}
	if a.TotalScore != 0 {
		pct := Round2(float64(totalChange) / float64(a.TotalScore) * 100)
		total.Percentage = &pct
	}

	avg := domain.AvgScoreChange{
		Before: a.AvgScore,
		After:  b.AvgScore,
		Change: Round2(b.AvgScore - a.AvgScore),
	}
	if a.AvgScore != 0 {
		pct := Round2((b.AvgScore - a.AvgScore) / a.AvgScore * 100)
		avg.Percentage = &pct
	}

	return &domain.Comparison{
		AssessmentA:    a.Summary(),
		AssessmentB:    b.Summary(),
		SymptomChanges: diffSymptoms(a.Symptoms, b.Symptoms),
		ScoreChanges: domain.ScoreChanges{
			TotalScore: total,
			AvgScore:   avg,
		},
		HealthTrend: trendFor(totalChange),
	}, nil
}

func trendFor(totalChange int) domain.HealthTrend {
	switch {
	case totalChange < -trendThreshold:
		return domain.TrendImproving
	case totalChange > trendThreshold:
		return domain.TrendWorsening
	default:
		return domain.TrendStable
	}
}

// intensityIndex maps symptom names to intensity. A repeated name keeps its first position and
// its last intensity.
type intensityIndex struct {
	names  []string
	values map[string]int
}

func indexSymptoms(symptoms []domain.SymptomRecord) intensityIndex {
	idx := intensityIndex{values: make(map[string]int, len(symptoms))}
	for _, s := range symptoms {
		if _, seen := idx.values[s.SymptomName]; !seen {
			idx.names = append(idx.names, s.SymptomName)
		}
		idx.values[s.SymptomName] = s.Intensity
	}
	return idx
}

func diffSymptoms(before, after []domain.SymptomRecord) domain.SymptomChanges {
	changes := domain.SymptomChanges{
		Improved: []domain.SymptomChange{},
		Worsened: []domain.SymptomChange{},
		New:      []domain.SymptomPresence{},
		Resolved: []domain.SymptomPresence{},
	}

	a, b := indexSymptoms(before), indexSymptoms(after)

	for _, name := range a.names {
		was := a.values[name]
		now, ok := b.values[name]
		if !ok {
			changes.Resolved = append(changes.Resolved, domain.SymptomPresence{Name: name, Intensity: was})
			continue
		}
		change := domain.SymptomChange{Name: name, Before: was, After: now, Change: now - was}
		switch {
		case now < was:
			changes.Improved = append(changes.Improved, change)
		case now > was:
			changes.Worsened = append(changes.Worsened, change)
		}
	}

	for _, name := range b.names {
		if _, ok := a.values[name]; !ok {
			changes.New = append(changes.New, domain.SymptomPresence{Name: name, Intensity: b.values[name]})
		}
	}

	return changes
}
