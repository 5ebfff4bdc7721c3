package scoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanqi-assessment-server/internal/domain"
)

func assessment(id int64, symptoms ...domain.SymptomRecord) *domain.Assessment {
	total := 0
	for _, s := range symptoms {
		total += s.Intensity
	}
	avg := 0.0
	if len(symptoms) > 0 {
		avg = Round2(float64(total) / float64(len(symptoms)))
	}
	return &domain.Assessment{
		ID:             id,
		Code:           fmt.Sprintf("YA20250101%04d", id),
		AssessmentDate: time.Date(2025, 1, int(id), 0, 0, 0, 0, time.UTC),
		TotalSymptoms:  len(symptoms),
		TotalScore:     total,
		AvgScore:       avg,
		Status:         domain.StatusAnalyzed,
		Symptoms:       symptoms,
	}
}

func TestCompareRequiresExactlyTwo(t *testing.T) {
	a := assessment(1, record(1, "头痛", 10))

	for _, pair := range [][]*domain.Assessment{nil, {a}, {a, a, a}} {
		_, err := Compare(pair)
		assert.ErrorIs(t, err, domain.ErrInvalidComparison)
	}
}

func TestCompareSameAssessmentIsStable(t *testing.T) {
	a := assessment(1, record(1, "头痛", 10), record(2, "失眠", 8))

	cmp, err := Compare([]*domain.Assessment{a, a})
	require.NoError(t, err)

	assert.Empty(t, cmp.SymptomChanges.Improved)
	assert.Empty(t, cmp.SymptomChanges.Worsened)
	assert.Empty(t, cmp.SymptomChanges.New)
	assert.Empty(t, cmp.SymptomChanges.Resolved)
	assert.NotNil(t, cmp.SymptomChanges.Improved, "lists encode as [] rather than null")
	assert.Equal(t, domain.TrendStable, cmp.HealthTrend)
	require.NotNil(t, cmp.ScoreChanges.TotalScore.Percentage)
	assert.Equal(t, 0.0, *cmp.ScoreChanges.TotalScore.Percentage)
}

func TestCompareClassifiesSymptoms(t *testing.T) {
	a := assessment(1, record(1, "头痛", 10))
	b := assessment(2, record(1, "头痛", 4), record(2, "失眠", 8))

	cmp, err := Compare([]*domain.Assessment{a, b})
	require.NoError(t, err)

	assert.Equal(t, []domain.SymptomChange{{Name: "头痛", Before: 10, After: 4, Change: -6}}, cmp.SymptomChanges.Improved)
	assert.Equal(t, []domain.SymptomPresence{{Name: "失眠", Intensity: 8}}, cmp.SymptomChanges.New)
	assert.Empty(t, cmp.SymptomChanges.Resolved)
	assert.Empty(t, cmp.SymptomChanges.Worsened)

	assert.Equal(t, int64(1), cmp.AssessmentA.ID)
	assert.Equal(t, int64(2), cmp.AssessmentB.ID)
	assert.Equal(t, 2, cmp.ScoreChanges.TotalScore.Change)
	require.NotNil(t, cmp.ScoreChanges.TotalScore.Percentage)
	assert.Equal(t, 20.0, *cmp.ScoreChanges.TotalScore.Percentage)
	assert.Equal(t, -4.0, cmp.ScoreChanges.AvgScore.Change)
	require.NotNil(t, cmp.ScoreChanges.AvgScore.Percentage)
	assert.Equal(t, -40.0, *cmp.ScoreChanges.AvgScore.Percentage)
}

func TestCompareWorsenedAndResolved(t *testing.T) {
	a := assessment(1, record(1, "腰酸", 3), record(2, "口干", 6))
	b := assessment(2, record(1, "腰酸", 9))

	cmp, err := Compare([]*domain.Assessment{a, b})
	require.NoError(t, err)

	assert.Equal(t, []domain.SymptomChange{{Name: "腰酸", Before: 3, After: 9, Change: 6}}, cmp.SymptomChanges.Worsened)
	assert.Equal(t, []domain.SymptomPresence{{Name: "口干", Intensity: 6}}, cmp.SymptomChanges.Resolved)
}

func TestCompareDuplicateNamesLastWins(t *testing.T) {
	a := assessment(1, record(1, "头痛", 10), record(2, "乏力", 5), record(1, "头痛", 2))
	b := assessment(2, record(1, "头痛", 6), record(2, "乏力", 5))

	cmp, err := Compare([]*domain.Assessment{a, b})
	require.NoError(t, err)

	assert.Equal(t, []domain.SymptomChange{{Name: "头痛", Before: 2, After: 6, Change: 4}}, cmp.SymptomChanges.Worsened)
	assert.Empty(t, cmp.SymptomChanges.Improved)
}

func TestCompareZeroBaselineHasNoPercentage(t *testing.T) {
	a := assessment(1)
	b := assessment(2, record(1, "头痛", 12))

	cmp, err := Compare([]*domain.Assessment{a, b})
	require.NoError(t, err)

	assert.Nil(t, cmp.ScoreChanges.TotalScore.Percentage)
	assert.Nil(t, cmp.ScoreChanges.AvgScore.Percentage)
	assert.Equal(t, domain.TrendWorsening, cmp.HealthTrend)
}

func TestTrendFor(t *testing.T) {
	tests := []struct {
		change   int
		expected domain.HealthTrend
	}{
		{-11, domain.TrendImproving},
		{-10, domain.TrendStable},
		{0, domain.TrendStable},
		{10, domain.TrendStable},
		{11, domain.TrendWorsening},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, trendFor(tt.change), "change %d", tt.change)
	}
}
