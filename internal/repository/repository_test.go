package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanqi-assessment-server/internal/domain"
	"github.com/yuanqi-assessment-server/internal/scoring"
)

var analyzer = scoring.NewAnalyzer(nil)

func analyzeFunc(ctx context.Context, symptoms []domain.SymptomRecord) (*domain.AnalysisResult, error) {
	return analyzer.Analyze(0, symptoms, nil)
}

func newAssessment(code string, date time.Time) *domain.Assessment {
	height := 172.5
	systolic := 128
	symptoms := []domain.SymptomRecord{
		{SymptomID: 3, SymptomName: "头痛", Intensity: 10, Side: domain.SideBoth, Severity: domain.SeverityModerate, CauseLabels: []string{"微循环"}},
		{SymptomID: 0, SymptomName: "失眠", Intensity: 4, Side: domain.SideLeft, Severity: domain.SeverityMild, CauseLabels: []string{"习惯", "内分泌"}},
	}
	return &domain.Assessment{
		UserID:         1,
		Code:           code,
		AssessmentDate: date,
		RealName:       "张三",
		Demographics: domain.Demographics{
			Age:              35,
			Gender:           "male",
			Height:           &height,
			SystolicPressure: &systolic,
		},
		TotalSymptoms: 2,
		TotalScore:    14,
		AvgScore:      7,
		Symptoms:      symptoms,
	}
}

// runRepositoryContract exercises behaviour every AssessmentRepository must share.
func runRepositoryContract(t *testing.T, repo domain.AssessmentRepository) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("create stores assessment and analysis", func(t *testing.T) {
		a := newAssessment("YA202503010001", base)
		result, err := repo.Create(ctx, a, analyzeFunc)
		require.NoError(t, err)

		assert.NotZero(t, a.ID)
		assert.Equal(t, domain.StatusAnalyzed, a.Status)
		assert.Equal(t, a.ID, result.AssessmentID)
		assert.NotZero(t, result.ID)

		got, err := repo.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "YA202503010001", got.Code)
		assert.Equal(t, domain.StatusAnalyzed, got.Status)
		assert.True(t, got.AssessmentDate.Equal(base))
		require.NotNil(t, got.Height)
		assert.InDelta(t, 172.5, *got.Height, 1e-9)
		assert.Nil(t, got.Weight)
		require.NotNil(t, got.SystolicPressure)
		assert.Equal(t, 128, *got.SystolicPressure)

		require.Len(t, got.Symptoms, 2)
		assert.Equal(t, "头痛", got.Symptoms[0].SymptomName, "symptoms keep submission order")
		assert.Equal(t, []string{"习惯", "内分泌"}, got.Symptoms[1].CauseLabels)
		assert.Equal(t, domain.SideLeft, got.Symptoms[1].Side)

		stored, err := repo.GetAnalysis(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, result.CauseAnalysis.Keys(), stored.CauseAnalysis.Keys(), "key order survives storage")
		assert.Equal(t, 10, stored.CauseAnalysis.Get("微循环"))
		assert.Equal(t, result.OverallHealthScore, stored.OverallHealthScore)
		assert.Equal(t, result.Recommendations, stored.Recommendations)
		assert.Equal(t, result.PrimaryIssues, stored.PrimaryIssues)
	})

	t.Run("duplicate code is reported", func(t *testing.T) {
		_, err := repo.Create(ctx, newAssessment("YA202503010002", base), analyzeFunc)
		require.NoError(t, err)

		_, err = repo.Create(ctx, newAssessment("YA202503010002", base), analyzeFunc)
		assert.True(t, errors.Is(err, domain.ErrDuplicateCode))
	})

	t.Run("failed analysis rolls back", func(t *testing.T) {
		boom := errors.New("analysis failed")
		_, err := repo.Create(ctx, newAssessment("YA202503010003", base), func(context.Context, []domain.SymptomRecord) (*domain.AnalysisResult, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		list, _, err := repo.List(ctx, domain.AssessmentFilter{Limit: 100})
		require.NoError(t, err)
		for _, a := range list {
			assert.NotEqual(t, "YA202503010003", a.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.Get(ctx, 999999)
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		_, err = repo.GetAnalysis(ctx, 999999)
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		err = repo.UpdateStatus(ctx, 999999, domain.StatusAnalyzed, domain.StatusCompleted)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("replace analysis and status lifecycle", func(t *testing.T) {
		a := newAssessment("YA202503010004", base)
		first, err := repo.Create(ctx, a, analyzeFunc)
		require.NoError(t, err)

		symptoms, err := repo.GetSymptoms(ctx, a.ID)
		require.NoError(t, err)
		symptoms[0].Intensity = 20
		replacement, err := analyzer.Analyze(a.ID, symptoms, nil)
		require.NoError(t, err)

		require.NoError(t, repo.ReplaceAnalysis(ctx, replacement, domain.StatusAnalyzed))
		assert.NotEqual(t, first.ID, replacement.ID)

		stored, err := repo.GetAnalysis(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 20, stored.CauseAnalysis.Get("微循环"))

		require.NoError(t, repo.UpdateStatus(ctx, a.ID, domain.StatusAnalyzed, domain.StatusCompleted))
		err = repo.UpdateStatus(ctx, a.ID, domain.StatusAnalyzed, domain.StatusCompleted)
		assert.True(t, errors.Is(err, domain.ErrInvalidStatusTransition), "already completed")

		err = repo.UpdateStatus(ctx, a.ID, domain.StatusCompleted, domain.StatusDraft)
		assert.True(t, errors.Is(err, domain.ErrInvalidStatusTransition))
	})

	t.Run("list filters and orders newest first", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			a := newAssessment(fmt.Sprintf("YA20250401%04d", i), base.AddDate(0, 1, i))
			a.UserID = 42
			_, err := repo.Create(ctx, a, analyzeFunc)
			require.NoError(t, err)
		}

		list, total, err := repo.List(ctx, domain.AssessmentFilter{UserID: 42, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, list, 2)
		assert.Equal(t, "YA202504010002", list[0].Code)
		assert.Equal(t, "YA202504010001", list[1].Code)
		assert.Empty(t, list[0].Symptoms, "listings do not load symptoms")

		from := base.AddDate(0, 1, 1)
		list, total, err = repo.List(ctx, domain.AssessmentFilter{UserID: 42, From: &from})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, list, 2)

		list, _, err = repo.List(ctx, domain.AssessmentFilter{UserID: 42, Offset: 2})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "YA202504010000", list[0].Code)
	})

	t.Run("statistics", func(t *testing.T) {
		now := time.Now().UTC()
		_, err := repo.Create(ctx, newAssessment("YA209901010001", now), analyzeFunc)
		require.NoError(t, err)

		stats, err := repo.Statistics(ctx, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.TotalAssessments, int64(7))
		assert.Equal(t, int64(1), stats.TodayAssessments)
		assert.Equal(t, int64(0), stats.PendingAnalyses, "create always ends analyzed")
		assert.Equal(t, stats.TotalAssessments-1, stats.CompletedReports, "one assessment was completed")
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})
}
