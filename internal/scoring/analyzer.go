package scoring

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/domain"
)

// Analyzer runs every scoring dimension and assembles the AnalysisResult.
type Analyzer struct {
	engine *Engine
	logger *logrus.Logger
	now    func() time.Time
}

// NewAnalyzer creates an analyzer around a fresh Engine.
func NewAnalyzer(logger *logrus.Logger) *Analyzer {
	engine := NewEngine(logger)
	return &Analyzer{
		engine: engine,
		logger: engine.logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Analyze scores the symptoms of one assessment. An empty symptom set is rejected with
// domain.ErrNoSymptomData instead of producing a zero-filled result.
func (a *Analyzer) Analyze(assessmentID int64, symptoms []domain.SymptomRecord, lookup domain.SymptomLookup) (*domain.AnalysisResult, error) {
	if len(symptoms) == 0 {
		return nil, fmt.Errorf("analyzing assessment %d: %w", assessmentID, domain.ErrNoSymptomData)
	}

	e := a.engine
	causes := e.ScoreCauses(symptoms)
	organs := e.ScoreOrgans(symptoms, lookup)
	constitutions := e.ScoreConstitution(symptoms, lookup)
	precautions, taboos := e.ScorePrecautionsAndTaboos(symptoms, lookup)
	minerals, vitamins := e.ScoreNutrients(symptoms, lookup)

	overall := ComputeOverallHealth(causes, organs, constitutions)

	result := &domain.AnalysisResult{
		AssessmentID:         assessmentID,
		CauseAnalysis:        causes,
		OrganAnalysis:        organs,
		ConstitutionAnalysis: constitutions,
		Precautions:          precautions,
		Taboos:               taboos,
		EmotionAnalysis:      e.ScoreEmotions(symptoms),
		HealthTrends:         e.ScoreTrends(symptoms),
		LifestyleHabits:      e.ScoreLifestyle(symptoms),
		MineralDeficiency:    minerals,
		VitaminDeficiency:    vitamins,
		OverallHealthScore:   overall.Score,
		HealthLevel:          overall.Level,
		PrimaryIssues:        overall.Issues,
		Recommendations: GenerateRecommendations(RecommendationInput{
			Causes:        causes,
			Organs:        organs,
			Constitutions: constitutions,
			Minerals:      minerals,
			Vitamins:      vitamins,
		}),
		CreatedAt: a.now(),
	}

	a.logger.WithFields(logrus.Fields{
		"assessment_id":  assessmentID,
		"symptoms":       len(symptoms),
		"overall_score":  result.OverallHealthScore,
		"health_level":   result.HealthLevel,
		"primary_issues": len(result.PrimaryIssues),
	}).Debug("Completed symptom analysis")

	return result, nil
}
