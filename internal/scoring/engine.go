// Package scoring turns symptom records into heuristic health scores, an overall health
// assessment, advice text and assessment comparisons. Everything here is pure computation
// over already-loaded inputs.
package scoring

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/domain"
)

// PrecautionLimit is how many warnings and taboos survive ranking.
const PrecautionLimit = 10

// Engine scores each dimension of an analysis. Catalog problems are logged and the symptom
// falls back to its zero or general contribution.
type Engine struct {
	logger *logrus.Logger
}

// NewEngine creates a scoring engine. A nil logger discards warnings.
func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Engine{logger: logger}
}

// ScoreCauses sums intensity per known cause label of each symptom.
func (e *Engine) ScoreCauses(symptoms []domain.SymptomRecord) *domain.Scores[domain.CauseLabel] {
	scores := domain.NewScores(domain.CauseLabels)
	for _, rec := range symptoms {
		for _, label := range rec.CauseLabels {
			if !domain.CauseLabel(label).IsValid() {
				e.logger.WithFields(logrus.Fields{
					"symptom": rec.SymptomName,
					"label":   label,
				}).Debug("Ignoring unknown cause label")
				continue
			}
			scores.Add(domain.CauseLabel(label), rec.Intensity)
		}
	}
	return scores
}

// ScoreOrgans adds the full intensity of a symptom to every organ its catalog entry names.
// Unknown organs, an empty organ field and missing entries all count toward 综合.
func (e *Engine) ScoreOrgans(symptoms []domain.SymptomRecord, lookup domain.SymptomLookup) *domain.Scores[domain.Organ] {
	scores := domain.NewScores(domain.Organs)
	for _, rec := range symptoms {
		def, ok := e.definition(lookup, rec, "organs")
		organs := def.OrganNames()
		if !ok || len(organs) == 0 {
			scores.Add(domain.OrganGeneral, rec.Intensity)
			continue
		}
		for _, name := range organs {
			organ := domain.Organ(name)
			if !organ.IsValid() {
				organ = domain.OrganGeneral
			}
			scores.Add(organ, rec.Intensity)
		}
	}
	return scores
}

// ScoreConstitution maps every catalog cause entry of a symptom to a constitution.
func (e *Engine) ScoreConstitution(symptoms []domain.SymptomRecord, lookup domain.SymptomLookup) *domain.Scores[domain.Constitution] {
	scores := domain.NewScores(domain.Constitutions)
	for _, rec := range symptoms {
		def, ok := e.usableField(lookup, rec, "constitution", domain.FieldCauses)
		if !ok {
			continue
		}
		for _, cause := range def.Causes {
			if c := ConstitutionForCause(cause.Label); c.IsValid() {
				scores.Add(c, portion(rec.Intensity, constitutionFactor))
			}
		}
	}
	return scores
}

// ScorePrecautionsAndTaboos accumulates intensity per warning and taboo string and keeps the
// PrecautionLimit highest of each. Ties keep first-seen order.
func (e *Engine) ScorePrecautionsAndTaboos(symptoms []domain.SymptomRecord, lookup domain.SymptomLookup) (precautions, taboos *domain.Scores[string]) {
	precautions = &domain.Scores[string]{}
	taboos = &domain.Scores[string]{}
	for _, rec := range symptoms {
		if def, ok := e.usableField(lookup, rec, "precautions", domain.FieldWarnings); ok {
			for _, w := range def.Warnings {
				precautions.Accumulate(w, rec.Intensity)
			}
		}
		if def, ok := e.usableField(lookup, rec, "taboos", domain.FieldTaboos); ok {
			for _, t := range def.Taboos {
				taboos.Accumulate(t, rec.Intensity)
			}
		}
	}
	return precautions.Truncate(PrecautionLimit), taboos.Truncate(PrecautionLimit)
}

// ScoreEmotions applies the emotion table once per matching cause label.
func (e *Engine) ScoreEmotions(symptoms []domain.SymptomRecord) *domain.Scores[domain.Emotion] {
	scores := domain.NewScores(domain.Emotions)
	for _, rec := range symptoms {
		applyLabelRules(scores, emotionRules, rec)
	}
	return scores
}

// ScoreTrends applies the trend table once per symptom.
func (e *Engine) ScoreTrends(symptoms []domain.SymptomRecord) *domain.Scores[domain.TrendRisk] {
	scores := domain.NewScores(domain.TrendRisks)
	for _, rec := range symptoms {
		applyRules(scores, trendRules, rec)
	}
	return scores
}

// ScoreLifestyle applies the lifestyle table once per symptom.
func (e *Engine) ScoreLifestyle(symptoms []domain.SymptomRecord) *domain.Scores[domain.Habit] {
	scores := domain.NewScores(domain.Habits)
	for _, rec := range symptoms {
		applyRules(scores, lifestyleRules, rec)
	}
	return scores
}

// ScoreNutrients evaluates the nutrient table for every nutrition cause entry in a symptom's
// catalog definition. Symptoms without one do not participate.
func (e *Engine) ScoreNutrients(symptoms []domain.SymptomRecord, lookup domain.SymptomLookup) (*domain.Scores[domain.Mineral], *domain.Scores[domain.Vitamin]) {
	minerals := domain.NewScores(domain.Minerals)
	vitamins := domain.NewScores(domain.Vitamins)
	for _, rec := range symptoms {
		def, ok := e.usableField(lookup, rec, "nutrients", domain.FieldCauses)
		if !ok {
			continue
		}
		for _, cause := range def.Causes {
			if cause.Label != string(domain.CauseNutrition) {
				continue
			}
			for _, r := range nutrientRules {
				if !r.when(rec) {
					continue
				}
				addShares(minerals, r.minerals, rec.Intensity)
				addShares(vitamins, r.vitamins, rec.Intensity)
			}
		}
	}
	return minerals, vitamins
}

func (e *Engine) definition(lookup domain.SymptomLookup, rec domain.SymptomRecord, dimension string) (*domain.SymptomDefinition, bool) {
	var (
		def *domain.SymptomDefinition
		ok  bool
	)
	if lookup != nil {
		def, ok = lookup.Definition(rec.SymptomID)
	}
	if !ok || def == nil {
		e.warn(rec, dimension, domain.ErrMissingCatalogEntry)
		return nil, false
	}
	return def, true
}

// usableField resolves the definition and checks that field decoded cleanly.
func (e *Engine) usableField(lookup domain.SymptomLookup, rec domain.SymptomRecord, dimension, field string) (*domain.SymptomDefinition, bool) {
	def, ok := e.definition(lookup, rec, dimension)
	if !ok {
		return nil, false
	}
	if def.IsMalformed(field) {
		e.logger.WithError(domain.ErrMalformedCatalogField).WithFields(logrus.Fields{
			"symptom_id":   rec.SymptomID,
			"symptom_name": rec.SymptomName,
			"dimension":    dimension,
			"field":        field,
		}).Warn("Skipping malformed catalog field")
		return nil, false
	}
	return def, true
}

func (e *Engine) warn(rec domain.SymptomRecord, dimension string, err error) {
	e.logger.WithError(err).WithFields(logrus.Fields{
		"symptom_id":   rec.SymptomID,
		"symptom_name": rec.SymptomName,
		"dimension":    dimension,
	}).Warn("Catalog entry unavailable, using fallback contribution")
}
