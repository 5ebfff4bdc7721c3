package scoring

import (
	"math"
	"strings"

	"github.com/yuanqi-assessment-server/internal/domain"
)

// predicate decides whether a rule fires for a symptom.
type predicate func(rec domain.SymptomRecord) bool

// nameContains fires when the symptom name contains any of subs.
func nameContains(subs ...string) predicate {
	return func(rec domain.SymptomRecord) bool {
		for _, sub := range subs {
			if strings.Contains(rec.SymptomName, sub) {
				return true
			}
		}
		return false
	}
}

// hasCauseLabel fires when the symptom carries any of labels.
func hasCauseLabel(labels ...string) predicate {
	return func(rec domain.SymptomRecord) bool {
		for _, l := range labels {
			if rec.HasCauseLabel(l) {
				return true
			}
		}
		return false
	}
}

// share adds floor(intensity*factor) to key.
type share[K ~string] struct {
	key    K
	factor float64
}

func portion(intensity int, factor float64) int {
	return int(math.Floor(float64(intensity) * factor))
}

func addShares[K ~string](scores *domain.Scores[K], shares []share[K], intensity int) {
	for _, sh := range shares {
		scores.Add(sh.key, portion(intensity, sh.factor))
	}
}

// rule fires at most once per symptom.
type rule[K ~string] struct {
	name   string
	when   predicate
	shares []share[K]
}

func applyRules[K ~string](scores *domain.Scores[K], rules []rule[K], rec domain.SymptomRecord) {
	for _, r := range rules {
		if r.when(rec) {
			addShares(scores, r.shares, rec.Intensity)
		}
	}
}

// labelRule fires once for every matching cause label of a symptom, so a symptom carrying two
// matching labels contributes twice.
type labelRule[K ~string] struct {
	labels []string
	shares []share[K]
}

func applyLabelRules[K ~string](scores *domain.Scores[K], rules []labelRule[K], rec domain.SymptomRecord) {
	for _, label := range rec.CauseLabels {
		for _, r := range rules {
			for _, l := range r.labels {
				if l == label {
					addShares(scores, r.shares, rec.Intensity)
					break
				}
			}
		}
	}
}

var emotionRules = []labelRule[domain.Emotion]{
	{
		labels: []string{string(domain.CauseEndocrine), string(domain.CauseToxin)},
		shares: []share[domain.Emotion]{
			{domain.EmotionOverstress, 0.3},
			{domain.EmotionAnxiety, 0.2},
		},
	},
	{
		labels: []string{string(domain.CauseHabit), string(domain.CauseMicrocirculation)},
		shares: []share[domain.Emotion]{
			{domain.EmotionTension, 0.2},
		},
	},
}

var trendRules = []rule[domain.TrendRisk]{
	{
		name: "headache",
		when: nameContains("头疼", "头晕"),
		shares: []share[domain.TrendRisk]{
			{domain.TrendHypertension, 0.4},
			{domain.TrendCervicalSpondylosis, 0.3},
		},
	},
	{
		name:   "sleep",
		when:   nameContains("失眠", "多梦"),
		shares: []share[domain.TrendRisk]{{domain.TrendInsomnia, 1}},
	},
	{
		name:   "vision",
		when:   nameContains("视力"),
		shares: []share[domain.TrendRisk]{{domain.TrendGlaucoma, 0.3}},
	},
	{
		name:   "nutrition",
		when:   hasCauseLabel(string(domain.CauseNutrition)),
		shares: []share[domain.TrendRisk]{{domain.TrendMalnutrition, 0.5}},
	},
	{
		name:   "immunity",
		when:   hasCauseLabel(string(domain.CauseImmunity)),
		shares: []share[domain.TrendRisk]{{domain.TrendCommonCold, 0.4}},
	},
}

// circulationLabel is accepted alongside 微循环 by the lifestyle and constitution tables.
const circulationLabel = "循环"

var lifestyleRules = []rule[domain.Habit]{
	{
		name:   "eyes",
		when:   nameContains("眼", "视力"),
		shares: []share[domain.Habit]{{domain.HabitEyeStrain, 1}},
	},
	{
		name:   "sleep",
		when:   nameContains("失眠", "多梦"),
		shares: []share[domain.Habit]{{domain.HabitLateNights, 1}},
	},
	{
		name: "habit",
		when: hasCauseLabel(string(domain.CauseHabit)),
		shares: []share[domain.Habit]{
			{domain.HabitIrregularSchedule, 0.4},
			{domain.HabitLateNights, 0.3},
		},
	},
	{
		name: "circulation",
		when: hasCauseLabel(string(domain.CauseMicrocirculation), circulationLabel),
		shares: []share[domain.Habit]{
			{domain.HabitLackOfExercise, 0.3},
			{domain.HabitSedentary, 0.3},
		},
	},
}

// nutrientRule fires once per nutrition cause entry of the symptom's catalog definition.
type nutrientRule struct {
	name     string
	when     predicate
	minerals []share[domain.Mineral]
	vitamins []share[domain.Vitamin]
}

var nutrientRules = []nutrientRule{
	{
		name:     "eyes",
		when:     nameContains("眼"),
		minerals: []share[domain.Mineral]{{domain.MineralZinc, 0.4}},
		vitamins: []share[domain.Vitamin]{{domain.VitaminA, 0.5}},
	},
	{
		name:     "hair",
		when:     nameContains("脱发", "白发"),
		minerals: []share[domain.Mineral]{{domain.MineralZinc, 0.5}},
		vitamins: []share[domain.Vitamin]{{domain.VitaminE, 0.4}, {domain.VitaminB7, 0.3}},
	},
	{
		name:     "anemia",
		when:     nameContains("贫血", "苍白"),
		minerals: []share[domain.Mineral]{{domain.MineralIron, 1}},
		vitamins: []share[domain.Vitamin]{{domain.VitaminB12, 0.5}},
	},
	{
		name:     "bones",
		when:     nameContains("骨质疏松", "骨折"),
		minerals: []share[domain.Mineral]{{domain.MineralCalcium, 1}, {domain.MineralMagnesium, 0.6}},
	},
	{
		name:     "immunity",
		when:     nameContains("免疫力", "感染"),
		minerals: []share[domain.Mineral]{{domain.MineralZinc, 0.5}, {domain.MineralSelenium, 0.4}},
		vitamins: []share[domain.Vitamin]{{domain.VitaminC, 0.6}},
	},
	{
		name:     "skin",
		when:     nameContains("皮肤", "干燥"),
		vitamins: []share[domain.Vitamin]{{domain.VitaminA, 0.5}, {domain.VitaminE, 0.4}},
	},
}

// constitutionFactor is the share of intensity each catalog cause entry adds to its constitution.
const constitutionFactor = 0.5

// causeConstitutions maps catalog cause labels to constitutions. 气血 maps to a value outside
// the constitution vocabulary and is therefore dropped.
var causeConstitutions = map[string]domain.Constitution{
	string(domain.CauseMicrocirculation): domain.ConstitutionBloodStasis,
	string(domain.CauseToxin):            domain.ConstitutionDampHeat,
	string(domain.CauseConstitution):     domain.ConstitutionQiDeficiency,
	string(domain.CauseHabit):            domain.ConstitutionQiDeficiency,
	string(domain.CauseNutrition):        domain.ConstitutionBloodDeficiency,
	string(domain.CauseEndocrine):        domain.ConstitutionQiStagnation,
	string(domain.CauseImmunity):         domain.ConstitutionYangDeficiency,
	string(domain.CauseQiBlood):          domain.Constitution(domain.CauseQiBlood),
	circulationLabel:                     domain.ConstitutionBloodStasis,
}

// ConstitutionForCause maps a cause label, falling back to 气虚 for unmapped labels.
func ConstitutionForCause(label string) domain.Constitution {
	if c, ok := causeConstitutions[label]; ok {
		return c
	}
	return domain.ConstitutionQiDeficiency
}
