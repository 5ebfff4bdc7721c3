// Package domain contains the core entities of the health assessment service: the closed scoring
// vocabularies, symptom records and catalog definitions, assessments and their analysis results.
//
// Scoring is rule-based heuristics over self-reported symptoms. It is not a diagnostic system.
package domain

import (
	"strings"
	"time"
)

// Intensity bounds for a self-reported symptom.
const (
	MinIntensity = 1
	MaxIntensity = 20
)

// OrganDelimiter separates multiple organ names in a catalog organ field.
const OrganDelimiter = "、"

// Side is the body side a symptom is reported on.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
	SideBoth  Side = "both"
)

// ParseSide maps intake input to a Side. Anything that is not explicitly left or right is both.
func ParseSide(raw string) Side {
	switch strings.TrimSpace(raw) {
	case "左侧", string(SideLeft):
		return SideLeft
	case "右侧", string(SideRight):
		return SideRight
	default:
		return SideBoth
	}
}

func (s Side) IsValid() bool {
	switch s {
	case SideLeft, SideRight, SideBoth:
		return true
	default:
		return false
	}
}

// Severity is the derived tier of a symptom intensity.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// SeverityForIntensity buckets an intensity: <=6 mild, <=13 moderate, otherwise severe.
func SeverityForIntensity(intensity int) Severity {
	switch {
	case intensity <= 6:
		return SeverityMild
	case intensity <= 13:
		return SeverityModerate
	default:
		return SeveritySevere
	}
}

func (s Severity) IsValid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere:
		return true
	default:
		return false
	}
}

// AssessmentStatus is the lifecycle state of an assessment.
type AssessmentStatus string

const (
	StatusDraft     AssessmentStatus = "draft"
	StatusAnalyzed  AssessmentStatus = "analyzed"
	StatusCompleted AssessmentStatus = "completed"
)

func (s AssessmentStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusAnalyzed, StatusCompleted:
		return true
	default:
		return false
	}
}

func (s AssessmentStatus) String() string { return string(s) }

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Re-analysis keeps an analyzed assessment analyzed.
func (s AssessmentStatus) CanTransitionTo(next AssessmentStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusAnalyzed
	case StatusAnalyzed:
		return next == StatusAnalyzed || next == StatusCompleted
	default:
		return false
	}
}

// HealthLevel is the step function of the overall health score.
type HealthLevel string

const (
	HealthExcellent HealthLevel = "excellent"
	HealthGood      HealthLevel = "good"
	HealthFair      HealthLevel = "fair"
	HealthPoor      HealthLevel = "poor"
)

// HealthLevelForScore maps an overall score: >=80 excellent, >=60 good, >=40 fair, else poor.
func HealthLevelForScore(score float64) HealthLevel {
	switch {
	case score >= 80:
		return HealthExcellent
	case score >= 60:
		return HealthGood
	case score >= 40:
		return HealthFair
	default:
		return HealthPoor
	}
}

func (l HealthLevel) IsValid() bool {
	switch l {
	case HealthExcellent, HealthGood, HealthFair, HealthPoor:
		return true
	default:
		return false
	}
}

// SymptomRecord is one reported symptom of an assessment. Immutable once stored.
type SymptomRecord struct {
	ID           int64    `json:"id,omitempty"`
	AssessmentID int64    `json:"assessment_id,omitempty"`
	SymptomID    int64    `json:"symptom_id,omitempty"`
	SymptomName  string   `json:"symptom_name"`
	Intensity    int      `json:"intensity"`
	Side         Side     `json:"side"`
	Severity     Severity `json:"severity"`
	CauseLabels  []string `json:"cause_labels"`
}

// HasCauseLabel reports whether label is among the record's cause labels.
func (r SymptomRecord) HasCauseLabel(label string) bool {
	for _, l := range r.CauseLabels {
		if l == label {
			return true
		}
	}
	return false
}

// CauseRef is one entry of a catalog definition's causes list.
type CauseRef struct {
	Label       string   `json:"label"`
	Weight      *float64 `json:"weight,omitempty"`
	Description string   `json:"description,omitempty"`
}

// SymptomDefinition is a read-only catalog entry. Organ, Causes, Warnings and Taboos may each be
// absent; callers treat an absent field like a missing entry.
type SymptomDefinition struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	ColorRegion string     `json:"color_region,omitempty"`
	Organ       string     `json:"organ,omitempty"`
	Severity    Severity   `json:"severity"`
	Causes      []CauseRef `json:"causes"`
	Warnings    []string   `json:"warnings"`
	Taboos      []string   `json:"taboos"`
	Side        Side       `json:"side"`
	Description string     `json:"description,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at,omitempty"`

	// MalformedFields names stored fields that failed to decode and were left empty.
	MalformedFields []string `json:"-"`
}

// Catalog field names reported in MalformedFields.
const (
	FieldCauses   = "causes"
	FieldWarnings = "warnings"
	FieldTaboos   = "taboos"
)

// IsMalformed reports whether field failed to decode when the definition was loaded.
func (d *SymptomDefinition) IsMalformed(field string) bool {
	if d == nil {
		return false
	}
	for _, f := range d.MalformedFields {
		if f == field {
			return true
		}
	}
	return false
}

// OrganNames splits the organ field on OrganDelimiter. Segments are kept as written, so an
// empty or padded segment is not a known organ.
func (d *SymptomDefinition) OrganNames() []string {
	if d == nil || d.Organ == "" {
		return nil
	}
	return strings.Split(d.Organ, OrganDelimiter)
}

// CauseLabels returns the labels of the causes list in order.
func (d *SymptomDefinition) CauseLabels() []string {
	if d == nil {
		return nil
	}
	labels := make([]string, 0, len(d.Causes))
	for _, c := range d.Causes {
		labels = append(labels, c.Label)
	}
	return labels
}

// Demographics holds the subject's intake vitals. Optional measurements are nil when not given.
type Demographics struct {
	Age                int      `json:"age"`
	Gender             string   `json:"gender"`
	Height             *float64 `json:"height,omitempty"`
	Weight             *float64 `json:"weight,omitempty"`
	WaistCircumference *float64 `json:"waist_circumference,omitempty"`
	BloodSugar         *float64 `json:"blood_sugar,omitempty"`
	SystolicPressure   *int     `json:"systolic_pressure,omitempty"`
	DiastolicPressure  *int     `json:"diastolic_pressure,omitempty"`
}

// Assessment is one symptom intake for a subject.
type Assessment struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Code           string    `json:"assessment_code"`
	AssessmentDate time.Time `json:"assessment_date"`
	RealName       string    `json:"real_name"`
	Demographics
	Remarks       string           `json:"remarks,omitempty"`
	TotalSymptoms int              `json:"total_symptoms"`
	TotalScore    int              `json:"total_score"`
	AvgScore      float64          `json:"avg_score"`
	Status        AssessmentStatus `json:"status"`
	Symptoms      []SymptomRecord  `json:"symptoms,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Summary returns the identifying fields used by comparisons.
func (a *Assessment) Summary() AssessmentSummary {
	return AssessmentSummary{
		ID:             a.ID,
		Code:           a.Code,
		AssessmentDate: a.AssessmentDate,
		TotalScore:     a.TotalScore,
		AvgScore:       a.AvgScore,
	}
}

// PrimaryIssue is one ranked top issue of an analysis.
type PrimaryIssue struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// IssueTypeCause tags a primary issue derived from cause scores.
const IssueTypeCause = "cause"

// AnalysisResult is the scored output for one assessment. Never mutated after creation;
// re-analysis stores a replacement.
type AnalysisResult struct {
	ID                   int64                 `json:"id,omitempty"`
	AssessmentID         int64                 `json:"assessment_id"`
	CauseAnalysis        *Scores[CauseLabel]   `json:"cause_analysis"`
	OrganAnalysis        *Scores[Organ]        `json:"organ_analysis"`
	ConstitutionAnalysis *Scores[Constitution] `json:"constitution_analysis"`
	Precautions          *Scores[string]       `json:"precautions"`
	Taboos               *Scores[string]       `json:"taboos"`
	EmotionAnalysis      *Scores[Emotion]      `json:"emotion_analysis"`
	HealthTrends         *Scores[TrendRisk]    `json:"health_trends"`
	LifestyleHabits      *Scores[Habit]        `json:"lifestyle_habits"`
	MineralDeficiency    *Scores[Mineral]      `json:"mineral_deficiency"`
	VitaminDeficiency    *Scores[Vitamin]      `json:"vitamin_deficiency"`
	OverallHealthScore   float64               `json:"overall_health_score"`
	HealthLevel          HealthLevel           `json:"health_level"`
	PrimaryIssues        []PrimaryIssue        `json:"primary_issues"`
	Recommendations      string                `json:"recommendations"`
	CreatedAt            time.Time             `json:"created_at,omitempty"`
}

// AssessmentSummary identifies one side of a comparison.
type AssessmentSummary struct {
	ID             int64     `json:"id"`
	Code           string    `json:"assessment_code"`
	AssessmentDate time.Time `json:"assessment_date"`
	TotalScore     int       `json:"total_score"`
	AvgScore       float64   `json:"avg_score"`
}

// SymptomChange is an intensity change of a symptom present in both assessments.
type SymptomChange struct {
	Name   string `json:"name"`
	Before int    `json:"before"`
	After  int    `json:"after"`
	Change int    `json:"change"`
}

// SymptomPresence is a symptom present in only one of the compared assessments.
type SymptomPresence struct {
	Name      string `json:"name"`
	Intensity int    `json:"intensity"`
}

// SymptomChanges classifies every symptom name of a comparison.
type SymptomChanges struct {
	Improved []SymptomChange   `json:"improved"`
	Worsened []SymptomChange   `json:"worsened"`
	New      []SymptomPresence `json:"new"`
	Resolved []SymptomPresence `json:"resolved"`
}

// TotalScoreChange is the delta of total_score. Percentage is nil when Before is zero.
type TotalScoreChange struct {
	Before     int      `json:"before"`
	After      int      `json:"after"`
	Change     int      `json:"change"`
	Percentage *float64 `json:"percentage"`
}

// AvgScoreChange is the delta of avg_score. Percentage is nil when Before is zero.
type AvgScoreChange struct {
	Before     float64  `json:"before"`
	After      float64  `json:"after"`
	Change     float64  `json:"change"`
	Percentage *float64 `json:"percentage"`
}

type ScoreChanges struct {
	TotalScore TotalScoreChange `json:"total_score"`
	AvgScore   AvgScoreChange   `json:"avg_score"`
}

// HealthTrend is the direction of a comparison.
type HealthTrend string

const (
	TrendImproving HealthTrend = "improving"
	TrendStable    HealthTrend = "stable"
	TrendWorsening HealthTrend = "worsening"
)

// Comparison is the diff of two assessments.
type Comparison struct {
	AssessmentA    AssessmentSummary `json:"assessment_a"`
	AssessmentB    AssessmentSummary `json:"assessment_b"`
	SymptomChanges SymptomChanges    `json:"symptom_changes"`
	ScoreChanges   ScoreChanges      `json:"score_changes"`
	HealthTrend    HealthTrend       `json:"health_trend"`
}

// AssessmentFilter narrows assessment listings.
type AssessmentFilter struct {
	UserID int64
	Status AssessmentStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// AssessmentStatistics summarizes the assessment table for the admin listing.
type AssessmentStatistics struct {
	TotalAssessments int64 `json:"total_assessments"`
	TodayAssessments int64 `json:"today_assessments"`
	PendingAnalyses  int64 `json:"pending_analyses"`
	CompletedReports int64 `json:"completed_reports"`
}

// SymptomFilter narrows catalog listings. Organ and Search are substring matches.
type SymptomFilter struct {
	Organ      string
	Search     string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// LogFields returns structured logging fields for the assessment.
func (a *Assessment) LogFields() map[string]interface{} {
	return map[string]interface{}{
		"assessment_id":   a.ID,
		"assessment_code": a.Code,
		"status":          a.Status,
		"total_symptoms":  a.TotalSymptoms,
	}
}
