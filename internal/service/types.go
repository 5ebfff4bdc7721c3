package service

import (
	"time"

	"github.com/yuanqi-assessment-server/internal/domain"
)

// SymptomInput is one reported symptom of an intake request.
type SymptomInput struct {
	SymptomID   int64    `json:"symptom_id"`
	SymptomName string   `json:"symptom_name"`
	Intensity   int      `json:"intensity"`
	Side        string   `json:"side,omitempty"`
	CauseLabels []string `json:"cause_labels,omitempty"`
}

// CreateAssessmentRequest represents an assessment submission
type CreateAssessmentRequest struct {
	UserID             int64          `json:"user_id"`
	RealName           string         `json:"real_name"`
	Age                int            `json:"age"`
	Gender             string         `json:"gender"`
	Height             *float64       `json:"height,omitempty"`
	Weight             *float64       `json:"weight,omitempty"`
	WaistCircumference *float64       `json:"waist_circumference,omitempty"`
	BloodSugar         *float64       `json:"blood_sugar,omitempty"`
	SystolicPressure   *int           `json:"systolic_pressure,omitempty"`
	DiastolicPressure  *int           `json:"diastolic_pressure,omitempty"`
	Remarks            string         `json:"remarks,omitempty"`
	Symptoms           []SymptomInput `json:"symptoms"`
}

// AssessmentDetail is an assessment with its symptoms and, once scored, its analysis.
type AssessmentDetail struct {
	Assessment *domain.Assessment     `json:"assessment"`
	Analysis   *domain.AnalysisResult `json:"analysis"`
}

// ListFilter selects a page of assessments.
type ListFilter struct {
	UserID int64
	Status domain.AssessmentStatus
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

// Pagination describes the returned page.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// ListResult is one page of assessments.
type ListResult struct {
	Assessments []*domain.Assessment `json:"assessments"`
	Pagination  Pagination           `json:"pagination"`
}

// AdminListResult adds table statistics to a listing.
type AdminListResult struct {
	ListResult
	Statistics *domain.AssessmentStatistics `json:"statistics"`
}

// EventAnalyzed is published whenever an assessment gets a new analysis.
const EventAnalyzed = "assessment.analyzed"

// Event notifies subscribers about assessment changes.
type Event struct {
	Type         string                  `json:"type"`
	AssessmentID int64                   `json:"assessment_id"`
	Code         string                  `json:"assessment_code"`
	UserID       int64                   `json:"user_id"`
	Status       domain.AssessmentStatus `json:"status"`
	OverallScore float64                 `json:"overall_health_score"`
	HealthLevel  domain.HealthLevel      `json:"health_level"`
	Timestamp    time.Time               `json:"timestamp"`
}

// EventPublisher receives assessment events. Publish must not block.
type EventPublisher interface {
	Publish(event Event)
}

// MetricsRecorder receives analysis measurements.
type MetricsRecorder interface {
	ObserveAnalysis(source string, duration time.Duration, level domain.HealthLevel)
	AnalysisFailed(source string, reason string)
	AssessmentCreated()
}

// Analysis sources reported to MetricsRecorder.
const (
	SourceCreate    = "create"
	SourceReanalyze = "reanalyze"
	SourceStateless = "stateless"
)

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

type nopMetrics struct{}

func (nopMetrics) ObserveAnalysis(string, time.Duration, domain.HealthLevel) {}
func (nopMetrics) AnalysisFailed(string, string)                            {}
func (nopMetrics) AssessmentCreated()                                       {}
