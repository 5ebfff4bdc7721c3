// Package repository persists assessments, their symptom records and analysis results.
package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yuanqi-assessment-server/internal/domain"
)

const assessmentColumns = `id, user_id, assessment_code, assessment_date, real_name, age, gender,
	height, weight, waist_circumference, blood_sugar, systolic_pressure, diastolic_pressure,
	remarks, total_symptoms, total_score, avg_score, status, created_at, updated_at`

const symptomColumns = `id, assessment_id, symptom_id, symptom_name, intensity, side, severity, cause_labels`

const analysisColumns = `id, assessment_id, cause_analysis, organ_analysis, constitution_analysis,
	precautions, taboos, emotion_analysis, health_trends, lifestyle_habits,
	mineral_deficiency, vitamin_deficiency, overall_health_score, health_level,
	primary_issues, recommendations, created_at`

// DefaultListLimit applies when a filter sets no limit.
const DefaultListLimit = 20

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (*domain.Assessment, error) {
	var (
		a      domain.Assessment
		status string
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.Code, &a.AssessmentDate, &a.RealName, &a.Age, &a.Gender,
		&a.Height, &a.Weight, &a.WaistCircumference, &a.BloodSugar, &a.SystolicPressure, &a.DiastolicPressure,
		&a.Remarks, &a.TotalSymptoms, &a.TotalScore, &a.AvgScore, &status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.AssessmentStatus(status)
	return &a, nil
}

func scanSymptom(row rowScanner) (domain.SymptomRecord, error) {
	var (
		rec       domain.SymptomRecord
		side      string
		severity  string
		rawLabels string
	)
	err := row.Scan(&rec.ID, &rec.AssessmentID, &rec.SymptomID, &rec.SymptomName, &rec.Intensity,
		&side, &severity, &rawLabels)
	if err != nil {
		return rec, err
	}
	rec.Side = domain.Side(side)
	rec.Severity = domain.Severity(severity)
	if err := json.Unmarshal([]byte(rawLabels), &rec.CauseLabels); err != nil {
		return rec, fmt.Errorf("decoding cause labels of symptom %d: %w", rec.ID, err)
	}
	return rec, nil
}

func encodeLabels(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// analysisRow holds the JSON text of every analysis column.
type analysisRow struct {
	causes, organs, constitutions, precautions, taboos string
	emotions, trends, lifestyle, minerals, vitamins    string
	issues                                             string
}

func encodeAnalysis(r *domain.AnalysisResult) (*analysisRow, error) {
	var row analysisRow
	fields := []struct {
		dst *string
		v   any
	}{
		{&row.causes, r.CauseAnalysis},
		{&row.organs, r.OrganAnalysis},
		{&row.constitutions, r.ConstitutionAnalysis},
		{&row.precautions, r.Precautions},
		{&row.taboos, r.Taboos},
		{&row.emotions, r.EmotionAnalysis},
		{&row.trends, r.HealthTrends},
		{&row.lifestyle, r.LifestyleHabits},
		{&row.minerals, r.MineralDeficiency},
		{&row.vitamins, r.VitaminDeficiency},
		{&row.issues, issuesOrEmpty(r.PrimaryIssues)},
	}
	for _, f := range fields {
		data, err := json.Marshal(f.v)
		if err != nil {
			return nil, fmt.Errorf("encoding analysis: %w", err)
		}
		*f.dst = string(data)
	}
	return &row, nil
}

func issuesOrEmpty(issues []domain.PrimaryIssue) []domain.PrimaryIssue {
	if issues == nil {
		return []domain.PrimaryIssue{}
	}
	return issues
}

func scanAnalysis(scanner rowScanner) (*domain.AnalysisResult, error) {
	var (
		result domain.AnalysisResult
		row    analysisRow
		level  string
	)
	err := scanner.Scan(
		&result.ID, &result.AssessmentID,
		&row.causes, &row.organs, &row.constitutions, &row.precautions, &row.taboos,
		&row.emotions, &row.trends, &row.lifestyle, &row.minerals, &row.vitamins,
		&result.OverallHealthScore, &level, &row.issues, &result.Recommendations, &result.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	result.HealthLevel = domain.HealthLevel(level)

	fields := []struct {
		src string
		dst any
	}{
		{row.causes, &result.CauseAnalysis},
		{row.organs, &result.OrganAnalysis},
		{row.constitutions, &result.ConstitutionAnalysis},
		{row.precautions, &result.Precautions},
		{row.taboos, &result.Taboos},
		{row.emotions, &result.EmotionAnalysis},
		{row.trends, &result.HealthTrends},
		{row.lifestyle, &result.LifestyleHabits},
		{row.minerals, &result.MineralDeficiency},
		{row.vitamins, &result.VitaminDeficiency},
		{row.issues, &result.PrimaryIssues},
	}
	for _, f := range fields {
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return nil, fmt.Errorf("decoding analysis %d: %w", result.ID, err)
		}
	}
	return &result, nil
}

// listQuery builds the WHERE clause shared by List and its count query.
func listQuery(filter domain.AssessmentFilter, placeholder func(n int) string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.UserID > 0 {
		conds = append(conds, "user_id = "+next(filter.UserID))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+next(string(filter.Status)))
	}
	if filter.From != nil {
		conds = append(conds, "assessment_date >= "+next(filter.From.UTC()))
	}
	if filter.To != nil {
		conds = append(conds, "assessment_date <= "+next(filter.To.UTC()))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// dayBounds returns the UTC day containing now.
func dayBounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}
