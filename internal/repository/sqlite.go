package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/domain"
)

// SQLiteRepository implements domain.AssessmentRepository on SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewSQLiteRepository creates the assessment tables on db if they don't exist.
func NewSQLiteRepository(db *sql.DB, logger *logrus.Logger) (*SQLiteRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteRepository{db: db, log: logger}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		assessment_code TEXT NOT NULL UNIQUE,
		assessment_date DATETIME NOT NULL,
		real_name TEXT NOT NULL,
		age INTEGER NOT NULL,
		gender TEXT NOT NULL,
		height REAL,
		weight REAL,
		waist_circumference REAL,
		blood_sugar REAL,
		systolic_pressure INTEGER,
		diastolic_pressure INTEGER,
		remarks TEXT NOT NULL DEFAULT '',
		total_symptoms INTEGER NOT NULL DEFAULT 0,
		total_score INTEGER NOT NULL DEFAULT 0,
		avg_score REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assessments_user_date ON assessments(user_id, assessment_date);
	CREATE INDEX IF NOT EXISTS idx_assessments_status ON assessments(status);

	CREATE TABLE IF NOT EXISTS assessment_symptoms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assessment_id INTEGER NOT NULL REFERENCES assessments(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		symptom_id INTEGER NOT NULL DEFAULT 0,
		symptom_name TEXT NOT NULL,
		intensity INTEGER NOT NULL CHECK (intensity BETWEEN 1 AND 20),
		side TEXT NOT NULL DEFAULT 'both',
		severity TEXT NOT NULL,
		cause_labels TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_assessment_symptoms_assessment ON assessment_symptoms(assessment_id, position);

	CREATE TABLE IF NOT EXISTS analysis_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assessment_id INTEGER NOT NULL UNIQUE REFERENCES assessments(id) ON DELETE CASCADE,
		cause_analysis TEXT NOT NULL,
		organ_analysis TEXT NOT NULL,
		constitution_analysis TEXT NOT NULL,
		precautions TEXT NOT NULL,
		taboos TEXT NOT NULL,
		emotion_analysis TEXT NOT NULL,
		health_trends TEXT NOT NULL,
		lifestyle_habits TEXT NOT NULL,
		mineral_deficiency TEXT NOT NULL,
		vitamin_deficiency TEXT NOT NULL,
		overall_health_score REAL NOT NULL,
		health_level TEXT NOT NULL,
		primary_issues TEXT NOT NULL,
		recommendations TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`

	_, err := db.Exec(schema)
	return err
}

func sqlitePlaceholder(int) string { return "?" }

func isSQLiteDuplicateCode(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: assessments.assessment_code")
}

// Create inserts the assessment and its symptoms as draft, stores the analysis produced by
// analyze and marks the assessment analyzed, all in one transaction.
func (r *SQLiteRepository) Create(ctx context.Context, a *domain.Assessment, analyze domain.AnalyzeFunc) (*domain.AnalysisResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if a.AssessmentDate.IsZero() {
		a.AssessmentDate = now
	}
	a.Status = domain.StatusDraft

	res, err := tx.ExecContext(ctx, `
		INSERT INTO assessments (
			user_id, assessment_code, assessment_date, real_name, age, gender,
			height, weight, waist_circumference, blood_sugar, systolic_pressure, diastolic_pressure,
			remarks, total_symptoms, total_score, avg_score, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.Code, a.AssessmentDate.UTC(), a.RealName, a.Age, a.Gender,
		a.Height, a.Weight, a.WaistCircumference, a.BloodSugar, a.SystolicPressure, a.DiastolicPressure,
		a.Remarks, a.TotalSymptoms, a.TotalScore, a.AvgScore, string(a.Status), now, now,
	)
	if err != nil {
		if isSQLiteDuplicateCode(err) {
			return nil, fmt.Errorf("assessment code %s: %w", a.Code, domain.ErrDuplicateCode)
		}
		r.log.WithError(err).WithField("assessment_code", a.Code).Error("Failed to create assessment")
		return nil, fmt.Errorf("creating assessment: %w", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("getting assessment id: %w", err)
	}
	a.CreatedAt, a.UpdatedAt = now, now

	for i := range a.Symptoms {
		rec := &a.Symptoms[i]
		rec.AssessmentID = a.ID
		labels, err := encodeLabels(rec.CauseLabels)
		if err != nil {
			return nil, fmt.Errorf("encoding cause labels: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO assessment_symptoms (
				assessment_id, position, symptom_id, symptom_name, intensity, side, severity, cause_labels
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, i, rec.SymptomID, rec.SymptomName, rec.Intensity, string(rec.Side), string(rec.Severity), labels,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting symptom %d: %w", i, err)
		}
		if rec.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("getting symptom id: %w", err)
		}
	}

	result, err := analyze(ctx, a.Symptoms)
	if err != nil {
		return nil, err
	}
	result.AssessmentID = a.ID

	if err := insertAnalysisSQLite(ctx, tx, result); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE assessments SET status = ?, updated_at = ? WHERE id = ?",
		string(domain.StatusAnalyzed), now, a.ID,
	); err != nil {
		return nil, fmt.Errorf("marking assessment analyzed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing assessment: %w", err)
	}
	a.Status = domain.StatusAnalyzed

	r.log.WithFields(logrus.Fields(a.LogFields())).Info("Assessment created successfully")
	return result, nil
}

func insertAnalysisSQLite(ctx context.Context, tx *sql.Tx, result *domain.AnalysisResult) error {
	row, err := encodeAnalysis(result)
	if err != nil {
		return err
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO analysis_results (
			assessment_id, cause_analysis, organ_analysis, constitution_analysis,
			precautions, taboos, emotion_analysis, health_trends, lifestyle_habits,
			mineral_deficiency, vitamin_deficiency, overall_health_score, health_level,
			primary_issues, recommendations, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.AssessmentID, row.causes, row.organs, row.constitutions,
		row.precautions, row.taboos, row.emotions, row.trends, row.lifestyle,
		row.minerals, row.vitamins, result.OverallHealthScore, string(result.HealthLevel),
		row.issues, result.Recommendations, result.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting analysis: %w", err)
	}
	if result.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("getting analysis id: %w", err)
	}
	return nil
}

// Get retrieves an assessment with its symptoms
func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*domain.Assessment, error) {
	a, err := scanAssessment(r.db.QueryRowContext(ctx,
		"SELECT "+assessmentColumns+" FROM assessments WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("assessment %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting assessment: %w", err)
	}

	a.Symptoms, err = r.GetSymptoms(ctx, id)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetSymptoms returns the symptom records of an assessment in submission order
func (r *SQLiteRepository) GetSymptoms(ctx context.Context, assessmentID int64) ([]domain.SymptomRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+symptomColumns+" FROM assessment_symptoms WHERE assessment_id = ? ORDER BY position",
		assessmentID)
	if err != nil {
		return nil, fmt.Errorf("querying symptoms: %w", err)
	}
	defer rows.Close()

	var records []domain.SymptomRecord
	for rows.Next() {
		rec, err := scanSymptom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning symptom: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetAnalysis returns the stored analysis of an assessment
func (r *SQLiteRepository) GetAnalysis(ctx context.Context, assessmentID int64) (*domain.AnalysisResult, error) {
	result, err := scanAnalysis(r.db.QueryRowContext(ctx,
		"SELECT "+analysisColumns+" FROM analysis_results WHERE assessment_id = ?", assessmentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("analysis of assessment %d: %w", assessmentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting analysis: %w", err)
	}
	return result, nil
}

// ReplaceAnalysis stores result in place of the current analysis and sets the status
func (r *SQLiteRepository) ReplaceAnalysis(ctx context.Context, result *domain.AnalysisResult, status domain.AssessmentStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE assessments SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now().UTC(), result.AssessmentID)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("assessment %d: %w", result.AssessmentID, domain.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM analysis_results WHERE assessment_id = ?", result.AssessmentID); err != nil {
		return fmt.Errorf("deleting previous analysis: %w", err)
	}
	result.ID = 0
	result.CreatedAt = time.Time{}
	if err := insertAnalysisSQLite(ctx, tx, result); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing analysis: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"assessment_id": result.AssessmentID,
		"analysis_id":   result.ID,
		"status":        status,
	}).Info("Analysis replaced")
	return nil
}

// UpdateStatus moves an assessment from one status to another
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.AssessmentStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%s to %s: %w", from, to, domain.ErrInvalidStatusTransition)
	}

	res, err := r.db.ExecContext(ctx,
		"UPDATE assessments SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, "SELECT status FROM assessments WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("assessment %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking status: %w", err)
	}
	return fmt.Errorf("assessment %d is %s: %w", id, current, domain.ErrInvalidStatusTransition)
}

// List returns assessments matching filter, newest first, and the total match count
func (r *SQLiteRepository) List(ctx context.Context, filter domain.AssessmentFilter) ([]*domain.Assessment, int64, error) {
	where, args := listQuery(filter, sqlitePlaceholder)

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assessments"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting assessments: %w", err)
	}

	args = append(args, limitOrDefault(filter.Limit), filter.Offset)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+assessmentColumns+" FROM assessments"+where+
			" ORDER BY assessment_date DESC, id DESC LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing assessments: %w", err)
	}
	defer rows.Close()

	var result []*domain.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning assessment: %w", err)
		}
		result = append(result, a)
	}
	return result, total, rows.Err()
}

// Statistics counts assessments for the admin listing
func (r *SQLiteRepository) Statistics(ctx context.Context, now time.Time) (*domain.AssessmentStatistics, error) {
	start, end := dayBounds(now)
	var stats domain.AssessmentStatistics
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN assessment_date >= ? AND assessment_date < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM assessments`,
		start, end, string(domain.StatusDraft), string(domain.StatusAnalyzed),
	).Scan(&stats.TotalAssessments, &stats.TodayAssessments, &stats.PendingAnalyses, &stats.CompletedReports)
	if err != nil {
		return nil, fmt.Errorf("computing statistics: %w", err)
	}
	return &stats, nil
}

// Ping checks the database
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
