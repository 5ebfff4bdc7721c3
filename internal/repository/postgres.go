package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/domain"
)

const (
	pgUniqueViolation  = "23505"
	codeConstraintName = "assessments_code_unique"
)

// PostgresRepository implements domain.AssessmentRepository on a pgx pool.
type PostgresRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresRepository creates a new assessment repository
func NewPostgresRepository(db *pgxpool.Pool, logger *logrus.Logger) *PostgresRepository {
	if logger == nil {
		logger = logrus.New()
	}
	return &PostgresRepository{
		db:  db,
		log: logger,
	}
}

func pgPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

func isDuplicateCode(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == codeConstraintName
}

// Create inserts the assessment and its symptoms as draft, stores the analysis produced by
// analyze and marks the assessment analyzed, all in one transaction.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Assessment, analyze domain.AnalyzeFunc) (*domain.AnalysisResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	if a.AssessmentDate.IsZero() {
		a.AssessmentDate = now
	}
	a.Status = domain.StatusDraft

	err = tx.QueryRow(ctx, `
		INSERT INTO assessments (
			user_id, assessment_code, assessment_date, real_name, age, gender,
			height, weight, waist_circumference, blood_sugar, systolic_pressure, diastolic_pressure,
			remarks, total_symptoms, total_score, avg_score, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)
		RETURNING id`,
		a.UserID, a.Code, a.AssessmentDate.UTC(), a.RealName, a.Age, a.Gender,
		a.Height, a.Weight, a.WaistCircumference, a.BloodSugar, a.SystolicPressure, a.DiastolicPressure,
		a.Remarks, a.TotalSymptoms, a.TotalScore, a.AvgScore, string(a.Status), now,
	).Scan(&a.ID)
	if err != nil {
		if isDuplicateCode(err) {
			return nil, fmt.Errorf("assessment code %s: %w", a.Code, domain.ErrDuplicateCode)
		}
		r.log.WithError(err).WithField("assessment_code", a.Code).Error("Failed to create assessment")
		return nil, fmt.Errorf("creating assessment: %w", err)
	}
	a.CreatedAt, a.UpdatedAt = now, now

	if err := r.insertSymptoms(ctx, tx, a); err != nil {
		return nil, err
	}

	result, err := analyze(ctx, a.Symptoms)
	if err != nil {
		return nil, err
	}
	result.AssessmentID = a.ID

	if err := r.insertAnalysis(ctx, tx, result); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		"UPDATE assessments SET status = $1, updated_at = $2 WHERE id = $3",
		string(domain.StatusAnalyzed), now, a.ID,
	); err != nil {
		return nil, fmt.Errorf("marking assessment analyzed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing assessment: %w", err)
	}
	a.Status = domain.StatusAnalyzed

	r.log.WithFields(logrus.Fields(a.LogFields())).Info("Assessment created successfully")
	return result, nil
}

func (r *PostgresRepository) insertSymptoms(ctx context.Context, tx pgx.Tx, a *domain.Assessment) error {
	batch := &pgx.Batch{}
	for i := range a.Symptoms {
		rec := &a.Symptoms[i]
		rec.AssessmentID = a.ID
		labels, err := encodeLabels(rec.CauseLabels)
		if err != nil {
			return fmt.Errorf("encoding cause labels: %w", err)
		}
		batch.Queue(`
			INSERT INTO assessment_symptoms (
				assessment_id, position, symptom_id, symptom_name, intensity, side, severity, cause_labels
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			a.ID, i, rec.SymptomID, rec.SymptomName, rec.Intensity, string(rec.Side), string(rec.Severity), labels,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range a.Symptoms {
		if err := br.QueryRow().Scan(&a.Symptoms[i].ID); err != nil {
			br.Close()
			return fmt.Errorf("inserting symptom %d: %w", i, err)
		}
	}
	return br.Close()
}

func (r *PostgresRepository) insertAnalysis(ctx context.Context, tx pgx.Tx, result *domain.AnalysisResult) error {
	row, err := encodeAnalysis(result)
	if err != nil {
		return err
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO analysis_results (
			assessment_id, cause_analysis, organ_analysis, constitution_analysis,
			precautions, taboos, emotion_analysis, health_trends, lifestyle_habits,
			mineral_deficiency, vitamin_deficiency, overall_health_score, health_level,
			primary_issues, recommendations, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`,
		result.AssessmentID, row.causes, row.organs, row.constitutions,
		row.precautions, row.taboos, row.emotions, row.trends, row.lifestyle,
		row.minerals, row.vitamins, result.OverallHealthScore, string(result.HealthLevel),
		row.issues, result.Recommendations, result.CreatedAt.UTC(),
	).Scan(&result.ID)
	if err != nil {
		return fmt.Errorf("inserting analysis: %w", err)
	}
	return nil
}

// Get retrieves an assessment with its symptoms
func (r *PostgresRepository) Get(ctx context.Context, id int64) (*domain.Assessment, error) {
	a, err := scanAssessment(r.db.QueryRow(ctx,
		"SELECT "+assessmentColumns+" FROM assessments WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
func (r *PostgresRepository) GetSymptoms(ctx context.Context, assessmentID int64) ([]domain.SymptomRecord, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+symptomColumns+" FROM assessment_symptoms WHERE assessment_id = $1 ORDER BY position",
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
func (r *PostgresRepository) GetAnalysis(ctx context.Context, assessmentID int64) (*domain.AnalysisResult, error) {
	result, err := scanAnalysis(r.db.QueryRow(ctx,
		"SELECT "+analysisColumns+" FROM analysis_results WHERE assessment_id = $1", assessmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("analysis of assessment %d: %w", assessmentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting analysis: %w", err)
	}
	return result, nil
}

// ReplaceAnalysis stores result in place of the current analysis and sets the status
func (r *PostgresRepository) ReplaceAnalysis(ctx context.Context, result *domain.AnalysisResult, status domain.AssessmentStatus) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		"UPDATE assessments SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), time.Now().UTC(), result.AssessmentID)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("assessment %d: %w", result.AssessmentID, domain.ErrNotFound)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM analysis_results WHERE assessment_id = $1", result.AssessmentID); err != nil {
		return fmt.Errorf("deleting previous analysis: %w", err)
	}
	result.ID = 0
	result.CreatedAt = time.Time{}
	if err := r.insertAnalysis(ctx, tx, result); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
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
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.AssessmentStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%s to %s: %w", from, to, domain.ErrInvalidStatusTransition)
	}

	tag, err := r.db.Exec(ctx,
		"UPDATE assessments SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4",
		string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRow(ctx, "SELECT status FROM assessments WHERE id = $1", id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("assessment %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking status: %w", err)
	}
	return fmt.Errorf("assessment %d is %s: %w", id, current, domain.ErrInvalidStatusTransition)
}

// List returns assessments matching filter, newest first, and the total match count
func (r *PostgresRepository) List(ctx context.Context, filter domain.AssessmentFilter) ([]*domain.Assessment, int64, error) {
	where, args := listQuery(filter, pgPlaceholder)

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM assessments"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting assessments: %w", err)
	}

	n := len(args)
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)
	rows, err := r.db.Query(ctx,
		"SELECT "+assessmentColumns+" FROM assessments"+where+
			" ORDER BY assessment_date DESC, id DESC LIMIT "+pgPlaceholder(n+1)+" OFFSET "+pgPlaceholder(n+2),
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
func (r *PostgresRepository) Statistics(ctx context.Context, now time.Time) (*domain.AssessmentStatistics, error) {
	start, end := dayBounds(now)
	var stats domain.AssessmentStatistics
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE assessment_date >= $1 AND assessment_date < $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $4)
		FROM assessments`,
		start, end, string(domain.StatusDraft), string(domain.StatusAnalyzed),
	).Scan(&stats.TotalAssessments, &stats.TodayAssessments, &stats.PendingAnalyses, &stats.CompletedReports)
	if err != nil {
		return nil, fmt.Errorf("computing statistics: %w", err)
	}
	return &stats, nil
}

// Ping checks the pool
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Close closes the pool
func (r *PostgresRepository) Close() error {
	r.db.Close()
	return nil
}
