package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteStore creates a catalog store on an open SQLite database and creates
// the symptom_library table if it doesn't exist.
func NewSQLiteStore(db *sql.DB, logger *logrus.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// createSchema creates the catalog table and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS symptom_library (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		color_region TEXT,
		organ TEXT,
		severity TEXT NOT NULL DEFAULT 'moderate',
		causes TEXT,
		warnings TEXT,
		taboos TEXT,
		side TEXT NOT NULL DEFAULT 'both',
		description TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_symptom_library_active ON symptom_library(is_active);
	`

	_, err := db.Exec(schema)
	return err
}

func sqlitePlaceholder(int) string { return "?" }

// Save stores a definition, updating the entry with the same name if one exists.
func (s *SQLiteStore) Save(ctx context.Context, def *domain.SymptomDefinition) error {
	if err := normalize(def); err != nil {
		return err
	}
	enc, err := encodeDefinition(def)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	var existingID int64
	var createdAt time.Time
	err = s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM symptom_library WHERE name = ?", def.Name,
	).Scan(&existingID, &createdAt)

	if err == nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE symptom_library SET
				color_region = ?,
				organ = ?,
				severity = ?,
				causes = ?,
				warnings = ?,
				taboos = ?,
				side = ?,
				description = ?,
				is_active = ?,
				updated_at = ?
			WHERE id = ?
		`,
			nullString(def.ColorRegion),
			nullString(def.Organ),
			string(def.Severity),
			enc.causes,
			enc.warnings,
			enc.taboos,
			string(def.Side),
			nullString(def.Description),
			def.IsActive,
			now,
			existingID,
		)
		if err != nil {
			return fmt.Errorf("failed to update symptom: %w", err)
		}
		def.ID = existingID
		def.CreatedAt = createdAt
		def.UpdatedAt = now
		return nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO symptom_library (
			name, color_region, organ, severity, causes, warnings, taboos,
			side, description, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		def.Name,
		nullString(def.ColorRegion),
		nullString(def.Organ),
		string(def.Severity),
		enc.causes,
		enc.warnings,
		enc.taboos,
		string(def.Side),
		nullString(def.Description),
		def.IsActive,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert symptom: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	def.ID = id
	def.CreatedAt = now
	def.UpdatedAt = now
	return nil
}

// Get retrieves a definition by id.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*domain.SymptomDefinition, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+definitionColumns+" FROM symptom_library WHERE id = ?", id)
	def, err := scanDefinition(row, s.logger)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("symptom %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan symptom: %w", err)
	}
	return def, nil
}

// GetByName retrieves a definition by its unique name.
func (s *SQLiteStore) GetByName(ctx context.Context, name string) (*domain.SymptomDefinition, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+definitionColumns+" FROM symptom_library WHERE name = ?", name)
	def, err := scanDefinition(row, s.logger)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("symptom %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan symptom: %w", err)
	}
	return def, nil
}

// List returns definitions matching filter in id order.
func (s *SQLiteStore) List(ctx context.Context, filter domain.SymptomFilter) ([]*domain.SymptomDefinition, error) {
	where, args := filterClause(filter, sqlitePlaceholder)
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+definitionColumns+" FROM symptom_library"+where+" ORDER BY id LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query symptoms: %w", err)
	}
	defer rows.Close()

	var result []*domain.SymptomDefinition
	for rows.Next() {
		def, err := scanDefinition(rows, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, def)
	}
	return result, rows.Err()
}

// Count returns the number of definitions matching filter. Limit and Offset are ignored.
func (s *SQLiteStore) Count(ctx context.Context, filter domain.SymptomFilter) (int64, error) {
	where, args := filterClause(filter, sqlitePlaceholder)
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM symptom_library"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count symptoms: %w", err)
	}
	return count, nil
}

// ExportJSON writes all definitions to writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportAll(ctx, s, writer)
}

// ImportJSON imports definitions from reader, skipping names already stored.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importAll(ctx, s, reader, s.logger)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
