package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewPostgresStore creates a PostgreSQL catalog store.
// It expects the symptom_library table to already exist (created via migrations).
func NewPostgresStore(db *sql.DB, logger *logrus.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// NewPostgresStoreFromURL opens a connection pool for databaseURL and wraps it in a store.
func NewPostgresStoreFromURL(databaseURL string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func postgresPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// Save upserts a definition by name.
func (s *PostgresStore) Save(ctx context.Context, def *domain.SymptomDefinition) error {
	if err := normalize(def); err != nil {
		return err
	}
	enc, err := encodeDefinition(def)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO symptom_library (
			name, color_region, organ, severity, causes, warnings, taboos,
			side, description, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (name) DO UPDATE SET
			color_region = EXCLUDED.color_region,
			organ = EXCLUDED.organ,
			severity = EXCLUDED.severity,
			causes = EXCLUDED.causes,
			warnings = EXCLUDED.warnings,
			taboos = EXCLUDED.taboos,
			side = EXCLUDED.side,
			description = EXCLUDED.description,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err = s.db.QueryRowContext(ctx, query,
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
	).Scan(&def.ID, &def.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save symptom: %w", err)
	}

	def.UpdatedAt = now
	return nil
}

// Get retrieves a definition by id.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*domain.SymptomDefinition, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+definitionColumns+" FROM symptom_library WHERE id = $1", id)
	def, err := scanDefinition(row, s.logger)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("symptom %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get symptom: %w", err)
	}
	return def, nil
}

// GetByName retrieves a definition by its unique name.
func (s *PostgresStore) GetByName(ctx context.Context, name string) (*domain.SymptomDefinition, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+definitionColumns+" FROM symptom_library WHERE name = $1", name)
	def, err := scanDefinition(row, s.logger)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("symptom %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get symptom: %w", err)
	}
	return def, nil
}

// List returns definitions matching filter in id order.
func (s *PostgresStore) List(ctx context.Context, filter domain.SymptomFilter) ([]*domain.SymptomDefinition, error) {
	where, args := filterClause(filter, postgresPlaceholder)
	n := len(args)
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)

	query := "SELECT " + definitionColumns + " FROM symptom_library" + where +
		" ORDER BY id LIMIT " + postgresPlaceholder(n+1) + " OFFSET " + postgresPlaceholder(n+2)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list symptoms: %w", err)
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
func (s *PostgresStore) Count(ctx context.Context, filter domain.SymptomFilter) (int64, error) {
	where, args := filterClause(filter, postgresPlaceholder)
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM symptom_library"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count symptoms: %w", err)
	}
	return count, nil
}

// ExportJSON writes all definitions to writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportAll(ctx, s, writer)
}

// ImportJSON imports definitions from reader, skipping names already stored.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importAll(ctx, s, reader, s.logger)
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
