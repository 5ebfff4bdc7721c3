package catalog

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/domain"
)

// DefaultListLimit applies when a filter sets no limit.
const DefaultListLimit = 50

const definitionColumns = `id, name, color_region, organ, severity, causes, warnings, taboos,
	side, description, is_active, created_at, updated_at`

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// definitionRow mirrors a symptom_library row before its JSON fields are decoded.
type definitionRow struct {
	id          int64
	name        string
	colorRegion sql.NullString
	organ       sql.NullString
	severity    string
	causes      sql.NullString
	warnings    sql.NullString
	taboos      sql.NullString
	side        string
	description sql.NullString
	isActive    bool
	createdAt   time.Time
	updatedAt   time.Time
}

func scanDefinition(s scanner, logger *logrus.Logger) (*domain.SymptomDefinition, error) {
	var r definitionRow
	err := s.Scan(
		&r.id, &r.name, &r.colorRegion, &r.organ, &r.severity,
		&r.causes, &r.warnings, &r.taboos,
		&r.side, &r.description, &r.isActive, &r.createdAt, &r.updatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r.definition(logger), nil
}

// definition decodes each JSON field on its own so one malformed field leaves the rest usable.
func (r *definitionRow) definition(logger *logrus.Logger) *domain.SymptomDefinition {
	def := &domain.SymptomDefinition{
		ID:          r.id,
		Name:        r.name,
		ColorRegion: r.colorRegion.String,
		Organ:       r.organ.String,
		Severity:    domain.Severity(r.severity),
		Side:        domain.Side(r.side),
		Description: r.description.String,
		IsActive:    r.isActive,
		CreatedAt:   r.createdAt,
		UpdatedAt:   r.updatedAt,
	}

	malformed := func(field string, err error) {
		def.MalformedFields = append(def.MalformedFields, field)
		logger.WithError(err).WithFields(logrus.Fields{
			"symptom_id":   r.id,
			"symptom_name": r.name,
			"field":        field,
		}).Warn("Malformed catalog field")
	}

	var err error
	if def.Causes, err = decodeCauses(rawField(r.causes)); err != nil {
		malformed(domain.FieldCauses, err)
	}
	if def.Warnings, err = decodeStrings(rawField(r.warnings)); err != nil {
		malformed(domain.FieldWarnings, err)
	}
	if def.Taboos, err = decodeStrings(rawField(r.taboos)); err != nil {
		malformed(domain.FieldTaboos, err)
	}
	return def
}

func rawField(s sql.NullString) json.RawMessage {
	if !s.Valid {
		return nil
	}
	return json.RawMessage(s.String)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeCauses accepts a list of cause objects or a plain list of labels.
func decodeCauses(raw json.RawMessage) ([]domain.CauseRef, error) {
	if isNull(raw) {
		return nil, nil
	}

	var refs []domain.CauseRef
	if err := json.Unmarshal(raw, &refs); err == nil {
		return refs, nil
	}

	var labels []string
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, fmt.Errorf("%w: causes: %v", domain.ErrMalformedCatalogField, err)
	}
	refs = make([]domain.CauseRef, 0, len(labels))
	for _, l := range labels {
		refs = append(refs, domain.CauseRef{Label: l})
	}
	return refs, nil
}

func decodeStrings(raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCatalogField, err)
	}
	return out, nil
}

// encodeField stores nil lists as NULL so absent and empty stay distinct.
func encodeField[T any](v []T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// encodedDefinition holds the column values written for a definition.
type encodedDefinition struct {
	causes, warnings, taboos sql.NullString
}

func encodeDefinition(def *domain.SymptomDefinition) (encodedDefinition, error) {
	var (
		enc encodedDefinition
		err error
	)
	if enc.causes, err = encodeField(def.Causes); err != nil {
		return enc, fmt.Errorf("encoding causes: %w", err)
	}
	if enc.warnings, err = encodeField(def.Warnings); err != nil {
		return enc, fmt.Errorf("encoding warnings: %w", err)
	}
	if enc.taboos, err = encodeField(def.Taboos); err != nil {
		return enc, fmt.Errorf("encoding taboos: %w", err)
	}
	return enc, nil
}

// normalize fills catalog defaults before a definition is written.
func normalize(def *domain.SymptomDefinition) error {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return domain.NewValidationError("name", "symptom name is required", def.Name)
	}
	if !def.Severity.IsValid() {
		def.Severity = domain.SeverityModerate
	}
	if !def.Side.IsValid() {
		def.Side = domain.SideBoth
	}
	return nil
}

// escapeLike escapes LIKE wildcards using '\' as the escape character.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// filterClause builds the WHERE clause for a filter. placeholder renders the n-th (1-based)
// bind parameter for the target dialect.
func filterClause(filter domain.SymptomFilter, placeholder func(n int) string) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	next := func(v interface{}) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.ActiveOnly {
		conds = append(conds, "is_active = "+next(true))
	}
	if organ := strings.TrimSpace(filter.Organ); organ != "" {
		conds = append(conds, "organ LIKE "+next("%"+escapeLike(organ)+"%")+` ESCAPE '\'`)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		conds = append(conds, "(name LIKE "+next(pattern)+` ESCAPE '\' OR organ LIKE `+next(pattern)+` ESCAPE '\')`)
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
