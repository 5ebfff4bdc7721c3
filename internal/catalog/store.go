// Package catalog provides symptom catalog storage and cached lookups.
// The catalog is reference data: each definition names the organs, causes, warnings and taboos
// the scoring engine attributes to a symptom.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/domain"
)

// Store defines the interface for catalog storage operations.
type Store interface {
	domain.SymptomCatalog

	// Save stores a definition, updating the existing entry with the same name.
	Save(ctx context.Context, def *domain.SymptomDefinition) error

	// ExportJSON writes every definition to writer in the import format.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports definitions from reader. Names already present are skipped.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// Entry is one symptom in the catalog interchange format.
type Entry struct {
	Name        string          `json:"name"`
	ColorRegion string          `json:"colorRegion,omitempty"`
	Organ       string          `json:"organ,omitempty"`
	Severity    domain.Severity `json:"severity,omitempty"`
	Causes      json.RawMessage `json:"causes,omitempty"`
	Warnings    json.RawMessage `json:"warnings,omitempty"`
	Taboos      json.RawMessage `json:"taboos,omitempty"`
	Side        domain.Side     `json:"side,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Export represents the JSON import/export document.
type Export struct {
	Version    string    `json:"version,omitempty"`
	ExportedAt time.Time `json:"exported_at,omitempty"`
	Count      int       `json:"count,omitempty"`
	Symptoms   []Entry   `json:"symptoms"`
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// Definition converts an interchange entry, applying the catalog defaults. Fields that fail
// to parse are recorded in MalformedFields.
func (e Entry) Definition() (*domain.SymptomDefinition, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return nil, domain.NewValidationError("name", "symptom name is required", e.Name)
	}

	def := &domain.SymptomDefinition{
		Name:        name,
		ColorRegion: e.ColorRegion,
		Organ:       e.Organ,
		Severity:    e.Severity,
		Side:        e.Side,
		Description: e.Description,
		IsActive:    true,
	}
	if !def.Severity.IsValid() {
		def.Severity = domain.SeverityModerate
	}
	if !def.Side.IsValid() {
		def.Side = domain.ParseSide(string(e.Side))
	}

	var err error
	if def.Causes, err = decodeCauses(e.Causes); err != nil {
		def.MalformedFields = append(def.MalformedFields, domain.FieldCauses)
	}
	if def.Warnings, err = decodeStrings(e.Warnings); err != nil {
		def.MalformedFields = append(def.MalformedFields, domain.FieldWarnings)
	}
	if def.Taboos, err = decodeStrings(e.Taboos); err != nil {
		def.MalformedFields = append(def.MalformedFields, domain.FieldTaboos)
	}
	return def, nil
}

// EntryFor converts a definition to the interchange format.
func EntryFor(def *domain.SymptomDefinition) Entry {
	return Entry{
		Name:        def.Name,
		ColorRegion: def.ColorRegion,
		Organ:       def.Organ,
		Severity:    def.Severity,
		Causes:      rawOrNil(def.Causes),
		Warnings:    rawOrNil(def.Warnings),
		Taboos:      rawOrNil(def.Taboos),
		Side:        def.Side,
		Description: def.Description,
	}
}

func rawOrNil[T any](v []T) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// exportAll writes the store contents as an Export document.
func exportAll(ctx context.Context, s domain.SymptomCatalog, writer io.Writer) error {
	all, err := s.List(ctx, domain.SymptomFilter{Limit: maxExportLimit})
	if err != nil {
		return fmt.Errorf("failed to list symptoms: %w", err)
	}

	entries := make([]Entry, 0, len(all))
	for _, def := range all {
		entries = append(entries, EntryFor(def))
	}

	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(entries),
		Symptoms:   entries,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(export)
}

// importAll saves every entry of an Export document whose name is not yet stored.
func importAll(ctx context.Context, s Store, reader io.Reader, logger *logrus.Logger) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, entry := range export.Symptoms {
		def, err := entry.Definition()
		if err != nil {
			logger.WithError(err).Warn("Skipping catalog entry without a name")
			skipped++
			continue
		}
		if len(def.MalformedFields) > 0 {
			logger.WithError(domain.ErrMalformedCatalogField).WithFields(logrus.Fields{
				"symptom_name": def.Name,
				"fields":       def.MalformedFields,
			}).Warn("Importing catalog entry without its malformed fields")
		}

		_, err = s.GetByName(ctx, def.Name)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if err := s.Save(ctx, def); err != nil {
			return imported, skipped, fmt.Errorf("failed to save %s: %w", def.Name, err)
		}
		imported++
	}

	return imported, skipped, nil
}
