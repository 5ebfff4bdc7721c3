package domain

import (
	"context"
	"time"
)

// SymptomLookup resolves catalog definitions that were already loaded for one analysis.
// A missing id and a definition with an absent field are handled identically by the engine.
type SymptomLookup interface {
	Definition(symptomID int64) (*SymptomDefinition, bool)
}

// SymptomCatalog provides read access to the symptom catalog
type SymptomCatalog interface {
	Get(ctx context.Context, id int64) (*SymptomDefinition, error)
	GetByName(ctx context.Context, name string) (*SymptomDefinition, error)
	List(ctx context.Context, filter SymptomFilter) ([]*SymptomDefinition, error)
	Count(ctx context.Context, filter SymptomFilter) (int64, error)
}

// AnalyzeFunc scores the symptoms of an assessment while it is being persisted.
type AnalyzeFunc func(ctx context.Context, symptoms []SymptomRecord) (*AnalysisResult, error)

// AssessmentRepository defines the interface for assessment persistence
type AssessmentRepository interface {
	// Create stores the assessment as draft, runs analyze, stores the result and marks the
	// assessment analyzed, all in one transaction.
	Create(ctx context.Context, a *Assessment, analyze AnalyzeFunc) (*AnalysisResult, error)
	Get(ctx context.Context, id int64) (*Assessment, error)
	GetSymptoms(ctx context.Context, assessmentID int64) ([]SymptomRecord, error)
	GetAnalysis(ctx context.Context, assessmentID int64) (*AnalysisResult, error)
	// ReplaceAnalysis swaps the stored result for a fresh one and sets the assessment status.
	ReplaceAnalysis(ctx context.Context, result *AnalysisResult, status AssessmentStatus) error
	UpdateStatus(ctx context.Context, id int64, from, to AssessmentStatus) error
	List(ctx context.Context, filter AssessmentFilter) ([]*Assessment, int64, error)
	Statistics(ctx context.Context, now time.Time) (*AssessmentStatistics, error)
	Ping(ctx context.Context) error
	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetStorageConfig() *StorageConfig
	GetDatabaseConfig() *DatabaseConfig
	GetCacheConfig() *CacheConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
