package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanqi-assessment-server/internal/catalog"
	"github.com/yuanqi-assessment-server/internal/database"
	"github.com/yuanqi-assessment-server/internal/domain"
	"github.com/yuanqi-assessment-server/internal/repository"
	"github.com/yuanqi-assessment-server/internal/service"
)

type testEnv struct {
	server    *Server
	svc       *service.AssessmentService
	store     *catalog.SQLiteStore
	dizzy     *domain.SymptomDefinition
	exportDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := database.OpenSQLite(filepath.Join(dir, "yuanqi.db"))
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store, err := catalog.NewSQLiteStore(db, logger)
	require.NoError(t, err)
	repo, err := repository.NewSQLiteRepository(db, logger)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	dizzy := &domain.SymptomDefinition{
		Name:     "头晕",
		Organ:    "肝",
		Causes:   []domain.CauseRef{{Label: "气血"}},
		IsActive: true,
	}
	require.NoError(t, store.Save(context.Background(), dizzy))

	lookup := catalog.NewCachedLookup(store, logger)
	svc := service.NewAssessmentService(repo, lookup, logger)
	exportDir := filepath.Join(dir, "exports")

	return &testEnv{
		server: NewServer(svc, service.NewCatalogService(store, lookup),
			WithCatalogStore(store, exportDir), WithLogger(logger)),
		svc:       svc,
		store:     store,
		dizzy:     dizzy,
		exportDir: exportDir,
	}
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func decode(t *testing.T, result *mcp.CallToolResult, v interface{}) {
	t.Helper()
	require.False(t, result.IsError, textOf(t, result))
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), v))
}

func TestAnalyzeSymptomsTool(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, _, err := env.server.handleAnalyzeSymptoms(ctx, nil, AnalyzeSymptomsParams{
		Symptoms: []service.SymptomInput{
			{SymptomID: env.dizzy.ID, SymptomName: "头晕", Intensity: 12},
			{SymptomName: "失眠", Intensity: 6},
		},
	})
	require.NoError(t, err)

	var analysis domain.AnalysisResult
	decode(t, result, &analysis)
	assert.Equal(t, 12, analysis.OrganAnalysis.Get(domain.OrganLiver))
	assert.Equal(t, 6, analysis.OrganAnalysis.Get(domain.OrganGeneral))
	assert.Equal(t, 12, analysis.CauseAnalysis.Get(domain.CauseQiBlood))
	assert.NotEmpty(t, analysis.HealthLevel)

	t.Run("empty input", func(t *testing.T) {
		result, _, err := env.server.handleAnalyzeSymptoms(ctx, nil, AnalyzeSymptomsParams{})
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.True(t, strings.HasPrefix(textOf(t, result), domain.CodeNoSymptomData))
	})

	t.Run("intensity out of range", func(t *testing.T) {
		result, _, err := env.server.handleAnalyzeSymptoms(ctx, nil, AnalyzeSymptomsParams{
			Symptoms: []service.SymptomInput{{SymptomName: "头晕", Intensity: 30}},
		})
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.True(t, strings.HasPrefix(textOf(t, result), domain.CodeInvalidInput))
	})
}

func TestLookupAndSearchTools(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		params  LookupSymptomParams
		wantErr string
	}{
		{"by id", LookupSymptomParams{ID: env.dizzy.ID}, ""},
		{"by name", LookupSymptomParams{Name: " 头晕 "}, ""},
		{"unknown id", LookupSymptomParams{ID: 9999}, domain.CodeNotFound},
		{"nothing given", LookupSymptomParams{}, domain.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := env.server.handleLookupSymptom(ctx, nil, tt.params)
			require.NoError(t, err)
			if tt.wantErr != "" {
				assert.True(t, result.IsError)
				assert.Contains(t, textOf(t, result), tt.wantErr)
				return
			}
			var def domain.SymptomDefinition
			decode(t, result, &def)
			assert.Equal(t, env.dizzy.ID, def.ID)
			assert.Equal(t, "肝", def.Organ)
		})
	}

	result, _, err := env.server.handleSearchSymptoms(ctx, nil, SearchSymptomsParams{Query: "头"})
	require.NoError(t, err)
	var found SearchSymptomsResult
	decode(t, result, &found)
	assert.Equal(t, int64(1), found.Total)
	require.Len(t, found.Symptoms, 1)
	assert.Equal(t, "头晕", found.Symptoms[0].Name)

	result, _, err = env.server.handleSearchSymptoms(ctx, nil, SearchSymptomsParams{Organ: "胃"})
	require.NoError(t, err)
	decode(t, result, &found)
	assert.Equal(t, int64(0), found.Total)
	assert.Empty(t, found.Symptoms)
}

func TestAssessmentTools(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	create := func(intensity int) int64 {
		detail, err := env.svc.Create(ctx, &service.CreateAssessmentRequest{
			UserID:   3,
			RealName: "王五",
			Age:      50,
			Gender:   "male",
			Symptoms: []service.SymptomInput{{SymptomID: env.dizzy.ID, SymptomName: "头晕", Intensity: intensity}},
		})
		require.NoError(t, err)
		return detail.Assessment.ID
	}
	first := create(18)
	second := create(4)

	result, _, err := env.server.handleGetAssessment(ctx, nil, GetAssessmentParams{AssessmentID: first})
	require.NoError(t, err)
	var detail service.AssessmentDetail
	decode(t, result, &detail)
	assert.Equal(t, first, detail.Assessment.ID)
	require.NotNil(t, detail.Analysis)
	assert.Equal(t, 18, detail.Analysis.OrganAnalysis.Get(domain.OrganLiver))

	result, _, err = env.server.handleGetAssessment(ctx, nil, GetAssessmentParams{AssessmentID: 4242})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), domain.CodeNotFound)

	result, _, err = env.server.handleGetAssessment(ctx, nil, GetAssessmentParams{})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, _, err = env.server.handleCompareAssessments(ctx, nil, CompareAssessmentsParams{AssessmentIDs: []int64{first, second}})
	require.NoError(t, err)
	var comparison domain.Comparison
	decode(t, result, &comparison)
	assert.Equal(t, first, comparison.AssessmentA.ID)
	assert.Equal(t, second, comparison.AssessmentB.ID)
	assert.Equal(t, -14, comparison.ScoreChanges.TotalScore.Change)

	result, _, err = env.server.handleCompareAssessments(ctx, nil, CompareAssessmentsParams{AssessmentIDs: []int64{first}})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), domain.CodeInvalidComparison)
}

func TestCatalogExportImportTools(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, _, err := env.server.handleExportCatalog(ctx, nil, ExportCatalogParams{FileName: "../escape.json"})
	require.NoError(t, err)
	var exported ExportCatalogResult
	decode(t, result, &exported)
	assert.Equal(t, filepath.Join(env.exportDir, "escape.json"), exported.FilePath)
	require.NotNil(t, exported.Count)
	assert.Equal(t, int64(1), *exported.Count)

	data, err := os.ReadFile(exported.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "头晕")

	seed := `{"symptoms":[{"name":"头晕","organ":"肝"},{"name":"胃胀","organ":"胃","causes":[{"label":"饮食"}]},{"name":""}]}`
	require.NoError(t, os.WriteFile(filepath.Join(env.exportDir, "seed.json"), []byte(seed), 0644))

	result, _, err = env.server.handleImportCatalog(ctx, nil, ImportCatalogParams{FilePath: "seed.json"})
	require.NoError(t, err)
	var imported ImportCatalogResult
	decode(t, result, &imported)
	assert.Equal(t, 1, imported.Imported)
	assert.Equal(t, 2, imported.Skipped)

	def, err := env.store.GetByName(ctx, "胃胀")
	require.NoError(t, err)
	assert.Equal(t, "胃", def.Organ)

	result, _, err = env.server.handleImportCatalog(ctx, nil, ImportCatalogParams{})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, _, err = env.server.handleImportCatalog(ctx, nil, ImportCatalogParams{FilePath: "missing.json"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), domain.CodeInternalServer)
}

type countFailingStore struct {
	catalog.Store
}

func (countFailingStore) Count(context.Context, domain.SymptomFilter) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestExportCatalogReportsCountFailure(t *testing.T) {
	env := newTestEnv(t)
	logger, hook := test.NewNullLogger()
	lookup := catalog.NewCachedLookup(env.store, logger)
	server := NewServer(env.svc, service.NewCatalogService(env.store, lookup),
		WithCatalogStore(countFailingStore{env.store}, env.exportDir), WithLogger(logger))

	result, _, err := server.handleExportCatalog(context.Background(), nil, ExportCatalogParams{FileName: "catalog.json"})
	require.NoError(t, err)
	assert.False(t, result.IsError, "the file was written")

	var exported ExportCatalogResult
	decode(t, result, &exported)
	assert.Nil(t, exported.Count)
	assert.NotContains(t, exported.Message, "Exported 0")
	assert.FileExists(t, exported.FilePath)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "export_catalog", entry.Data["tool"])
}

func TestNewServerRegistersTools(t *testing.T) {
	env := newTestEnv(t)
	assert.NotNil(t, env.server.mcpServer)

	withoutStore := NewServer(env.svc, service.NewCatalogService(env.store, nil))
	assert.Nil(t, withoutStore.store)
	assert.NotNil(t, withoutStore.mcpServer)
}
