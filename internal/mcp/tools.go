package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/domain"
	"github.com/yuanqi-assessment-server/internal/service"
)

const defaultSearchLimit = 20

// AnalyzeSymptomsParams defines parameters for the analyze_symptoms tool
type AnalyzeSymptomsParams struct {
	Symptoms []service.SymptomInput `json:"symptoms"`
}

// LookupSymptomParams defines parameters for the lookup_symptom tool. One of ID or Name is required.
type LookupSymptomParams struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// SearchSymptomsParams defines parameters for the search_symptoms tool
type SearchSymptomsParams struct {
	Query string `json:"query,omitempty"`
	Organ string `json:"organ,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// GetAssessmentParams defines parameters for the get_assessment tool
type GetAssessmentParams struct {
	AssessmentID int64 `json:"assessment_id"`
}

// CompareAssessmentsParams defines parameters for the compare_assessments tool
type CompareAssessmentsParams struct {
	AssessmentIDs []int64 `json:"assessment_ids"`
}

// ExportCatalogParams defines parameters for the export_catalog tool
type ExportCatalogParams struct {
	FileName string `json:"file_name,omitempty"`
}

// ImportCatalogParams defines parameters for the import_catalog tool
type ImportCatalogParams struct {
	FilePath string `json:"file_path"`
}

// SearchSymptomsResult is the payload of search_symptoms
type SearchSymptomsResult struct {
	Total    int64                       `json:"total"`
	Symptoms []*domain.SymptomDefinition `json:"symptoms"`
}

// ExportCatalogResult is the payload of export_catalog
type ExportCatalogResult struct {
	FilePath string `json:"file_path"`
	Count    *int64 `json:"count,omitempty"`
	Message  string `json:"message"`
}

// ImportCatalogResult is the payload of import_catalog
type ImportCatalogResult struct {
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Message  string `json:"message"`
}

func (s *Server) handleAnalyzeSymptoms(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeSymptomsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": "analyze_symptoms", "symptoms": len(in.Symptoms)}).Info("Tool invoked")

	result, err := s.assessments.AnalyzeSymptoms(ctx, in.Symptoms)
	if err != nil {
		return s.toolError("analyze_symptoms", err), nil, nil
	}
	return s.jsonResult("analyze_symptoms", result), nil, nil
}

func (s *Server) handleLookupSymptom(ctx context.Context, _ *mcp.CallToolRequest, in LookupSymptomParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": "lookup_symptom", "id": in.ID, "name": in.Name}).Info("Tool invoked")

	var (
		def *domain.SymptomDefinition
		err error
	)
	switch {
	case in.ID > 0:
		def, err = s.catalog.Get(ctx, in.ID)
	case strings.TrimSpace(in.Name) != "":
		def, err = s.catalog.GetByName(ctx, in.Name)
	default:
		err = domain.NewValidationError("id", "id or name is required", nil)
	}
	if err != nil {
		return s.toolError("lookup_symptom", err), nil, nil
	}
	return s.jsonResult("lookup_symptom", def), nil, nil
}

func (s *Server) handleSearchSymptoms(ctx context.Context, _ *mcp.CallToolRequest, in SearchSymptomsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": "search_symptoms", "query": in.Query, "organ": in.Organ}).Info("Tool invoked")

	limit := in.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	page, err := s.catalog.List(ctx, service.CatalogFilter{Search: in.Query, Organ: in.Organ, Limit: limit})
	if err != nil {
		return s.toolError("search_symptoms", err), nil, nil
	}
	return s.jsonResult("search_symptoms", SearchSymptomsResult{
		Total:    page.Pagination.Total,
		Symptoms: page.Symptoms,
	}), nil, nil
}

func (s *Server) handleGetAssessment(ctx context.Context, _ *mcp.CallToolRequest, in GetAssessmentParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": "get_assessment", "assessment_id": in.AssessmentID}).Info("Tool invoked")

	if in.AssessmentID <= 0 {
		return s.toolError("get_assessment", domain.NewValidationError("assessment_id", "assessment_id is required", in.AssessmentID)), nil, nil
	}
	detail, err := s.assessments.Get(ctx, in.AssessmentID)
	if err != nil {
		return s.toolError("get_assessment", err), nil, nil
	}
	return s.jsonResult("get_assessment", detail), nil, nil
}

func (s *Server) handleCompareAssessments(ctx context.Context, _ *mcp.CallToolRequest, in CompareAssessmentsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": "compare_assessments", "assessment_ids": in.AssessmentIDs}).Info("Tool invoked")

	comparison, err := s.assessments.CompareByID(ctx, in.AssessmentIDs)
	if err != nil {
		return s.toolError("compare_assessments", err), nil, nil
	}
	return s.jsonResult("compare_assessments", comparison), nil, nil
}

func (s *Server) handleExportCatalog(ctx context.Context, _ *mcp.CallToolRequest, in ExportCatalogParams) (*mcp.CallToolResult, any, error) {
	if err := os.MkdirAll(s.exportDir, 0755); err != nil {
		return s.toolError("export_catalog", fmt.Errorf("creating export directory: %w", err)), nil, nil
	}

	filename := filepath.Base(strings.TrimSpace(in.FileName))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		filename = fmt.Sprintf("catalog_export_%s.json", time.Now().Format("20060102_150405"))
	}
	filePath := filepath.Join(s.exportDir, filename)

	file, err := os.Create(filePath)
	if err != nil {
		return s.toolError("export_catalog", fmt.Errorf("creating export file: %w", err)), nil, nil
	}
	defer file.Close()

	if err := s.store.ExportJSON(ctx, file); err != nil {
		return s.toolError("export_catalog", err), nil, nil
	}

	result := ExportCatalogResult{
		FilePath: filePath,
		Message:  fmt.Sprintf("Exported symptom catalog to %s", filePath),
	}
	count, err := s.store.Count(ctx, domain.SymptomFilter{})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"tool": "export_catalog",
			"file": filePath,
		}).Warn("Counting exported entries failed")
	} else {
		result.Count = &count
		result.Message = fmt.Sprintf("Exported %d symptom entries to %s", count, filePath)
	}
	return s.jsonResult("export_catalog", result), nil, nil
}

func (s *Server) handleImportCatalog(ctx context.Context, _ *mcp.CallToolRequest, in ImportCatalogParams) (*mcp.CallToolResult, any, error) {
	path := strings.TrimSpace(in.FilePath)
	if path == "" {
		return s.toolError("import_catalog", domain.NewValidationError("file_path", "file_path is required", nil)), nil, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.exportDir, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return s.toolError("import_catalog", fmt.Errorf("opening catalog file: %w", err)), nil, nil
	}
	defer file.Close()

	imported, skipped, err := s.store.ImportJSON(ctx, file)
	if err != nil {
		return s.toolError("import_catalog", err), nil, nil
	}
	return s.jsonResult("import_catalog", ImportCatalogResult{
		Imported: imported,
		Skipped:  skipped,
		Message:  fmt.Sprintf("Imported %d symptom entries, skipped %d", imported, skipped),
	}), nil, nil
}

// jsonResult renders v as the tool's text content.
func (s *Server) jsonResult(tool string, v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return s.toolError(tool, fmt.Errorf("encoding result: %w", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

// toolError reports err to the client as a failed tool result.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	code := domain.CodeForError(err)
	entry := s.logger.WithError(err).WithFields(logrus.Fields{"tool": tool, "code": code})
	if code == domain.CodeInternalServer {
		entry.Error("Tool failed")
	} else {
		entry.Warn("Tool rejected input")
	}

	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: %s", code, err.Error())}},
	}
}
