// Package mcp exposes symptom analysis and assessment lookups as MCP tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/catalog"
	"github.com/yuanqi-assessment-server/internal/service"
)

const (
	serverName    = "yuanqi-assessment-mcp"
	serverVersion = "v0.1.0"
)

// Server represents the MCP server
type Server struct {
	mcpServer   *mcp.Server
	assessments *service.AssessmentService
	catalog     *service.CatalogService
	store       catalog.Store
	exportDir   string
	logger      *logrus.Logger
}

// ServerOption is a functional option for Server.
type ServerOption func(*Server)

// WithCatalogStore enables the catalog export and import tools.
func WithCatalogStore(store catalog.Store, exportDir string) ServerOption {
	return func(s *Server) {
		s.store = store
		s.exportDir = exportDir
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates the MCP server and registers its tools.
func NewServer(assessments *service.AssessmentService, catalogSvc *service.CatalogService, opts ...ServerOption) *Server {
	s := &Server{
		assessments: assessments,
		catalog:     catalogSvc,
		logger:      logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	s.registerTools()
	return s
}

// Run serves MCP over transport until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.WithField("server", serverName).Info("Starting MCP server")
	if err := s.mcpServer.Run(ctx, transport); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// RunStdio serves MCP over stdin and stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "analyze_symptoms",
		Description: "Score a list of self-reported symptoms (intensity 1-20) across causes, organs, constitution, emotions, lifestyle and nutrients, and return recommendations. Nothing is stored.",
	}, s.handleAnalyzeSymptoms)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "lookup_symptom",
		Description: "Fetch one symptom catalog entry by id or by exact name.",
	}, s.handleLookupSymptom)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "search_symptoms",
		Description: "Search active catalog entries whose name or organ contains the query, optionally filtered by organ.",
	}, s.handleSearchSymptoms)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_assessment",
		Description: "Fetch a stored assessment with its symptoms and analysis.",
	}, s.handleGetAssessment)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "compare_assessments",
		Description: "Compare exactly two stored assessments, the first being the earlier one: symptom changes, score changes and health trend.",
	}, s.handleCompareAssessments)

	count := 5
	if s.store != nil {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "export_catalog",
			Description: "Export the symptom catalog as JSON to a file in the export directory.",
		}, s.handleExportCatalog)

		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "import_catalog",
			Description: "Import symptom catalog entries from a JSON file. Names already present are skipped.",
		}, s.handleImportCatalog)
		count += 2
	}

	s.logger.WithField("tool_count", count).Info("Registered MCP tools")
}
