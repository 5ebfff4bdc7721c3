// Package service orchestrates assessment intake, analysis, retrieval and comparison.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/catalog"
	"github.com/yuanqi-assessment-server/internal/domain"
	"github.com/yuanqi-assessment-server/internal/scoring"
)

const (
	codePrefix      = "YA"
	maxCodeAttempts = 5

	defaultUserLimit  = 20
	defaultAdminLimit = 50
	maxListLimit      = 100
	compareCount      = 2

	msgMissingFields  = "缺少必填字段"
	msgNoSymptoms     = "至少选择一个症状"
	msgSymptomName    = "症状名称不能为空"
	msgIntensityRange = "症状强度必须在1-20之间"
	msgCompareTooFew  = "至少需要两个评估ID进行对比"
	msgCompareTooMany = "最多支持两个评估对比"
)

// CatalogResolver loads the catalog definitions needed for one analysis.
type CatalogResolver interface {
	Resolve(ctx context.Context, ids []int64) (*catalog.Snapshot, error)
}

// AssessmentService implements assessment intake and reporting
type AssessmentService struct {
	repo     domain.AssessmentRepository
	catalog  CatalogResolver
	analyzer *scoring.Analyzer
	events   EventPublisher
	metrics  MetricsRecorder
	logger   *logrus.Logger
	now      func() time.Time
	codeRand func() int
}

// Option configures an AssessmentService
type Option func(*AssessmentService)

// WithEventPublisher sets the receiver of assessment events.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *AssessmentService) {
		if p != nil {
			s.events = p
		}
	}
}

// WithMetrics sets the analysis metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *AssessmentService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *AssessmentService) {
		s.now = now
	}
}

// WithCodeSource overrides the random 4-digit part of generated codes.
func WithCodeSource(next func() int) Option {
	return func(s *AssessmentService) {
		s.codeRand = next
	}
}

// NewAssessmentService creates a new assessment service
func NewAssessmentService(repo domain.AssessmentRepository, resolver CatalogResolver, logger *logrus.Logger, opts ...Option) *AssessmentService {
	if logger == nil {
		logger = logrus.New()
	}
	s := &AssessmentService{
		repo:     repo,
		catalog:  resolver,
		analyzer: scoring.NewAnalyzer(logger),
		events:   nopPublisher{},
		metrics:  nopMetrics{},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		codeRand: func() int { return rand.IntN(10000) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateCode builds an assessment code: YA, the UTC date as yyyymmdd and four random digits.
func GenerateCode(now time.Time, n int) string {
	return fmt.Sprintf("%s%s%04d", codePrefix, now.UTC().Format("20060102"), n%10000)
}

// Create validates and stores an assessment, analyzes it and returns the stored detail.
func (s *AssessmentService) Create(ctx context.Context, req *CreateAssessmentRequest) (*AssessmentDetail, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	records := buildRecords(req.Symptoms)
	lookup, err := s.resolve(ctx, records)
	if err != nil {
		return nil, err
	}
	fillCauseLabels(records, lookup)

	total := 0
	for _, r := range records {
		total += r.Intensity
	}

	start := time.Now()
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		now := s.now()
		a := &domain.Assessment{
			UserID:         req.UserID,
			Code:           GenerateCode(now, s.codeRand()),
			AssessmentDate: now,
			RealName:       strings.TrimSpace(req.RealName),
			Demographics: domain.Demographics{
				Age:                req.Age,
				Gender:             strings.TrimSpace(req.Gender),
				Height:             req.Height,
				Weight:             req.Weight,
				WaistCircumference: req.WaistCircumference,
				BloodSugar:         req.BloodSugar,
				SystolicPressure:   req.SystolicPressure,
				DiastolicPressure:  req.DiastolicPressure,
			},
			Remarks:       req.Remarks,
			TotalSymptoms: len(records),
			TotalScore:    total,
			AvgScore:      scoring.Round2(float64(total) / float64(len(records))),
			Symptoms:      records,
		}

		result, err := s.repo.Create(ctx, a, func(ctx context.Context, symptoms []domain.SymptomRecord) (*domain.AnalysisResult, error) {
			return s.analyzer.Analyze(a.ID, symptoms, lookup)
		})
		if errors.Is(err, domain.ErrDuplicateCode) {
			s.logger.WithFields(logrus.Fields{
				"assessment_code": a.Code,
				"attempt":         attempt,
			}).Warn("Assessment code collision, regenerating")
			continue
		}
		if err != nil {
			s.metrics.AnalysisFailed(SourceCreate, domain.CodeForError(err))
			return nil, fmt.Errorf("creating assessment: %w", err)
		}

		s.metrics.AssessmentCreated()
		s.metrics.ObserveAnalysis(SourceCreate, time.Since(start), result.HealthLevel)
		s.publish(a, result)

		s.logger.WithFields(logrus.Fields(a.LogFields())).Info("Assessment submitted and analyzed")
		return &AssessmentDetail{Assessment: a, Analysis: result}, nil
	}

	s.metrics.AnalysisFailed(SourceCreate, domain.CodeInternalServer)
	return nil, fmt.Errorf("no unique assessment code after %d attempts: %w", maxCodeAttempts, domain.ErrDuplicateCode)
}

// Analyze scores a stored assessment without persisting the result.
func (s *AssessmentService) Analyze(ctx context.Context, id int64) (*domain.AnalysisResult, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.analyzeRecords(ctx, a.ID, a.Symptoms)
}

// Reanalyze recomputes and replaces the stored analysis. A draft assessment becomes analyzed;
// a completed one keeps its status.
func (s *AssessmentService) Reanalyze(ctx context.Context, id int64) (*AssessmentDetail, error) {
	start := time.Now()
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.analyzeRecords(ctx, a.ID, a.Symptoms)
	if err != nil {
		s.metrics.AnalysisFailed(SourceReanalyze, domain.CodeForError(err))
		return nil, err
	}

	status := domain.StatusAnalyzed
	if a.Status == domain.StatusCompleted {
		status = domain.StatusCompleted
	}
	if err := s.repo.ReplaceAnalysis(ctx, result, status); err != nil {
		s.metrics.AnalysisFailed(SourceReanalyze, domain.CodeForError(err))
		return nil, fmt.Errorf("replacing analysis: %w", err)
	}
	a.Status = status

	s.metrics.ObserveAnalysis(SourceReanalyze, time.Since(start), result.HealthLevel)
	s.publish(a, result)
	return &AssessmentDetail{Assessment: a, Analysis: result}, nil
}

// AnalyzeSymptoms scores symptoms without storing anything.
func (s *AssessmentService) AnalyzeSymptoms(ctx context.Context, inputs []SymptomInput) (*domain.AnalysisResult, error) {
	start := time.Now()
	if err := validateSymptoms(inputs, false); err != nil {
		return nil, err
	}

	records := buildRecords(inputs)
	result, err := s.analyzeRecords(ctx, 0, records)
	if err != nil {
		s.metrics.AnalysisFailed(SourceStateless, domain.CodeForError(err))
		return nil, err
	}
	s.metrics.ObserveAnalysis(SourceStateless, time.Since(start), result.HealthLevel)
	return result, nil
}

func (s *AssessmentService) analyzeRecords(ctx context.Context, id int64, records []domain.SymptomRecord) (*domain.AnalysisResult, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("analyzing assessment %d: %w", id, domain.ErrNoSymptomData)
	}
	lookup, err := s.resolve(ctx, records)
	if err != nil {
		return nil, err
	}
	fillCauseLabels(records, lookup)
	return s.analyzer.Analyze(id, records, lookup)
}

func (s *AssessmentService) resolve(ctx context.Context, records []domain.SymptomRecord) (*catalog.Snapshot, error) {
	if s.catalog == nil {
		return catalog.NewSnapshot(), nil
	}
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.SymptomID)
	}
	snapshot, err := s.catalog.Resolve(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving catalog definitions: %w", err)
	}
	return snapshot, nil
}

func (s *AssessmentService) publish(a *domain.Assessment, result *domain.AnalysisResult) {
	s.events.Publish(Event{
		Type:         EventAnalyzed,
		AssessmentID: a.ID,
		Code:         a.Code,
		UserID:       a.UserID,
		Status:       a.Status,
		OverallScore: result.OverallHealthScore,
		HealthLevel:  result.HealthLevel,
		Timestamp:    s.now(),
	})
}

// Get returns an assessment with its symptoms and its analysis, if any.
func (s *AssessmentService) Get(ctx context.Context, id int64) (*AssessmentDetail, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	analysis, err := s.repo.GetAnalysis(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return &AssessmentDetail{Assessment: a, Analysis: analysis}, nil
}

// List returns one page of assessments, newest first.
func (s *AssessmentService) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	return s.list(ctx, filter, defaultUserLimit)
}

// AdminList returns one page of assessments plus table statistics.
func (s *AssessmentService) AdminList(ctx context.Context, filter ListFilter) (*AdminListResult, error) {
	page, err := s.list(ctx, filter, defaultAdminLimit)
	if err != nil {
		return nil, err
	}
	stats, err := s.repo.Statistics(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("loading statistics: %w", err)
	}
	return &AdminListResult{ListResult: *page, Statistics: stats}, nil
}

func (s *AssessmentService) list(ctx context.Context, filter ListFilter, defaultLimit int) (*ListResult, error) {
	page, limit := normalizePage(filter.Page, filter.Limit, defaultLimit)
	assessments, total, err := s.repo.List(ctx, domain.AssessmentFilter{
		UserID: filter.UserID,
		Status: filter.Status,
		From:   filter.From,
		To:     filter.To,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing assessments: %w", err)
	}
	if assessments == nil {
		assessments = []*domain.Assessment{}
	}
	return &ListResult{
		Assessments: assessments,
		Pagination:  Pagination{Page: page, Limit: limit, Total: total},
	}, nil
}

func normalizePage(page, limit, defaultLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return page, limit
}

// CompareByID compares exactly two stored assessments, the first being the earlier one.
func (s *AssessmentService) CompareByID(ctx context.Context, ids []int64) (*domain.Comparison, error) {
	switch {
	case len(ids) < compareCount:
		return nil, &domain.ComparisonError{Reason: msgCompareTooFew}
	case len(ids) > compareCount:
		return nil, &domain.ComparisonError{Reason: msgCompareTooMany}
	}

	pair := make([]*domain.Assessment, 0, compareCount)
	for _, id := range ids {
		a, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		pair = append(pair, a)
	}
	return scoring.Compare(pair)
}

// Complete marks an analyzed assessment as completed.
func (s *AssessmentService) Complete(ctx context.Context, id int64) (*domain.Assessment, error) {
	if err := s.repo.UpdateStatus(ctx, id, domain.StatusAnalyzed, domain.StatusCompleted); err != nil {
		return nil, err
	}
	s.logger.WithField("assessment_id", id).Info("Assessment completed")
	return s.repo.Get(ctx, id)
}

// Ping checks the assessment store.
func (s *AssessmentService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func validateCreate(req *CreateAssessmentRequest) error {
	if req == nil || req.UserID <= 0 || strings.TrimSpace(req.RealName) == "" ||
		req.Age <= 0 || strings.TrimSpace(req.Gender) == "" {
		return domain.NewValidationError("", msgMissingFields, nil)
	}
	return validateSymptoms(req.Symptoms, true)
}

func validateSymptoms(inputs []SymptomInput, required bool) error {
	if len(inputs) == 0 {
		if required {
			return domain.NewValidationError("symptoms", msgNoSymptoms, nil)
		}
		return fmt.Errorf("analyzing symptoms: %w", domain.ErrNoSymptomData)
	}
	for i, in := range inputs {
		if strings.TrimSpace(in.SymptomName) == "" {
			return domain.NewValidationError(fmt.Sprintf("symptoms[%d].symptom_name", i), msgSymptomName, in.SymptomName)
		}
		if in.Intensity < domain.MinIntensity || in.Intensity > domain.MaxIntensity {
			return domain.NewValidationError(fmt.Sprintf("symptoms[%d].intensity", i), msgIntensityRange, in.Intensity)
		}
	}
	return nil
}

func buildRecords(inputs []SymptomInput) []domain.SymptomRecord {
	records := make([]domain.SymptomRecord, 0, len(inputs))
	for _, in := range inputs {
		records = append(records, domain.SymptomRecord{
			SymptomID:   in.SymptomID,
			SymptomName: strings.TrimSpace(in.SymptomName),
			Intensity:   in.Intensity,
			Side:        domain.ParseSide(in.Side),
			Severity:    domain.SeverityForIntensity(in.Intensity),
			CauseLabels: in.CauseLabels,
		})
	}
	return records
}

// fillCauseLabels copies catalog cause labels onto records that were submitted without any.
func fillCauseLabels(records []domain.SymptomRecord, lookup domain.SymptomLookup) {
	for i := range records {
		if len(records[i].CauseLabels) > 0 {
			continue
		}
		if def, ok := lookup.Definition(records[i].SymptomID); ok && len(def.Causes) > 0 {
			records[i].CauseLabels = def.CauseLabels()
		}
	}
}
