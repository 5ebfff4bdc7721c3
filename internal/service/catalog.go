package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/yuanqi-assessment-server/internal/domain"
)

const defaultCatalogLimit = 50

// DefinitionLookup reads single catalog entries, usually through a cache.
type DefinitionLookup interface {
	Lookup(ctx context.Context, id int64) (*domain.SymptomDefinition, error)
}

// CatalogFilter selects a page of active catalog entries.
type CatalogFilter struct {
	Organ  string
	Search string
	Page   int
	Limit  int
}

// CatalogPage is one page of catalog entries.
type CatalogPage struct {
	Symptoms   []*domain.SymptomDefinition `json:"symptoms"`
	Pagination Pagination                  `json:"pagination"`
}

// CatalogService serves read access to the symptom catalog.
type CatalogService struct {
	store  domain.SymptomCatalog
	lookup DefinitionLookup
}

// NewCatalogService creates a catalog service. A nil lookup reads the store directly.
func NewCatalogService(store domain.SymptomCatalog, lookup DefinitionLookup) *CatalogService {
	return &CatalogService{store: store, lookup: lookup}
}

// List returns active entries matching filter, ordered by id.
func (s *CatalogService) List(ctx context.Context, filter CatalogFilter) (*CatalogPage, error) {
	page, limit := normalizePage(filter.Page, filter.Limit, defaultCatalogLimit)
	query := domain.SymptomFilter{
		Organ:      strings.TrimSpace(filter.Organ),
		Search:     strings.TrimSpace(filter.Search),
		ActiveOnly: true,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}

	total, err := s.store.Count(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("counting symptoms: %w", err)
	}
	defs, err := s.store.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing symptoms: %w", err)
	}
	if defs == nil {
		defs = []*domain.SymptomDefinition{}
	}
	return &CatalogPage{
		Symptoms:   defs,
		Pagination: Pagination{Page: page, Limit: limit, Total: total},
	}, nil
}

// Get returns the entry with id.
func (s *CatalogService) Get(ctx context.Context, id int64) (*domain.SymptomDefinition, error) {
	if s.lookup != nil {
		return s.lookup.Lookup(ctx, id)
	}
	return s.store.Get(ctx, id)
}

// GetByName returns the entry with the exact name.
func (s *CatalogService) GetByName(ctx context.Context, name string) (*domain.SymptomDefinition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("name", msgSymptomName, name)
	}
	return s.store.GetByName(ctx, name)
}

// Search matches query against entry names and organs.
func (s *CatalogService) Search(ctx context.Context, query string, limit int) ([]*domain.SymptomDefinition, error) {
	page, err := s.List(ctx, CatalogFilter{Search: query, Limit: limit})
	if err != nil {
		return nil, err
	}
	return page.Symptoms, nil
}
