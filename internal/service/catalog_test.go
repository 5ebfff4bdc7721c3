package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanqi-assessment-server/internal/domain"
)

func TestCatalogService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inactive := &domain.SymptomDefinition{Name: "旧症状", Organ: "肝", IsActive: false}
	require.NoError(t, f.store.Save(ctx, inactive))

	t.Run("list active entries", func(t *testing.T) {
		page, err := f.catalog.List(ctx, CatalogFilter{})
		require.NoError(t, err)
		assert.Equal(t, Pagination{Page: 1, Limit: 50, Total: 2}, page.Pagination)
		require.Len(t, page.Symptoms, 2)
		assert.Equal(t, "头痛", page.Symptoms[0].Name)
	})

	t.Run("organ filter", func(t *testing.T) {
		page, err := f.catalog.List(ctx, CatalogFilter{Organ: "肾"})
		require.NoError(t, err)
		require.Len(t, page.Symptoms, 1)
		assert.Equal(t, "头痛", page.Symptoms[0].Name)
	})

	t.Run("paging", func(t *testing.T) {
		page, err := f.catalog.List(ctx, CatalogFilter{Page: 2, Limit: 1})
		require.NoError(t, err)
		require.Len(t, page.Symptoms, 1)
		assert.Equal(t, "眼睛干涩", page.Symptoms[0].Name)
		assert.Equal(t, int64(2), page.Pagination.Total)
	})

	t.Run("search names and organs", func(t *testing.T) {
		found, err := f.catalog.Search(ctx, "眼睛", 0)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, f.dryEyes.ID, found[0].ID)

		found, err = f.catalog.Search(ctx, "肝", 10)
		require.NoError(t, err)
		assert.Len(t, found, 2)

		found, err = f.catalog.Search(ctx, "不存在", 10)
		require.NoError(t, err)
		assert.NotNil(t, found)
		assert.Empty(t, found)
	})

	t.Run("get by id and name", func(t *testing.T) {
		def, err := f.catalog.Get(ctx, f.headache.ID)
		require.NoError(t, err)
		assert.Equal(t, "头痛", def.Name)

		def, err = f.catalog.GetByName(ctx, " 眼睛干涩 ")
		require.NoError(t, err)
		assert.Equal(t, f.dryEyes.ID, def.ID)

		_, err = f.catalog.Get(ctx, 9999)
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		_, err = f.catalog.GetByName(ctx, "")
		var verr *domain.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("store fallback without lookup", func(t *testing.T) {
		direct := NewCatalogService(f.store, nil)
		def, err := direct.Get(ctx, f.headache.ID)
		require.NoError(t, err)
		assert.Equal(t, "头痛", def.Name)
	})
}
