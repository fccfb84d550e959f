package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agora/pkg/cache"
)

func seedProducts(t *testing.T, svc *Service, ctx context.Context, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := svc.CreateProduct(ctx, CreateProductInput{
			SKU:        fmt.Sprintf("SKU-%03d", i),
			Name:       fmt.Sprintf("Widget %03d", i),
			PriceCents: int64(100 + i),
		})
		require.NoError(t, err)
	}
}

func TestSearchMatchesNameDescriptionAndSKU(t *testing.T) {
	svc, _ := testService(t)
	ctx := catalogCtx(t, "t1")

	_, err := svc.CreateProduct(ctx, CreateProductInput{SKU: "TEE-001", Name: "Logo Tee", Description: "Soft cotton shirt", PriceCents: 1})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, CreateProductInput{SKU: "MUG-001", Name: "Coffee Mug", Description: "Ceramic", PriceCents: 1})
	require.NoError(t, err)

	for _, q := range []string{"logo", "COTTON", "tee-001"} {
		res, err := svc.Search(ctx, q, 1, 10)
		require.NoError(t, err)
		require.Equal(t, 1, res.TotalCount, "query %q", q)
		assert.Equal(t, "Logo Tee", res.Items[0].Name)
	}
}

func TestSearchPagination(t *testing.T) {
	svc, _ := testService(t)
	ctx := catalogCtx(t, "t1")
	seedProducts(t, svc, ctx, 25)

	page1, err := svc.Search(ctx, "widget", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, page1.TotalCount)
	assert.Equal(t, 3, page1.PageCount)
	assert.Len(t, page1.Items, 10)
	assert.Equal(t, "Widget 000", page1.Items[0].Name)

	page3, err := svc.Search(ctx, "widget", 3, 10)
	require.NoError(t, err)
	assert.Len(t, page3.Items, 5)
	assert.Equal(t, "Widget 020", page3.Items[0].Name)

	beyond, err := svc.Search(ctx, "widget", 9, 10)
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 25, beyond.TotalCount)
}

func TestSearchEmptyQueryListsActive(t *testing.T) {
	svc, _ := testService(t)
	ctx := catalogCtx(t, "t1")
	seedProducts(t, svc, ctx, 3)

	res, err := svc.Search(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalCount)
}

func TestSearchResultsAreCachedUntilMutation(t *testing.T) {
	svc, _ := testService(t)
	ctx := catalogCtx(t, "t1")
	seedProducts(t, svc, ctx, 1)

	first, err := svc.Search(ctx, "widget", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, first.TotalCount)

	// A second identical search must come from cache: same freshness stamp.
	again, err := svc.Search(ctx, "widget", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, first.GeneratedAt, again.GeneratedAt)

	// A mutation invalidates, so the next search sees the new product.
	_, err = svc.CreateProduct(ctx, CreateProductInput{SKU: "NEW-1", Name: "Widget New", PriceCents: 1})
	require.NoError(t, err)

	after, err := svc.Search(ctx, "widget", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, after.TotalCount)
}

func TestSearchCacheIsTenantScoped(t *testing.T) {
	svc, mem := testService(t)
	ctx1 := catalogCtx(t, "t1")
	ctx2 := catalogCtx(t, "t2")

	seedProducts(t, svc, ctx1, 1)
	_, err := svc.CreateProduct(ctx2, CreateProductInput{SKU: "SKU-000", Name: "Widget Other", PriceCents: 1})
	require.NoError(t, err)

	res1, err := svc.Search(ctx1, "widget", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, res1.TotalCount)

	res2, err := svc.Search(ctx2, "widget", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, res2.TotalCount)
	assert.Equal(t, "Widget Other", res2.Items[0].Name)

	// Mutating t1 drops only t1's search prefix.
	_, err = svc.CreateProduct(ctx1, CreateProductInput{SKU: "SKU-001", Name: "Widget Two", PriceCents: 1})
	require.NoError(t, err)

	_, err = mem.Get(context.Background(), cache.SearchKey("t2", "widget", 1, 10))
	assert.NoError(t, err, "t2's cached page must survive t1's mutation")

	_, err = mem.Get(context.Background(), cache.SearchKey("t1", "widget", 1, 10))
	assert.True(t, cache.IsMiss(err), "t1's cached page must be gone")
}

func TestSearchClampsPageSize(t *testing.T) {
	svc, _ := testService(t)
	ctx := catalogCtx(t, "t1")
	seedProducts(t, svc, ctx, 2)

	res, err := svc.Search(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, defaultPageSize, res.PageSize)

	res, err = svc.Search(ctx, "", 1, 10_000)
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, res.PageSize)
}
