package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agora/pkg/cache"
	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/storage"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

func testService(t *testing.T) (*Service, cache.Cache) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mem := cache.NewMemory(1000)
	t.Cleanup(func() { mem.Close() })

	svc := NewService(storage.NewGuard(store), mem, nil, config.CacheConfig{
		TTL: config.Duration(time.Minute),
	})
	return svc, mem
}

func catalogCtx(t *testing.T, tenantID string) context.Context {
	t.Helper()
	ctx, err := tenant.Bind(context.Background(), &tenant.Binding{
		Tenant: &types.Tenant{ID: tenantID, Subdomain: tenantID, Status: types.TenantStatusActive},
		Actor:  "test",
	})
	require.NoError(t, err)
	return ctx
}

func TestCreateProductAssignsIdentityAndStatus(t *testing.T) {
	svc, _ := testService(t)
	ctx := catalogCtx(t, "t1")

	p, err := svc.CreateProduct(ctx, CreateProductInput{
		SKU: "TEE-001", Name: "Logo Tee", Description: "Cotton", PriceCents: 1999,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "t1", p.TenantID)
	assert.Equal(t, types.ProductStatusActive, p.Status)

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Logo Tee", got.Name)
}

func TestCreateProductValidatesInput(t *testing.T) {
	svc, _ := testService(t)
	ctx := catalogCtx(t, "t1")

	_, err := svc.CreateProduct(ctx, CreateProductInput{Name: "No SKU"})
	assert.ErrorIs(t, err, errdefs.ErrValidation)

	_, err = svc.CreateProduct(ctx, CreateProductInput{SKU: "X"})
	assert.ErrorIs(t, err, errdefs.ErrValidation)

	_, err = svc.CreateProduct(ctx, CreateProductInput{SKU: "X", Name: "X", PriceCents: -1})
	assert.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestDuplicateSKURejected(t *testing.T) {
	svc, _ := testService(t)
	ctx := catalogCtx(t, "t1")

	_, err := svc.CreateProduct(ctx, CreateProductInput{SKU: "TEE-001", Name: "A", PriceCents: 1})
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, CreateProductInput{SKU: "TEE-001", Name: "B", PriceCents: 2})
	assert.ErrorIs(t, err, errdefs.ErrConflict)
}

func TestSameSKUAllowedAcrossTenants(t *testing.T) {
	svc, _ := testService(t)

	_, err := svc.CreateProduct(catalogCtx(t, "t1"), CreateProductInput{SKU: "TEE-001", Name: "A", PriceCents: 1})
	require.NoError(t, err)

	_, err = svc.CreateProduct(catalogCtx(t, "t2"), CreateProductInput{SKU: "TEE-001", Name: "B", PriceCents: 2})
	assert.NoError(t, err)
}

func TestUpdateProductStaleVersionConflicts(t *testing.T) {
	svc, _ := testService(t)
	ctx := catalogCtx(t, "t1")

	p, err := svc.CreateProduct(ctx, CreateProductInput{SKU: "TEE-001", Name: "A", PriceCents: 1})
	require.NoError(t, err)

	in := UpdateProductInput{
		SKU: p.SKU, Name: "A2", PriceCents: 2,
		Status: types.ProductStatusActive, Version: p.Version,
	}
	_, err = svc.UpdateProduct(ctx, p.ID, in)
	require.NoError(t, err)

	// Replaying the same stale version must conflict.
	_, err = svc.UpdateProduct(ctx, p.ID, in)
	assert.ErrorIs(t, err, errdefs.ErrConflict)
}

func TestArchiveProductHidesFromSearch(t *testing.T) {
	svc, _ := testService(t)
	ctx := catalogCtx(t, "t1")

	p, err := svc.CreateProduct(ctx, CreateProductInput{SKU: "TEE-001", Name: "Logo Tee", PriceCents: 1})
	require.NoError(t, err)

	res, err := svc.Search(ctx, "tee", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalCount)

	_, err = svc.ArchiveProduct(ctx, p.ID)
	require.NoError(t, err)

	res, err = svc.Search(ctx, "tee", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, res.TotalCount, "archived products must not match search")

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ProductStatusArchived, got.Status, "archived product stays readable by id")
}

func TestDeleteProductFreesSKU(t *testing.T) {
	svc, _ := testService(t)
	ctx := catalogCtx(t, "t1")

	p, err := svc.CreateProduct(ctx, CreateProductInput{SKU: "TEE-001", Name: "A", PriceCents: 1})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteProduct(ctx, p.ID))

	_, err = svc.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	_, err = svc.CreateProduct(ctx, CreateProductInput{SKU: "TEE-001", Name: "B", PriceCents: 1})
	assert.NoError(t, err, "deleted product releases its sku claim")
}

func TestCatalogRequiresTenantContext(t *testing.T) {
	svc, _ := testService(t)

	_, err := svc.CreateProduct(context.Background(), CreateProductInput{SKU: "X", Name: "X"})
	assert.ErrorIs(t, err, errdefs.ErrNoContext)

	_, err = svc.Search(context.Background(), "x", 1, 10)
	assert.ErrorIs(t, err, errdefs.ErrNoContext)
}
