package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/cache"
	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/events"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/storage"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

// Service owns the product catalog: CRUD plus cached keyword search. Every
// mutation drops the tenant's search cache and publishes catalog.changed so
// other pods and subscribers converge.
type Service struct {
	guard  *storage.Guard
	cache  cache.Cache
	loader *cache.Loader
	broker *events.Broker
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewService wires the catalog over the tenant-scoped guard.
func NewService(guard *storage.Guard, c cache.Cache, broker *events.Broker, cfg config.CacheConfig) *Service {
	return &Service{
		guard:  guard,
		cache:  c,
		loader: cache.NewLoader(c, "catalog_search"),
		broker: broker,
		ttl:    cfg.TTL.Std(),
		logger: log.WithComponent("catalog"),
		now:    time.Now,
	}
}

// CreateProductInput carries the writable product fields.
type CreateProductInput struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
}

// CreateProduct validates and stores a new active product.
func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (*types.Product, error) {
	if in.SKU == "" {
		return nil, errdefs.Validationf("product sku is required")
	}
	if in.Name == "" {
		return nil, errdefs.Validationf("product name is required")
	}
	if in.PriceCents < 0 {
		return nil, errdefs.Validationf("product price cannot be negative, got %d", in.PriceCents)
	}

	now := s.now().UTC()
	p := &types.Product{
		ID:          uuid.New().String(),
		SKU:         in.SKU,
		Name:        in.Name,
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Status:      types.ProductStatusActive,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.guard.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.changed(ctx, p.ID, "product created")
	return p, nil
}

// GetProduct returns one product of the bound tenant.
func (s *Service) GetProduct(ctx context.Context, id string) (*types.Product, error) {
	return s.guard.GetProduct(ctx, id)
}

// GetProductBySKU resolves a tenant-unique SKU.
func (s *Service) GetProductBySKU(ctx context.Context, sku string) (*types.Product, error) {
	return s.guard.GetProductBySKU(ctx, sku)
}

// UpdateProductInput carries a full replacement of the writable fields plus
// the version the caller read. A stale version is a conflict.
type UpdateProductInput struct {
	SKU         string              `json:"sku"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	PriceCents  int64               `json:"price_cents"`
	Status      types.ProductStatus `json:"status"`
	Version     uint64              `json:"version"`
}

// UpdateProduct applies a guarded optimistic write.
func (s *Service) UpdateProduct(ctx context.Context, id string, in UpdateProductInput) (*types.Product, error) {
	if in.SKU == "" {
		return nil, errdefs.Validationf("product sku is required")
	}
	if in.Name == "" {
		return nil, errdefs.Validationf("product name is required")
	}
	if in.PriceCents < 0 {
		return nil, errdefs.Validationf("product price cannot be negative, got %d", in.PriceCents)
	}
	switch in.Status {
	case types.ProductStatusActive, types.ProductStatusArchived:
	default:
		return nil, errdefs.Validationf("unknown product status %q", in.Status)
	}

	p, err := s.guard.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	p.SKU = in.SKU
	p.Name = in.Name
	p.Description = in.Description
	p.PriceCents = in.PriceCents
	p.Status = in.Status
	p.Version = in.Version
	p.UpdatedAt = s.now().UTC()

	if err := s.guard.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.changed(ctx, p.ID, "product updated")
	return p, nil
}

// ArchiveProduct hides a product from search without deleting history.
func (s *Service) ArchiveProduct(ctx context.Context, id string) (*types.Product, error) {
	p, err := s.guard.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == types.ProductStatusArchived {
		return p, nil
	}
	p.Status = types.ProductStatusArchived
	p.UpdatedAt = s.now().UTC()
	if err := s.guard.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.changed(ctx, p.ID, "product archived")
	return p, nil
}

// DeleteProduct removes a product and its SKU claim.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.guard.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, id, "product deleted")
	return nil
}

// ListProducts returns every product of the bound tenant, uncached.
func (s *Service) ListProducts(ctx context.Context) ([]*types.Product, error) {
	return s.guard.ListProducts(ctx)
}

// VariantInput carries the writable variant fields.
type VariantInput struct {
	SKU        string `json:"sku"`
	PriceCents int64  `json:"price_cents"`
}

// CreateVariant adds a sellable variant under an existing product. Variants
// start active; inventory rows reference them by id.
func (s *Service) CreateVariant(ctx context.Context, productID string, in VariantInput) (*types.Variant, error) {
	if in.SKU == "" {
		return nil, errdefs.Validationf("variant sku is required")
	}
	if in.PriceCents < 0 {
		return nil, errdefs.Validationf("variant price cannot be negative, got %d", in.PriceCents)
	}
	if _, err := s.guard.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	v := &types.Variant{
		ID:         uuid.New().String(),
		ProductID:  productID,
		SKU:        in.SKU,
		PriceCents: in.PriceCents,
		Status:     types.VariantStatusActive,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.guard.CreateVariant(ctx, v); err != nil {
		return nil, err
	}
	s.changed(ctx, productID, "variant created")
	return v, nil
}

// ListVariants returns a product's variants.
func (s *Service) ListVariants(ctx context.Context, productID string) ([]*types.Variant, error) {
	return s.guard.ListVariantsByProduct(ctx, productID)
}

// changed drops the tenant's search cache and announces the mutation.
func (s *Service) changed(ctx context.Context, productID, msg string) {
	bind, err := tenant.Current(ctx)
	if err != nil {
		// Guarded writes cannot succeed without a binding; getting here
		// means the context was cleared mid-request.
		s.logger.Error().Err(err).Msg("catalog mutation without tenant binding")
		return
	}
	if err := s.cache.DeletePrefix(ctx, cache.SearchPrefix(bind.Tenant.ID)); err != nil {
		s.logger.Warn().Err(err).Str("tenant_id", bind.Tenant.ID).Msg("search cache invalidation failed")
	}
	if s.broker != nil {
		s.broker.Publish(&events.Event{
			Type:     events.EventCatalogChanged,
			TenantID: bind.Tenant.ID,
			Message:  msg,
			Metadata: map[string]string{"product_id": productID},
		})
	}
}
