package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/types"
)

// Tenant operations

// CreateTenant stores a new tenant and claims its subdomain. Verified custom
// domains present at creation are indexed too.
func (s *BoltStore) CreateTenant(t *types.Tenant) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		subs := tx.Bucket(bucketSubdomains)
		if existing := subs.Get([]byte(t.Subdomain)); existing != nil {
			return errdefs.Conflictf("subdomain %s already in use", t.Subdomain)
		}
		if err := put(tx.Bucket(bucketTenants), t.ID, t); err != nil {
			return err
		}
		if err := subs.Put([]byte(t.Subdomain), []byte(t.ID)); err != nil {
			return err
		}
		return indexCustomDomains(tx.Bucket(bucketDomains), t)
	})
}

// GetTenant retrieves a tenant by ID.
func (s *BoltStore) GetTenant(id string) (*types.Tenant, error) {
	var t types.Tenant
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketTenants), id, &t, "tenant "+id)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTenantBySubdomain resolves a platform subdomain to its tenant.
func (s *BoltStore) GetTenantBySubdomain(subdomain string) (*types.Tenant, error) {
	var t types.Tenant
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketSubdomains).Get([]byte(subdomain))
		if id == nil {
			return errdefs.NotFoundf("subdomain %s", subdomain)
		}
		return get(tx.Bucket(bucketTenants), string(id), &t, "tenant "+string(id))
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTenantByDomain resolves a verified custom domain to its tenant.
func (s *BoltStore) GetTenantByDomain(domain string) (*types.Tenant, error) {
	var t types.Tenant
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketDomains).Get([]byte(domain))
		if id == nil {
			return errdefs.NotFoundf("domain %s", domain)
		}
		return get(tx.Bucket(bucketTenants), string(id), &t, "tenant "+string(id))
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTenant writes a tenant back under optimistic concurrency: the caller
// must hold the stored version or the write is rejected. Hostname indexes
// are rebuilt so subdomain changes and domain verifications take effect.
func (s *BoltStore) UpdateTenant(t *types.Tenant) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTenants)
		if err := checkVersion(b, t.ID, t.Version, "tenant"); err != nil {
			return err
		}
		t.Version++

		subs := tx.Bucket(bucketSubdomains)
		if owner := subs.Get([]byte(t.Subdomain)); owner != nil && string(owner) != t.ID {
			return errdefs.Conflictf("subdomain %s already in use", t.Subdomain)
		}
		if err := deleteValueMatches(subs, t.ID); err != nil {
			return err
		}
		if err := subs.Put([]byte(t.Subdomain), []byte(t.ID)); err != nil {
			return err
		}

		domains := tx.Bucket(bucketDomains)
		if err := deleteValueMatches(domains, t.ID); err != nil {
			return err
		}
		if err := indexCustomDomains(domains, t); err != nil {
			return err
		}
		return put(b, t.ID, t)
	})
}

// ListTenants returns all tenants.
func (s *BoltStore) ListTenants() ([]*types.Tenant, error) {
	var out []*types.Tenant
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listAll[types.Tenant](tx.Bucket(bucketTenants))
		return err
	})
	return out, err
}

// ChargeMediaQuota atomically adjusts a tenant's media usage counter by
// delta bytes (negative deltas refund, floored at zero) and returns the
// updated tenant.
func (s *BoltStore) ChargeMediaQuota(tenantID string, delta int64) (*types.Tenant, error) {
	var t types.Tenant
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTenants)
		if err := get(b, tenantID, &t, "tenant "+tenantID); err != nil {
			return err
		}
		t.Quotas.MediaUsedBytes += delta
		if t.Quotas.MediaUsedBytes < 0 {
			t.Quotas.MediaUsedBytes = 0
		}
		t.Version++
		t.UpdatedAt = time.Now().UTC()
		return put(b, tenantID, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTenantData purges every row the tenant owns across all scoped
// buckets, along with its hostname index entries and payment credentials.
// The tenant row itself survives as a tombstone. Returns rows removed.
func (s *BoltStore) DeleteTenantData(tenantID string) (int, error) {
	total := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		prefix := TenantKeyPrefix(tenantID)
		for _, name := range tenantScopedBuckets {
			n, err := deletePrefix(tx.Bucket(name), prefix)
			if err != nil {
				return fmt.Errorf("purge %s: %w", name, err)
			}
			total += n
		}
		if err := deleteValueMatches(tx.Bucket(bucketSubdomains), tenantID); err != nil {
			return err
		}
		if err := deleteValueMatches(tx.Bucket(bucketDomains), tenantID); err != nil {
			return err
		}
		return tx.Bucket(bucketPaymentCreds).Delete([]byte(tenantID))
	})
	return total, err
}

func indexCustomDomains(b *bolt.Bucket, t *types.Tenant) error {
	for _, d := range t.CustomDomains {
		if !d.Verified {
			continue
		}
		if owner := b.Get([]byte(d.Domain)); owner != nil && string(owner) != t.ID {
			return errdefs.Conflictf("domain %s already in use", d.Domain)
		}
		if err := b.Put([]byte(d.Domain), []byte(t.ID)); err != nil {
			return err
		}
	}
	return nil
}

// checkVersion enforces optimistic concurrency for versioned rows: the
// stored version must equal expect or the caller lost the race.
func checkVersion(b *bolt.Bucket, key string, expect uint64, kind string) error {
	data := b.Get([]byte(key))
	if data == nil {
		return errdefs.NotFoundf("%s %s", kind, key)
	}
	var row struct {
		Version uint64 `json:"version"`
	}
	if err := json.Unmarshal(data, &row); err != nil {
		return fmt.Errorf("unmarshal %s %s: %w", kind, key, err)
	}
	if row.Version != expect {
		return errdefs.Conflictf("%s %s version %d superseded by %d", kind, key, expect, row.Version)
	}
	return nil
}

// Feature flag operations

// SetFeatureFlag upserts a per-tenant flag.
func (s *BoltStore) SetFeatureFlag(flag *types.FeatureFlag) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketFlags), ScopedKey(flag.TenantID, flag.Key), flag)
	})
}

// ListFeatureFlags returns all flags for a tenant.
func (s *BoltStore) ListFeatureFlags(tenantID string) ([]*types.FeatureFlag, error) {
	var out []*types.FeatureFlag
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.FeatureFlag](tx.Bucket(bucketFlags), TenantKeyPrefix(tenantID))
		return err
	})
	return out, err
}

// Product operations

// CreateProduct stores a new product and claims its SKU within the tenant.
func (s *BoltStore) CreateProduct(p *types.Product) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		skus := tx.Bucket(bucketProductSKUs)
		skuKey := []byte(ScopedKey(p.TenantID, p.SKU))
		if existing := skus.Get(skuKey); existing != nil {
			return errdefs.Conflictf("sku %s already in use", p.SKU)
		}
		if err := put(tx.Bucket(bucketProducts), ScopedKey(p.TenantID, p.ID), p); err != nil {
			return err
		}
		return skus.Put(skuKey, []byte(p.ID))
	})
}

// GetProduct retrieves a product by ID within a tenant.
func (s *BoltStore) GetProduct(tenantID, id string) (*types.Product, error) {
	var p types.Product
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketProducts), ScopedKey(tenantID, id), &p, "product "+id)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProductBySKU resolves a tenant-unique SKU to its product.
func (s *BoltStore) GetProductBySKU(tenantID, sku string) (*types.Product, error) {
	var p types.Product
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketProductSKUs).Get([]byte(ScopedKey(tenantID, sku)))
		if id == nil {
			return errdefs.NotFoundf("sku %s", sku)
		}
		return get(tx.Bucket(bucketProducts), ScopedKey(tenantID, string(id)), &p, "product "+string(id))
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts returns all products belonging to a tenant.
func (s *BoltStore) ListProducts(tenantID string) ([]*types.Product, error) {
	var out []*types.Product
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.Product](tx.Bucket(bucketProducts), TenantKeyPrefix(tenantID))
		return err
	})
	return out, err
}

// UpdateProduct writes a product back under optimistic concurrency and
// re-points the SKU index when the SKU changed.
func (s *BoltStore) UpdateProduct(p *types.Product) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProducts)
		key := ScopedKey(p.TenantID, p.ID)
		var stored types.Product
		if err := get(b, key, &stored, "product "+p.ID); err != nil {
			return err
		}
		if stored.Version != p.Version {
			return errdefs.Conflictf("product %s version %d superseded by %d", p.ID, p.Version, stored.Version)
		}
		p.Version++

		if stored.SKU != p.SKU {
			skus := tx.Bucket(bucketProductSKUs)
			newKey := []byte(ScopedKey(p.TenantID, p.SKU))
			if owner := skus.Get(newKey); owner != nil && string(owner) != p.ID {
				return errdefs.Conflictf("sku %s already in use", p.SKU)
			}
			if err := skus.Delete([]byte(ScopedKey(p.TenantID, stored.SKU))); err != nil {
				return err
			}
			if err := skus.Put(newKey, []byte(p.ID)); err != nil {
				return err
			}
		}
		return put(b, key, p)
	})
}

// DeleteProduct removes a product and its SKU index entry.
func (s *BoltStore) DeleteProduct(tenantID, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProducts)
		key := ScopedKey(tenantID, id)
		var stored types.Product
		if err := get(b, key, &stored, "product "+id); err != nil {
			return err
		}
		if err := tx.Bucket(bucketProductSKUs).Delete([]byte(ScopedKey(tenantID, stored.SKU))); err != nil {
			return err
		}
		return b.Delete([]byte(key))
	})
}

// Variant operations

// CreateVariant stores a new variant.
func (s *BoltStore) CreateVariant(v *types.Variant) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketVariants), ScopedKey(v.TenantID, v.ID), v)
	})
}

// GetVariant retrieves a variant by ID within a tenant.
func (s *BoltStore) GetVariant(tenantID, id string) (*types.Variant, error) {
	var v types.Variant
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketVariants), ScopedKey(tenantID, id), &v, "variant "+id)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVariants returns all variants belonging to a tenant.
func (s *BoltStore) ListVariants(tenantID string) ([]*types.Variant, error) {
	var out []*types.Variant
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.Variant](tx.Bucket(bucketVariants), TenantKeyPrefix(tenantID))
		return err
	})
	return out, err
}

// ListVariantsByProduct returns a product's variants.
func (s *BoltStore) ListVariantsByProduct(tenantID, productID string) ([]*types.Variant, error) {
	all, err := s.ListVariants(tenantID)
	if err != nil {
		return nil, err
	}
	var out []*types.Variant
	for _, v := range all {
		if v.ProductID == productID {
			out = append(out, v)
		}
	}
	return out, nil
}

// Location operations

// CreateLocation stores a new stock location.
func (s *BoltStore) CreateLocation(l *types.Location) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketLocations), ScopedKey(l.TenantID, l.ID), l)
	})
}

// GetLocation retrieves a location by ID within a tenant.
func (s *BoltStore) GetLocation(tenantID, id string) (*types.Location, error) {
	var l types.Location
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketLocations), ScopedKey(tenantID, id), &l, "location "+id)
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLocations returns all locations belonging to a tenant.
func (s *BoltStore) ListLocations(tenantID string) ([]*types.Location, error) {
	var out []*types.Location
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.Location](tx.Bucket(bucketLocations), TenantKeyPrefix(tenantID))
		return err
	})
	return out, err
}

// Stock level operations

// GetStockLevel retrieves the level for one (variant, location) pair. A pair
// never written reads as a zero level rather than an error.
func (s *BoltStore) GetStockLevel(tenantID, variantID, locationID string) (*types.StockLevel, error) {
	lvl := &types.StockLevel{TenantID: tenantID, VariantID: variantID, LocationID: locationID}
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketStockLevels).Get([]byte(stockLevelKey(tenantID, variantID, locationID)))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, lvl)
	})
	if err != nil {
		return nil, err
	}
	return lvl, nil
}

// MutateStockLevel applies fn to the current level inside a single write
// transaction. Concurrent mutations serialize on the database lock, so
// check-then-act logic in fn is race-free.
func (s *BoltStore) MutateStockLevel(tenantID, variantID, locationID string, fn func(*types.StockLevel) error) (*types.StockLevel, error) {
	lvl := &types.StockLevel{TenantID: tenantID, VariantID: variantID, LocationID: locationID}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStockLevels)
		key := stockLevelKey(tenantID, variantID, locationID)
		if data := b.Get([]byte(key)); data != nil {
			if err := json.Unmarshal(data, lvl); err != nil {
				return fmt.Errorf("unmarshal stock level %s: %w", key, err)
			}
		}
		if err := fn(lvl); err != nil {
			return err
		}
		lvl.UpdatedAt = time.Now().UTC()
		return put(b, key, lvl)
	})
	if err != nil {
		return nil, err
	}
	return lvl, nil
}

// ListStockLevels returns every level belonging to a tenant.
func (s *BoltStore) ListStockLevels(tenantID string) ([]*types.StockLevel, error) {
	var out []*types.StockLevel
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.StockLevel](tx.Bucket(bucketStockLevels), TenantKeyPrefix(tenantID))
		return err
	})
	return out, err
}

// ListStockLevelsByVariant returns one variant's levels across locations.
func (s *BoltStore) ListStockLevelsByVariant(tenantID, variantID string) ([]*types.StockLevel, error) {
	var out []*types.StockLevel
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.StockLevel](tx.Bucket(bucketStockLevels), TenantKeyPrefix(tenantID)+variantID+"/")
		return err
	})
	return out, err
}

// Reservation operations

// CreateReservation stores a new stock hold.
func (s *BoltStore) CreateReservation(r *types.Reservation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketReservations), ScopedKey(r.TenantID, r.ID), r)
	})
}

// GetReservation retrieves a reservation by ID within a tenant.
func (s *BoltStore) GetReservation(tenantID, id string) (*types.Reservation, error) {
	var r types.Reservation
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketReservations), ScopedKey(tenantID, id), &r, "reservation "+id)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateReservation writes a reservation back.
func (s *BoltStore) UpdateReservation(r *types.Reservation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReservations)
		key := ScopedKey(r.TenantID, r.ID)
		if b.Get([]byte(key)) == nil {
			return errdefs.NotFoundf("reservation %s", r.ID)
		}
		return put(b, key, r)
	})
}

// ListReservationsByRef returns the holds created for one order or transfer.
func (s *BoltStore) ListReservationsByRef(tenantID, ref string) ([]*types.Reservation, error) {
	var out []*types.Reservation
	err := s.db.View(func(tx *bolt.Tx) error {
		return scanPrefix(tx.Bucket(bucketReservations), TenantKeyPrefix(tenantID), func(k, v []byte) error {
			var r types.Reservation
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal %s: %w", k, err)
			}
			if r.Ref == ref {
				out = append(out, &r)
			}
			return nil
		})
	})
	return out, err
}

// ListExpiredHeldReservations returns held reservations across all tenants
// whose expiry predates now. Used by the reconciler.
func (s *BoltStore) ListExpiredHeldReservations(now time.Time) ([]*types.Reservation, error) {
	var out []*types.Reservation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReservations).ForEach(func(k, v []byte) error {
			var r types.Reservation
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal %s: %w", k, err)
			}
			if r.Status == types.ReservationStatusHeld && !r.ExpiresAt.IsZero() && r.ExpiresAt.Before(now) {
				out = append(out, &r)
			}
			return nil
		})
	})
	return out, err
}

// Transfer operations

// CreateTransfer stores a new stock transfer.
func (s *BoltStore) CreateTransfer(t *types.Transfer) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketTransfers), ScopedKey(t.TenantID, t.ID), t)
	})
}

// GetTransfer retrieves a transfer by ID within a tenant.
func (s *BoltStore) GetTransfer(tenantID, id string) (*types.Transfer, error) {
	var t types.Transfer
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketTransfers), ScopedKey(tenantID, id), &t, "transfer "+id)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTransfer writes a transfer back.
func (s *BoltStore) UpdateTransfer(t *types.Transfer) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTransfers)
		key := ScopedKey(t.TenantID, t.ID)
		if b.Get([]byte(key)) == nil {
			return errdefs.NotFoundf("transfer %s", t.ID)
		}
		return put(b, key, t)
	})
}

// ListTransfers returns all transfers belonging to a tenant.
func (s *BoltStore) ListTransfers(tenantID string) ([]*types.Transfer, error) {
	var out []*types.Transfer
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.Transfer](tx.Bucket(bucketTransfers), TenantKeyPrefix(tenantID))
		return err
	})
	return out, err
}

// Stock adjustment operations

// AppendStockAdjustment records a manual level change. Rows are append-only.
func (s *BoltStore) AppendStockAdjustment(a *types.StockAdjustment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketAdjustments), seqKey(a.TenantID, a.CreatedAt, a.ID), a)
	})
}

// ListStockAdjustments returns a tenant's adjustment history, oldest first.
func (s *BoltStore) ListStockAdjustments(tenantID string) ([]*types.StockAdjustment, error) {
	var out []*types.StockAdjustment
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.StockAdjustment](tx.Bucket(bucketAdjustments), TenantKeyPrefix(tenantID))
		return err
	})
	return out, err
}

// Cart operations

// CreateCart stores a new cart and points the owner index at it, so the next
// get-or-create for the same user or session finds it.
func (s *BoltStore) CreateCart(c *types.Cart) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := put(tx.Bucket(bucketCarts), ScopedKey(c.TenantID, c.ID), c); err != nil {
			return err
		}
		owners := tx.Bucket(bucketCartOwners)
		if c.UserID != "" {
			if err := owners.Put([]byte(ownerKey(c.TenantID, "user", c.UserID)), []byte(c.ID)); err != nil {
				return err
			}
		}
		if c.SessionID != "" {
			if err := owners.Put([]byte(ownerKey(c.TenantID, "session", c.SessionID)), []byte(c.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetCart retrieves a cart by ID within a tenant.
func (s *BoltStore) GetCart(tenantID, id string) (*types.Cart, error) {
	var c types.Cart
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketCarts), ScopedKey(tenantID, id), &c, "cart "+id)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCartByUser returns the cart most recently created for a user.
func (s *BoltStore) GetCartByUser(tenantID, userID string) (*types.Cart, error) {
	return s.getCartByOwner(tenantID, "user", userID)
}

// GetCartBySession returns the cart most recently created for a session.
func (s *BoltStore) GetCartBySession(tenantID, sessionID string) (*types.Cart, error) {
	return s.getCartByOwner(tenantID, "session", sessionID)
}

func (s *BoltStore) getCartByOwner(tenantID, kind, ref string) (*types.Cart, error) {
	var c types.Cart
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketCartOwners).Get([]byte(ownerKey(tenantID, kind, ref)))
		if id == nil {
			return errdefs.NotFoundf("cart for %s %s", kind, ref)
		}
		return get(tx.Bucket(bucketCarts), ScopedKey(tenantID, string(id)), &c, "cart "+string(id))
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCart writes a cart back under optimistic concurrency.
func (s *BoltStore) UpdateCart(c *types.Cart) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCarts)
		key := ScopedKey(c.TenantID, c.ID)
		if err := checkVersion(b, key, c.Version, "cart"); err != nil {
			return err
		}
		c.Version++
		return put(b, key, c)
	})
}

// Order operations

// CreateOrder stores a new order.
func (s *BoltStore) CreateOrder(o *types.Order) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketOrders), ScopedKey(o.TenantID, o.ID), o)
	})
}

// GetOrder retrieves an order by ID within a tenant.
func (s *BoltStore) GetOrder(tenantID, id string) (*types.Order, error) {
	var o types.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketOrders), ScopedKey(tenantID, id), &o, "order "+id)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// UpdateOrder writes an order back under optimistic concurrency.
func (s *BoltStore) UpdateOrder(o *types.Order) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOrders)
		key := ScopedKey(o.TenantID, o.ID)
		if err := checkVersion(b, key, o.Version, "order"); err != nil {
			return err
		}
		o.Version++
		o.UpdatedAt = time.Now().UTC()
		return put(b, key, o)
	})
}

// ListOrders returns all orders belonging to a tenant.
func (s *BoltStore) ListOrders(tenantID string) ([]*types.Order, error) {
	var out []*types.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.Order](tx.Bucket(bucketOrders), TenantKeyPrefix(tenantID))
		return err
	})
	return out, err
}

// Tender operations

// CreateTender stores a tender keyed under its order so one prefix scan
// returns an order's full tender set.
func (s *BoltStore) CreateTender(t *types.Tender) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketTenders), tenderKey(t), t)
	})
}

// UpdateTender writes a tender back.
func (s *BoltStore) UpdateTender(t *types.Tender) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTenders)
		key := tenderKey(t)
		if b.Get([]byte(key)) == nil {
			return errdefs.NotFoundf("tender %s", t.ID)
		}
		return put(b, key, t)
	})
}

// ListTendersByOrder returns all tenders recorded against an order.
func (s *BoltStore) ListTendersByOrder(tenantID, orderID string) ([]*types.Tender, error) {
	var out []*types.Tender
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.Tender](tx.Bucket(bucketTenders), TenantKeyPrefix(tenantID)+orderID+"/")
		return err
	})
	return out, err
}

func tenderKey(t *types.Tender) string {
	return t.TenantID + "/" + t.OrderID + "/" + t.ID
}

// Payment intent operations

// CreatePaymentIntent stores a new provider charge record.
func (s *BoltStore) CreatePaymentIntent(pi *types.PaymentIntent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := put(tx.Bucket(bucketPaymentIntents), ScopedKey(pi.TenantID, pi.ID), pi); err != nil {
			return err
		}
		return indexIntentRef(tx, pi)
	})
}

// GetPaymentIntent retrieves a payment intent by ID within a tenant.
func (s *BoltStore) GetPaymentIntent(tenantID, id string) (*types.PaymentIntent, error) {
	var pi types.PaymentIntent
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketPaymentIntents), ScopedKey(tenantID, id), &pi, "payment intent "+id)
	})
	if err != nil {
		return nil, err
	}
	return &pi, nil
}

// GetPaymentIntentByProviderRef correlates a provider webhook back to the
// intent it concerns.
func (s *BoltStore) GetPaymentIntentByProviderRef(tenantID, providerRef string) (*types.PaymentIntent, error) {
	var pi types.PaymentIntent
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketIntentRefs).Get([]byte(ScopedKey(tenantID, providerRef)))
		if id == nil {
			return errdefs.NotFoundf("payment intent ref %s", providerRef)
		}
		return get(tx.Bucket(bucketPaymentIntents), ScopedKey(tenantID, string(id)), &pi, "payment intent "+string(id))
	})
	if err != nil {
		return nil, err
	}
	return &pi, nil
}

// UpdatePaymentIntent writes an intent back and keeps the provider ref
// index current.
func (s *BoltStore) UpdatePaymentIntent(pi *types.PaymentIntent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPaymentIntents)
		key := ScopedKey(pi.TenantID, pi.ID)
		if b.Get([]byte(key)) == nil {
			return errdefs.NotFoundf("payment intent %s", pi.ID)
		}
		pi.UpdatedAt = time.Now().UTC()
		if err := put(b, key, pi); err != nil {
			return err
		}
		return indexIntentRef(tx, pi)
	})
}

func indexIntentRef(tx *bolt.Tx, pi *types.PaymentIntent) error {
	if pi.ProviderRef == "" {
		return nil
	}
	return tx.Bucket(bucketIntentRefs).Put([]byte(ScopedKey(pi.TenantID, pi.ProviderRef)), []byte(pi.ID))
}

// Gift card operations

// CreateGiftCard stores a new gift card and claims its code.
func (s *BoltStore) CreateGiftCard(g *types.GiftCard) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		codes := tx.Bucket(bucketGiftCardCodes)
		codeKey := []byte(ScopedKey(g.TenantID, g.Code))
		if existing := codes.Get(codeKey); existing != nil {
			return errdefs.Conflictf("gift card code %s already in use", g.Code)
		}
		if err := put(tx.Bucket(bucketGiftCards), ScopedKey(g.TenantID, g.ID), g); err != nil {
			return err
		}
		return codes.Put(codeKey, []byte(g.ID))
	})
}

// GetGiftCard retrieves a gift card by ID within a tenant.
func (s *BoltStore) GetGiftCard(tenantID, id string) (*types.GiftCard, error) {
	var g types.GiftCard
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketGiftCards), ScopedKey(tenantID, id), &g, "gift card "+id)
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGiftCardByCode resolves a redemption code to its gift card.
func (s *BoltStore) GetGiftCardByCode(tenantID, code string) (*types.GiftCard, error) {
	var g types.GiftCard
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketGiftCardCodes).Get([]byte(ScopedKey(tenantID, code)))
		if id == nil {
			return errdefs.NotFoundf("gift card code %s", code)
		}
		return get(tx.Bucket(bucketGiftCards), ScopedKey(tenantID, string(id)), &g, "gift card "+string(id))
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// UpdateGiftCard writes a gift card back under optimistic concurrency.
// Balance movements race during checkout; the version check turns lost
// updates into retryable conflicts.
func (s *BoltStore) UpdateGiftCard(g *types.GiftCard) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGiftCards)
		key := ScopedKey(g.TenantID, g.ID)
		if err := checkVersion(b, key, g.Version, "gift card"); err != nil {
			return err
		}
		g.Version++
		return put(b, key, g)
	})
}

// Store credit operations

// CreateStoreCredit stores a new store credit account.
func (s *BoltStore) CreateStoreCredit(sc *types.StoreCredit) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketStoreCredits), ScopedKey(sc.TenantID, sc.ID), sc)
	})
}

// GetStoreCredit retrieves a store credit account by ID within a tenant.
func (s *BoltStore) GetStoreCredit(tenantID, id string) (*types.StoreCredit, error) {
	var sc types.StoreCredit
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketStoreCredits), ScopedKey(tenantID, id), &sc, "store credit "+id)
	})
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

// GetStoreCreditByAccount finds the credit balance held for a customer
// account.
func (s *BoltStore) GetStoreCreditByAccount(tenantID, accountID string) (*types.StoreCredit, error) {
	var found *types.StoreCredit
	err := s.db.View(func(tx *bolt.Tx) error {
		return scanPrefix(tx.Bucket(bucketStoreCredits), TenantKeyPrefix(tenantID), func(k, v []byte) error {
			var sc types.StoreCredit
			if err := json.Unmarshal(v, &sc); err != nil {
				return fmt.Errorf("unmarshal %s: %w", k, err)
			}
			if sc.AccountID == accountID {
				found = &sc
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errdefs.NotFoundf("store credit for account %s", accountID)
	}
	return found, nil
}

// UpdateStoreCredit writes a store credit account back under optimistic
// concurrency.
func (s *BoltStore) UpdateStoreCredit(sc *types.StoreCredit) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStoreCredits)
		key := ScopedKey(sc.TenantID, sc.ID)
		if err := checkVersion(b, key, sc.Version, "store credit"); err != nil {
			return err
		}
		sc.Version++
		return put(b, key, sc)
	})
}

// Ledger operations

// AppendLedgerEntry records one balance movement. Entries are append-only;
// compensation writes an opposing entry instead of deleting.
func (s *BoltStore) AppendLedgerEntry(e *types.LedgerEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketLedger), seqKey(ScopedKey(e.TenantID, e.AccountRef), e.CreatedAt, e.ID), e)
	})
}

// ListLedgerEntries returns an account's movement history, oldest first.
func (s *BoltStore) ListLedgerEntries(tenantID, accountRef string) ([]*types.LedgerEntry, error) {
	var out []*types.LedgerEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.LedgerEntry](tx.Bucket(bucketLedger), ScopedKey(tenantID, accountRef)+"/")
		return err
	})
	return out, err
}

// Consignor operations

// CreateConsignor stores a new consignor.
func (s *BoltStore) CreateConsignor(c *types.Consignor) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketConsignors), ScopedKey(c.TenantID, c.ID), c)
	})
}

// GetConsignor retrieves a consignor by ID within a tenant.
func (s *BoltStore) GetConsignor(tenantID, id string) (*types.Consignor, error) {
	var c types.Consignor
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketConsignors), ScopedKey(tenantID, id), &c, "consignor "+id)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateConsignor writes a consignor back.
func (s *BoltStore) UpdateConsignor(c *types.Consignor) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConsignors)
		key := ScopedKey(c.TenantID, c.ID)
		if b.Get([]byte(key)) == nil {
			return errdefs.NotFoundf("consignor %s", c.ID)
		}
		return put(b, key, c)
	})
}

// ListConsignors returns all consignors belonging to a tenant.
func (s *BoltStore) ListConsignors(tenantID string) ([]*types.Consignor, error) {
	var out []*types.Consignor
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.Consignor](tx.Bucket(bucketConsignors), TenantKeyPrefix(tenantID))
		return err
	})
	return out, err
}

// Consignment item operations

// CreateConsignmentItem stores a new intake row.
func (s *BoltStore) CreateConsignmentItem(i *types.ConsignmentItem) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketConsignmentItems), ScopedKey(i.TenantID, i.ID), i)
	})
}

// GetConsignmentItem retrieves a consignment item by ID within a tenant.
func (s *BoltStore) GetConsignmentItem(tenantID, id string) (*types.ConsignmentItem, error) {
	var i types.ConsignmentItem
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketConsignmentItems), ScopedKey(tenantID, id), &i, "consignment item "+id)
	})
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// UpdateConsignmentItem writes a consignment item back.
func (s *BoltStore) UpdateConsignmentItem(i *types.ConsignmentItem) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConsignmentItems)
		key := ScopedKey(i.TenantID, i.ID)
		if b.Get([]byte(key)) == nil {
			return errdefs.NotFoundf("consignment item %s", i.ID)
		}
		return put(b, key, i)
	})
}

// ListConsignmentItems returns all consignment items belonging to a tenant.
func (s *BoltStore) ListConsignmentItems(tenantID string) ([]*types.ConsignmentItem, error) {
	var out []*types.ConsignmentItem
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.ConsignmentItem](tx.Bucket(bucketConsignmentItems), TenantKeyPrefix(tenantID))
		return err
	})
	return out, err
}

// ListConsignmentItemsByConsignor filters a tenant's items to one consignor.
func (s *BoltStore) ListConsignmentItemsByConsignor(tenantID, consignorID string) ([]*types.ConsignmentItem, error) {
	all, err := s.ListConsignmentItems(tenantID)
	if err != nil {
		return nil, err
	}
	var out []*types.ConsignmentItem
	for _, i := range all {
		if i.ConsignorID == consignorID {
			out = append(out, i)
		}
	}
	return out, nil
}

// Payout batch operations

// CreatePayoutBatch stores a new payout batch.
func (s *BoltStore) CreatePayoutBatch(b *types.PayoutBatch) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketPayoutBatches), ScopedKey(b.TenantID, b.ID), b)
	})
}

// GetPayoutBatch retrieves a payout batch by ID within a tenant.
func (s *BoltStore) GetPayoutBatch(tenantID, id string) (*types.PayoutBatch, error) {
	var b types.PayoutBatch
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketPayoutBatches), ScopedKey(tenantID, id), &b, "payout batch "+id)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdatePayoutBatch writes a payout batch back.
func (s *BoltStore) UpdatePayoutBatch(b *types.PayoutBatch) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketPayoutBatches)
		key := ScopedKey(b.TenantID, b.ID)
		if bkt.Get([]byte(key)) == nil {
			return errdefs.NotFoundf("payout batch %s", b.ID)
		}
		return put(bkt, key, b)
	})
}

// ListPayoutBatches returns all payout batches belonging to a tenant.
func (s *BoltStore) ListPayoutBatches(tenantID string) ([]*types.PayoutBatch, error) {
	var out []*types.PayoutBatch
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.PayoutBatch](tx.Bucket(bucketPayoutBatches), TenantKeyPrefix(tenantID))
		return err
	})
	return out, err
}

// CountPendingPayouts counts pending batches across all tenants. Used by the
// metrics collector.
func (s *BoltStore) CountPendingPayouts() (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPayoutBatches).ForEach(func(k, v []byte) error {
			var b types.PayoutBatch
			if err := json.Unmarshal(v, &b); err != nil {
				return fmt.Errorf("unmarshal %s: %w", k, err)
			}
			if b.Status == types.PayoutBatchStatusPending {
				count++
			}
			return nil
		})
	})
	return count, err
}

// Media asset operations

// CreateMediaAsset stores a new media asset.
func (s *BoltStore) CreateMediaAsset(a *types.MediaAsset) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketMediaAssets), ScopedKey(a.TenantID, a.ID), a)
	})
}

// GetMediaAsset retrieves a media asset by ID within a tenant.
func (s *BoltStore) GetMediaAsset(tenantID, id string) (*types.MediaAsset, error) {
	var a types.MediaAsset
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketMediaAssets), ScopedKey(tenantID, id), &a, "media asset "+id)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateMediaAsset writes a media asset back.
func (s *BoltStore) UpdateMediaAsset(a *types.MediaAsset) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMediaAssets)
		key := ScopedKey(a.TenantID, a.ID)
		if b.Get([]byte(key)) == nil {
			return errdefs.NotFoundf("media asset %s", a.ID)
		}
		a.UpdatedAt = time.Now().UTC()
		return put(b, key, a)
	})
}

// ListMediaAssets returns all media assets belonging to a tenant.
func (s *BoltStore) ListMediaAssets(tenantID string) ([]*types.MediaAsset, error) {
	var out []*types.MediaAsset
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.MediaAsset](tx.Bucket(bucketMediaAssets), TenantKeyPrefix(tenantID))
		return err
	})
	return out, err
}

// AppendMediaAccess logs one signed-download issuance.
func (s *BoltStore) AppendMediaAccess(a *types.MediaAccess) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketMediaAccess), seqKey(ScopedKey(a.TenantID, a.AssetID), a.CreatedAt, a.ID), a)
	})
}

// ListMediaAccess returns the download log for one asset, oldest first.
func (s *BoltStore) ListMediaAccess(tenantID, assetID string) ([]*types.MediaAccess, error) {
	var out []*types.MediaAccess
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.MediaAccess](tx.Bucket(bucketMediaAccess), ScopedKey(tenantID, assetID)+"/")
		return err
	})
	return out, err
}

// Report job operations

// CreateReportJob stores a new report job.
func (s *BoltStore) CreateReportJob(j *types.ReportJob) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketReportJobs), ScopedKey(j.TenantID, j.ID), j)
	})
}

// GetReportJob retrieves a report job by ID within a tenant.
func (s *BoltStore) GetReportJob(tenantID, id string) (*types.ReportJob, error) {
	var j types.ReportJob
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketReportJobs), ScopedKey(tenantID, id), &j, "report job "+id)
	})
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// UpdateReportJob writes a report job back.
func (s *BoltStore) UpdateReportJob(j *types.ReportJob) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReportJobs)
		key := ScopedKey(j.TenantID, j.ID)
		if b.Get([]byte(key)) == nil {
			return errdefs.NotFoundf("report job %s", j.ID)
		}
		return put(b, key, j)
	})
}

// ListReportJobs returns all report jobs belonging to a tenant.
func (s *BoltStore) ListReportJobs(tenantID string) ([]*types.ReportJob, error) {
	var out []*types.ReportJob
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listPrefix[types.ReportJob](tx.Bucket(bucketReportJobs), TenantKeyPrefix(tenantID))
		return err
	})
	return out, err
}

// ListActiveReportJobs returns pending and running jobs across all tenants.
// Used by the reconciler to fail stale runs and by the metrics collector.
func (s *BoltStore) ListActiveReportJobs() ([]*types.ReportJob, error) {
	var out []*types.ReportJob
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReportJobs).ForEach(func(k, v []byte) error {
			var j types.ReportJob
			if err := json.Unmarshal(v, &j); err != nil {
				return fmt.Errorf("unmarshal %s: %w", k, err)
			}
			if j.Status == types.ReportJobStatusPending || j.Status == types.ReportJobStatusRunning {
				out = append(out, &j)
			}
			return nil
		})
	})
	return out, err
}

// Dead letter operations

// PushDLQEntry persists a job that exhausted its retry budget.
func (s *BoltStore) PushDLQEntry(e *types.DLQEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketDLQ), e.ID, e)
	})
}

// GetDLQEntry retrieves a dead-lettered job by ID.
func (s *BoltStore) GetDLQEntry(id string) (*types.DLQEntry, error) {
	var e types.DLQEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketDLQ), id, &e, "dlq entry "+id)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListDLQEntries returns every dead-lettered job.
func (s *BoltStore) ListDLQEntries() ([]*types.DLQEntry, error) {
	var out []*types.DLQEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listAll[types.DLQEntry](tx.Bucket(bucketDLQ))
		return err
	})
	return out, err
}

// DeleteDLQEntry removes a dead-lettered job after requeue or discard.
func (s *BoltStore) DeleteDLQEntry(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDLQ)
		if b.Get([]byte(id)) == nil {
			return errdefs.NotFoundf("dlq entry %s", id)
		}
		return b.Delete([]byte(id))
	})
}

// CountDLQEntries returns the dead letter backlog size.
func (s *BoltStore) CountDLQEntries() (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDLQ).ForEach(func(k, v []byte) error {
			count++
			return nil
		})
	})
	return count, err
}

// Idempotency operations

// PutIdempotencyRecord stores the replayable result of a mutating request.
func (s *BoltStore) PutIdempotencyRecord(rec *types.IdempotencyRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketIdempotency), ScopedKey(rec.TenantID, rec.Key), rec)
	})
}

// GetIdempotencyRecord retrieves a stored result by (tenant, key).
func (s *BoltStore) GetIdempotencyRecord(tenantID, key string) (*types.IdempotencyRecord, error) {
	var rec types.IdempotencyRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketIdempotency), ScopedKey(tenantID, key), &rec, "idempotency key "+key)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PurgeExpiredIdempotency deletes records past their retention window and
// returns how many were removed.
func (s *BoltStore) PurgeExpiredIdempotency(now time.Time) (int, error) {
	count := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIdempotency)
		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec types.IdempotencyRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal %s: %w", k, err)
			}
			if rec.ExpiresAt.Before(now) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		count = len(keys)
		return nil
	})
	return count, err
}

// Webhook event operations

// MarkWebhookEvent records a provider event id the first time it is seen.
// Returns false when the event was already processed, so redelivered
// webhooks become no-ops.
func (s *BoltStore) MarkWebhookEvent(eventID string, seenAt time.Time) (bool, error) {
	first := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWebhookEvents)
		if b.Get([]byte(eventID)) != nil {
			return nil
		}
		first = true
		return b.Put([]byte(eventID), []byte(seenAt.UTC().Format(time.RFC3339Nano)))
	})
	return first, err
}

// PurgeWebhookEvents drops dedupe markers older than cutoff and returns how
// many were removed.
func (s *BoltStore) PurgeWebhookEvents(cutoff time.Time) (int, error) {
	count := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWebhookEvents)
		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			seen, err := time.Parse(time.RFC3339Nano, string(v))
			if err != nil || seen.Before(cutoff) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		count = len(keys)
		return nil
	})
	return count, err
}

// Audit operations

// AppendAuditEvent records one audit row. Append-only.
func (s *BoltStore) AppendAuditEvent(e *types.AuditEvent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketAudit), seqKey(e.TenantID, e.CreatedAt, e.ID), e)
	})
}

// ListAuditEvents returns a tenant's newest audit rows, newest first, up to
// limit (0 means all).
func (s *BoltStore) ListAuditEvents(tenantID string, limit int) ([]*types.AuditEvent, error) {
	var all []*types.AuditEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		all, err = listPrefix[types.AuditEvent](tx.Bucket(bucketAudit), TenantKeyPrefix(tenantID))
		return err
	})
	if err != nil {
		return nil, err
	}
	// Keys sort oldest first; reverse for operator display.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Impersonation token operations

// PutImpersonationToken stores an operator impersonation grant.
func (s *BoltStore) PutImpersonationToken(t *types.ImpersonationToken) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketImpersonation), t.Token, t)
	})
}

// GetImpersonationToken retrieves a grant by its opaque token.
func (s *BoltStore) GetImpersonationToken(token string) (*types.ImpersonationToken, error) {
	var t types.ImpersonationToken
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketImpersonation), token, &t, "impersonation token")
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteImpersonationToken revokes a grant.
func (s *BoltStore) DeleteImpersonationToken(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketImpersonation).Delete([]byte(token))
	})
}

// ListImpersonationTokens returns every outstanding grant.
func (s *BoltStore) ListImpersonationTokens() ([]*types.ImpersonationToken, error) {
	var out []*types.ImpersonationToken
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		out, err = listAll[types.ImpersonationToken](tx.Bucket(bucketImpersonation))
		return err
	})
	return out, err
}

// Payment credential operations

// PutPaymentCredential stores a tenant's encrypted provider credentials.
// The blob is sealed by the vault before it reaches the store.
func (s *BoltStore) PutPaymentCredential(tenantID string, sealed []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPaymentCreds).Put([]byte(tenantID), sealed)
	})
}

// GetPaymentCredential retrieves a tenant's sealed provider credentials.
func (s *BoltStore) GetPaymentCredential(tenantID string) ([]byte, error) {
	var sealed []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPaymentCreds).Get([]byte(tenantID))
		if data == nil {
			return errdefs.NotFoundf("payment credentials for tenant %s", tenantID)
		}
		sealed = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sealed, nil
}
