package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/storage"
	"github.com/cuemby/agora/pkg/types"
)

// Service owns pre-order carts. Mutations are read-modify-write under the
// cart's optimistic version; two concurrent writers produce one winner and
// one ErrConflict, never a merged cart.
type Service struct {
	guard  *storage.Guard
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(guard *storage.Guard) *Service {
	return &Service{
		guard:  guard,
		logger: log.WithComponent("cart"),
		now:    time.Now,
	}
}

// GetOrCreateForUser returns the user's open cart, creating one on first use.
func (s *Service) GetOrCreateForUser(ctx context.Context, userID string) (*types.Cart, error) {
	if userID == "" {
		return nil, errdefs.Validationf("user id is required")
	}
	c, err := s.guard.GetCartByUser(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errdefs.IsNotFound(err) {
		return nil, err
	}
	return s.create(ctx, userID, "")
}

// GetOrCreateForSession returns the anonymous session's open cart.
func (s *Service) GetOrCreateForSession(ctx context.Context, sessionID string) (*types.Cart, error) {
	if sessionID == "" {
		return nil, errdefs.Validationf("session id is required")
	}
	c, err := s.guard.GetCartBySession(ctx, sessionID)
	if err == nil {
		return c, nil
	}
	if !errdefs.IsNotFound(err) {
		return nil, err
	}
	return s.create(ctx, "", sessionID)
}

func (s *Service) create(ctx context.Context, userID, sessionID string) (*types.Cart, error) {
	now := s.now().UTC()
	c := &types.Cart{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		Items:     []types.CartItem{},
		Status:    types.CartStatusOpen,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.guard.CreateCart(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns a cart by id.
func (s *Service) Get(ctx context.Context, id string) (*types.Cart, error) {
	return s.guard.GetCart(ctx, id)
}

// AddItem puts qty of a variant into the cart, snapshotting the unit price
// at this moment. Adding the same variant again bumps the existing line and
// keeps its original snapshot.
func (s *Service) AddItem(ctx context.Context, cartID, variantID string, qty int) (*types.Cart, error) {
	if qty < 1 {
		return nil, errdefs.Validationf("quantity must be at least 1, got %d", qty)
	}

	v, err := s.guard.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if v.Status != types.VariantStatusActive {
		return nil, errdefs.Validationf("variant %s is %s and cannot be added", variantID, v.Status)
	}
	p, err := s.guard.GetProduct(ctx, v.ProductID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, cartID, func(c *types.Cart) error {
		for i := range c.Items {
			if c.Items[i].VariantID == variantID {
				c.Items[i].Qty += qty
				return nil
			}
		}
		c.Items = append(c.Items, types.CartItem{
			ID:             uuid.New().String(),
			VariantID:      variantID,
			SKU:            v.SKU,
			Name:           p.Name,
			UnitPriceCents: v.PriceCents,
			Qty:            qty,
			AddedAt:        s.now().UTC(),
		})
		return nil
	})
}

// UpdateQty sets the quantity of an existing line.
func (s *Service) UpdateQty(ctx context.Context, cartID, itemID string, qty int) (*types.Cart, error) {
	if qty < 1 {
		return nil, errdefs.Validationf("quantity must be at least 1, got %d", qty)
	}
	return s.mutate(ctx, cartID, func(c *types.Cart) error {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items[i].Qty = qty
				return nil
			}
		}
		return errdefs.NotFoundf("cart item %s", itemID)
	})
}

// RemoveItem deletes one line from the cart.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) (*types.Cart, error) {
	return s.mutate(ctx, cartID, func(c *types.Cart) error {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
				return nil
			}
		}
		return errdefs.NotFoundf("cart item %s", itemID)
	})
}

// Clear empties the cart but keeps it open.
func (s *Service) Clear(ctx context.Context, cartID string) (*types.Cart, error) {
	return s.mutate(ctx, cartID, func(c *types.Cart) error {
		c.Items = []types.CartItem{}
		return nil
	})
}

// Subtotal returns the cart's current line total in cents.
func (s *Service) Subtotal(ctx context.Context, cartID string) (int64, error) {
	c, err := s.guard.GetCart(ctx, cartID)
	if err != nil {
		return 0, err
	}
	return c.Subtotal(), nil
}

// mutate loads the cart, applies fn, and writes it back under the loaded
// version. Ordered carts are immutable.
func (s *Service) mutate(ctx context.Context, cartID string, fn func(*types.Cart) error) (*types.Cart, error) {
	c, err := s.guard.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.Status != types.CartStatusOpen {
		return nil, errdefs.Conflictf("cart %s is %s and can no longer change", cartID, c.Status)
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.guard.UpdateCart(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
