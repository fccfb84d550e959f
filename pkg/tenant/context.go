package tenant

import (
	"context"
	"fmt"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/types"
)

// Binding is the tenant identity attached to a unit of work: one HTTP
// request or one job execution. It is set exactly once per unit; code
// deeper in the stack reads it, never rewrites it.
type Binding struct {
	Tenant *types.Tenant

	// Actor identifies who initiated the work (platform user id, customer
	// id, or "system" for reconciler/cron work).
	Actor string

	// ImpersonationID is set when a platform operator is acting as the
	// tenant. It rides into every audit row written under this binding.
	ImpersonationID string
}

// contextKey keeps the binding private to this package.
type contextKey struct{}

var bindingKey contextKey

// Bind attaches a tenant binding to ctx. Binding twice is a programmer
// error: the second call fails with ErrContextConflict regardless of
// whether the tenant matches. Use RunAs for sanctioned overrides.
func Bind(ctx context.Context, b *Binding) (context.Context, error) {
	if b == nil || b.Tenant == nil {
		return nil, errdefs.Validationf("nil tenant binding")
	}
	if existing := lookup(ctx); existing != nil {
		return nil, fmt.Errorf("already bound to tenant %s: %w", existing.Tenant.ID, errdefs.ErrContextConflict)
	}
	return context.WithValue(ctx, bindingKey, b), nil
}

// Current returns the binding or ErrNoContext. Repositories call this
// before composing any query.
func Current(ctx context.Context) (*Binding, error) {
	b := lookup(ctx)
	if b == nil {
		return nil, errdefs.ErrNoContext
	}
	return b, nil
}

// HasContext reports whether a tenant binding is attached.
func HasContext(ctx context.Context) bool {
	return lookup(ctx) != nil
}

// Clear returns a context without a tenant binding. Clearing an already
// clear context is a no-op.
func Clear(ctx context.Context) context.Context {
	if lookup(ctx) == nil {
		return ctx
	}
	// Contexts are immutable; shadow the key with an explicit nil.
	return context.WithValue(ctx, bindingKey, (*Binding)(nil))
}

// RunAs executes fn under b, regardless of any binding already attached.
// The caller's own context is untouched, so the previous binding is
// restored the moment RunAs returns. This is the only sanctioned way to
// switch tenants mid-flight; the job processor and operator impersonation
// both run through it.
func RunAs(ctx context.Context, b *Binding, fn func(ctx context.Context) error) error {
	if b == nil || b.Tenant == nil {
		return errdefs.Validationf("nil tenant binding")
	}
	return fn(context.WithValue(ctx, bindingKey, b))
}

func lookup(ctx context.Context) *Binding {
	b, _ := ctx.Value(bindingKey).(*Binding)
	return b
}
