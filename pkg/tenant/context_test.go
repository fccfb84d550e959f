package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/types"
)

func testTenant(id string) *types.Tenant {
	return &types.Tenant{ID: id, Name: id, Subdomain: id, Status: types.TenantStatusActive}
}

func TestBindAndCurrent(t *testing.T) {
	ctx := context.Background()
	assert.False(t, HasContext(ctx))

	_, err := Current(ctx)
	assert.ErrorIs(t, err, errdefs.ErrNoContext)

	bound, err := Bind(ctx, &Binding{Tenant: testTenant("t1"), Actor: "user-1"})
	require.NoError(t, err)
	assert.True(t, HasContext(bound))

	b, err := Current(bound)
	require.NoError(t, err)
	assert.Equal(t, "t1", b.Tenant.ID)
	assert.Equal(t, "user-1", b.Actor)

	// The original context is untouched.
	assert.False(t, HasContext(ctx))
}

func TestBindIsSetOnce(t *testing.T) {
	ctx, err := Bind(context.Background(), &Binding{Tenant: testTenant("t1")})
	require.NoError(t, err)

	_, err = Bind(ctx, &Binding{Tenant: testTenant("t2")})
	assert.ErrorIs(t, err, errdefs.ErrContextConflict)

	// Rebinding the same tenant is also a conflict; RunAs is the override.
	_, err = Bind(ctx, &Binding{Tenant: testTenant("t1")})
	assert.ErrorIs(t, err, errdefs.ErrContextConflict)
}

func TestBindRejectsNil(t *testing.T) {
	_, err := Bind(context.Background(), nil)
	assert.ErrorIs(t, err, errdefs.ErrValidation)

	_, err = Bind(context.Background(), &Binding{})
	assert.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestClearIsIdempotent(t *testing.T) {
	ctx, err := Bind(context.Background(), &Binding{Tenant: testTenant("t1")})
	require.NoError(t, err)

	cleared := Clear(ctx)
	assert.False(t, HasContext(cleared))

	// Clearing again changes nothing.
	cleared2 := Clear(cleared)
	assert.False(t, HasContext(cleared2))

	// A cleared context accepts a fresh bind.
	rebound, err := Bind(cleared, &Binding{Tenant: testTenant("t2")})
	require.NoError(t, err)
	b, err := Current(rebound)
	require.NoError(t, err)
	assert.Equal(t, "t2", b.Tenant.ID)
}

func TestRunAsOverridesAndRestores(t *testing.T) {
	ctx, err := Bind(context.Background(), &Binding{Tenant: testTenant("t1")})
	require.NoError(t, err)

	var inside string
	err = RunAs(ctx, &Binding{Tenant: testTenant("t2"), Actor: "system"}, func(ctx context.Context) error {
		b, err := Current(ctx)
		if err != nil {
			return err
		}
		inside = b.Tenant.ID
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "t2", inside)

	// After RunAs the caller still sees its own tenant.
	b, err := Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", b.Tenant.ID)
}

func TestRunAsWithoutPriorBinding(t *testing.T) {
	err := RunAs(context.Background(), &Binding{Tenant: testTenant("t9")}, func(ctx context.Context) error {
		b, err := Current(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, "t9", b.Tenant.ID)
		return nil
	})
	assert.NoError(t, err)
}

func TestRunAsRejectsNilBinding(t *testing.T) {
	err := RunAs(context.Background(), nil, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestImpersonationRidesTheBinding(t *testing.T) {
	ctx, err := Bind(context.Background(), &Binding{
		Tenant:          testTenant("t1"),
		Actor:           "op-7",
		ImpersonationID: "imp-123",
	})
	require.NoError(t, err)

	b, err := Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "imp-123", b.ImpersonationID)
}
