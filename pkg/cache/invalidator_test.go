package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agora/pkg/events"
)

func waitForMiss(t *testing.T, c Cache, key string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := c.Get(context.Background(), key); IsMiss(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("key %s was never invalidated", key)
}

func TestInvalidatorDropsSearchOnCatalogChange(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	inv := NewInvalidator(m, broker)
	inv.Start()
	defer inv.Stop()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, SearchKey("t1", "q", 1, 20), []byte("a"), time.Minute))
	require.NoError(t, m.Set(ctx, FlagsKey("t1"), []byte("b"), time.Minute))

	broker.Publish(&events.Event{Type: events.EventCatalogChanged, TenantID: "t1"})

	waitForMiss(t, m, SearchKey("t1", "q", 1, 20))
	_, err := m.Get(ctx, FlagsKey("t1"))
	assert.NoError(t, err, "catalog change must not drop flags")
}

func TestInvalidatorDropsHostKeysOnSuspension(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	inv := NewInvalidator(m, broker)
	inv.Start()
	defer inv.Stop()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, HostKey("acme.agora.local"), []byte("t1"), time.Minute))
	require.NoError(t, m.Set(ctx, HostKey("shop.acme.com"), []byte("t1"), time.Minute))
	require.NoError(t, m.Set(ctx, SearchKey("t1", "q", 1, 20), []byte("a"), time.Minute))

	broker.Publish(&events.Event{
		Type:     events.EventTenantSuspended,
		TenantID: "t1",
		Metadata: map[string]string{"hosts": "acme.agora.local, shop.acme.com"},
	})

	waitForMiss(t, m, HostKey("acme.agora.local"))
	waitForMiss(t, m, HostKey("shop.acme.com"))
	waitForMiss(t, m, SearchKey("t1", "q", 1, 20))
}

func TestInvalidatorDropsFlagsOnFlagChange(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	inv := NewInvalidator(m, broker)
	inv.Start()
	defer inv.Stop()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, FlagsKey("t1"), []byte("b"), time.Minute))

	broker.Publish(&events.Event{Type: events.EventFlagsChanged, TenantID: "t1"})

	waitForMiss(t, m, FlagsKey("t1"))
}
