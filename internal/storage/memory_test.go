package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Redis)(nil)
)

func TestKeyScopesByProfile(t *testing.T) {
	assert.Equal(t, "profile:abc:cart", Key("abc", CartKey))
	assert.Equal(t, "profile:abc:checkoutItems", Key(" abc ", CheckoutItemsKey))
}

func TestMemoryGetSetDelete(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	defer mem.Close()

	_, ok, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte(`[1]`)
	require.NoError(t, mem.Set(ctx, "k", value, "tab-a"))
	value[0] = 'x'

	got, ok, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[1]`, string(got), "stored value must not alias caller slice")

	require.NoError(t, mem.Delete(ctx, "k", "tab-a"))
	_, ok, err = mem.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryChangesSkipWritingOrigin(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	defer mem.Close()

	var mu sync.Mutex
	var seenA, seenB []Change
	cancelA := mem.Subscribe("k", "tab-a", func(c Change) {
		mu.Lock()
		seenA = append(seenA, c)
		mu.Unlock()
	})
	defer cancelA()
	cancelB := mem.Subscribe("k", "tab-b", func(c Change) {
		mu.Lock()
		seenB = append(seenB, c)
		mu.Unlock()
	})
	defer cancelB()

	require.NoError(t, mem.Set(ctx, "k", []byte("v1"), "tab-a"))
	require.NoError(t, mem.Set(ctx, "k", []byte("v2"), "tab-a"))
	require.NoError(t, mem.Delete(ctx, "k", "tab-a"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seenB) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, seenA)
	assert.Equal(t, "v1", string(seenB[0].Value))
	assert.Equal(t, "v2", string(seenB[1].Value))
	assert.True(t, seenB[2].Deleted)
}

func TestMemoryDeleteMissingKeyIsSilent(t *testing.T) {
	mem := NewMemory()
	defer mem.Close()

	called := make(chan struct{}, 1)
	cancel := mem.Subscribe("k", "tab-b", func(Change) { called <- struct{}{} })
	defer cancel()

	require.NoError(t, mem.Delete(context.Background(), "k", "tab-a"))
	select {
	case <-called:
		t.Fatal("deleting an absent key must not notify")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryCancelStopsDelivery(t *testing.T) {
	mem := NewMemory()
	defer mem.Close()

	called := make(chan struct{}, 1)
	cancel := mem.Subscribe("k", "tab-b", func(Change) { called <- struct{}{} })
	cancel()

	require.NoError(t, mem.Set(context.Background(), "k", []byte("v"), "tab-a"))
	select {
	case <-called:
		t.Fatal("cancelled subscription must not receive changes")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryRespectsCanceledContext(t *testing.T) {
	mem := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, mem.Set(ctx, "k", []byte("v"), "tab-a"))
}
