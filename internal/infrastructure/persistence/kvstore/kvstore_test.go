package kvstore

import (
	"context"
	"testing"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/ports"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/persistence/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store ports.KeyValueStore) {
	t.Helper()
	ctx := context.Background()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "tinysteps:prompt-state:v1", []byte(`{"hasBeenShown":true}`)))
	value, found, err := store.Get(ctx, "tinysteps:prompt-state:v1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"hasBeenShown":true}`, string(value))

	require.NoError(t, store.Set(ctx, "tinysteps:prompt-state:v1", []byte(`{"hasBeenShown":false}`)))
	value, _, err = store.Get(ctx, "tinysteps:prompt-state:v1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"hasBeenShown":false}`, string(value))

	require.NoError(t, store.Delete(ctx, "tinysteps:prompt-state:v1"))
	require.NoError(t, store.Delete(ctx, "tinysteps:prompt-state:v1"))
	_, found, err = store.Get(ctx, "tinysteps:prompt-state:v1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLStore(t *testing.T) {
	db, err := database.OpenMemory(context.Background())
	require.NoError(t, err)
	defer db.Close()

	exerciseStore(t, NewSQLStore(db, logging.NewDiscardLogger()))
}

func TestNamespacedStore(t *testing.T) {
	mem := NewMemoryStore()
	ns := ports.NewNamespaced(mem, "tinysteps", "deferred")
	ctx := context.Background()

	require.NoError(t, ns.Set(ctx, "contact", []byte("x")))
	_, found, err := mem.Get(ctx, "tinysteps:deferred:contact")
	require.NoError(t, err)
	assert.True(t, found)

	exerciseStore(t, ns)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, mem.Set(ctx, "k", buf))
	buf[0] = 'z'

	got, _, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
