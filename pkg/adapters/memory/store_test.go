package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sherpa/pkg/adapters/memory"
	"github.com/aretw0/sherpa/pkg/flow"
	"github.com/aretw0/sherpa/pkg/ports"
)

func TestStoreContract(t *testing.T) {
	ports.RunStateStoreContract(t, memory.NewStore())
}

func TestStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	fc := flow.NewContext()
	fc.Set("name", "ada")
	require.NoError(t, store.Save(ctx, "s1", flow.NewSnapshot(fc, "welcome")))

	// Mutating the live context after Save must not leak into the store.
	fc.Set("name", "grace")

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	v, _ := loaded.FlowData.Value("name")
	assert.Equal(t, "ada", v)
}
