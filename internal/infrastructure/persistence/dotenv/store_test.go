package dotenv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/modelfarm/internal/domain/models"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
)

func TestStore_LoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), ".env"), nil)
	cred, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, cred.IsZero())
}

func TestStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OTHER=keep\nREPLIT_L402=\"old:stale\"\n"), 0o600))
	store := NewStore(path, nil)
	ctx := context.Background()

	cred, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.L402Credential{Token: "old", Preimage: "stale"}, cred, "legacy entry is read")

	require.NoError(t, store.Save(ctx, models.L402Credential{Token: "mac", Preimage: "paid"}))

	cred, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.L402Credential{Token: "mac", Preimage: "paid"}, cred)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "OTHER=")
	assert.Contains(t, string(content), constants.EnvL402Token+"=")
	assert.NotContains(t, string(content), constants.EnvL402Legacy+"=", "legacy entry is removed")
}

func TestStore_SaveWriteFailure(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing", ".env"), nil)
	err := store.Save(context.Background(), models.L402Credential{Token: "mac", Preimage: "paid"})
	require.Error(t, err)
	assert.False(t, errors.IsFatal(err), "a write failure must not abort the strategy chain")
	assert.Contains(t, err.Error(), "missing")
}

func TestStore_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	store := NewStore(path, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 8)
	require.NoError(t, store.Watch(ctx, func() { changed <- struct{}{} }))

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "unrelated"), []byte("x"), 0o600))
	require.NoError(t, store.Save(ctx, models.L402Credential{Token: "mac", Preimage: "paid"}))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification for the credential file")
	}
}
