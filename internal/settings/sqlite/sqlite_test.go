package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokligence/tokligence-relay/internal/settings"
)

func TestGetBeforeSave(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Get(context.Background())
	assert.ErrorIs(t, err, settings.ErrNotFound)
}

func TestSaveOverwritesSingleRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.db")
	store, err := New(path)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Save(ctx, settings.Settings{APIKey: " sk-first ", SelectedProvider: "Groq"})
	require.NoError(t, err)
	saved, err := store.Save(ctx, settings.Settings{APIKey: "sk-second", SelectedProvider: "ChatGPT"})
	require.NoError(t, err)
	assert.False(t, saved.UpdatedAt.IsZero())
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	got, err := reopened.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-second", got.APIKey)
	assert.Equal(t, "ChatGPT", got.SelectedProvider)
	require.NoError(t, reopened.Ping(ctx))
}
