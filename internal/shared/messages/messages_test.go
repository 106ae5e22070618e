package messages

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	got := Default().SyncFailure.Render(map[string]string{"account_id": "abc", "kind": "transient"})
	assert.Equal(t, "Budget sync failed", got.Title)
	assert.Equal(t, "Sync of account abc failed (transient)", got.Body)
}

func TestLoad(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		msgs, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), msgs)
	})

	t.Run("partial override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notifications.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"sync_failure":{"title":"Sincronização falhou"}}`), 0o600))

		msgs, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "Sincronização falhou", msgs.SyncFailure.Title)
		assert.Equal(t, Default().SyncFailure.Body, msgs.SyncFailure.Body)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})
}
