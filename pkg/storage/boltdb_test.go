package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) (*BoltStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func TestLoadDocumentInitializesDefault(t *testing.T) {
	store, _ := newTestStore(t)

	doc, err := store.LoadDocument()
	require.NoError(t, err)

	assert.Equal(t, types.DefaultDocument(), doc)

	stamp, err := store.UpdatedAt()
	require.NoError(t, err)
	assert.False(t, stamp.IsZero(), "default document should be persisted")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	doc := types.DefaultDocument()
	doc.Users = append(doc.Users, types.User{Username: "alice", Password: "pw", Enabled: true})
	doc.Listeners[0].Enabled = types.BoolPtr(false)
	require.NoError(t, store.SaveDocument(doc))

	loaded, err := store.LoadDocument()
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)
}

func TestSaveDocumentRejectsMalformed(t *testing.T) {
	store, _ := newTestStore(t)

	before, err := store.LoadDocument()
	require.NoError(t, err)

	bad := types.DefaultDocument()
	bad.Listeners = nil
	err = store.SaveDocument(bad)
	assert.ErrorIs(t, err, types.ErrMalformedDocument)

	after, err := store.LoadDocument()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func putRaw(t *testing.T, store *BoltStore, data string) {
	t.Helper()
	err := store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocument).Put(keyCurrent, []byte(data))
	})
	require.NoError(t, err)
}

func TestLoadDocumentOldSchemaResets(t *testing.T) {
	store, _ := newTestStore(t)
	putRaw(t, store, `{"listeners":[{"id":"x","port":1884}]}`)

	doc, err := store.LoadDocument()
	require.NoError(t, err)
	assert.Equal(t, types.DefaultDocument(), doc)
}

func TestLoadDocumentCorrupt(t *testing.T) {
	store, _ := newTestStore(t)
	putRaw(t, store, `{"global_settings":`)

	_, err := store.LoadDocument()
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestLoadDocumentImportsLegacyState(t *testing.T) {
	dir := t.TempDir()
	legacy := `{
  "global_settings": {"persistence": false, "log_dest": "file /tmp/m.log", "log_type": ["error"]},
  "listeners": [{"id": "l1", "port": 1883, "bind_address": "0.0.0.0", "protocol": "mqtt", "allow_anonymous": false}],
  "users": [{"username": "bob", "password": "pw", "enabled": true}]
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, LegacyStateFile), []byte(legacy), 0600))

	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	doc, err := store.LoadDocument()
	require.NoError(t, err)
	require.Len(t, doc.Listeners, 1)
	assert.Equal(t, "l1", doc.Listeners[0].ID)
	assert.True(t, doc.Listeners[0].IsEnabled())
	require.Len(t, doc.Users, 1)
	assert.Equal(t, "bob", doc.Users[0].Username)
	assert.NotNil(t, doc.Administrators)

	// The import happens once; later edits to state.json are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, LegacyStateFile), []byte(`{"global_settings":{},"listeners":[]}`), 0600))
	imported, err := store.ImportLegacy(filepath.Join(dir, LegacyStateFile), false)
	require.NoError(t, err)
	assert.False(t, imported)
}

func TestImportLegacyMissingFile(t *testing.T) {
	store, dir := newTestStore(t)

	imported, err := store.ImportLegacy(filepath.Join(dir, "nope.json"), true)
	require.NoError(t, err)
	assert.False(t, imported)
}

func TestImportLegacyOverwrite(t *testing.T) {
	store, dir := newTestStore(t)
	_, err := store.LoadDocument()
	require.NoError(t, err)

	path := filepath.Join(dir, "backup.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"global_settings":{"persistence":true},"listeners":[{"id":"only","port":2883,"protocol":"mqtt"}]}`), 0600))

	imported, err := store.ImportLegacy(path, true)
	require.NoError(t, err)
	assert.True(t, imported)

	doc, err := store.LoadDocument()
	require.NoError(t, err)
	require.Len(t, doc.Listeners, 1)
	assert.Equal(t, 2883, doc.Listeners[0].Port)
}

func TestBackup(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.LoadDocument()
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := store.Backup(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Greater(t, n, int64(0))
}
