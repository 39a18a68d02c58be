package statedb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *StateDB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetRoundTrip(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Put("search_index", []byte(`{"index":{}}`)))

	got, err := db.Get("search_index")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"index":{}}`), got)
}

func TestGetMissingKey(t *testing.T) {
	db := newTestDB(t)

	got, err := db.Get("never_written")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPutOverwrites(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Put("k", []byte("one")))
	require.NoError(t, db.Put("k", []byte("two")))

	got, err := db.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)
}

func TestDelete(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Put("k", []byte("v")))
	require.NoError(t, db.Delete("k"))

	got, err := db.Get("k")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting again is not an error.
	require.NoError(t, db.Delete("k"))
}

func TestReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	db1, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db1.Migrate())
	require.NoError(t, db1.Put("recent_queries", []byte(`[]`)))
	require.NoError(t, db1.Close())

	db2, err := Open(dbPath)
	require.NoError(t, err)
	defer db2.Close()
	require.NoError(t, db2.Migrate())

	got, err := db2.Get("recent_queries")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), got)
}

func TestUpdatedAt(t *testing.T) {
	db := newTestDB(t)

	ts, err := db.UpdatedAt("k")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	require.NoError(t, db.Put("k", []byte("v")))
	ts, err = db.UpdatedAt("k")
	require.NoError(t, err)
	assert.False(t, ts.IsZero())
}

func TestMeta(t *testing.T) {
	db := newTestDB(t)

	v, err := db.GetMeta("schema_version")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, db.SetMeta("owner", "engine"))
	v, err = db.GetMeta("owner")
	require.NoError(t, err)
	assert.Equal(t, "engine", v)
}
