package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)

	require.NoError(t, db.Put([]byte("a/2"), []byte("two")))
	batch := db.NewBatch()
	batch.Put([]byte("a/1"), []byte("one"))
	batch.Put([]byte("a/3"), []byte("three"))
	batch.Put([]byte("b/1"), []byte("other"))
	batch.Delete([]byte("a/2"))
	require.Equal(t, 4, batch.Len())

	ok, err := db.Has([]byte("a/1"))
	require.NoError(t, err)
	require.False(t, ok, "batch writes must not be visible before Write")

	require.NoError(t, batch.Write())

	var keys []string
	require.NoError(t, db.Iterate([]byte("a/"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	require.Equal(t, []string{"a/1", "a/3"}, keys)

	keys = keys[:0]
	require.NoError(t, db.Iterate([]byte("a/"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return false
	}))
	require.Equal(t, []string{"a/1"}, keys)

	value, err := db.Get([]byte("b/1"))
	require.NoError(t, err)
	require.Equal(t, []byte("other"), value)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDB(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	exerciseDatabase(t, db)
	db.Close()

	reopened, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()
	value, err := reopened.Get([]byte("a/3"))
	require.NoError(t, err)
	require.Equal(t, []byte("three"), value)
}
