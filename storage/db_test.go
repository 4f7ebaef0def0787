package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	require.NoError(t, db.Put([]byte("a/1"), []byte("one")))
	require.NoError(t, db.Put([]byte("a/2"), []byte("two")))
	require.NoError(t, db.Put([]byte("b/1"), []byte("other")))

	ok, err := db.Has([]byte("a/1"))
	require.NoError(t, err)
	require.True(t, ok)

	var keys []string
	require.NoError(t, db.Iterate([]byte("a/"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	require.Equal(t, []string{"a/1", "a/2"}, keys)

	batch := db.NewBatch()
	batch.Put([]byte("a/3"), []byte("three"))
	batch.Delete([]byte("a/1"))
	require.Equal(t, 2, batch.Len())
	require.NoError(t, batch.Write())

	value, err := db.Get([]byte("a/3"))
	require.NoError(t, err)
	require.Equal(t, "three", string(value))
	_, err = db.Get([]byte("a/1"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Delete([]byte("a/2")))
	ok, err = db.Has([]byte("a/2"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestIterateStopsEarly(t *testing.T) {
	db := NewMemDB()
	for _, k := range []string{"p/1", "p/2", "p/3"} {
		require.NoError(t, db.Put([]byte(k), []byte(k)))
	}
	count := 0
	require.NoError(t, db.Iterate([]byte("p/"), func(key, value []byte) bool {
		count++
		return count < 2
	}))
	require.Equal(t, 2, count)
}
