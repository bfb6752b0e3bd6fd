package sqlite

import (
	"testing"

	"github.com/adjutant-go/adjutant/store"
	"github.com/adjutant-go/adjutant/store/test"
	"github.com/stretchr/testify/require"
)

func Test_SqliteStore(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	test.StoreTest(t, func() store.Store {
		return NewInMemoryStore()
	}, func(s store.Store) {
		require.NoError(t, s.Close())
	})
}

func Test_SqliteStore_MigrateTwice(t *testing.T) {
	s := NewInMemoryStore()
	defer s.Close()

	require.NoError(t, s.Migrate())
}

func Test_SqliteStore_File(t *testing.T) {
	path := t.TempDir() + "/adjutant.db"

	s := NewSqliteStore(path)
	require.NoError(t, s.Close())

	// Reopening an existing database finds nothing to migrate
	s = NewSqliteStore(path)
	require.NoError(t, s.Close())
}
