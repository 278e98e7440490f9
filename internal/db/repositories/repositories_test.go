package repositories_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"graymoon/internal/db"
	"graymoon/internal/db/repositories"
)

// setupDB opens a fresh on-disk sqlite database under t.TempDir(), applies
// the embedded migrations, and returns both the raw connection (for
// assertions that bypass the repository layer) and the Repositories
// aggregate under test. The connection is closed automatically on cleanup.
func setupDB(t *testing.T) (*sql.DB, *repositories.Repositories) {
	t.Helper()

	store, err := db.New(filepath.Join(t.TempDir(), "graymoon-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate())

	return store.Conn(), repositories.New(store.Conn())
}

var ctx = context.Background()
