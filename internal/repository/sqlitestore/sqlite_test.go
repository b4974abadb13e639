package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rocketscienceinc/xiangqi-backend/internal/repository"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository/repositorytest"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository/storage"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T) (context.Context, repository.Store) {
	t.Helper()

	ctx := context.Background()

	db, err := storage.NewSQLiteStorage(ctx, filepath.Join(t.TempDir(), "xiangqi.db"))
	require.NoError(t, err)

	store := New(db)
	t.Cleanup(func() {
		_ = store.Close()
	})

	// Init runs twice to prove it is idempotent
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Init(ctx))

	return ctx, store
}

func TestStorage(t *testing.T) {
	repositorytest.Run(t, newStorage)
}
