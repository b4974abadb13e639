package pgstore

import (
	"context"
	"testing"

	"github.com/rocketscienceinc/xiangqi-backend/internal/repository"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository/repositorytest"
	"github.com/rocketscienceinc/xiangqi-backend/testing/suite"
	"github.com/stretchr/testify/require"
)

func TestStorage(t *testing.T) {
	ctx, st := suite.NewPostgres(t)

	// Given: a migrated schema, applied twice to prove idempotence
	require.NoError(t, Migrate(st.DSN, st.Logger))
	require.NoError(t, Migrate(st.DSN, st.Logger))

	repositorytest.Run(t, func(t *testing.T) (context.Context, repository.Store) {
		_, err := st.Pool.Exec(ctx, `TRUNCATE rooms CASCADE`)
		require.NoError(t, err)

		return ctx, New(st.Pool)
	})
}
