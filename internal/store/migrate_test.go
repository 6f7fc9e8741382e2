package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/movieweb/db"
	"github.com/Clark-Hu/movieweb/internal/pgtest"
	"github.com/Clark-Hu/movieweb/internal/store"
)

func TestMigrateIsIdempotent(t *testing.T) {
	pool := pgtest.NewPool(t)
	ctx := context.Background()

	// pgtest already applied everything once.
	applied, err := store.Migrate(ctx, pool, db.Migrations)
	require.NoError(t, err)
	require.Empty(t, applied)

	var versions int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&versions))
	require.Equal(t, 1, versions)

	var tables int
	require.NoError(t, pool.QueryRow(ctx, `
        SELECT count(*) FROM information_schema.tables
        WHERE table_schema = 'public' AND table_name IN ('users','movies','memberships','comments')
    `).Scan(&tables))
	require.Equal(t, 4, tables)
}
