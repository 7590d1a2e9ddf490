package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-reports/internal/migrate"
	"github.com/target/mmk-reports/internal/testutil"
)

func TestRunIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t) // already migrated once
	ctx := context.Background()

	require.NoError(t, migrate.Run(ctx, db))

	st, err := migrate.CurrentStatus(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, st.Pending)
	assert.Contains(t, st.Applied, "0001_reports")

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, len(st.Applied), n)
}
