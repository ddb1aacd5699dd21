package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/incident-geocoder/pkg/geocode"
)

func TestOpen_SQLiteMigrates(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, Config{DatabaseURL: filepath.Join(t.TempDir(), "cache.db")})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, ok := st.(*SQLiteStore)
	assert.True(t, ok)

	// Tables exist without an explicit Migrate.
	require.NoError(t, st.Put(ctx, "Main St", geocode.Result{Precision: geocode.PrecisionStreet}))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpen_PostgresBadURL(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: DriverPostgres, DatabaseURL: "::not a url::"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: parse config")
}

func TestStores_ImplementCache(t *testing.T) {
	var _ geocode.Cache = (*SQLiteStore)(nil)
	var _ geocode.Cache = (*PostgresStore)(nil)
	var _ Store = (*SQLiteStore)(nil)
	var _ Store = (*PostgresStore)(nil)
}
