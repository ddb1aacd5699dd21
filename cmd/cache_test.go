//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/incident-geocoder/internal/store"
	"github.com/sells-group/incident-geocoder/pkg/geocode"
)

func TestCacheMigrateCmd(t *testing.T) {
	cfg = testConfig(t, "")

	var stdout bytes.Buffer
	cacheMigrateCmd.SetOut(&stdout)
	cacheMigrateCmd.SetContext(context.Background())
	defer cacheMigrateCmd.SetOut(nil)
	defer cacheMigrateCmd.SetContext(nil)

	require.NoError(t, cacheMigrateCmd.RunE(cacheMigrateCmd, nil))
	assert.Contains(t, stdout.String(), "cache migrated")

	// Running twice is harmless.
	require.NoError(t, cacheMigrateCmd.RunE(cacheMigrateCmd, nil))
}

func TestCacheMigrateCmd_BadDriver(t *testing.T) {
	cfg = testConfig(t, "")
	cfg.Store.Driver = "mysql"

	cacheMigrateCmd.SetContext(context.Background())
	defer cacheMigrateCmd.SetContext(nil)

	err := cacheMigrateCmd.RunE(cacheMigrateCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql" must be sqlite or postgres`)
}

func seedCache(t *testing.T, entries map[string]geocode.Result) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{Driver: cfg.Store.Driver, DatabaseURL: cfg.Store.DatabaseURL})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	for q, r := range entries {
		require.NoError(t, st.Put(ctx, q, r))
	}
}

func TestCacheGetCmd_Hit(t *testing.T) {
	cfg = testConfig(t, "")
	seedCache(t, map[string]geocode.Result{
		"BROADWAY and KETTNER": {Latitude: 32.7153, Longitude: -117.1697, Precision: geocode.PrecisionIntersection},
	})
	cacheOutput = "json"

	var stdout bytes.Buffer
	cacheGetCmd.SetOut(&stdout)
	cacheGetCmd.SetContext(context.Background())
	defer cacheGetCmd.SetOut(nil)
	defer cacheGetCmd.SetContext(nil)

	require.NoError(t, cacheGetCmd.RunE(cacheGetCmd, []string{"broadway / kettner"}))

	var got cacheEntry
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, "broadway and kettner", got.Normalized)
	assert.Equal(t, geocode.QueryKey("broadway and kettner"), got.Key)
	require.NotNil(t, got.Result)
	assert.Equal(t, geocode.PrecisionIntersection, got.Result.Precision)
}

func TestCacheGetCmd_Miss(t *testing.T) {
	cfg = testConfig(t, "")
	cacheOutput = "json"

	var stdout bytes.Buffer
	cacheGetCmd.SetOut(&stdout)
	cacheGetCmd.SetContext(context.Background())
	defer cacheGetCmd.SetOut(nil)
	defer cacheGetCmd.SetContext(nil)

	require.NoError(t, cacheGetCmd.RunE(cacheGetCmd, []string{"Nowhere Rd"}))
	assert.Contains(t, stdout.String(), `"result": null`)
}

func TestCacheGetCmd_EmptyLocation(t *testing.T) {
	cfg = testConfig(t, "")

	cacheGetCmd.SetContext(context.Background())
	defer cacheGetCmd.SetContext(nil)

	err := cacheGetCmd.RunE(cacheGetCmd, []string{"   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "location is empty")
}

func TestCacheStatsCmd(t *testing.T) {
	cfg = testConfig(t, "")
	seedCache(t, map[string]geocode.Result{
		"University Ave":       {Latitude: 32.7486, Longitude: -117.13, Precision: geocode.PrecisionStreet},
		"Main St":              {Latitude: 32.70, Longitude: -117.15, Precision: geocode.PrecisionStreet},
		"BROADWAY and KETTNER": {Latitude: 32.7153, Longitude: -117.1697, Precision: geocode.PrecisionIntersection},
	})
	cacheOutput = "json"

	var stdout bytes.Buffer
	cacheStatsCmd.SetOut(&stdout)
	cacheStatsCmd.SetContext(context.Background())
	defer cacheStatsCmd.SetOut(nil)
	defer cacheStatsCmd.SetContext(nil)

	require.NoError(t, cacheStatsCmd.RunE(cacheStatsCmd, nil))

	var got store.Stats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, 3, got.Forward)
	assert.Equal(t, 0, got.Reverse)
	assert.Equal(t, 2, got.ByPrecision["street"])
	assert.Equal(t, 1, got.ByPrecision["intersection"])
}
