package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp switches to an empty temp dir so no config.yaml is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "geocode_cache.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "nominatim", cfg.Geocode.Provider)
	assert.Equal(t, "incident_geocoder", cfg.Geocode.UserAgent)
	assert.Equal(t, 1100*time.Millisecond, cfg.Geocode.MinInterval())
	assert.Equal(t, 10*time.Second, cfg.Geocode.Timeout())
	assert.InDelta(t, 1.0, cfg.Geocode.RequestsPerSecond, 0.001)
	assert.Equal(t, 20, cfg.Geocode.TigerMaxRating)
	assert.Equal(t, 5, cfg.Geocode.BreakerThreshold)
	assert.Equal(t, time.Minute, cfg.Geocode.BreakerCooldown())
	assert.Equal(t, "San Diego", cfg.Region.Name)
	assert.Equal(t, ", San Diego, CA", cfg.Region.Suffix)
	assert.InDelta(t, 32.5, cfg.Region.MinLat, 0.0001)
	assert.InDelta(t, -116.9, cfg.Region.MaxLon, 0.0001)
	assert.Equal(t, []string{"California", "San Diego"}, cfg.Region.Markers)
	assert.Equal(t, 5, cfg.Batch.Concurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	require.NoError(t, cfg.Validate("resolve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/geocode
geocode:
  provider: google
  google_api_key: test-key
region:
  name: Sacramento
  suffix: ", Sacramento, CA"
  min_lat: 38.4
  max_lat: 38.8
  min_lon: -121.6
  max_lon: -121.2
  markers: [Sacramento]
log:
  level: debug
  format: console
batch:
  concurrency: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "google", cfg.Geocode.Provider)
	assert.Equal(t, "test-key", cfg.Geocode.GoogleAPIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10, cfg.Batch.Concurrency)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Geocode.TimeoutSecs)

	region := cfg.Region.Build()
	assert.Equal(t, "Sacramento", region.Name)
	assert.True(t, region.Contains(38.58, -121.49))
	assert.False(t, region.Contains(32.7157, -117.1611))
	require.NoError(t, cfg.Validate("resolve"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("INCIDENT_STORE_DRIVER", "postgres")
	t.Setenv("INCIDENT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("INCIDENT_GEOCODE_MIN_INTERVAL_MS", "2000")
	t.Setenv("INCIDENT_GEOCODE_GOOGLE_API_KEY", "env-key")
	t.Setenv("INCIDENT_REGION_MARKERS", "California,Baja California")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Geocode.MinInterval())
	assert.Equal(t, "env-key", cfg.Geocode.GoogleAPIKey)
	assert.Equal(t, []string{"California", "Baja California"}, cfg.Region.Markers)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "geocode_cache.db"
	cfg.Geocode.Provider = "nominatim"
	cfg.Geocode.MinIntervalMS = 1100
	cfg.Geocode.TimeoutSecs = 10
	cfg.Region = RegionConfig{
		Name: "San Diego", Suffix: ", San Diego, CA",
		MinLat: 32.5, MaxLat: 33.3, MinLon: -117.6, MaxLon: -116.9,
		Markers: []string{"California"},
	}
	cfg.Batch.Concurrency = 5
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("resolve"))
	assert.NoError(t, validDefaults().Validate("cache"))
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_Store(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("cache")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql" must be sqlite or postgres`)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_ProviderRequirements(t *testing.T) {
	cfg := validDefaults()
	cfg.Geocode.Provider = "google"
	err := cfg.Validate("resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geocode.google_api_key is required")

	cfg.Geocode.GoogleAPIKey = "k"
	assert.NoError(t, cfg.Validate("resolve"))

	cfg.Geocode.Provider = "tiger"
	err = cfg.Validate("resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geocode.tiger_database_url is required")

	cfg.Geocode.Provider = "bing"
	err = cfg.Validate("resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `geocode.provider "bing" is not supported`)

	// Provider settings do not matter for cache-only commands.
	assert.NoError(t, cfg.Validate("cache"))
}

func TestValidate_RegionAndBatch(t *testing.T) {
	cfg := validDefaults()
	cfg.Region.MinLat, cfg.Region.MaxLat = 33.3, 32.5
	cfg.Region.Markers = nil
	cfg.Batch.Concurrency = 0

	err := cfg.Validate("resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region latitude bounds are invalid")
	assert.Contains(t, err.Error(), "region.markers must not be empty")
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 50")

	cfg = validDefaults()
	cfg.Batch.Concurrency = 50
	assert.NoError(t, cfg.Validate("resolve"))
}
