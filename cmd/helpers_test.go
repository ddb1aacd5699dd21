//go:build !integration

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/incident-geocoder/internal/config"
	"github.com/sells-group/incident-geocoder/pkg/geocode"
)

// fakeNominatim serves /search and /reverse. Queries mentioning UNIVERSITY
// resolve inside San Diego, queries mentioning PHOENIX resolve outside it,
// everything else has no result.
func fakeNominatim(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search":
			q := strings.ToUpper(r.URL.Query().Get("q"))
			switch {
			case strings.Contains(q, "UNIVERSITY"):
				json.NewEncoder(w).Encode([]map[string]string{{ //nolint:errcheck
					"lat":          "32.7486",
					"lon":          "-117.1300",
					"display_name": "University Avenue, North Park, San Diego, California, 92104, United States",
				}})
			case strings.Contains(q, "PHOENIX"):
				json.NewEncoder(w).Encode([]map[string]string{{ //nolint:errcheck
					"lat":          "33.4484",
					"lon":          "-112.0740",
					"display_name": "Phoenix, Maricopa County, Arizona, United States",
				}})
			default:
				w.Write([]byte("[]")) //nolint:errcheck
			}
		case "/reverse":
			w.Write([]byte(`{"address":{"road":"Broadway","city":"San Diego","state":"California","country":"United States"}}`)) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// testConfig returns a config that geocodes against baseURL with no gate
// spacing and a fresh SQLite cache.
func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	sd := geocode.SanDiego()
	minLat, maxLat, minLon, maxLon := sd.Bounds()
	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "cache.db"),
		},
		Geocode: config.GeocodeConfig{
			Provider:    "nominatim",
			BaseURL:     baseURL,
			UserAgent:   "incident_geocoder_test",
			TimeoutSecs: 5,
		},
		Region: config.RegionConfig{
			Name:          sd.Name,
			Suffix:        sd.Suffix,
			MinLat:        minLat,
			MaxLat:        maxLat,
			MinLon:        minLon,
			MaxLon:        maxLon,
			Markers:       sd.Markers,
			StripSuffixes: sd.StripSuffixes,
		},
		Batch: config.BatchConfig{Concurrency: 3},
		Log:   config.LogConfig{Level: "info", Format: "json"},
	}
}

// chdirEmpty switches to an empty temp dir so config.Load finds no file.
func chdirEmpty(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
}
