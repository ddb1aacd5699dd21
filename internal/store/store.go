// Package store persists the geocode forward and reverse caches in SQLite
// (single process, the default) or Postgres (shared between processes).
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/incident-geocoder/pkg/geocode"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is a geocode.Cache with a lifecycle.
type Store interface {
	geocode.Cache

	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Stats summarizes cache contents.
type Stats struct {
	Forward     int            `json:"forward" yaml:"forward"`
	Reverse     int            `json:"reverse" yaml:"reverse"`
	ByPrecision map[string]int `json:"by_precision" yaml:"by_precision"`
}

// Config selects and configures the backing database.
type Config struct {
	Driver      string
	DatabaseURL string
	Pool        *PoolConfig
}

// Open connects to the configured store and migrates it.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "", DriverSQLite:
		st, err = NewSQLite(cfg.DatabaseURL)
	case DriverPostgres:
		st, err = NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
