package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/incident-geocoder/pkg/geocode"
)

// SQLiteStore implements Store using modernc.org/sqlite. One mutex guards
// every statement, so a single instance may be shared by any number of
// goroutines.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, eris.New("sqlite: empty database path")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=30000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	query_hash TEXT PRIMARY KEY,
	query      TEXT NOT NULL,
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	precision  TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_geocode_cache_query ON geocode_cache(query);

CREATE TABLE IF NOT EXISTS reverse_geocode_cache (
	coords_hash  TEXT PRIMARY KEY,
	latitude     REAL NOT NULL,
	longitude    REAL NOT NULL,
	address_json TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// Migrate creates the cache tables. It is safe to call repeatedly.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get implements geocode.Cache.
func (s *SQLiteStore) Get(ctx context.Context, normalized string) (*geocode.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		r    geocode.Result
		prec string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT latitude, longitude, precision FROM geocode_cache WHERE query_hash = ?`,
		geocode.QueryKey(normalized),
	).Scan(&r.Latitude, &r.Longitude, &prec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached geocode")
	}
	r.Precision = geocode.Precision(prec)
	return &r, nil
}

// Put implements geocode.Cache.
func (s *SQLiteStore) Put(ctx context.Context, normalized string, r geocode.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (query_hash, query, latitude, longitude, precision, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(query_hash) DO UPDATE SET
			query = excluded.query,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			precision = excluded.precision,
			created_at = excluded.created_at`,
		geocode.QueryKey(normalized), normalized, r.Latitude, r.Longitude, string(r.Precision), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: set cached geocode")
}

// GetReverse implements geocode.Cache.
func (s *SQLiteStore) GetReverse(ctx context.Context, lat, lon float64) (*geocode.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var addrJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT address_json FROM reverse_geocode_cache WHERE coords_hash = ?`,
		geocode.CoordKey(lat, lon),
	).Scan(&addrJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached reverse")
	}

	var a geocode.Address
	if err := json.Unmarshal([]byte(addrJSON), &a); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached address")
	}
	return &a, nil
}

// PutReverse implements geocode.Cache.
func (s *SQLiteStore) PutReverse(ctx context.Context, lat, lon float64, a geocode.Address) error {
	addrJSON, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal address")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reverse_geocode_cache (coords_hash, latitude, longitude, address_json, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(coords_hash) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			address_json = excluded.address_json,
			created_at = excluded.created_at`,
		geocode.CoordKey(lat, lon), lat, lon, string(addrJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: set cached reverse")
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &Stats{ByPrecision: map[string]int{}}

	// Single connection: finish this query before opening rows.
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reverse_geocode_cache`).Scan(&st.Reverse); err != nil {
		return nil, eris.Wrap(err, "sqlite: count reverse geocodes")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT precision, COUNT(*) FROM geocode_cache GROUP BY precision`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count geocodes")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var (
			prec string
			n    int
		)
		if err := rows.Scan(&prec, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan geocode count")
		}
		st.ByPrecision[prec] = n
		st.Forward += n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: count geocodes iterate")
	}
	return st, nil
}
