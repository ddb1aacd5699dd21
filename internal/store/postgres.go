package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/incident-geocoder/pkg/geocode"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool. Upserts are atomic in the
// database, so several processes may share one cache.
type PostgresStore struct {
	mu   sync.Mutex
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// migrationLockID keys the advisory lock that serializes schema setup
// across processes sharing one database.
const migrationLockID int64 = 7427318

const postgresMigration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	query_hash TEXT PRIMARY KEY,
	query      TEXT NOT NULL,
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	precision  TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_geocode_cache_query ON geocode_cache(query);

CREATE TABLE IF NOT EXISTS reverse_geocode_cache (
	coords_hash TEXT PRIMARY KEY,
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	address     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the cache tables. It is safe to call repeatedly and from
// several processes at once: the DDL runs in one transaction holding a
// transaction-scoped advisory lock.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: migrate begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}
	if _, err := tx.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: migrate commit")
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Get implements geocode.Cache.
func (s *PostgresStore) Get(ctx context.Context, normalized string) (*geocode.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		r    geocode.Result
		prec string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT latitude, longitude, precision FROM geocode_cache WHERE query_hash = $1`,
		geocode.QueryKey(normalized),
	).Scan(&r.Latitude, &r.Longitude, &prec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached geocode")
	}
	r.Precision = geocode.Precision(prec)
	return &r, nil
}

// Put implements geocode.Cache.
func (s *PostgresStore) Put(ctx context.Context, normalized string, r geocode.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO geocode_cache (query_hash, query, latitude, longitude, precision, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (query_hash) DO UPDATE SET
			query = EXCLUDED.query,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			precision = EXCLUDED.precision,
			created_at = EXCLUDED.created_at`,
		geocode.QueryKey(normalized), normalized, r.Latitude, r.Longitude, string(r.Precision), time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: set cached geocode")
}

// GetReverse implements geocode.Cache.
func (s *PostgresStore) GetReverse(ctx context.Context, lat, lon float64) (*geocode.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var addrJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT address FROM reverse_geocode_cache WHERE coords_hash = $1`,
		geocode.CoordKey(lat, lon),
	).Scan(&addrJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached reverse")
	}

	var a geocode.Address
	if err := json.Unmarshal(addrJSON, &a); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached address")
	}
	return &a, nil
}

// PutReverse implements geocode.Cache.
func (s *PostgresStore) PutReverse(ctx context.Context, lat, lon float64, a geocode.Address) error {
	addrJSON, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal address")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reverse_geocode_cache (coords_hash, latitude, longitude, address, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (coords_hash) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			address = EXCLUDED.address,
			created_at = EXCLUDED.created_at`,
		geocode.CoordKey(lat, lon), lat, lon, addrJSON, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: set cached reverse")
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &Stats{ByPrecision: map[string]int{}}

	rows, err := s.pool.Query(ctx, `SELECT precision, COUNT(*) FROM geocode_cache GROUP BY precision`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count geocodes")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			prec string
			n    int
		)
		if err := rows.Scan(&prec, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan geocode count")
		}
		st.ByPrecision[prec] = n
		st.Forward += n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: count geocodes iterate")
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reverse_geocode_cache`).Scan(&st.Reverse); err != nil {
		return nil, eris.Wrap(err, "postgres: count reverse geocodes")
	}
	return st, nil
}
