package main

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/incident-geocoder/internal/resilience"
	"github.com/sells-group/incident-geocoder/internal/store"
	"github.com/sells-group/incident-geocoder/pkg/geocode"
)

// geocodeEnv holds the resolver and the resources behind it.
type geocodeEnv struct {
	Resolver *geocode.Resolver
	Store    store.Store
	closers  []func()
}

// Close releases the store and provider connections.
func (e *geocodeEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
		Pool: &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		},
	})
}

// initProvider builds the configured geocoding provider. The returned func
// closes any connection the provider holds.
func initProvider(ctx context.Context) (geocode.Provider, func(), error) {
	g := cfg.Geocode
	hc := &http.Client{Timeout: g.Timeout()}
	noop := func() {}

	switch g.Provider {
	case "nominatim":
		return geocode.NewNominatim(
			geocode.WithNominatimBaseURL(g.BaseURL),
			geocode.WithNominatimUserAgent(g.UserAgent),
			geocode.WithNominatimHTTPClient(hc),
			geocode.WithNominatimRateLimit(g.RequestsPerSecond),
		), noop, nil
	case "google":
		return geocode.NewGoogle(g.GoogleAPIKey,
			geocode.WithGoogleHTTPClient(hc),
			geocode.WithGoogleRateLimit(g.RequestsPerSecond),
		), noop, nil
	case "census":
		return geocode.NewCensus(
			geocode.WithCensusBaseURL(g.BaseURL),
			geocode.WithCensusHTTPClient(hc),
		), noop, nil
	case "tiger":
		pool, err := pgxpool.New(ctx, g.TigerDatabaseURL)
		if err != nil {
			return nil, nil, eris.Wrap(err, "tiger: connect")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, eris.Wrap(err, "tiger: ping")
		}
		return geocode.NewTiger(pool, g.TigerMaxRating,
			geocode.WithTigerLogger(zap.L().With(zap.String("provider", "tiger"))),
		), pool.Close, nil
	default:
		return nil, nil, eris.Errorf("unsupported geocode provider: %s", g.Provider)
	}
}

// initResolver wires store, provider, gate and region into a Resolver.
func initResolver(ctx context.Context) (*geocodeEnv, error) {
	if err := cfg.Validate("resolve"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	env := &geocodeEnv{Store: st}
	env.closers = append(env.closers, func() {
		if err := st.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	})

	provider, closeProvider, err := initProvider(ctx)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init provider")
	}
	env.closers = append(env.closers, closeProvider)

	if n := cfg.Geocode.BreakerThreshold; n > 0 {
		provider = resilience.Guard(provider, resilience.ProviderBreaker(provider.Name(), resilience.BreakerConfig{
			Threshold: n,
			Cooldown:  cfg.Geocode.BreakerCooldown(),
		}))
	}

	env.Resolver = geocode.NewResolver(provider,
		geocode.WithCache(st),
		geocode.WithGate(geocode.NewGate(cfg.Geocode.MinInterval())),
		geocode.WithRegion(cfg.Region.Build()),
		geocode.WithBatchConcurrency(cfg.Batch.Concurrency),
		geocode.WithLogger(zap.L().With(zap.String("provider", provider.Name()))),
	)
	return env, nil
}
