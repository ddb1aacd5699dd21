package geocode

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Resolver turns location text into coordinates: cache first, then provider
// variants in priority order through the shared Gate, accepting the first
// hit that validates against the Region.
type Resolver struct {
	provider         Provider
	cache            Cache
	gate             *Gate
	region           Region
	log              *zap.Logger
	batchConcurrency int
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache enables the forward/reverse cache.
func WithCache(c Cache) ResolverOption {
	return func(r *Resolver) {
		r.cache = c
	}
}

// WithGate shares a Gate between resolvers. All resolvers talking to the same
// provider in one process must share one Gate.
func WithGate(g *Gate) ResolverOption {
	return func(r *Resolver) {
		if g != nil {
			r.gate = g
		}
	}
}

// WithRegion sets the target region. Defaults to SanDiego().
func WithRegion(region Region) ResolverOption {
	return func(r *Resolver) {
		r.region = region
	}
}

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithBatchConcurrency sets the number of workers used by BatchResolve.
func WithBatchConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.batchConcurrency = n
		}
	}
}

// NewResolver creates a Resolver for the given provider.
func NewResolver(provider Provider, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		provider:         provider,
		region:           SanDiego(),
		log:              zap.L(),
		batchConcurrency: 5,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.gate == nil {
		r.gate = NewGate(DefaultMinInterval)
	}
	return r
}

// CallOption configures a single Resolve, ReverseResolve or BatchResolve call.
type CallOption func(*callConfig)

type callConfig struct {
	debug    func(string)
	progress func(int, *Result)
}

// WithDebug registers a sink for human-readable progress lines (cache hits,
// each variant tried, why a hit was rejected).
func WithDebug(fn func(string)) CallOption {
	return func(c *callConfig) {
		c.debug = fn
	}
}

// WithProgress registers a callback BatchResolve invokes once per finished
// query with its index and result (nil when unresolved). It may be called
// from several goroutines at once.
func WithProgress(fn func(i int, res *Result)) CallOption {
	return func(c *callConfig) {
		c.progress = fn
	}
}

func newCallConfig(opts []CallOption) *callConfig {
	c := &callConfig{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *callConfig) debugf(log *zap.Logger, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Debug(msg)
	if c.debug != nil {
		c.debug(msg)
	}
}

// Outcome is the result of one variant's provider call: a Match, an error,
// or neither when the provider found nothing.
type Outcome struct {
	Variant Variant
	Match   *Match
	Err     error
}

// attempt runs one gated provider call for v.
func (r *Resolver) attempt(ctx context.Context, v Variant) Outcome {
	out := Outcome{Variant: v}
	if err := r.gate.Do(ctx, func(ctx context.Context) error {
		out.Match, out.Err = r.provider.Geocode(ctx, v.Query)
		return nil
	}); err != nil {
		out.Err = err
	}
	return out
}

// Resolve geocodes raw location text. It returns nil, nil when the location
// could not be resolved; the only error is ctx cancellation. Provider errors,
// rejected hits and cache failures all degrade to trying the next variant.
//
// A cached result is returned as-is, even if it is only approximate.
func (r *Resolver) Resolve(ctx context.Context, raw string, opts ...CallOption) (*Result, error) {
	cfg := newCallConfig(opts)

	normalized := Normalize(raw)
	if normalized == "" {
		return nil, nil
	}
	log := r.log.With(zap.String("query", normalized))

	if r.cache != nil {
		cached, err := r.cache.Get(ctx, normalized)
		switch {
		case err != nil:
			log.Warn("geocode: cache read failed", zap.Error(err))
			cfg.debugf(log, "CACHE ERROR: '%s': %v", normalized, err)
		case cached != nil:
			cfg.debugf(log, "CACHE HIT: '%s' -> (%v, %v)", normalized, cached.Latitude, cached.Longitude)
			return cached, nil
		default:
			cfg.debugf(log, "CACHE MISS: '%s'", normalized)
		}
	}

	for _, v := range BuildVariants(raw, r.region) {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "geocode: resolve")
		}
		cfg.debugf(log, "GEOCODE: Trying '%s'", v.Query)

		out := r.attempt(ctx, v)
		switch {
		case out.Err != nil && ctx.Err() != nil:
			return nil, eris.Wrap(ctx.Err(), "geocode: resolve")
		case out.Err != nil:
			cfg.debugf(log, "GEOCODE: Error for '%s': %v", v.Query, out.Err)
			continue
		case out.Match == nil:
			cfg.debugf(log, "GEOCODE: No result for '%s'", v.Query)
			continue
		}

		m := out.Match
		if err := r.region.Accept(m.Latitude, m.Longitude, m.DisplayAddress); err != nil {
			cfg.debugf(log, "GEOCODE: Rejected '%s' - %v", v.Query, err)
			continue
		}

		result := &Result{Latitude: m.Latitude, Longitude: m.Longitude, Precision: v.Precision}
		cfg.debugf(log, "GEOCODE: Success '%s' -> (%v, %v) [precision=%s]", v.Query, result.Latitude, result.Longitude, result.Precision)

		if r.cache != nil {
			if err := r.cache.Put(ctx, normalized, *result); err != nil {
				log.Warn("geocode: cache write failed", zap.Error(err))
			}
		}
		return result, nil
	}

	cfg.debugf(log, "GEOCODE: All attempts failed for '%s'", raw)
	return nil, nil
}

// ReverseResolve looks up the address at lat/lon: cache first, then a single
// gated provider call. Only a non-empty address is accepted and cached.
func (r *Resolver) ReverseResolve(ctx context.Context, lat, lon float64, opts ...CallOption) (*Address, error) {
	cfg := newCallConfig(opts)
	log := r.log.With(zap.String("coords", CoordString(lat, lon)))

	if r.cache != nil {
		cached, err := r.cache.GetReverse(ctx, lat, lon)
		switch {
		case err != nil:
			log.Warn("geocode: reverse cache read failed", zap.Error(err))
		case cached != nil:
			cfg.debugf(log, "REVERSE CACHE HIT: (%v, %v)", lat, lon)
			return cached, nil
		}
	}

	var (
		addr *Address
		perr error
	)
	if err := r.gate.Do(ctx, func(ctx context.Context) error {
		addr, perr = r.provider.Reverse(ctx, lat, lon)
		return nil
	}); err != nil {
		return nil, err
	}
	if perr != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "geocode: reverse resolve")
		}
		cfg.debugf(log, "Reverse geocoding error: %v", perr)
		return nil, nil
	}
	if addr == nil || addr.Empty() {
		cfg.debugf(log, "REVERSE: No address for (%v, %v)", lat, lon)
		return nil, nil
	}

	if r.cache != nil {
		if err := r.cache.PutReverse(ctx, lat, lon, *addr); err != nil {
			log.Warn("geocode: reverse cache write failed", zap.Error(err))
		}
	}
	return addr, nil
}

// BatchResolve resolves many locations concurrently. Results line up with
// queries; unresolved entries are nil. Workers share the Gate, so provider
// calls remain a single spaced stream.
func (r *Resolver) BatchResolve(ctx context.Context, queries []string, opts ...CallOption) ([]*Result, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	cfg := newCallConfig(opts)
	batchID := uuid.NewString()
	log := r.log.With(zap.String("batch_id", batchID))
	start := time.Now()
	log.Info("geocode: batch started",
		zap.Int("queries", len(queries)),
		zap.Int("concurrency", r.batchConcurrency),
	)

	results := make([]*Result, len(queries))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.batchConcurrency)

	for i, q := range queries {
		eg.Go(func() error {
			res, err := r.Resolve(gCtx, q, opts...)
			if err != nil {
				return err
			}
			results[i] = res
			if cfg.progress != nil {
				cfg.progress(i, res)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return results, eris.Wrap(err, "geocode: batch resolve")
	}

	var resolved int
	for _, res := range results {
		if res != nil {
			resolved++
		}
	}
	log.Info("geocode: batch finished",
		zap.Int("resolved", resolved),
		zap.Int("unresolved", len(queries)-resolved),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}
