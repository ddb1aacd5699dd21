package resilience

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/incident-geocoder/pkg/geocode"
)

// GuardedProvider wraps a geocode.Provider with a Breaker. While the breaker
// is open, calls fail fast with ErrOpen and the resolver moves on.
type GuardedProvider struct {
	provider geocode.Provider
	breaker  *Breaker
}

// Guard wraps p with b.
func Guard(p geocode.Provider, b *Breaker) *GuardedProvider {
	return &GuardedProvider{provider: p, breaker: b}
}

// ProviderBreaker returns a Breaker that trips only on transient provider
// failures and logs state changes.
func ProviderBreaker(name string, cfg BreakerConfig, opts ...Option) *Breaker {
	cfg.Trips = geocode.IsTransient
	cfg.OnStateChange = func(from, to State) {
		zap.L().Warn("resilience: provider breaker state change",
			zap.String("provider", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return NewBreaker(cfg, opts...)
}

// Name implements geocode.Provider.
func (g *GuardedProvider) Name() string { return g.provider.Name() }

// Breaker returns the underlying breaker.
func (g *GuardedProvider) Breaker() *Breaker { return g.breaker }

// Geocode implements geocode.Provider.
func (g *GuardedProvider) Geocode(ctx context.Context, query string) (*geocode.Match, error) {
	var m *geocode.Match
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		m, err = g.provider.Geocode(ctx, query)
		return err
	})
	if err != nil {
		return nil, g.wrap(err)
	}
	return m, nil
}

// Reverse implements geocode.Provider.
func (g *GuardedProvider) Reverse(ctx context.Context, lat, lon float64) (*geocode.Address, error) {
	var a *geocode.Address
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		a, err = g.provider.Reverse(ctx, lat, lon)
		return err
	})
	if err != nil {
		return nil, g.wrap(err)
	}
	return a, nil
}

func (g *GuardedProvider) wrap(err error) error {
	if eris.Is(err, ErrOpen) {
		return eris.Wrapf(err, "%s", g.provider.Name())
	}
	return err
}
